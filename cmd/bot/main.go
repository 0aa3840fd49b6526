package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/leaftogo/deskbot/internal/api/http"
	"github.com/leaftogo/deskbot/internal/api/http/handlers"
	"github.com/leaftogo/deskbot/internal/auth"
	"github.com/leaftogo/deskbot/internal/config"
	"github.com/leaftogo/deskbot/internal/events"
	"github.com/leaftogo/deskbot/internal/observability"
	"github.com/leaftogo/deskbot/internal/persistence"
	"github.com/leaftogo/deskbot/internal/repository"
	"github.com/leaftogo/deskbot/internal/service"
	"github.com/leaftogo/deskbot/internal/session"
	"github.com/leaftogo/deskbot/internal/transport/telegram"
	"github.com/leaftogo/deskbot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	// Stores fall back to memory when the backing service is absent, so
	// a bare `go run` works end to end.
	var ticketRepo repository.TicketRepository
	var roleRepo repository.RoleRepository
	var actorRepo repository.ActorRepository
	if pg.Enabled() {
		pool := pg.PoolHandle()
		ticketRepo = repository.NewTicketRepository(pool)
		roleRepo = repository.NewRoleRepository(pool)
		actorRepo = repository.NewActorRepository(pool)
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
		roleRepo = repository.NewMemoryRoleRepository()
		actorRepo = repository.NewMemoryActorRepository()
	}

	var sessions session.Store
	if redis.Enabled() {
		sessions = session.NewRedisStore(redis.Client, cfg.Session.TTL())
	} else {
		sessions = session.NewMemoryStore(cfg.Session.TTL())
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	roles := service.NewRoleService(service.RoleDependencies{
		RoleRepo:  roleRepo,
		ActorRepo: actorRepo,
		Static:    cfg.Roles,
		Logger:    logger,
	})
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo: ticketRepo,
		Roles:      roles,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	wizard := service.NewWizardService(service.WizardDependencies{
		Sessions:   sessions,
		TicketRepo: ticketRepo,
		Lifecycle:  lifecycle,
		Catalog:    cfg.Catalog,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	journal := service.NewJournalService(service.JournalDependencies{
		TicketRepo: ticketRepo,
		Logger:     logger,
	})

	client, err := telegram.NewClient(cfg.Telegram.Token, logger)
	if err != nil {
		logger.Fatal("failed to start telegram client", zap.Error(err))
	}

	notifyPool := worker.NewPool(cfg.Worker.Count, cfg.Worker.QueueSize, cfg.Worker.JobTimeout(), logger)
	defer notifyPool.Stop()

	notifications := service.NewNotificationService(service.NotificationDependencies{
		Notifier:  telegram.NewTicketNotifier(client),
		Roles:     roles,
		Lifecycle: lifecycle,
		Pool:      notifyPool,
		Metrics:   metrics,
		Logger:    logger,
	})
	notifications.RegisterHandlers(dispatcher)

	exportTokens := auth.NewExportTokenManager(cfg.Export.JWTSecret, cfg.Export.LinkTTL())

	router := telegram.NewRouter(telegram.RouterDependencies{
		Client:        client,
		Roles:         roles,
		Lifecycle:     lifecycle,
		Wizard:        wizard,
		Journal:       journal,
		ExportTokens:  exportTokens,
		PublicBaseURL: cfg.App.PublicBaseURL,
		Metrics:       metrics,
		Logger:        logger,
	})

	bot := telegram.NewBot(client, cfg.Telegram, cfg.App.PublicBaseURL, router, logger)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	routeCfg := httptransport.RouteConfig{
		Health:       handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Metrics:      handlers.NewMetricsHandler(metrics),
		Export:       handlers.NewExportHandler(journal),
		ExportTokens: exportTokens,
	}
	if cfg.Telegram.Mode == config.TelegramModeWebhook {
		routeCfg.Webhook = handlers.NewWebhookHandler(bot)
		routeCfg.WebhookPath = bot.WebhookPath()
	}
	httptransport.RegisterRoutes(app, routeCfg)

	logger.Info("starting",
		zap.String("service", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("addr", cfg.App.Addr()),
		zap.String("telegram_mode", cfg.Telegram.Mode))

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	go func() {
		if err := bot.Run(ctx); err != nil {
			logger.Fatal("bot run", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
