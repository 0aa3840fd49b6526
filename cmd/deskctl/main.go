package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/config"
	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/persistence"
	"github.com/leaftogo/deskbot/internal/repository"
	"github.com/leaftogo/deskbot/internal/service"
)

var rootCmd = &cobra.Command{
	Use:           "deskctl",
	Short:         "Operator tooling for the service desk bot",
	Long:          `deskctl talks straight to the bot's database: inspect and edit role grants, pull CSV exports. It needs POSTGRES_DSN; the bot's in-memory fallback has nothing to operate on.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Inspect and edit role grants",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List admins and technicians, static and granted",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, cleanup, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		admins, techs, err := env.roles.Roles(cmd.Context())
		if err != nil {
			return err
		}
		printIDs("admins", admins, env)
		printIDs("technicians", techs, env)
		return nil
	},
}

var rolesGrantCmd = &cobra.Command{
	Use:   "grant <user_id|@username> <admin|tech>",
	Short: "Grant a role, replacing any existing grant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := parseRole(args[1])
		if err != nil {
			return err
		}
		env, cleanup, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		targetID, err := env.roles.ResolveActor(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		// Grants written here carry granted_by=0, marking operator edits.
		if err := env.roleRepo.Upsert(cmd.Context(), &domain.RoleGrant{ActorID: targetID, Role: role}); err != nil {
			return err
		}
		fmt.Printf("granted %s to %d\n", role, targetID)
		return nil
	},
}

var rolesRevokeCmd = &cobra.Command{
	Use:   "revoke <user_id|@username>",
	Short: "Remove a stored role grant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, cleanup, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		targetID, err := env.roles.ResolveActor(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, id := range env.cfg.Roles.AdminIDs {
			if id == targetID {
				return fmt.Errorf("%d is a statically configured admin; edit ADMIN_IDS instead", targetID)
			}
		}
		removed, err := env.roleRepo.Delete(cmd.Context(), targetID)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("%d had no stored grant\n", targetID)
			return nil
		}
		fmt.Printf("revoked grant of %d\n", targetID)
		return nil
	},
}

var exportPeriod string
var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ticket CSV export to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, ok := service.PeriodDays(exportPeriod)
		if !ok {
			return fmt.Errorf("unknown period %q, want week or month", exportPeriod)
		}
		env, cleanup, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		from := time.Now().UTC().AddDate(0, 0, -days)
		data, count, err := env.journal.ExportCSV(cmd.Context(), from)
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = fmt.Sprintf("tickets_%s.csv", exportPeriod)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %d tickets to %s\n", count, out)
		return nil
	},
}

type cliEnv struct {
	cfg      *config.Config
	roles    *service.RoleService
	journal  *service.JournalService
	roleRepo repository.RoleRepository
}

// connect loads configuration and opens the database. Logging is kept
// quiet; command output is the interface here.
func connect(ctx context.Context) (*cliEnv, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := zap.NewNop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, nil, err
	}
	if !pg.Enabled() {
		pg.Close()
		return nil, nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	pool := pg.PoolHandle()
	roleRepo := repository.NewRoleRepository(pool)
	env := &cliEnv{
		cfg:      cfg,
		roleRepo: roleRepo,
		roles: service.NewRoleService(service.RoleDependencies{
			RoleRepo:  roleRepo,
			ActorRepo: repository.NewActorRepository(pool),
			Static:    cfg.Roles,
			Logger:    logger,
		}),
		journal: service.NewJournalService(service.JournalDependencies{
			TicketRepo: repository.NewTicketRepository(pool),
			Logger:     logger,
		}),
	}
	return env, pg.Close, nil
}

func parseRole(arg string) (domain.Role, error) {
	switch arg {
	case "admin":
		return domain.RoleAdmin, nil
	case "tech", "technician":
		return domain.RoleTechnician, nil
	default:
		return "", fmt.Errorf("unknown role %q, want admin or tech", arg)
	}
}

func printIDs(header string, ids []int64, env *cliEnv) {
	fmt.Printf("%s:\n", header)
	if len(ids) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, id := range ids {
		fmt.Printf("  %d\t%s\n", id, env.roles.DisplayName(context.Background(), id))
	}
}

func main() {
	rolesCmd.AddCommand(rolesListCmd, rolesGrantCmd, rolesRevokeCmd)
	exportCmd.Flags().StringVar(&exportPeriod, "period", "week", "export window: week or month")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default tickets_<period>.csv)")
	rootCmd.AddCommand(rolesCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
