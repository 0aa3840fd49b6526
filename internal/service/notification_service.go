package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/events"
	"github.com/leaftogo/deskbot/internal/observability"
	"github.com/leaftogo/deskbot/internal/worker"
)

// Notifier delivers one rendered notification to one recipient. The
// chat transport implements it.
type Notifier interface {
	NotifyTicketCreated(ctx context.Context, recipientID int64, ticket *domain.Ticket, actions []domain.TicketAction) error
	NotifyAssigned(ctx context.Context, recipientID int64, ticket *domain.Ticket, actions []domain.TicketAction) error
	NotifyResolution(ctx context.Context, recipientID int64, ticket *domain.Ticket) error
}

// NotificationService fans domain events out to the people who care:
// admins hear about new tickets, assignees about their dispatches,
// authors about decisions on their tickets. Deliveries run on the
// worker pool and never fail the operation that triggered them.
type NotificationService struct {
	notifier  Notifier
	roles     *RoleService
	lifecycle *LifecycleService
	pool      *worker.Pool
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NotificationDependencies bundles dependencies for the service. A nil
// Pool makes deliveries synchronous, which the tests rely on.
type NotificationDependencies struct {
	Notifier  Notifier
	Roles     *RoleService
	Lifecycle *LifecycleService
	Pool      *worker.Pool
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		notifier:  deps.Notifier,
		roles:     deps.Roles,
		lifecycle: deps.Lifecycle,
		pool:      deps.Pool,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// RegisterHandlers subscribes to the events that produce notifications.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil || n.notifier == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) {
	ticket := event.Ticket
	if ticket == nil {
		return
	}
	n.logger.Info("TicketCreated",
		zap.Int64("ticket_id", event.TicketID),
		zap.String("kind", string(ticket.Kind)))

	for _, adminID := range n.roles.Admins(ctx) {
		recipientID := adminID
		actions := n.lifecycle.AvailableActions(ctx, ticket, recipientID)
		n.deliver("created", recipientID, func(ctx context.Context) error {
			return n.notifier.NotifyTicketCreated(ctx, recipientID, ticket, actions)
		})
	}
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok || event.Ticket == nil {
		return
	}
	// Self-assignment needs no echo.
	if payload.AssigneeID == event.Actor.ID {
		return
	}
	n.logger.Info("TicketAssigned",
		zap.Int64("ticket_id", event.TicketID),
		zap.Int64("assignee_id", payload.AssigneeID))

	ticket := event.Ticket
	actions := n.lifecycle.AvailableActions(ctx, ticket, payload.AssigneeID)
	n.deliver("assigned", payload.AssigneeID, func(ctx context.Context) error {
		return n.notifier.NotifyAssigned(ctx, payload.AssigneeID, ticket, actions)
	})
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok || event.Ticket == nil {
		return
	}
	// Authors hear about decisions on their ticket. Completion and
	// cancellation stay quiet.
	if payload.NewStatus != domain.TicketStatusRejected && payload.NewStatus != domain.TicketStatusApproved {
		return
	}
	n.logger.Info("TicketStatusChanged",
		zap.Int64("ticket_id", event.TicketID),
		zap.String("status", string(payload.NewStatus)))

	ticket := event.Ticket
	n.deliver("resolution", ticket.AuthorID, func(ctx context.Context) error {
		return n.notifier.NotifyResolution(ctx, ticket.AuthorID, ticket)
	})
}

// deliver runs one send on the pool, or inline when there is none.
// Failures are logged and counted, never propagated.
func (n *NotificationService) deliver(kind string, recipientID int64, send func(ctx context.Context) error) {
	job := func(ctx context.Context) {
		if err := send(ctx); err != nil {
			n.metrics.RecordNotification(false)
			n.logger.Warn("notification delivery failed",
				zap.String("kind", kind),
				zap.Int64("recipient_id", recipientID),
				zap.Error(err))
			return
		}
		n.metrics.RecordNotification(true)
	}
	if n.pool == nil {
		job(context.Background())
		return
	}
	if !n.pool.Enqueue(job) {
		n.metrics.RecordNotification(false)
		n.logger.Warn("notification queue full, dropping",
			zap.String("kind", kind),
			zap.Int64("recipient_id", recipientID))
	}
}
