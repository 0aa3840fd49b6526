package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/config"
	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/events"
	"github.com/leaftogo/deskbot/internal/observability"
	"github.com/leaftogo/deskbot/internal/repository"
	"github.com/leaftogo/deskbot/internal/session"
	"github.com/leaftogo/deskbot/internal/worker"
)

const secondAdminID = int64(5)

type notifyCall struct {
	kind      string
	recipient int64
	ticketID  int64
	actions   []domain.TicketAction
}

// stubNotifier records deliveries; recipients in fail refuse them.
type stubNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	fail  map[int64]bool
}

func (s *stubNotifier) record(kind string, recipient int64, ticket *domain.Ticket, actions []domain.TicketAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, notifyCall{kind: kind, recipient: recipient, ticketID: ticket.ID, actions: actions})
	if s.fail[recipient] {
		return errStoreDown
	}
	return nil
}

func (s *stubNotifier) NotifyTicketCreated(_ context.Context, recipient int64, ticket *domain.Ticket, actions []domain.TicketAction) error {
	return s.record("created", recipient, ticket, actions)
}

func (s *stubNotifier) NotifyAssigned(_ context.Context, recipient int64, ticket *domain.Ticket, actions []domain.TicketAction) error {
	return s.record("assigned", recipient, ticket, actions)
}

func (s *stubNotifier) NotifyResolution(_ context.Context, recipient int64, ticket *domain.Ticket) error {
	return s.record("resolution", recipient, ticket, nil)
}

func (s *stubNotifier) byKind(kind string) []notifyCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []notifyCall
	for _, call := range s.calls {
		if call.kind == kind {
			matched = append(matched, call)
		}
	}
	return matched
}

type notifyFixture struct {
	tickets   repository.TicketRepository
	roles     *RoleService
	lifecycle *LifecycleService
	wizard    *WizardService
	notifier  *stubNotifier
	metrics   *observability.Metrics
}

// newNotifyFixture wires real services around the synchronous dispatcher
// so every lifecycle call lands in the stub notifier before returning.
func newNotifyFixture(t *testing.T, pool *worker.Pool) *notifyFixture {
	t.Helper()
	dispatcher := events.NewInMemoryDispatcher()
	tickets := repository.NewMemoryTicketRepository()
	notifier := &stubNotifier{fail: map[int64]bool{}}
	metrics := observability.NewMetrics()

	roles := NewRoleService(RoleDependencies{
		RoleRepo:  repository.NewMemoryRoleRepository(),
		ActorRepo: repository.NewMemoryActorRepository(),
		Static: config.RolesConfig{
			AdminIDs:      []int64{adminID, secondAdminID},
			TechnicianIDs: []int64{techID, otherTechID},
		},
		Logger: zap.NewNop(),
	})
	lifecycle := NewLifecycleService(LifecycleDependencies{
		TicketRepo: tickets,
		Roles:      roles,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})
	wizard := NewWizardService(WizardDependencies{
		Sessions:   session.NewMemoryStore(0),
		TicketRepo: tickets,
		Lifecycle:  lifecycle,
		Catalog:    config.CatalogConfig{Locations: []string{"Цех 1"}, Equipment: []string{"Станок"}},
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})
	notifications := NewNotificationService(NotificationDependencies{
		Notifier:  notifier,
		Roles:     roles,
		Lifecycle: lifecycle,
		Pool:      pool,
		Metrics:   metrics,
		Logger:    zap.NewNop(),
	})
	notifications.RegisterHandlers(dispatcher)

	return &notifyFixture{
		tickets:   tickets,
		roles:     roles,
		lifecycle: lifecycle,
		wizard:    wizard,
		notifier:  notifier,
		metrics:   metrics,
	}
}

func (nf *notifyFixture) seedRepair(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		Kind:        domain.TicketKindRepair,
		Status:      domain.TicketStatusNew,
		Priority:    domain.TicketPriorityNormal,
		ChatID:      100,
		AuthorID:    plainUserID,
		AuthorName:  "@author",
		Location:    "Цех 1",
		Equipment:   "Станок",
		Description: "станок встал",
	}
	require.NoError(t, nf.tickets.Create(context.Background(), ticket))
	return ticket
}

func sentFailed(m *observability.Metrics) (int64, int64) {
	counts := m.Snapshot()["notifications"].(map[string]int64)
	return counts["sent"], counts["failed"]
}

func TestCreatedFansOutToAdmins(t *testing.T) {
	nf := newNotifyFixture(t, nil)
	ctx := context.Background()
	author := ActorRef{ID: plainUserID, Name: "@user"}

	_, err := nf.wizard.StartCreation(ctx, author, 100, domain.TicketKindPurchase)
	require.NoError(t, err)
	res, err := nf.wizard.HandleText(ctx, author, "нужно масло")
	require.NoError(t, err)
	require.NotNil(t, res.Created)

	calls := nf.notifier.byKind("created")
	require.Len(t, calls, 2)
	recipients := []int64{calls[0].recipient, calls[1].recipient}
	assert.ElementsMatch(t, []int64{adminID, secondAdminID}, recipients)
	for _, call := range calls {
		assert.Equal(t, res.Created.ID, call.ticketID)
		assert.Equal(t, []domain.TicketAction{domain.ActionApprove, domain.ActionReject, domain.ActionCancel}, call.actions)
	}

	sent, failed := sentFailed(nf.metrics)
	assert.Equal(t, int64(2), sent)
	assert.Zero(t, failed)
}

func TestClaimStaysQuiet(t *testing.T) {
	nf := newNotifyFixture(t, nil)
	ctx := context.Background()
	ticket := nf.seedRepair(t)

	_, err := nf.lifecycle.Claim(ctx, ActorRef{ID: techID, Name: "@tech"}, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, nf.notifier.calls)
}

func TestAssignNotifiesAssignee(t *testing.T) {
	nf := newNotifyFixture(t, nil)
	ctx := context.Background()
	ticket := nf.seedRepair(t)

	_, err := nf.lifecycle.Assign(ctx, ActorRef{ID: adminID, Name: "@admin"}, ticket.ID, ActorRef{ID: techID, Name: "@tech"})
	require.NoError(t, err)

	calls := nf.notifier.byKind("assigned")
	require.Len(t, calls, 1)
	assert.Equal(t, techID, calls[0].recipient)
	assert.Equal(t, ticket.ID, calls[0].ticketID)
	assert.Equal(t, []domain.TicketAction{domain.ActionComplete, domain.ActionDecline}, calls[0].actions)
}

func TestSelfAssignStaysQuiet(t *testing.T) {
	nf := newNotifyFixture(t, nil)
	ctx := context.Background()
	ticket := nf.seedRepair(t)

	_, err := nf.lifecycle.Assign(ctx, ActorRef{ID: adminID, Name: "@admin"}, ticket.ID, ActorRef{ID: adminID, Name: "@admin"})
	require.NoError(t, err)
	assert.Empty(t, nf.notifier.byKind("assigned"))
}

func TestResolutionReachesAuthor(t *testing.T) {
	nf := newNotifyFixture(t, nil)
	ctx := context.Background()

	// Decline tells the author; completion does not.
	declined := nf.seedRepair(t)
	_, err := nf.lifecycle.Claim(ctx, ActorRef{ID: techID, Name: "@tech"}, declined.ID)
	require.NoError(t, err)
	_, err = nf.lifecycle.Decline(ctx, ActorRef{ID: techID}, declined.ID, "нет запчастей")
	require.NoError(t, err)

	calls := nf.notifier.byKind("resolution")
	require.Len(t, calls, 1)
	assert.Equal(t, plainUserID, calls[0].recipient)
	assert.Equal(t, declined.ID, calls[0].ticketID)

	completed := nf.seedRepair(t)
	_, err = nf.lifecycle.Claim(ctx, ActorRef{ID: techID, Name: "@tech"}, completed.ID)
	require.NoError(t, err)
	_, err = nf.lifecycle.Complete(ctx, ActorRef{ID: techID}, completed.ID)
	require.NoError(t, err)
	assert.Len(t, nf.notifier.byKind("resolution"), 1)

	canceled := nf.seedRepair(t)
	_, err = nf.lifecycle.Cancel(ctx, ActorRef{ID: adminID}, canceled.ID, "дубль")
	require.NoError(t, err)
	assert.Len(t, nf.notifier.byKind("resolution"), 1)
}

func TestDeliveryFailureIsContained(t *testing.T) {
	nf := newNotifyFixture(t, nil)
	nf.notifier.fail[secondAdminID] = true
	ctx := context.Background()
	author := ActorRef{ID: plainUserID, Name: "@user"}

	_, err := nf.wizard.StartCreation(ctx, author, 100, domain.TicketKindPurchase)
	require.NoError(t, err)
	_, err = nf.wizard.HandleText(ctx, author, "нужно масло")
	require.NoError(t, err)

	// Both recipients were attempted despite the failure.
	assert.Len(t, nf.notifier.byKind("created"), 2)
	sent, failed := sentFailed(nf.metrics)
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(1), failed)
}

func TestDeliveriesRunOnPool(t *testing.T) {
	pool := worker.NewPool(2, 16, time.Second, zap.NewNop())
	nf := newNotifyFixture(t, pool)
	ctx := context.Background()
	ticket := nf.seedRepair(t)

	_, err := nf.lifecycle.Assign(ctx, ActorRef{ID: adminID, Name: "@admin"}, ticket.ID, ActorRef{ID: techID, Name: "@tech"})
	require.NoError(t, err)

	// Stop drains the queue, so the delivery is visible afterwards.
	pool.Stop()
	calls := nf.notifier.byKind("assigned")
	require.Len(t, calls, 1)
	assert.Equal(t, techID, calls[0].recipient)

	sent, _ := sentFailed(nf.metrics)
	assert.Equal(t, int64(1), sent)
}
