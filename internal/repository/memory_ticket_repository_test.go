package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaftogo/deskbot/internal/domain"
)

func seedTicket(t *testing.T, repo TicketRepository, mutate func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		Kind:        domain.TicketKindRepair,
		Status:      domain.TicketStatusNew,
		Priority:    domain.TicketPriorityNormal,
		ChatID:      1,
		AuthorID:    10,
		AuthorName:  "@author",
		Location:    "Цех 1",
		Equipment:   "Станок",
		Description: "станок встал",
	}
	if mutate != nil {
		mutate(ticket)
	}
	require.NoError(t, repo.Create(context.Background(), ticket))
	return ticket
}

func ticketIDs(tickets []domain.Ticket) []int64 {
	ids := make([]int64, 0, len(tickets))
	for _, ticket := range tickets {
		ids = append(ids, ticket.ID)
	}
	return ids
}

func TestMemoryCreateAndGet(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()

	first := seedTicket(t, repo, nil)
	second := seedTicket(t, repo, nil)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, first.CreatedAt.Location())

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "станок встал", got.Description)

	missing, err := repo.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	assignee := int64(7)
	created := seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.Status = domain.TicketStatusInWork
		ticket.AssigneeID = &assignee
		ticket.AssigneeName = "@tech"
	})

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	got.Description = "подменили"
	*got.AssigneeID = 99

	fresh, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "станок встал", fresh.Description)
	assert.Equal(t, int64(7), *fresh.AssigneeID)
}

func TestConditionalUpdateStatusGuard(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	ticket := seedTicket(t, repo, nil)

	newStatus := domain.TicketStatusNew
	inWork := domain.TicketStatusInWork
	ok, err := repo.ConditionalUpdate(ctx, ticket.ID, UpdateGuard{Status: &newStatus}, TicketUpdate{Status: &inWork})
	require.NoError(t, err)
	assert.True(t, ok)

	// The same guard no longer holds.
	ok, err = repo.ConditionalUpdate(ctx, ticket.ID, UpdateGuard{Status: &newStatus}, TicketUpdate{Status: &inWork})
	require.NoError(t, err)
	assert.False(t, ok)

	// A nil status guard matches anything.
	done := domain.TicketStatusDone
	ok, err = repo.ConditionalUpdate(ctx, ticket.ID, UpdateGuard{}, TicketUpdate{Status: &done})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusDone, got.Status)
}

func TestConditionalUpdateAssigneeGuard(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	ticket := seedTicket(t, repo, nil)

	tech := int64(7)
	name := "@tech"
	// Guarding on "unassigned" wins the race exactly once.
	ok, err := repo.ConditionalUpdate(ctx, ticket.ID,
		UpdateGuard{MatchAssignee: true},
		TicketUpdate{AssigneeID: &tech, AssigneeName: &name})
	require.NoError(t, err)
	assert.True(t, ok)

	rival := int64(8)
	ok, err = repo.ConditionalUpdate(ctx, ticket.ID,
		UpdateGuard{MatchAssignee: true},
		TicketUpdate{AssigneeID: &rival})
	require.NoError(t, err)
	assert.False(t, ok)

	// Guarding on the wrong holder misses, on the right one hits.
	ok, err = repo.ConditionalUpdate(ctx, ticket.ID,
		UpdateGuard{MatchAssignee: true, Assignee: &rival},
		TicketUpdate{AssigneeID: &rival})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ConditionalUpdate(ctx, ticket.ID,
		UpdateGuard{MatchAssignee: true, Assignee: &tech},
		TicketUpdate{AssigneeID: &rival, AssigneeName: &name})
	require.NoError(t, err)
	assert.True(t, ok)

	// Without MatchAssignee the holder is not part of the compare.
	ok, err = repo.ConditionalUpdate(ctx, ticket.ID,
		UpdateGuard{},
		TicketUpdate{AssigneeID: &tech})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, tech, *got.AssigneeID)
}

func TestConditionalUpdateClearAssignee(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	tech := int64(7)
	ticket := seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.Status = domain.TicketStatusInWork
		ticket.AssigneeID = &tech
		ticket.AssigneeName = "@tech"
	})

	reason := "дубль"
	canceled := domain.TicketStatusCanceled
	ok, err := repo.ConditionalUpdate(ctx, ticket.ID, UpdateGuard{}, TicketUpdate{
		Status:        &canceled,
		ClearAssignee: true,
		Reason:        &reason,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssigneeID)
	assert.Empty(t, got.AssigneeName)
	assert.Equal(t, "дубль", got.Reason)
}

func TestConditionalUpdateMissingTicket(t *testing.T) {
	repo := NewMemoryTicketRepository()
	inWork := domain.TicketStatusInWork
	ok, err := repo.ConditionalUpdate(context.Background(), 42, UpdateGuard{}, TicketUpdate{Status: &inWork})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindFilters(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	tech := int64(7)

	repair := seedTicket(t, repo, nil)
	working := seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.Status = domain.TicketStatusInWork
		ticket.AssigneeID = &tech
		ticket.AssigneeName = "@tech"
		ticket.Description = "греется мотор"
	})
	purchase := seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.Kind = domain.TicketKindPurchase
		ticket.AuthorID = 11
		ticket.Location = ""
		ticket.Equipment = ""
		ticket.Description = "нужно масло"
	})

	kind := domain.TicketKindRepair
	found, err := repo.Find(ctx, TicketFilter{Kind: &kind})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{repair.ID, working.ID}, ticketIDs(found))

	status := domain.TicketStatusNew
	found, err = repo.Find(ctx, TicketFilter{Status: &status})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{repair.ID, purchase.ID}, ticketIDs(found))

	author := int64(11)
	found, err = repo.Find(ctx, TicketFilter{AuthorID: &author})
	require.NoError(t, err)
	assert.Equal(t, []int64{purchase.ID}, ticketIDs(found))

	found, err = repo.Find(ctx, TicketFilter{AssigneeID: &tech})
	require.NoError(t, err)
	assert.Equal(t, []int64{working.ID}, ticketIDs(found))

	found, err = repo.Find(ctx, TicketFilter{Kind: &kind, UnassignedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{repair.ID}, ticketIDs(found))

	// Search is case-insensitive over description, location and equipment.
	found, err = repo.Find(ctx, TicketFilter{Search: "МОТОР"})
	require.NoError(t, err)
	assert.Equal(t, []int64{working.ID}, ticketIDs(found))

	found, err = repo.Find(ctx, TicketFilter{Search: "цех"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{repair.ID, working.ID}, ticketIDs(found))

	found, err = repo.Find(ctx, TicketFilter{Search: "#2"})
	require.NoError(t, err)
	assert.Equal(t, []int64{working.ID}, ticketIDs(found))

	found, err = repo.Find(ctx, TicketFilter{Search: "#404"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindTimeWindows(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	oldDone := now.AddDate(0, 0, -40)
	recentDone := now.AddDate(0, 0, -5)
	early := seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.Status = domain.TicketStatusDone
		ticket.DoneAt = &oldDone
	})
	late := seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.Status = domain.TicketStatusDone
		ticket.DoneAt = &recentDone
	})
	open := seedTicket(t, repo, nil)

	since := now.AddDate(0, 0, -30)
	found, err := repo.Find(ctx, TicketFilter{DoneFrom: &since})
	require.NoError(t, err)
	assert.Equal(t, []int64{late.ID}, ticketIDs(found))

	future := now.Add(time.Hour)
	found, err = repo.Find(ctx, TicketFilter{CreatedFrom: &future})
	require.NoError(t, err)
	assert.Empty(t, found)

	past := now.Add(-time.Hour)
	found, err = repo.Find(ctx, TicketFilter{CreatedFrom: &past})
	require.NoError(t, err)
	assert.Len(t, found, 3)

	// Completion order puts fresh completions first and open tickets last.
	found, err = repo.Find(ctx, TicketFilter{OrderByDone: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{late.ID, early.ID, open.ID}, ticketIDs(found))
}

func TestFindPaging(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		seedTicket(t, repo, nil)
	}

	// Newest first by default.
	found, err := repo.Find(ctx, TicketFilter{})
	require.NoError(t, err)
	require.Len(t, found, DefaultPageSize)
	assert.Equal(t, int64(25), found[0].ID)
	assert.Equal(t, int64(6), found[19].ID)

	found, err = repo.Find(ctx, TicketFilter{Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, found, 5)
	assert.Equal(t, int64(5), found[0].ID)

	found, err = repo.Find(ctx, TicketFilter{Limit: 10, Offset: 40})
	require.NoError(t, err)
	assert.Nil(t, found)

	count, err := repo.Count(ctx, TicketFilter{})
	require.NoError(t, err)
	assert.Equal(t, 25, count)
}
