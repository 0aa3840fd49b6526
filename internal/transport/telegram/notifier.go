package telegram

import (
	"context"
	"fmt"

	"github.com/leaftogo/deskbot/internal/domain"
)

// TicketNotifier delivers lifecycle notifications over chat. It
// implements service.Notifier; each recipient gets the ticket card with
// the keys they are entitled to press.
type TicketNotifier struct {
	client *Client
}

// NewTicketNotifier constructs the notifier.
func NewTicketNotifier(client *Client) *TicketNotifier {
	return &TicketNotifier{client: client}
}

func (n *TicketNotifier) NotifyTicketCreated(_ context.Context, recipientID int64, ticket *domain.Ticket, actions []domain.TicketAction) error {
	text := CreatedHeader(ticket) + "\n" + FormatTicketCard(ticket)
	return n.sendCard(recipientID, text, ticket.ID, actions)
}

func (n *TicketNotifier) NotifyAssigned(_ context.Context, recipientID int64, ticket *domain.Ticket, actions []domain.TicketAction) error {
	text := fmt.Sprintf("Вам назначена заявка #%d.", ticket.ID) + "\n" + FormatTicketCard(ticket)
	return n.sendCard(recipientID, text, ticket.ID, actions)
}

func (n *TicketNotifier) NotifyResolution(_ context.Context, recipientID int64, ticket *domain.Ticket) error {
	return n.client.SendText(recipientID, ResolutionText(ticket))
}

func (n *TicketNotifier) sendCard(recipientID int64, text string, ticketID int64, actions []domain.TicketAction) error {
	if keyboard := TicketKeyboard(ticketID, actions); keyboard != nil {
		return n.client.SendTextWithKeyboard(recipientID, text, *keyboard)
	}
	return n.client.SendText(recipientID, text)
}
