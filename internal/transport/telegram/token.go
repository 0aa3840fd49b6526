package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leaftogo/deskbot/internal/service"
	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

// Callback action names. They go onto the wire inside inline keys, so
// they stay short and stable.
const (
	CallbackPriority   = "prio"
	CallbackAssignSelf = "assign_self"
	CallbackAssignMenu = "assign_menu"
	CallbackAssignTo   = "assign_to"
	CallbackAssignBack = "assign_back"
	CallbackToWork     = "to_work"
	CallbackDone       = "done"
	CallbackDecline    = "decline"
	CallbackCancel     = "cancel"
	CallbackApprove    = "approve"
	CallbackReject     = "reject"
	CallbackWizard     = "wiz"
)

// Callback is a decoded inline key press.
type Callback struct {
	Action   string
	TicketID int64
	// Assignee is set for assign_to.
	Assignee int64
	// Wizard and Option are set for wizard keys.
	Wizard service.WizardButton
	Option int
}

// TicketCallback encodes a plain ticket action key.
func TicketCallback(action string, ticketID int64) string {
	return fmt.Sprintf("%s:%d", action, ticketID)
}

// AssignCallback encodes the pick of an assignee from the assign menu.
func AssignCallback(assigneeID, ticketID int64) string {
	return fmt.Sprintf("%s:%d:%d", CallbackAssignTo, assigneeID, ticketID)
}

// WizardCallback encodes a wizard key. Option is only meaningful for
// the pick key.
func WizardCallback(button service.WizardButton, option int) string {
	if button == service.WizardButtonPick {
		return fmt.Sprintf("%s:%s:%d", CallbackWizard, button, option)
	}
	return fmt.Sprintf("%s:%s", CallbackWizard, string(button))
}

// DecodeCallback parses inline key data back into a Callback.
func DecodeCallback(data string) (*Callback, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 {
		return nil, invalidCallback(data)
	}

	if parts[0] == CallbackWizard {
		cb := &Callback{Action: CallbackWizard, Wizard: service.WizardButton(parts[1])}
		switch cb.Wizard {
		case service.WizardButtonPick:
			if len(parts) != 3 {
				return nil, invalidCallback(data)
			}
			option, err := strconv.Atoi(parts[2])
			if err != nil || option < 0 {
				return nil, invalidCallback(data)
			}
			cb.Option = option
		case service.WizardButtonOther, service.WizardButtonBack, service.WizardButtonCancel:
			if len(parts) != 2 {
				return nil, invalidCallback(data)
			}
		default:
			return nil, invalidCallback(data)
		}
		return cb, nil
	}

	if parts[0] == CallbackAssignTo {
		if len(parts) != 3 {
			return nil, invalidCallback(data)
		}
		assignee, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || assignee <= 0 {
			return nil, invalidCallback(data)
		}
		ticketID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || ticketID <= 0 {
			return nil, invalidCallback(data)
		}
		return &Callback{Action: CallbackAssignTo, Assignee: assignee, TicketID: ticketID}, nil
	}

	switch parts[0] {
	case CallbackPriority, CallbackAssignSelf, CallbackAssignMenu, CallbackAssignBack,
		CallbackToWork, CallbackDone, CallbackDecline, CallbackCancel,
		CallbackApprove, CallbackReject:
	default:
		return nil, invalidCallback(data)
	}
	if len(parts) != 2 {
		return nil, invalidCallback(data)
	}
	ticketID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ticketID <= 0 {
		return nil, invalidCallback(data)
	}
	return &Callback{Action: parts[0], TicketID: ticketID}, nil
}

func invalidCallback(data string) error {
	return apperrors.NewInvalidInput("unrecognized callback data", map[string]any{"data": data})
}
