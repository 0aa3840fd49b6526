package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaftogo/deskbot/internal/service"
	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

func TestTicketCallbackRoundtrip(t *testing.T) {
	actions := []string{
		CallbackPriority, CallbackAssignSelf, CallbackAssignMenu, CallbackAssignBack,
		CallbackToWork, CallbackDone, CallbackDecline, CallbackCancel,
		CallbackApprove, CallbackReject,
	}
	for _, action := range actions {
		data := TicketCallback(action, 7)
		cb, err := DecodeCallback(data)
		require.NoError(t, err, "data %q", data)
		assert.Equal(t, action, cb.Action)
		assert.Equal(t, int64(7), cb.TicketID)
	}
}

func TestAssignCallbackRoundtrip(t *testing.T) {
	data := AssignCallback(5, 9)
	assert.Equal(t, "assign_to:5:9", data)

	cb, err := DecodeCallback(data)
	require.NoError(t, err)
	assert.Equal(t, CallbackAssignTo, cb.Action)
	assert.Equal(t, int64(5), cb.Assignee)
	assert.Equal(t, int64(9), cb.TicketID)
}

func TestWizardCallbackRoundtrip(t *testing.T) {
	data := WizardCallback(service.WizardButtonPick, 2)
	assert.Equal(t, "wiz:pick:2", data)
	cb, err := DecodeCallback(data)
	require.NoError(t, err)
	assert.Equal(t, CallbackWizard, cb.Action)
	assert.Equal(t, service.WizardButtonPick, cb.Wizard)
	assert.Equal(t, 2, cb.Option)

	for _, button := range []service.WizardButton{
		service.WizardButtonOther, service.WizardButtonBack, service.WizardButtonCancel,
	} {
		cb, err := DecodeCallback(WizardCallback(button, 0))
		require.NoError(t, err)
		assert.Equal(t, button, cb.Wizard)
	}
}

func TestDecodeCallbackRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"noclue",
		"launch:7",
		"to_work",
		"to_work:",
		"to_work:abc",
		"to_work:0",
		"to_work:-1",
		"to_work:1:2",
		"assign_to:5",
		"assign_to:abc:42",
		"assign_to:5:0",
		"assign_to:0:9",
		"wiz:pick",
		"wiz:pick:x",
		"wiz:pick:-1",
		"wiz:pick:1:2",
		"wiz:launch",
		"prio:7:9",
	}
	for _, data := range cases {
		_, err := DecodeCallback(data)
		require.Error(t, err, "data %q", data)
		assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err), "data %q", data)
	}
}
