package eventlog

import (
	"context"
	"testing"

	"github.com/lukasbauer/evervoice/internal/core"
)

func TestEventTypeConstants(t *testing.T) {
	expectedEvents := map[EventType]string{
		EventWizardStepCompleted: "wizard_step_completed",
		EventWizardStepFailed:    "wizard_step_failed",
		EventShareTokenIssued:    "share_token_issued",
		EventGuestSessionStarted: "guest_session_started",
		EventGuestVoiceCloned:    "guest_voice_cloned",
		EventGuestVoiceReleased:  "guest_voice_released",
		EventGuestVoiceHandedOff: "guest_voice_handed_off",
		EventGuestRated:          "guest_rated",
		EventTierUpgraded:        "tier_upgraded",
	}

	for eventType, expectedValue := range expectedEvents {
		if string(eventType) != expectedValue {
			t.Errorf("EventType %q = %q, want %q", expectedValue, string(eventType), expectedValue)
		}
	}
}

func TestLoggerWithoutDatabase(t *testing.T) {
	l := New(nil)

	if err := l.Log(context.Background(), "u1", core.RoleWife, EventGuestRated, map[string]any{"stars": 5}); err != nil {
		t.Errorf("Log without DB err = %v, want nil", err)
	}
	l.LogAsync("u1", core.RoleWife, EventGuestRated, nil)
	l.Wait()

	var nilLogger *Logger
	nilLogger.LogAsync("u1", "", EventTierUpgraded, nil)
	nilLogger.Wait()
}

func TestLoggerSkipsEmptyUser(t *testing.T) {
	l := New(nil)
	if err := l.Log(context.Background(), "", core.RoleWife, EventGuestRated, nil); err != nil {
		t.Errorf("Log with empty user err = %v, want nil", err)
	}
}
