package checks

import (
	"context"
	"fmt"

	"github.com/agenciateixeira/t3-sub001/internal/monitoring"
)

// PushState reports whether web push delivery can run.
type PushState interface {
	Enabled() bool
}

// Push is degraded when no VAPID keys are configured. Reminders are still stored.
func Push(state PushState) monitoring.Check {
	return monitoring.NewCheck("push", func(context.Context) monitoring.ProbeResult {
		if state == nil || !state.Enabled() {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "vapid keys not configured"}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	})
}

// EventBus reports the cross-instance relay connection.
type EventBus interface {
	Connected() bool
}

// Events is degraded while the NATS connection is reconnecting.
func Events(bus EventBus) monitoring.Check {
	return monitoring.NewCheck("event_bus", func(context.Context) monitoring.ProbeResult {
		if bus.Connected() {
			return monitoring.ProbeResult{Status: monitoring.StatusUp}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "nats disconnected"}
	})
}

// SessionCounter exposes the number of live reminder sessions.
type SessionCounter interface {
	Len() int
}

// Sessions always reports up and surfaces the active session count.
func Sessions(counter SessionCounter) monitoring.Check {
	return monitoring.NewCheck("reminder_sessions", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{
			Status:  monitoring.StatusUp,
			Details: fmt.Sprintf("%d active", counter.Len()),
		}
	})
}
