package transfer

import (
	"context"
	"strings"

	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/lanternweb/download_manager/internal/telemetry"
)

// Action is a control command addressed to a transfer by the observer.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

// ParseAction normalises an action name. ok is false for unknown actions.
func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionPause, ActionResume, ActionCancel:
		return a, true
	default:
		return "", false
	}
}

// Dispatcher routes download-control commands to the registry.
type Dispatcher struct {
	registry  *Registry
	telemetry *telemetry.Telemetry
}

func NewDispatcher(registry *Registry, tel *telemetry.Telemetry) *Dispatcher {
	return &Dispatcher{registry: registry, telemetry: tel}
}

// Dispatch applies action to the transfer and then publishes a snapshot of
// it, whatever the outcome, so the observer reflects the command at once.
// It reports whether the command took effect.
func (d *Dispatcher) Dispatch(ctx context.Context, id string, action Action) bool {
	ctx = logctx.WithDownloadID(ctx, id)
	logger := logctx.LoggerFromContext(ctx)

	var applied bool

	result := "ignored"

	switch action {
	case ActionPause:
		applied = d.registry.Pause(ctx, id)
	case ActionResume:
		applied = d.registry.Resume(ctx, id)
	case ActionCancel:
		applied = d.registry.Cancel(ctx, id)
	default:
		logger.WarnContext(ctx, "ignoring unknown control action", "action", action)

		result = "invalid"
	}

	if applied {
		result = "applied"
	}

	d.telemetry.RecordCommand(ctx, string(action), result)
	logger.DebugContext(ctx, "control command dispatched", "action", action, "result", result)

	d.registry.EmitSnapshot(ctx, id)

	return applied
}
