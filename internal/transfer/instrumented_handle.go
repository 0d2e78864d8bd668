package transfer

import (
	"context"

	"github.com/lanternweb/download_manager/internal/telemetry"
)

// InstrumentedHandle wraps a Handle with telemetry.
type InstrumentedHandle struct {
	handle        Handle
	telemetry     *telemetry.Telemetry
	transportType string
}

// NewInstrumentedHandle creates a new instrumented transport handle.
func NewInstrumentedHandle(handle Handle, tel *telemetry.Telemetry, transportType string) *InstrumentedHandle {
	return &InstrumentedHandle{
		handle:        handle,
		telemetry:     tel,
		transportType: transportType,
	}
}

// Pause pauses the transfer with telemetry.
func (h *InstrumentedHandle) Pause(ctx context.Context) error {
	return h.telemetry.InstrumentTransportOperation(ctx, h.transportType, "pause", h.handle.Pause)
}

// Resume resumes the transfer with telemetry.
func (h *InstrumentedHandle) Resume(ctx context.Context) error {
	return h.telemetry.InstrumentTransportOperation(ctx, h.transportType, "resume", h.handle.Resume)
}

// Cancel cancels the transfer with telemetry.
func (h *InstrumentedHandle) Cancel(ctx context.Context) error {
	return h.telemetry.InstrumentTransportOperation(ctx, h.transportType, "cancel", h.handle.Cancel)
}

// SetSavePath forwards the locked save path when the wrapped handle wants it.
func (h *InstrumentedHandle) SetSavePath(path string) {
	if pa, ok := h.handle.(PathAwareHandle); ok {
		pa.SetSavePath(path)
	}
}
