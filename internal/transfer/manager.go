package transfer

import (
	"context"
	"time"

	"github.com/lanternweb/download_manager/internal/filename"
	"github.com/lanternweb/download_manager/internal/logctx"
)

// BeginRequest is what the hosting engine reports when it starts a transfer.
type BeginRequest struct {
	URLChain []string
	// TotalBytes is -1 when the size is unknown. Zero is an empty file.
	TotalBytes   int64
	FilenameHint string
	MIMEType     string
	Handle       Handle
}

// Manager is the inbound side used by the hosting engine: it names new
// transfers and turns transport callbacks into registry transitions.
type Manager struct {
	registry *Registry
	now      func() time.Time
}

func NewManager(registry *Registry) *Manager {
	return &Manager{registry: registry, now: time.Now}
}

// BeginTransfer registers a transfer and returns its id.
func (m *Manager) BeginTransfer(ctx context.Context, req BeginRequest) (string, error) {
	if len(req.URLChain) == 0 {
		return "", ErrEmptyURLChain
	}

	name := filename.Resolve(req.FilenameHint, req.URLChain, req.MIMEType, m.now())

	return m.registry.Create(ctx, CreateRequest{
		URLChain:   req.URLChain,
		TotalBytes: req.TotalBytes,
		Filename:   name,
		Handle:     req.Handle,
	}), nil
}

// ByteProgress forwards a progress callback. It reports whether the update
// was applied.
func (m *Manager) ByteProgress(ctx context.Context, id string, received, total int64, transportState string) bool {
	return m.registry.Progress(ctx, id, received, total, transportState)
}

// TransferFinished forwards the terminal callback, mapping the transport's
// label onto a terminal state.
func (m *Manager) TransferFinished(ctx context.Context, id, transportState string) bool {
	state := MapTransportState(transportState)

	logctx.LoggerFromContext(ctx).DebugContext(logctx.WithDownloadID(ctx, id), "transport finished transfer",
		"transport_state", transportState,
		"state", state,
	)

	return m.registry.Finish(ctx, id, state, -1)
}

// SavePath returns the locked save path of a live transfer, or "" while it
// is still undecided.
func (m *Manager) SavePath(id string) string {
	rec, ok := m.registry.Snapshot(id)
	if !ok {
		return ""
	}

	return rec.SavePath
}
