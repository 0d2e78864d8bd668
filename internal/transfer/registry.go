package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/lanternweb/download_manager/internal/events"
	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/lanternweb/download_manager/internal/savepath"
	"github.com/lanternweb/download_manager/internal/telemetry"
	"github.com/lanternweb/download_manager/internal/transfer/progress"
)

// Observer receives the externally visible lifecycle events. Started and
// Completed must be delivered; Progress may be dropped.
type Observer interface {
	Started(ctx context.Context, e events.Started)
	Progress(ctx context.Context, e events.Progress)
	Completed(ctx context.Context, e events.Complete)
}

// CreateRequest describes a transfer the transport has just begun.
type CreateRequest struct {
	URLChain   []string
	TotalBytes int64
	Filename   string
	Handle     Handle
}

// Registry owns every live transfer and is the only place their state
// changes. Mutations of one transfer are serialized by that transfer's own
// mutex; the map lock only guards lookup, insertion and eviction.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	downloadDir string
	resolver    *savepath.Resolver
	observer    Observer
	telemetry   *telemetry.Telemetry
	now         func() time.Time
	newID       func() string
}

type entry struct {
	mu sync.Mutex

	rec     Record
	handle  Handle
	sampler *progress.Sampler

	// fallbackPath is computed at creation and used when no reservation
	// claims the transfer before its path is locked.
	fallbackPath string
	pathLocked   bool

	cancelRequested bool
	commandInFlight bool
	terminal        bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(newID func() string) RegistryOption {
	return func(r *Registry) { r.newID = newID }
}

// WithTelemetry records lifecycle metrics.
func WithTelemetry(t *telemetry.Telemetry) RegistryOption {
	return func(r *Registry) { r.telemetry = t }
}

func NewRegistry(downloadDir string, resolver *savepath.Resolver, observer Observer, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:     make(map[string]*entry),
		downloadDir: downloadDir,
		resolver:    resolver,
		observer:    observer,
		now:         time.Now,
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Create registers a new pending transfer, emits download-started and
// returns its id. The save path is not decided yet.
func (r *Registry) Create(ctx context.Context, req CreateRequest) string {
	now := r.now()

	total := req.TotalBytes
	if total < 0 {
		total = -1
	}

	handle := req.Handle
	if handle == nil {
		handle = noControlHandle{}
	}

	e := &entry{
		rec: Record{
			URLChain:   slices.Clone(req.URLChain),
			Filename:   req.Filename,
			TotalBytes: total,
			State:      StatePending,
			StartTime:  now,
		},
		handle:  handle,
		sampler: progress.NewSampler(now),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r.mu.Lock()
	id := r.newID()
	for r.entries[id] != nil {
		id = r.newID()
	}

	e.rec.ID = id
	r.entries[id] = e
	r.mu.Unlock()

	r.claimFallbackPath(e, req.Filename)

	ctx = logctx.WithDownloadID(ctx, id)
	logctx.LoggerFromContext(ctx).InfoContext(ctx, "transfer registered",
		"filename", e.rec.Filename,
		"origin_url", e.rec.OriginURL(),
		"final_url", e.rec.FinalURL(),
		"total", sizeLabel(total),
	)

	r.telemetry.RecordDownloadStarted(ctx)

	r.observer.Started(ctx, events.Started{
		ID:         id,
		Filename:   e.rec.Filename,
		Path:       "",
		TotalBytes: total,
		StartTime:  now,
		IsPaused:   false,
	})

	return id
}

// Progress applies a byte-count update. It returns false when the id is
// unknown or already terminal. transportState is passed through to the
// emitted event as-is.
func (r *Registry) Progress(ctx context.Context, id string, received, total int64, transportState string) bool {
	ctx = logctx.WithDownloadID(ctx, id)
	logger := logctx.LoggerFromContext(ctx)

	e := r.lookup(id)
	if e == nil {
		logger.DebugContext(ctx, "ignoring progress for unknown transfer")

		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminal {
		logger.DebugContext(ctx, "ignoring progress for finished transfer")

		return false
	}

	if !e.pathLocked {
		r.lockPath(ctx, e)
	}

	if e.rec.State == StatePending {
		e.rec.State = StateProgressing
	}

	e.applyCounts(received, total)
	e.rec.Speed, e.rec.ETA = e.sampler.Sample(r.now(), e.rec.ReceivedBytes, e.rec.TotalBytes)

	label := transportState
	if label == "" {
		label = string(e.rec.State)
	}

	r.observer.Progress(ctx, e.progressEvent(label))

	return true
}

// Finish moves the transfer to its terminal state, emits download-complete
// and evicts it. finalReceived < 0 keeps the last reported count. Only the
// first call per id has any effect.
func (r *Registry) Finish(ctx context.Context, id string, final State, finalReceived int64) bool {
	ctx = logctx.WithDownloadID(ctx, id)
	logger := logctx.LoggerFromContext(ctx)

	e := r.lookup(id)
	if e == nil {
		logger.DebugContext(ctx, "ignoring finish for unknown transfer")

		return false
	}

	e.mu.Lock()

	if e.terminal {
		e.mu.Unlock()
		logger.DebugContext(ctx, "ignoring repeated finish")

		return false
	}

	if !e.pathLocked {
		r.lockPath(ctx, e)
	}

	if finalReceived >= 0 {
		e.applyCounts(finalReceived, -1)
	}

	if !final.IsTerminal() {
		final = StateInterrupted
	}

	if e.cancelRequested && final == StateInterrupted {
		final = StateCancelled
	}

	now := r.now()
	e.rec.State = final
	e.rec.EndTime = now
	e.rec.Speed, e.rec.ETA = 0, 0
	e.terminal = true

	r.observer.Completed(ctx, events.Complete{
		ID:         id,
		Filename:   e.rec.Filename,
		Path:       e.rec.SavePath,
		TotalBytes: e.rec.ReceivedBytes,
		State:      string(final),
		EndTime:    now,
	})

	r.telemetry.RecordDownloadFinished(ctx, string(final), now.Sub(e.rec.StartTime), e.rec.ReceivedBytes)

	logger.InfoContext(ctx, "transfer finished",
		"state", final,
		"received", humanize.Bytes(uint64(e.rec.ReceivedBytes)),
		"duration", now.Sub(e.rec.StartTime).String(),
		"path", e.rec.SavePath,
	)

	e.mu.Unlock()

	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()

	return true
}

// Pause asks the transport to pause. It is a logged no-op when the id is
// unknown, terminal, already paused, being cancelled, or another command is
// still in flight.
func (r *Registry) Pause(ctx context.Context, id string) bool {
	return r.command(ctx, id, "pause", func(s State) bool {
		return s == StatePending || s == StateProgressing
	}, Handle.Pause, StatePaused)
}

// Resume asks the transport to resume a paused transfer.
func (r *Registry) Resume(ctx context.Context, id string) bool {
	return r.command(ctx, id, "resume", func(s State) bool {
		return s == StatePaused
	}, Handle.Resume, StateProgressing)
}

// command runs a pause or resume. The handle is called without holding the
// transfer lock, so state is re-checked before the transition is applied.
func (r *Registry) command(
	ctx context.Context, id, action string, allowed func(State) bool, call func(Handle, context.Context) error, next State,
) bool {
	ctx = logctx.WithDownloadID(ctx, id)
	logger := logctx.LoggerFromContext(ctx).With("action", action)

	e := r.lookup(id)
	if e == nil {
		logger.DebugContext(ctx, "ignoring command for unknown transfer")

		return false
	}

	e.mu.Lock()

	switch {
	case e.terminal:
		e.mu.Unlock()
		logger.DebugContext(ctx, "ignoring command for finished transfer")

		return false
	case e.cancelRequested:
		e.mu.Unlock()
		logger.DebugContext(ctx, "ignoring command, cancellation pending")

		return false
	case e.commandInFlight:
		e.mu.Unlock()
		logger.DebugContext(ctx, "ignoring command, another command in flight")

		return false
	case !allowed(e.rec.State):
		state := e.rec.State
		e.mu.Unlock()
		logger.DebugContext(ctx, "ignoring command in current state", "state", state)

		return false
	}

	e.commandInFlight = true
	handle := e.handle
	e.mu.Unlock()

	err := call(handle, ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.commandInFlight = false

	if err != nil {
		logger.WarnContext(ctx, "transport rejected command", "err", err)

		return false
	}

	if e.terminal || e.cancelRequested || !allowed(e.rec.State) {
		logger.DebugContext(ctx, "transfer changed while command was in flight", "state", e.rec.State)

		return false
	}

	e.rec.State = next

	return true
}

// Cancel asks the transport to abort. The transfer becomes cancelled when
// the transport reports its terminal callback. A second cancel is a no-op.
func (r *Registry) Cancel(ctx context.Context, id string) bool {
	ctx = logctx.WithDownloadID(ctx, id)
	logger := logctx.LoggerFromContext(ctx).With("action", "cancel")

	e := r.lookup(id)
	if e == nil {
		logger.DebugContext(ctx, "ignoring command for unknown transfer")

		return false
	}

	e.mu.Lock()

	if e.terminal || e.cancelRequested {
		terminal := e.terminal
		e.mu.Unlock()
		logger.DebugContext(ctx, "ignoring cancel", "terminal", terminal)

		return false
	}

	e.cancelRequested = true
	handle := e.handle
	e.mu.Unlock()

	if err := handle.Cancel(ctx); err != nil {
		logger.WarnContext(ctx, "transport rejected command", "err", err)

		e.mu.Lock()
		if !e.terminal {
			e.cancelRequested = false
		}
		e.mu.Unlock()

		return false
	}

	return true
}

// EmitSnapshot publishes the current state of a live transfer as a
// download-progress event.
func (r *Registry) EmitSnapshot(ctx context.Context, id string) bool {
	e := r.lookup(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminal {
		return false
	}

	r.observer.Progress(logctx.WithDownloadID(ctx, id), e.progressEvent(string(e.rec.State)))

	return true
}

// Snapshot returns a copy of the live transfer with the given id.
func (r *Registry) Snapshot(id string) (Record, bool) {
	e := r.lookup(id)
	if e == nil {
		return Record{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshot(), true
}

// List returns copies of every live transfer, oldest first.
func (r *Registry) List() []Record {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Record, 0, len(entries))

	for _, e := range entries {
		e.mu.Lock()
		if !e.terminal {
			out = append(out, e.snapshot())
		}
		e.mu.Unlock()
	}

	slices.SortFunc(out, func(a, b Record) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return out
}

// Len returns the number of live transfers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.entries[id]
}

// lockPath decides the save path once: a reservation for any URL of the
// chain wins over the automatic fallback. Callers hold e.mu.
func (r *Registry) lockPath(ctx context.Context, e *entry) {
	path := e.fallbackPath
	source := "automatic"

	if r.resolver != nil {
		if reserved, ok := r.resolver.Claim(e.rec.URLChain); ok {
			path = reserved
			source = "reservation"
		}
	}

	e.rec.SavePath = path
	e.pathLocked = true

	if h, ok := e.handle.(PathAwareHandle); ok {
		h.SetSavePath(path)
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "save path locked", "path", path, "source", source)
}

// claimFallbackPath reserves the first free "<stem> (n)<ext>" path in the
// download directory for e. The filesystem is checked without r.mu held; the
// claim itself is made under r.mu so two entries never share a path.
func (r *Registry) claimFallbackPath(e *entry, filename string) {
	dir := r.downloadDir
	if dir == "" {
		dir = "."
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	candidate := filepath.Join(dir, filename)

	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); err != nil && r.tryClaimPath(e, candidate) {
			return
		}

		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
	}
}

func (r *Registry) tryClaimPath(e *entry, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, other := range r.entries {
		if other != e && other.fallbackPath == path {
			return false
		}
	}

	e.fallbackPath = path

	return true
}

// applyCounts keeps receivedBytes non-decreasing and never above a known
// total. A total below what was already received is ignored.
func (e *entry) applyCounts(received, total int64) {
	if total >= 0 && total >= e.rec.ReceivedBytes {
		e.rec.TotalBytes = total
	}

	if received > e.rec.ReceivedBytes {
		e.rec.ReceivedBytes = received
	}

	if e.rec.TotalBytes >= 0 && e.rec.ReceivedBytes > e.rec.TotalBytes {
		e.rec.ReceivedBytes = e.rec.TotalBytes
	}
}

func (e *entry) progressEvent(label string) events.Progress {
	return events.Progress{
		ID:                     e.rec.ID,
		ReceivedBytes:          e.rec.ReceivedBytes,
		TotalBytes:             e.rec.TotalBytes,
		State:                  label,
		Speed:                  e.rec.Speed,
		EstimatedTimeRemaining: e.rec.ETA,
		IsPaused:               e.rec.State == StatePaused,
	}
}

func (e *entry) snapshot() Record {
	rec := e.rec
	rec.URLChain = slices.Clone(e.rec.URLChain)
	rec.IsPaused = rec.State == StatePaused

	return rec
}

func sizeLabel(total int64) string {
	if total < 0 {
		return "unknown"
	}

	return humanize.Bytes(uint64(total))
}
