package transfer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanternweb/download_manager/internal/events"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []events.Event
}

func (o *recordingObserver) Started(_ context.Context, e events.Started) {
	o.add(events.NameStarted, e)
}

func (o *recordingObserver) Progress(_ context.Context, e events.Progress) {
	o.add(events.NameProgress, e)
}

func (o *recordingObserver) Completed(_ context.Context, e events.Complete) {
	o.add(events.NameComplete, e)
}

func (o *recordingObserver) add(name string, payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.events = append(o.events, events.Event{Name: name, Payload: payload})
}

func (o *recordingObserver) all() []events.Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]events.Event(nil), o.events...)
}

func (o *recordingObserver) named(name string) []events.Event {
	var out []events.Event

	for _, e := range o.all() {
		if e.Name == name {
			out = append(out, e)
		}
	}

	return out
}

func (o *recordingObserver) lastProgress() events.Progress {
	p := o.named(events.NameProgress)
	if len(p) == 0 {
		return events.Progress{}
	}

	return p[len(p)-1].Payload.(events.Progress)
}

type fakeHandle struct {
	mu       sync.Mutex
	pauses   int
	resumes  int
	cancels  int
	err      error
	savePath string

	// gate, when set, blocks every call until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (h *fakeHandle) call(ctx context.Context, counter *int) error {
	if h.gate != nil {
		if h.entered != nil {
			h.entered <- struct{}{}
		}

		select {
		case <-h.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	*counter++

	return h.err
}

func (h *fakeHandle) Pause(ctx context.Context) error  { return h.call(ctx, &h.pauses) }
func (h *fakeHandle) Resume(ctx context.Context) error { return h.call(ctx, &h.resumes) }
func (h *fakeHandle) Cancel(ctx context.Context) error { return h.call(ctx, &h.cancels) }

func (h *fakeHandle) SetSavePath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savePath = path
}

func (h *fakeHandle) counts() (pauses, resumes, cancels int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.pauses, h.resumes, h.cancels
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64

	return func() string {
		return fmt.Sprintf("%s%d", prefix, n.Add(1))
	}
}
