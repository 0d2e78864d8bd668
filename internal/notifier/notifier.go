package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/lanternweb/download_manager/internal/events"
	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/lanternweb/download_manager/internal/storage"
	"github.com/lanternweb/download_manager/internal/telemetry"
)

// Sink consumes events drained from the notifier channel.
type Sink interface {
	Publish(ctx context.Context, e events.Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, e events.Event)

func (f SinkFunc) Publish(ctx context.Context, e events.Event) { f(ctx, e) }

// EventNotifier is the single fan-out point between the registry and the
// observer. Progress events are dropped when the observer lags. Started and
// complete events wait for room regardless of the caller's context, until the
// notifier is closed. A complete event is appended to the history once it has
// been handed to the observer.
type EventNotifier struct {
	sink      chan events.Event
	closed    chan struct{}
	closeOnce sync.Once
	history   storage.HistoryRepository
	telemetry *telemetry.Telemetry
}

var errNotifierClosed = errors.New("event notifier closed")

func NewEventNotifier(buffer int, history storage.HistoryRepository, tel *telemetry.Telemetry) *EventNotifier {
	if buffer < 0 {
		buffer = 0
	}

	return &EventNotifier{
		sink:      make(chan events.Event, buffer),
		closed:    make(chan struct{}),
		history:   history,
		telemetry: tel,
	}
}

// Events is the observer side of the channel.
func (n *EventNotifier) Events() <-chan events.Event {
	return n.sink
}

func (n *EventNotifier) Started(ctx context.Context, e events.Started) {
	n.deliver(ctx, events.Event{Name: events.NameStarted, Payload: e})
}

func (n *EventNotifier) Progress(ctx context.Context, e events.Progress) {
	select {
	case n.sink <- events.Event{Name: events.NameProgress, Payload: e}:
	default:
		n.telemetry.RecordEventDropped(ctx, events.NameProgress)
	}
}

func (n *EventNotifier) Completed(ctx context.Context, e events.Complete) {
	n.deliver(ctx, events.Event{Name: events.NameComplete, Payload: e})

	if n.history == nil {
		return
	}

	rec := storage.HistoryRecord{
		ID:         e.ID,
		Filename:   e.Filename,
		Path:       e.Path,
		TotalBytes: e.TotalBytes,
		State:      e.State,
		EndTime:    e.EndTime,
	}

	// Persistence runs on a context that outlives request cancellation.
	if err := n.history.Append(context.WithoutCancel(ctx), rec); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to persist history entry", "err", err)
		n.telemetry.RecordSystemError("history", "append")
	}
}

// deliver blocks until the event is queued or the notifier is closed.
func (n *EventNotifier) deliver(ctx context.Context, e events.Event) {
	select {
	case n.sink <- e:
	case <-n.closed:
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "observer did not accept event", "event", e.Name, "err", errNotifierClosed)
		n.telemetry.RecordEventDropped(context.WithoutCancel(ctx), e.Name)
	}
}

// Close releases producers blocked on a full channel. Safe to call twice.
func (n *EventNotifier) Close() {
	n.closeOnce.Do(func() { close(n.closed) })
}

// Run drains the channel into sinks until ctx is done.
func (n *EventNotifier) Run(ctx context.Context, sinks ...Sink) error {
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("event notifier started", "sinks", len(sinks))

	for {
		select {
		case <-ctx.Done():
			logger.Info("event notifier shutting down")
			n.Close()

			return nil
		case e := <-n.sink:
			for _, s := range sinks {
				s.Publish(ctx, e)
			}
		}
	}
}
