package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lanternweb/download_manager/internal/events"
	"github.com/lanternweb/download_manager/internal/logctx"
)

const (
	subscriberBuffer  = 64
	heartbeatInterval = 15 * time.Second
)

// EventStream fans lifecycle events out to server-sent-event subscribers.
// A subscriber that falls behind loses progress events; started and complete
// events wait for it until its request ends.
type EventStream struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	heartbeat   time.Duration
}

type subscriber struct {
	ch   chan events.Event
	done <-chan struct{}
}

func NewEventStream() *EventStream {
	return &EventStream{
		subscribers: make(map[string]*subscriber),
		heartbeat:   heartbeatInterval,
	}
}

// Publish implements notifier.Sink.
func (s *EventStream) Publish(ctx context.Context, e events.Event) {
	s.mu.RLock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		if e.Name == events.NameProgress {
			select {
			case sub.ch <- e:
			default:
			}

			continue
		}

		select {
		case sub.ch <- e:
		case <-sub.done:
		case <-ctx.Done():
			return
		}
	}
}

// Subscribers returns the number of connected clients.
func (s *EventStream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.subscribers)
}

func (s *EventStream) subscribe(done <-chan struct{}) (string, *subscriber) {
	id := uuid.NewString()
	sub := &subscriber{ch: make(chan events.Event, subscriberBuffer), done: done}

	s.mu.Lock()
	s.subscribers[id] = sub
	s.mu.Unlock()

	return id, sub
}

func (s *EventStream) unsubscribe(id string) {
	s.mu.Lock()
	delete(s.subscribers, id)
	s.mu.Unlock()
}

// ServeHTTP streams events as "event: <name>" / "data: <json>" frames until
// the client goes away.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)

		return
	}

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, sub := s.subscribe(ctx.Done())
	defer s.unsubscribe(id)

	logger.Debug("event stream subscriber connected", "subscriber", id, "subscribers", s.Subscribers())

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("event stream subscriber disconnected", "subscriber", id)

			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}

			flusher.Flush()
		case e := <-sub.ch:
			if err := writeEvent(w, e); err != nil {
				logger.Debug("failed to write event", "subscriber", id, "err", err)

				return
			}

			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, e events.Event) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Name, err)
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, data)

	return err
}
