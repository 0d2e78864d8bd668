package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lanternweb/download_manager/internal/events"
	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/lanternweb/download_manager/internal/telemetry"
)

var ErrWebhookNotSet = errors.New("webhook URL is not set")

type Notifier interface {
	Notify(ctx context.Context, content string) error
}

type DiscordNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	if d.WebhookURL == "" {
		return ErrWebhookNotSet
	}

	payload := map[string]string{"content": content}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

// CompletionSink announces finished transfers through a Notifier. Other
// events are ignored. Delivery happens off the event pump.
type CompletionSink struct {
	notifier  Notifier
	telemetry *telemetry.Telemetry
}

func NewCompletionSink(n Notifier, tel *telemetry.Telemetry) *CompletionSink {
	return &CompletionSink{notifier: n, telemetry: tel}
}

func (s *CompletionSink) Publish(ctx context.Context, e events.Event) {
	c, ok := e.Payload.(events.Complete)
	if !ok {
		return
	}

	ctx = logctx.WithDownloadID(context.WithoutCancel(ctx), c.ID)

	go s.send(ctx, c)
}

func (s *CompletionSink) send(ctx context.Context, c events.Complete) {
	if err := s.notifier.Notify(ctx, CompletionMessage(c)); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to send completion notification", "err", err)
		s.telemetry.RecordSystemError("notification", "discord")
	}
}

// CompletionMessage renders the chat line for a finished transfer.
func CompletionMessage(c events.Complete) string {
	size := humanize.Bytes(uint64(max(c.TotalBytes, 0)))

	switch c.State {
	case "completed":
		return fmt.Sprintf("Download completed: %s (%s) saved to %s", c.Filename, size, c.Path)
	case "cancelled":
		return fmt.Sprintf("Download cancelled: %s after %s", c.Filename, size)
	default:
		return fmt.Sprintf("Download interrupted: %s after %s", c.Filename, size)
	}
}
