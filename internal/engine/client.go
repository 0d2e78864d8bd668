// Package engine talks back to the hosting download engine. Each transfer
// the engine registers carries a control URL; pause, resume and cancel are
// delivered there as small JSON commands.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/lanternweb/download_manager/internal/transfer"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTimeout = 10 * time.Second

// NewHTTPClient returns the client used for every control request.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   defaultTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Command is the body posted to the engine's control URL.
type Command struct {
	ID       string `json:"id"`
	Action   string `json:"action"`
	SavePath string `json:"savePath,omitempty"`
}

// Handle controls one transfer inside the engine.
type Handle struct {
	controlURL string
	engineID   string
	httpClient *http.Client

	mu       sync.Mutex
	savePath string
}

// NewHandle returns a handle for the engine transfer engineID. An empty
// controlURL yields a handle whose commands fail with transfer.ErrNoControl.
func NewHandle(httpClient *http.Client, controlURL, engineID string) *Handle {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	return &Handle{
		controlURL: controlURL,
		engineID:   engineID,
		httpClient: httpClient,
	}
}

func (h *Handle) Pause(ctx context.Context) error {
	return h.send(ctx, "pause")
}

func (h *Handle) Resume(ctx context.Context) error {
	return h.send(ctx, "resume")
}

func (h *Handle) Cancel(ctx context.Context) error {
	return h.send(ctx, "cancel")
}

// SetSavePath remembers the locked path; it travels with every later command.
func (h *Handle) SetSavePath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savePath = path
}

// SavePath returns the path set by SetSavePath.
func (h *Handle) SavePath() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.savePath
}

func (h *Handle) send(ctx context.Context, action string) error {
	if h.controlURL == "" {
		return transfer.ErrNoControl
	}

	logger := logctx.LoggerFromContext(ctx).With("action", action, "engine_id", h.engineID)

	body, err := json.Marshal(Command{ID: h.engineID, Action: action, SavePath: h.SavePath()})
	if err != nil {
		return &transfer.TransportError{Operation: action, TransferID: h.engineID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.controlURL, bytes.NewReader(body))
	if err != nil {
		return &transfer.TransportError{Operation: action, TransferID: h.engineID, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	logger.DebugContext(ctx, "sending control command", "url", h.controlURL)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return &transfer.TransportError{Operation: action, TransferID: h.engineID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.WarnContext(ctx, "engine rejected control command", "status", resp.StatusCode, "body", string(b))

		return &transfer.TransportError{
			Operation:  action,
			TransferID: h.engineID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", string(b)),
		}
	}

	return nil
}

var _ transfer.PathAwareHandle = (*Handle)(nil)
