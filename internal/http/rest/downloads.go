package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lanternweb/download_manager/internal/engine"
	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/lanternweb/download_manager/internal/savepath"
	"github.com/lanternweb/download_manager/internal/storage"
	"github.com/lanternweb/download_manager/internal/telemetry"
	"github.com/lanternweb/download_manager/internal/transfer"
)

const maxBodySize = 1 << 20

// DownloadHandlerConfig carries what the HTTP surface needs.
type DownloadHandlerConfig struct {
	Username string
	Password string

	Manager    *transfer.Manager
	Registry   *transfer.Registry
	Dispatcher *transfer.Dispatcher
	Resolver   *savepath.Resolver
	History    storage.HistoryRepository
	Stream     *EventStream
	Telemetry  *telemetry.Telemetry

	// EngineClient is used for control requests to the hosting engine.
	EngineClient *http.Client
}

// DownloadHandler exposes the engine callbacks, download control, the event
// stream, save-path reservations and the history.
type DownloadHandler struct {
	username string
	password string

	manager      *transfer.Manager
	registry     *transfer.Registry
	dispatcher   *transfer.Dispatcher
	resolver     *savepath.Resolver
	history      storage.HistoryRepository
	stream       *EventStream
	telemetry    *telemetry.Telemetry
	engineClient *http.Client
}

func NewDownloadHandler(cfg DownloadHandlerConfig) *DownloadHandler {
	engineClient := cfg.EngineClient
	if engineClient == nil {
		engineClient = engine.NewHTTPClient()
	}

	return &DownloadHandler{
		username:     cfg.Username,
		password:     cfg.Password,
		manager:      cfg.Manager,
		registry:     cfg.Registry,
		dispatcher:   cfg.Dispatcher,
		resolver:     cfg.Resolver,
		history:      cfg.History,
		stream:       cfg.Stream,
		telemetry:    cfg.Telemetry,
		engineClient: engineClient,
	}
}

func (h *DownloadHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Post("/engine/transfers", h.HandleBegin)
	r.Post("/engine/transfers/{id}/progress", h.HandleProgress)
	r.Post("/engine/transfers/{id}/finish", h.HandleFinish)

	r.Post("/downloads/control", h.HandleControl)
	r.Get("/downloads", h.HandleList)
	r.Get("/downloads/{id}", h.HandleGet)

	r.Get("/events", h.stream.ServeHTTP)

	r.Post("/reservations", h.HandleReserve)
	r.Delete("/reservations", h.HandleFlushReservations)

	r.Get("/history", h.HandleHistory)
	r.Delete("/history", h.HandleClearHistory)
	r.Delete("/history/{id}", h.HandleRemoveHistory)

	return r
}

type beginRequest struct {
	URLChain     []string `json:"urlChain"`
	TotalBytes   *int64   `json:"totalBytes"`
	FilenameHint string   `json:"filenameHint"`
	MIMEType     string   `json:"mimeType"`
	ControlURL   string   `json:"controlUrl"`
	EngineID     string   `json:"engineId"`
}

type beginResponse struct {
	ID string `json:"id"`
}

// HandleBegin registers a transfer the engine has just started.
func (h *DownloadHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req beginRequest
	if !decode(w, r, &req) {
		return
	}

	var handle transfer.Handle
	if req.ControlURL != "" {
		handle = transfer.NewInstrumentedHandle(
			engine.NewHandle(h.engineClient, req.ControlURL, req.EngineID), h.telemetry, "http",
		)
	}

	id, err := h.manager.BeginTransfer(ctx, transfer.BeginRequest{
		URLChain:     req.URLChain,
		TotalBytes:   int64OrUnknown(req.TotalBytes),
		FilenameHint: req.FilenameHint,
		MIMEType:     req.MIMEType,
		Handle:       handle,
	})
	if err != nil {
		logger.Warn("rejected transfer", "err", err)

		if errors.Is(err, transfer.ErrEmptyURLChain) {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		http.Error(w, "failed to register transfer", http.StatusInternalServerError)

		return
	}

	writeJSON(w, r, http.StatusCreated, beginResponse{ID: id})
}

type progressRequest struct {
	ReceivedBytes int64  `json:"receivedBytes"`
	TotalBytes    *int64 `json:"totalBytes"`
	State         string `json:"state"`
}

type progressResponse struct {
	ID       string `json:"id"`
	SavePath string `json:"savePath"`
}

// HandleProgress applies a byte-count callback and answers with the locked
// save path.
func (h *DownloadHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req progressRequest
	if !decode(w, r, &req) {
		return
	}

	if !h.manager.ByteProgress(r.Context(), id, req.ReceivedBytes, int64OrUnknown(req.TotalBytes), req.State) {
		http.Error(w, "unknown or finished transfer", http.StatusNotFound)

		return
	}

	writeJSON(w, r, http.StatusOK, progressResponse{ID: id, SavePath: h.manager.SavePath(id)})
}

type finishRequest struct {
	State string `json:"state"`
}

// HandleFinish records the terminal callback.
func (h *DownloadHandler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req finishRequest
	if !decode(w, r, &req) {
		return
	}

	if !h.manager.TransferFinished(r.Context(), id, req.State) {
		http.Error(w, "unknown or finished transfer", http.StatusNotFound)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type controlRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// HandleControl accepts a pause, resume or cancel command. The outcome is
// reported on the event stream, so the request is always accepted once it
// parses.
func (h *DownloadHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if !decode(w, r, &req) {
		return
	}

	action, ok := transfer.ParseAction(req.Action)
	if !ok || req.ID == "" {
		http.Error(w, "id and a valid action are required", http.StatusBadRequest)

		return
	}

	h.dispatcher.Dispatch(r.Context(), req.ID, action)

	w.WriteHeader(http.StatusAccepted)
}

// HandleList returns every live transfer.
func (h *DownloadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.registry.List())
}

// HandleGet returns one live transfer.
func (h *DownloadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.registry.Snapshot(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "transfer not found", http.StatusNotFound)

		return
	}

	writeJSON(w, r, http.StatusOK, rec)
}

type reservationRequest struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// HandleReserve records where the transfer for a URL must be saved.
func (h *DownloadHandler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if !decode(w, r, &req) {
		return
	}

	if req.URL == "" || req.Path == "" {
		http.Error(w, "url and path are required", http.StatusBadRequest)

		return
	}

	h.resolver.Reserve(req.URL, req.Path)

	w.WriteHeader(http.StatusNoContent)
}

// HandleFlushReservations drops every pending reservation.
func (h *DownloadHandler) HandleFlushReservations(w http.ResponseWriter, _ *http.Request) {
	h.resolver.Flush()

	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory returns the finished transfers, newest first.
func (h *DownloadHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.history.List(r.Context())
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to list history", "err", err)
		http.Error(w, "failed to read history", http.StatusInternalServerError)

		return
	}

	if records == nil {
		records = []storage.HistoryRecord{}
	}

	writeJSON(w, r, http.StatusOK, records)
}

type clearResponse struct {
	Removed int `json:"removed"`
}

// HandleClearHistory clears the history, or only the entries that ended
// before the RFC 3339 "before" query parameter.
func (h *DownloadHandler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	scope := storage.ClearAll()

	if before := r.URL.Query().Get("before"); before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			http.Error(w, "before must be an RFC 3339 timestamp", http.StatusBadRequest)

			return
		}

		scope = storage.ClearOlderThan(t)
	}

	removed, err := h.history.Clear(r.Context(), scope)
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to clear history", "err", err)
		http.Error(w, "failed to clear history", http.StatusInternalServerError)

		return
	}

	writeJSON(w, r, http.StatusOK, clearResponse{Removed: removed})
}

// HandleRemoveHistory deletes one history entry.
func (h *DownloadHandler) HandleRemoveHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.history.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to remove history entry", "err", err)
		http.Error(w, "failed to remove history entry", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DownloadHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

func int64OrUnknown(v *int64) int64 {
	if v == nil {
		return -1
	}

	return *v
}
