package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"lokumail/internal/types"
)

// maxWebhookBodyBytes bounds inbound payload size. Resend events are small;
// anything larger is hostile.
const maxWebhookBodyBytes = 64 * 1024

// HandlerConfig holds the dependencies for constructing a Handler.
type HandlerConfig struct {
	Verifier   Verifier
	Reconciler *Reconciler
	Logger     *slog.Logger
}

// Handler is the HTTP surface for the Resend webhook callback.
type Handler struct {
	verifier   Verifier
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewHandler creates the webhook HTTP handler. Logger defaults to slog.Default().
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		verifier:   cfg.Verifier,
		reconciler: cfg.Reconciler,
		logger:     logger,
	}
}

// HandleResendWebhook verifies the signature before trusting a single byte
// of the payload, then hands the decoded event to the reconciler. A storage
// failure returns 500 so the provider redelivers.
func (h *Handler) HandleResendWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.verifier.Verify(body, r.Header); err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var payload types.JSONMap
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if err := h.reconciler.Ingest(r.Context(), payload); err != nil {
		h.logger.Error("webhook ingestion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
