// Package httpapi is the service entry point: the chat webhook posts inbound
// messages here, and cross-process schedulers post wakeup requests.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
	"github.com/freightdesk/convoy/internal/config"
	"github.com/freightdesk/convoy/internal/ident"
)

const defaultMaxMessageChars = 4096

// Pipeline is the coordinator surface the handlers drive.
type Pipeline interface {
	HandleInbound(ctx context.Context, msg bus.InboundMessage) error
	HandleWakeup(ctx context.Context, contact string, fencing float64) error
}

// Handler serves the webhook and wakeup endpoints.
type Handler struct {
	pipeline        Pipeline
	limiter         *RateLimiter
	maxMessageChars int
}

func NewHandler(pipeline Pipeline, cfg config.ServerConfig) *Handler {
	maxChars := cfg.MaxMessageChars
	if maxChars <= 0 {
		maxChars = defaultMaxMessageChars
	}
	var limiter *RateLimiter
	if cfg.RateLimitRPM > 0 {
		limiter = NewRateLimiter(cfg.RateLimitRPM)
	}
	return &Handler{pipeline: pipeline, limiter: limiter, maxMessageChars: maxChars}
}

// RegisterRoutes registers the service endpoints on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/messages", h.handleMessage)
	mux.HandleFunc("POST /v1/wakeups", h.handleWakeup)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg bus.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if msg.Kind == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind is required"})
		return
	}
	if len(msg.Text) > h.maxMessageChars {
		writeJSON(w, http.StatusRequestEntityTooLarge,
			map[string]string{"error": "message too long"})
		return
	}

	msg.Contact = ident.NormalizeContact(msg.Contact)
	if h.limiter != nil && !h.limiter.Allow(msg.Contact) {
		writeJSON(w, http.StatusTooManyRequests,
			map[string]string{"error": "rate limit exceeded"})
		return
	}

	if err := h.pipeline.HandleInbound(r.Context(), msg); err != nil {
		slog.Error("inbound message failed", "contact", msg.Contact, "error", err)
		writeJSON(w, http.StatusInternalServerError,
			map[string]string{"error": "message processing failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) handleWakeup(w http.ResponseWriter, r *http.Request) {
	var req bus.WakeupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Action != bus.ActionProcessAccumulated {
		writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "unknown action"})
		return
	}
	if req.Contact == "" {
		writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "contact is required"})
		return
	}

	// A cross-process scheduler may delegate the delay itself; the wakeup
	// sleeps here and the fencing check decides staleness at drain time.
	if req.DelaySeconds > 0 {
		select {
		case <-time.After(time.Duration(req.DelaySeconds * float64(time.Second))):
		case <-r.Context().Done():
			writeJSON(w, http.StatusRequestTimeout,
				map[string]string{"error": "wakeup abandoned"})
			return
		}
	}

	contact := ident.NormalizeContact(req.Contact)
	if err := h.pipeline.HandleWakeup(r.Context(), contact, req.FencingValue); err != nil {
		slog.Error("wakeup failed", "contact", contact, "error", err)
		writeJSON(w, http.StatusInternalServerError,
			map[string]string{"error": "wakeup processing failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
