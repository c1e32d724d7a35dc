// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

// Package api exposes the HTTP surface: webhook management, event emission,
// the WebSocket endpoint, health, and metrics.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Aren-Garro/ZeroERP/internal/events"
	"github.com/Aren-Garro/ZeroERP/internal/logging"
	"github.com/Aren-Garro/ZeroERP/internal/realtime"
	"github.com/Aren-Garro/ZeroERP/internal/webhook"
)

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	registry   *webhook.Registry
	dispatcher *webhook.Dispatcher
	emitter    *events.Emitter
	hub        *realtime.Hub
	timing     realtime.Timing

	allowedOrigins []string
	startedAt      time.Time
}

// NewHandler wires the handler set.
func NewHandler(
	registry *webhook.Registry,
	dispatcher *webhook.Dispatcher,
	emitter *events.Emitter,
	hub *realtime.Hub,
	timing realtime.Timing,
	allowedOrigins []string,
) *Handler {
	return &Handler{
		registry:       registry,
		dispatcher:     dispatcher,
		emitter:        emitter,
		hub:            hub,
		timing:         timing,
		allowedOrigins: allowedOrigins,
		startedAt:      time.Now(),
	}
}

// Health reports service liveness along with connection counts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"connections":    h.hub.Registry().ConnectionCount(),
		"channels":       h.hub.Registry().ChannelCount(),
	})
}

// registerWebhookRequest is the POST /webhooks body.
type registerWebhookRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1,dive,required"`
	Secret string   `json:"secret,omitempty"`
}

// RegisterWebhook creates a subscriber. The response is the only place the
// signing secret ever appears.
func (h *Handler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var req registerWebhookRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "malformed JSON body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	sub, err := h.registry.Register(req.URL, req.Events, req.Secret)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to register webhook", err)
		return
	}

	respondSuccess(w, http.StatusCreated, sub)
}

// ListWebhooks returns all subscribers without their secrets.
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	views, err := h.registry.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list webhooks", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"webhooks": views,
		"count":    len(views),
	})
}

// RemoveWebhook deletes a subscriber.
func (h *Handler) RemoveWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.dispatcher.RemoveSubscriber(id); err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "webhook not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to remove webhook", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{"id": id, "removed": true})
}

// TestWebhook synchronously sends the synthetic test event to one
// subscriber and returns the delivery outcome.
func (h *Handler) TestWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.dispatcher.TestDelivery(r.Context(), id)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "webhook not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "test delivery failed", err)
		return
	}
	if !result.Success {
		// The delivery ran but the endpoint did not accept it. Report the
		// result with an error code so clients can show the failure.
		respondJSON(w, http.StatusBadGateway, errorEnvelope(ErrCodeDeliveryFailed, result.Error, result))
		return
	}
	respondSuccess(w, http.StatusOK, result)
}

// emitEventRequest is the POST /events body.
type emitEventRequest struct {
	Event string                 `json:"event" validate:"required"`
	Data  map[string]interface{} `json:"data"`
}

// EmitEvent accepts a domain event from an internal producer and hands it
// to the emitter. Unknown event names are rejected here at the API
// boundary; the emitter itself stays fire-and-forget.
func (h *Handler) EmitEvent(w http.ResponseWriter, r *http.Request) {
	var req emitEventRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "malformed JSON body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if _, err := events.Parse(req.Event); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	h.emitter.Emit(req.Event, req.Data)
	logging.Debug().
		Str("event", sanitizeLogValue(req.Event)).
		Msg("Event accepted for distribution")
	respondSuccess(w, http.StatusAccepted, map[string]interface{}{
		"event":    req.Event,
		"accepted": true,
	})
}
