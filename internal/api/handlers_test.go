// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/Aren-Garro/ZeroERP/internal/events"
	"github.com/Aren-Garro/ZeroERP/internal/models"
	"github.com/Aren-Garro/ZeroERP/internal/realtime"
	"github.com/Aren-Garro/ZeroERP/internal/webhook"
)

type testEnv struct {
	router http.Handler
	bus    *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := webhook.NewRegistry(webhook.NewMemoryStore())
	dispatcher := webhook.NewDispatcher(registry, webhook.DispatcherConfig{
		Timeout:       time.Second,
		MaxConcurrent: 4,
	})
	bus := events.NewBus(16)
	t.Cleanup(func() { bus.Close() })
	emitter := events.NewEmitter(bus)
	hub := realtime.NewHub()

	h := NewHandler(registry, dispatcher, emitter, hub, realtime.DefaultTiming(), []string{"*"})
	router := NewRouter(h, RouterConfig{
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   0,
		RateLimitWindow: time.Minute,
	})
	return &testEnv{router: router, bus: bus}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
	}
	return &resp
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != "success" {
		t.Errorf("response status = %q", resp.Status)
	}
}

func TestRegisterWebhookReturnsSecretOnce(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/webhooks", map[string]interface{}{
		"url":    "https://example.com/hook",
		"events": []string{"order.created"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T", resp.Data)
	}
	if data["secret"] == "" || data["secret"] == nil {
		t.Error("registration response must include the signing secret")
	}
	if data["id"] == "" || data["id"] == nil {
		t.Error("registration response must include the subscriber ID")
	}

	// Listing never exposes the secret again.
	rec = env.do(t, http.MethodGet, "/api/v1/webhooks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), data["secret"].(string)) {
		t.Error("list response leaked a signing secret")
	}
}

func TestRegisterWebhookValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{
			"missing url",
			map[string]interface{}{"events": []string{"order.created"}},
			http.StatusBadRequest, ErrCodeValidation,
		},
		{
			"empty events",
			map[string]interface{}{"url": "https://example.com/hook", "events": []string{}},
			http.StatusBadRequest, ErrCodeValidation,
		},
		{
			"unknown event",
			map[string]interface{}{"url": "https://example.com/hook", "events": []string{"order.vanished"}},
			http.StatusBadRequest, ErrCodeInvalidInput,
		},
		{
			"malformed json",
			nil, // replaced with raw body below
			http.StatusBadRequest, ErrCodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.name == "malformed json" {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", strings.NewReader("{not json"))
				rec = httptest.NewRecorder()
				env.router.ServeHTTP(rec, req)
			} else {
				rec = env.do(t, http.MethodPost, "/api/v1/webhooks", tt.body)
			}
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			resp := decodeResponse(t, rec)
			if resp.Error == nil || resp.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestRemoveWebhook(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/webhooks", map[string]interface{}{
		"url":    "https://example.com/hook",
		"events": []string{"order.created"},
	})
	resp := decodeResponse(t, rec)
	id := resp.Data.(map[string]interface{})["id"].(string)

	rec = env.do(t, http.MethodDelete, "/api/v1/webhooks/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/webhooks/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
	errResp := decodeResponse(t, rec)
	if errResp.Error == nil || errResp.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", errResp.Error)
	}
}

func TestTestWebhookDelivery(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get(webhook.HeaderEventName)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/webhooks", map[string]interface{}{
		"url":    srv.URL,
		"events": []string{"order.created"},
	})
	resp := decodeResponse(t, rec)
	id := resp.Data.(map[string]interface{})["id"].(string)

	rec = env.do(t, http.MethodPost, "/api/v1/webhooks/"+id+"/test", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("test delivery status = %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case name := <-received:
		if name != "test" {
			t.Errorf("delivered event name = %q, want test", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver saw no delivery")
	}
}

func TestTestWebhookDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/webhooks", map[string]interface{}{
		"url":    srv.URL,
		"events": []string{"order.created"},
	})
	resp := decodeResponse(t, rec)
	id := resp.Data.(map[string]interface{})["id"].(string)

	rec = env.do(t, http.MethodPost, "/api/v1/webhooks/"+id+"/test", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("test delivery status = %d, want 502: %s", rec.Code, rec.Body.String())
	}
	errResp := decodeResponse(t, rec)
	if errResp.Error == nil || errResp.Error.Code != ErrCodeDeliveryFailed {
		t.Errorf("error = %+v, want DELIVERY_FAILED", errResp.Error)
	}
}

func TestEmitEvent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"event": "inventory.updated",
		"data":  map[string]interface{}{"sku": "SKU-1", "qty": 5},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"event": "inventory.exploded",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown event status = %d, want 400", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidInput {
		t.Errorf("error = %+v, want INVALID_INPUT", resp.Error)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_") {
		t.Error("metrics output missing default collectors")
	}
}
