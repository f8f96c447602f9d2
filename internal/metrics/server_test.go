package metrics

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Status endpoint
// =============================================================================

func TestServer_StatusEndpoint(t *testing.T) {
	srv := NewServer(ServerConfig{
		Addr:   "127.0.0.1:0",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Status: func() any {
			return map[string]int{"totalSessions": 3}
		},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	srv.statusHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}

	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["totalSessions"] != 3 {
		t.Errorf("totalSessions = %d, want 3", body["totalSessions"])
	}
}

func TestServer_StatusEndpoint_Disabled(t *testing.T) {
	srv := NewServer(ServerConfig{
		Addr:   "127.0.0.1:0",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	srv.statusHandler(rec, req)

	if rec.Code != 404 {
		t.Fatalf("status code = %d, want 404", rec.Code)
	}
}

// =============================================================================
// Health endpoint
// =============================================================================

func TestServer_HealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	healthHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}
