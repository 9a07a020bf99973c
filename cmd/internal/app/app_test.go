package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg := Config{
		HTTPAddr:               "127.0.0.1:0",
		RoomMaxParticipants:    30,
		InviteCodeLength:       8,
		BroadcastProgressEvery: 10,
		BroadcastWorkers:       1,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestHTTPEndpointsInMemoryMode(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, nil, false, a.ws)

	cases := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/readyz", http.StatusOK, "ready"},
		{"/metrics", http.StatusOK, ""},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rr.Code != tc.wantStatus {
			t.Errorf("%s: status = %d, want %d", tc.path, rr.Code, tc.wantStatus)
		}
		if tc.wantBody != "" && !strings.Contains(rr.Body.String(), tc.wantBody) {
			t.Errorf("%s: body = %q", tc.path, rr.Body.String())
		}
	}
}

func TestReadyzRequiresDBWhenConfigured(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	cfg := a.cfg
	cfg.ReadinessRequireDB = true

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, cfg, nil, false, a.ws)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestWSEndpointRejectsPlainGET(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, nil, false, a.ws)

	// No upgrade headers and no uid: the gateway must refuse politely rather
	// than hang.
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rr.Code == http.StatusOK {
		t.Fatalf("expected non-200 for plain GET, got %d", rr.Code)
	}
}
