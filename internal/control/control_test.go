package control_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fixdaemon/gofix/internal/control"
	"github.com/fixdaemon/gofix/internal/engine"
	"github.com/fixdaemon/gofix/internal/fix/dict"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()

	eng := engine.New(engine.Config{
		Dictionary: dict.Default(),
		Logger:     testLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(cancel)

	c := control.New(eng, testLogger())
	srv := httptest.NewServer(c.Handler())
	t.Cleanup(srv.Close)

	return srv, eng
}

func TestAddListenerAndListSessions(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	body := `{"kind":"listener","sender_comp_id":"ACCEPTOR","address":"127.0.0.1:0"}`
	resp, err := http.Post(srv.URL+"/sessions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /sessions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		Token uint32 `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Token == 0 {
		t.Error("token is zero")
	}

	// A listener has no Session yet (no peer has connected), so
	// GET /sessions should report an empty list.
	listResp, err := http.Get(srv.URL + "/sessions")
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	defer listResp.Body.Close()

	var list struct {
		Sessions []map[string]any `json:"sessions"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list.Sessions) != 0 {
		t.Errorf("sessions = %v, want empty", list.Sessions)
	}
}

func TestAddConnectionUnreachable(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	body := `{
		"kind":"connection",
		"fix_version":"FIX.4.4",
		"sender_comp_id":"INITIATOR",
		"target_comp_id":"ACCEPTOR",
		"address":"127.0.0.1:1"
	}`
	resp, err := http.Post(srv.URL+"/sessions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /sessions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
}

func TestAddSessionInvalidKind(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	body := `{"kind":"bogus"}`
	resp, err := http.Post(srv.URL+"/sessions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /sessions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestAddConnectionInvalidFIXVersion(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	body := `{"kind":"connection","fix_version":"FIX.9.9","address":"127.0.0.1:1"}`
	resp, err := http.Post(srv.URL+"/sessions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /sessions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestLogoutUnknownToken(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/sessions/999999/logout", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST logout: %v", err)
	}
	defer resp.Body.Close()

	// Logout on an unknown token is a silent no-op at the Engine level
	// (see engine.handleLogout), so the control surface still reports
	// Accepted.
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
}

func TestDeleteSessionInvalidToken(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/not-a-number", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHealthEndpointMounted(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/grpc.health.v1.Health/Check")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()

	// grpchealth speaks gRPC-over-HTTP/1.1 with connect's unary GET
	// fallback disabled by default, so a plain GET is expected to fail
	// content negotiation rather than 404 -- this only asserts the route
	// is mounted (not 404 Not Found from the control mux itself).
	if resp.StatusCode == http.StatusNotFound {
		t.Error("health endpoint not mounted")
	}
}

func TestFullLifecycle(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	// Add a listener.
	body := `{"kind":"listener","sender_comp_id":"ACCEPTOR","address":"127.0.0.1:0"}`
	resp, err := http.Post(srv.URL+"/sessions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /sessions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	// Give the accept loop a moment to start, then list sessions again --
	// still expected empty since nothing has dialed in yet.
	time.Sleep(10 * time.Millisecond)

	listResp, err := http.Get(srv.URL + "/sessions")
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", listResp.StatusCode, http.StatusOK)
	}
}
