package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fixdaemon/gofix/internal/engine"
	"github.com/fixdaemon/gofix/internal/fix/dict"
	"github.com/fixdaemon/gofix/internal/fix/fixver"
)

// -------------------------------------------------------------------------
// Test Helpers — Engine
// -------------------------------------------------------------------------

// testLogger returns a Logger that discards everything, keeping test output
// focused on assertion failures.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine creates an Engine with its worker loop running in the
// background, stopped automatically via t.Cleanup.
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(engine.Config{
		Dictionary: dict.Default(),
		Logger:     testLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(cancel)
	return eng
}

// drainEvents forwards every event off eng's channel into a slice until
// deadline, for assertions that want to inspect what happened.
func drainEvents(t *testing.T, eng *engine.Engine, timeout time.Duration) []engine.Event {
	t.Helper()
	var got []engine.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-eng.Events():
			got = append(got, ev)
		case <-deadline:
			return got
		}
	}
}

// -------------------------------------------------------------------------
// TestAddListenerAndConnection
// -------------------------------------------------------------------------

// TestAddListenerAndConnection verifies a listener token and an initiator
// token come back immediately, and that dialing an unreachable address is
// reported afterwards as ConnectionFailed (spec §4.3
// "add_connection returns immediately; actual connection proceeds
// asynchronously").
func TestAddListenerAndConnection(t *testing.T) {
	t.Parallel()

	acceptorEng := newTestEngine(t)
	lnToken, err := acceptorEng.AddListener(engine.ListenerConfig{
		SenderCompID: "ACCEPTOR",
		Address:      "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	if lnToken == 0 {
		t.Error("listener token is zero")
	}

	// AddListener binds an OS-assigned ephemeral port that Token does not
	// expose, so the initiator dials a deliberately unreachable port
	// instead. This test only exercises token allocation and the async
	// dial-failure path, not full round-trip dialing.
	initiatorEng := newTestEngine(t)
	connToken, err := initiatorEng.AddConnection(engine.ConnConfig{
		FIXVersion:            fixver.FIX44,
		DefaultMessageVersion: fixver.DefaultMessageVersion(fixver.FIX44),
		SenderCompID:          "INITIATOR",
		TargetCompID:          "ACCEPTOR",
		Address:               "127.0.0.1:1", // deliberately unreachable
	})
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if connToken == 0 {
		t.Error("connection token is zero")
	}

	events := drainEvents(t, initiatorEng, 200*time.Millisecond)
	var sawFailure bool
	for _, ev := range events {
		if cf, ok := ev.(engine.ConnectionFailed); ok {
			sawFailure = true
			if cf.Conn != connToken {
				t.Errorf("ConnectionFailed.Conn = %v, want %v", cf.Conn, connToken)
			}
		}
	}
	if !sawFailure {
		t.Error("expected ConnectionFailed for unreachable address")
	}
}

// -------------------------------------------------------------------------
// TestAddListenerTokenAllocationIsUnique
// -------------------------------------------------------------------------

// TestAddListenerTokenAllocationIsUnique verifies repeated AddListener calls
// never hand back the same token while both listeners are live (spec §9
// "Cyclic ownership": tokens are the arena's only handle, so two live
// listeners must never alias).
func TestAddListenerTokenAllocationIsUnique(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)

	first, err := eng.AddListener(engine.ListenerConfig{SenderCompID: "A", Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("AddListener 1: %v", err)
	}
	second, err := eng.AddListener(engine.ListenerConfig{SenderCompID: "B", Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("AddListener 2: %v", err)
	}
	if first == second {
		t.Errorf("two live listeners got the same token %v", first)
	}
}

// -------------------------------------------------------------------------
// TestShutdownStopsWorker
// -------------------------------------------------------------------------

// TestShutdownStopsWorker verifies the Shutdown control message actually
// terminates the worker loop rather than leaving it spinning forever.
func TestShutdownStopsWorker(t *testing.T) {
	t.Parallel()

	eng := engine.New(engine.Config{Dictionary: dict.Default(), Logger: testLogger()})
	done := make(chan struct{})
	go func() {
		eng.Run(context.Background())
		close(done)
	}()

	eng.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

// -------------------------------------------------------------------------
// TestUnknownConnectionTokenErrors
// -------------------------------------------------------------------------

// TestUnknownConnectionTokenErrors verifies SendMessage/ResendMessages
// return an error for a token the engine has never allocated (e.g. a
// stale token from a connection that already terminated and was reaped).
func TestUnknownConnectionTokenErrors(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	if err := eng.SendMessage(engine.Token(999999), nil, nil); err == nil {
		t.Error("SendMessage on unknown token: expected error, got nil")
	}
	if err := eng.ResendMessages(engine.Token(999999), nil); err == nil {
		t.Error("ResendMessages on unknown token: expected error, got nil")
	}
}
