package netio_test

import (
	"errors"
	"net"
	"testing"

	"github.com/fixdaemon/gofix/internal/netio"
)

// -------------------------------------------------------------------------
// TestListenLimitsPendingAccepts
// -------------------------------------------------------------------------

// TestListenLimitsPendingAccepts verifies Listen returns a usable listener
// that a client can dial and exchange bytes over; the LimitListener wrapping
// itself is exercised indirectly since its accounting is internal to
// golang.org/x/net/netutil.
func TestListenLimitsPendingAccepts(t *testing.T) {
	t.Parallel()

	ln, err := netio.Listen("127.0.0.1:0", 4)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := server.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("got %q, want %q", buf, "ping")
	}
}

// -------------------------------------------------------------------------
// TestTuneConnOnLoopback
// -------------------------------------------------------------------------

// TestTuneConnOnLoopback verifies TuneConn succeeds on a real TCP connection
// and is a no-op (returns nil) for a non-TCP net.Conn.
func TestTuneConnOnLoopback(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			_ = netio.TuneConn(conn)
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := netio.TuneConn(client); err != nil {
		t.Errorf("TuneConn: %v", err)
	}
}

func TestTuneConnNonTCPIsNoop(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if err := netio.TuneConn(a); err != nil {
		t.Errorf("TuneConn on net.Pipe: %v", err)
	}
}

// -------------------------------------------------------------------------
// TestIsConnReset
// -------------------------------------------------------------------------

func TestIsConnReset(t *testing.T) {
	t.Parallel()

	if netio.IsConnReset(nil) {
		t.Error("nil error reported as ECONNRESET")
	}
	if netio.IsConnReset(errors.New("some other failure")) {
		t.Error("unrelated error reported as ECONNRESET")
	}
}
