// Package netio provides the reactor's low-level socket plumbing: listener
// construction and per-connection socket tuning for the FIX engine's TCP
// streams.
package netio

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/netutil"
	"golang.org/x/sys/unix"
)

// TuneConn applies the socket options a long-lived FIX session wants on a
// freshly dialed or accepted TCP connection: TCP_NODELAY (FIX messages are
// small and latency-sensitive, so Nagle's algorithm only hurts) and
// SO_KEEPALIVE (detect a peer that vanished without a clean FIN faster than
// the session-level heartbeat alone would).
//
// Generalized from rawsock_linux.go's applySockOpts* control-fd pattern: a
// *net.TCPConn already owns its fd, so this reaches it via SyscallConn
// instead of a raw socket() call.
func TuneConn(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return fmt.Errorf("syscall conn: %w", err)
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		intFD := int(fd)
		if e := unix.SetsockoptInt(intFD, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); e != nil {
			sockErr = fmt.Errorf("set TCP_NODELAY: %w", e)
			return
		}
		if e := unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); e != nil {
			sockErr = fmt.Errorf("set SO_KEEPALIVE: %w", e)
			return
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockErr
}

// Listen binds addr and wraps it with netutil.LimitListener so an accept
// storm cannot hand the engine more raw, not-yet-tokened connections than
// it has the token budget (internal/engine.maxTokens) to ever admit.
func Listen(addr string, maxPending int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return netutil.LimitListener(ln, maxPending), nil
}

// IsConnReset reports whether err indicates the peer reset the connection
// (ECONNRESET), the one raw syscall.Errno this reactor distinguishes from a
// generic I/O error, since spec error handling maps it the same way as any
// other socket read/write failure but callers sometimes want to log it
// distinctly from a clean peer-initiated close.
func IsConnReset(err error) bool {
	return isErrno(err, unix.ECONNRESET)
}

func isErrno(err error, target syscall.Errno) bool {
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok { //nolint:errorlint // syscall.Errno is a leaf value, not a wrapped chain
			return errno == target
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
