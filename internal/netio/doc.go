// Package netio provides TCP socket tuning helpers for FIX connections:
// TCP_NODELAY, keepalive, and accept-storm bounding via
// golang.org/x/net/netutil.LimitListener.
package netio
