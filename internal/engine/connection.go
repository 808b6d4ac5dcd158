package engine

import (
	"net"

	"github.com/fixdaemon/gofix/internal/fix/codec"
	"github.com/fixdaemon/gofix/internal/fix/message"
	"github.com/fixdaemon/gofix/internal/fix/session"
)

// connEntry is one row of the reactor's connection arena (spec §9
// "Cyclic ownership": "the reactor owns a table of connections indexed
// by a small integer token; all cross-references are token-based").
// Every field here is owned exclusively by the worker goroutine
// (spec §5 "Shared-resource policy"); nothing outside Engine.Run ever
// touches a connEntry directly.
type connEntry struct {
	token    Token
	listener Token // 0 ("none") for an initiator connection
	sess     *session.Session
	conn     net.Conn

	// inbound is the per-connection byte buffer bytes read from conn
	// accumulate in before the codec can frame a full message (spec §3
	// "inbound byte buffer with bounded capacity").
	inbound []byte

	blocked bool // true while this connection is in inbound_blocked (spec §4.3 "Backpressure")
}

// listenerEntry is an arena row for an accepting socket.
type listenerEntry struct {
	token        Token
	senderCompID string
	ln           net.Listener
}

// connTransport adapts a net.Conn to session.Transport with a plain
// blocking Write. A genuine transport failure (reset, broken pipe)
// surfaces as an error, which Session maps to ReasonSocketWriteError
// (spec §7 item 5) exactly like any other transport error.
//
// This is a known simplification: spec §4.3's write-blocked backpressure
// (a 10s timer started the moment a write would block, per
// Session.OnWriteBlocked/OnWriteBlockedTimeout) needs a non-blocking
// write path -- EPOLLOUT readiness, a pending-bytes queue -- that belongs
// to the epoll-based reactor, not to this connTransport. Until that
// reactor exists, writes here block the worker goroutine like any
// ordinary net.Conn.Write; OnWriteBlocked/OnWriteUnblocked are wired but
// unreachable from this Transport, ready for the non-blocking writer to
// call once it exists.
type connTransport struct {
	conn *connEntry
	eng  *Engine
}

func (t *connTransport) Write(b []byte) (int, error) {
	return t.conn.conn.Write(b)
}

// connSink adapts a Session's EventSink calls into Engine-level Events
// tagged with the originating connection (and listener, where the spec's
// event shape requires it), then hands them to the worker's outbound
// event channel.
type connSink struct {
	token    Token
	listener Token
	eng      *Engine
}

func (s *connSink) emit(e Event) { s.eng.emit(e) }

func (s *connSink) ConnectionAccepted() {
	s.emit(ConnectionAccepted{Listener: s.listener, Conn: s.token})
}

func (s *connSink) ConnectionLoggingOn(logon *message.Message) {
	s.emit(ConnectionLoggingOn{Listener: s.listener, Conn: s.token, Logon: logon})
}

func (s *connSink) SessionEstablished() {
	s.emit(SessionEstablished{Conn: s.token})
}

func (s *connSink) ConnectionTerminated(reason session.TerminatedReason, detail string) {
	s.emit(ConnectionTerminated{Conn: s.token, Reason: reason, Detail: detail})
}

func (s *connSink) MessageReceived(msg *message.Message) {
	s.emit(MessageReceived{Conn: s.token, Msg: msg})
}

func (s *connSink) MessageReceivedGarbled(perr *codec.ParseError) {
	s.emit(MessageReceivedGarbled{Conn: s.token, Err: perr})
}

func (s *connSink) MessageReceivedDuplicate(msg *message.Message) {
	s.emit(MessageReceivedDuplicate{Conn: s.token, Msg: msg})
}

func (s *connSink) MessageRejected(msg *message.Message) {
	s.emit(MessageRejected{Conn: s.token, Msg: msg})
}

func (s *connSink) ResendRequested(beginSeqNum, endSeqNum uint64) {
	s.emit(ResendRequested{Conn: s.token, BeginSeqNum: beginSeqNum, EndSeqNumExcl: endSeqNum})
}

func (s *connSink) SequenceResetResetHasNoEffect() {
	s.emit(SequenceResetResetHasNoEffect{Conn: s.token})
}

func (s *connSink) SequenceResetResetInThePast() {
	s.emit(SequenceResetResetInThePast{Conn: s.token})
}
