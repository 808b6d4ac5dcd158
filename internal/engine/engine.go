// Package engine implements the multi-connection reactor (spec §4.3):
// the single dedicated I/O worker goroutine that owns every connection's
// socket, timers, and Session state, driven by a host-facing command/
// event channel pair (spec §5 "Concurrency & resource model").
package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/fixdaemon/gofix/internal/fix/dict"
	"github.com/fixdaemon/gofix/internal/fix/fixver"
	"github.com/fixdaemon/gofix/internal/fix/message"
	"github.com/fixdaemon/gofix/internal/fix/session"
	"github.com/fixdaemon/gofix/internal/netio"
)

// maxPendingAccepts bounds a listener's accepted-but-not-yet-tokened
// connections (golang.org/x/net/netutil.LimitListener), keeping an accept
// storm from outrunning the token pool it is about to draw from.
const maxPendingAccepts = 1024

// inboundMessagesBufferLenMax caps the Session.HandleInbound calls made
// for one read chunk. Each call already parses every complete message in
// the buffer, so this does not limit the messages parsed per iteration,
// and a connection is not re-queued: leftover bytes wait for its next read.
const inboundMessagesBufferLenMax = 10

// readChunkSize is the per-Read buffer size for each connection's reader
// goroutine.
const readChunkSize = 8192

// maxIdleWait bounds the worker's poll timeout when no session has an
// armed timer, keeping it responsive to newly-added connections without
// busy-spinning.
const maxIdleWait = 1 * time.Second

// inboundChunk is a batch of freshly-read bytes (or a terminal read
// error) handed from a connection's dedicated reader goroutine to the
// worker. Reader goroutines never touch Session state directly -- they
// only ferry bytes -- preserving spec §5's "sockets, parsers, and
// session state are owned exclusively by the worker" invariant even
// though the actual blocking read syscall happens off the worker
// goroutine (grounded on the teacher's netio receiver-loop-feeds-a-
// single-demuxer shape, internal/netio/receiver.go +
// internal/bfd/manager.go's Demux).
type inboundChunk struct {
	conn Token
	data []byte
	err  error
}

// acceptedConn is handed from a listener's accept loop to the worker.
type acceptedConn struct {
	listener Token
	conn     net.Conn
	addr     string
	err      error
}

// dialResult is handed from an outbound connection's dial goroutine to
// the worker.
type dialResult struct {
	token Token
	cfg   ConnConfig
	conn  net.Conn
	err   error
}

// Engine is the reactor described by spec §4.3. Construct with New, then
// run its worker loop with Run from a dedicated goroutine; every other
// method is safe to call concurrently from any host goroutine, since
// each is either a channel send (commands) or a read of the Events()
// channel.
type Engine struct {
	dictionary *dict.Dictionary
	metrics    session.MetricsReporter
	logger     *slog.Logger
	tokens     *TokenAllocator

	cmdCh      chan command
	eventCh    chan Event
	inboundCh  chan inboundChunk
	acceptedCh chan acceptedConn
	dialCh     chan dialResult

	// conns/listeners are owned exclusively by the worker goroutine
	// (Run); no lock is needed because nothing else touches them.
	conns     map[Token]*connEntry
	listeners map[Token]*listenerEntry

	wg sync.WaitGroup
}

// Config bundles Engine's construction-time dependencies (spec §6
// "Configuration (engine construction)").
type Config struct {
	Dictionary *dict.Dictionary
	Metrics    session.MetricsReporter
	Logger     *slog.Logger
}

// New builds an Engine. Call Run to start its worker goroutine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		dictionary: cfg.Dictionary,
		metrics:    cfg.Metrics,
		logger:     logger,
		tokens:     NewTokenAllocator(),
		cmdCh:      make(chan command, 64),
		eventCh:    make(chan Event, 256),
		inboundCh:  make(chan inboundChunk, 64),
		acceptedCh: make(chan acceptedConn, 16),
		dialCh:     make(chan dialResult, 16),
		conns:      make(map[Token]*connEntry),
		listeners:  make(map[Token]*listenerEntry),
	}
}

// Events returns the host-facing event channel (spec §4.3 "poll(timeout)
// -> Option<EngineEvent>", expressed as a Go channel rather than a poll
// call since that is the idiomatic shape for an MPSC/SPSC consumer in
// Go).
func (e *Engine) Events() <-chan Event { return e.eventCh }

func (e *Engine) emit(ev Event) {
	e.eventCh <- ev
}

// Run is the single dedicated I/O worker (spec §4.3 "Concurrency
// model"). It blocks until ctx is cancelled or Shutdown is called.
func (e *Engine) Run(ctx context.Context) {
	timer := time.NewTimer(maxIdleWait)
	defer timer.Stop()

	for {
		timeout := e.nextTimeout()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(timeout)

		select {
		case <-ctx.Done():
			e.wg.Wait()
			return
		case cmd := <-e.cmdCh:
			if _, isShutdown := cmd.(shutdownCmd); isShutdown {
				e.wg.Wait()
				return
			}
			e.handleCommand(cmd)
		case chunk := <-e.inboundCh:
			e.handleInboundChunk(chunk)
		case ac := <-e.acceptedCh:
			e.handleAccepted(ac)
		case dr := <-e.dialCh:
			e.handleDialResult(dr)
		case <-timer.C:
			e.tick(time.Now())
		}
	}
}

// nextTimeout computes how long the worker may sleep before some
// connection's timer needs servicing (spec §4.3 "poll(timeout)").
func (e *Engine) nextTimeout() time.Duration {
	now := time.Now()
	best := now.Add(maxIdleWait)
	found := false
	for _, c := range e.conns {
		d := c.sess.NextDeadline()
		if d.IsZero() {
			continue
		}
		if !found || d.Before(best) {
			best = d
			found = true
		}
	}
	if !found {
		return maxIdleWait
	}
	d := best.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (e *Engine) tick(now time.Time) {
	for _, c := range e.conns {
		c.sess.OnTick(now)
		e.reapIfTerminated(c)
	}
}

// reapIfTerminated removes a connection from the arena once its Session
// reaches StatusTerminated, closing the socket and releasing its token
// (spec §3 "All timers and buffers are released at destruction").
func (e *Engine) reapIfTerminated(c *connEntry) {
	if c.sess.Status() != session.StatusTerminated {
		return
	}
	delete(e.conns, c.token)
	_ = c.conn.Close()
	e.tokens.Release(c.token)
}

// AddConnection implements add_connection (spec §4.3): allocates a token
// and returns immediately; the TCP dial proceeds off the worker
// goroutine, later reported via ConnectionSucceeded/ConnectionFailed.
func (e *Engine) AddConnection(cfg ConnConfig) (Token, error) {
	reply := make(chan newConnectionResult, 1)
	e.cmdCh <- newConnectionCmd{cfg: cfg, reply: reply}
	res := <-reply
	return res.token, res.err
}

// AddListener implements add_listener (spec §4.3).
func (e *Engine) AddListener(cfg ListenerConfig) (Token, error) {
	reply := make(chan newListenerResult, 1)
	e.cmdCh <- newListenerCmd{cfg: cfg, reply: reply}
	res := <-reply
	return res.token, res.err
}

// SendMessage implements send_message (spec §4.2 "send").
func (e *Engine) SendMessage(conn Token, version *fixver.MessageVersion, msg *message.Message) error {
	reply := make(chan error, 1)
	e.cmdCh <- sendMessageCmd{conn: conn, version: version, msg: msg, reply: reply}
	return <-reply
}

// ResendMessages implements send_resend_response (spec §4.2).
func (e *Engine) ResendMessages(conn Token, items []session.ResendItem) error {
	reply := make(chan error, 1)
	e.cmdCh <- resendMessagesCmd{conn: conn, items: items, reply: reply}
	return <-reply
}

// ApproveNewConnection implements approve_new_connection (spec §4.2).
func (e *Engine) ApproveNewConnection(conn Token, reply *session.LogonReply, expectedInboundSeq uint64) {
	e.cmdCh <- approveNewConnectionCmd{conn: conn, reply: reply, expectedInboundSeq: expectedInboundSeq}
}

// RejectNewConnection implements reject_new_connection (spec §4.2).
func (e *Engine) RejectNewConnection(conn Token, text string) {
	e.cmdCh <- rejectNewConnectionCmd{conn: conn, text: text}
}

// Logout implements logout() (spec §4.2).
func (e *Engine) Logout(conn Token) {
	e.cmdCh <- logoutCmd{conn: conn}
}

// Shutdown implements the Shutdown control message (spec §5
// "Cancellation"): terminates the worker; in-flight commands may be
// dropped.
func (e *Engine) Shutdown() {
	e.cmdCh <- shutdownCmd{}
}

// Sessions returns a snapshot of every live connection's session state,
// for the control HTTP surface's GET /sessions.
func (e *Engine) Sessions() []SessionInfo {
	reply := make(chan []SessionInfo, 1)
	e.cmdCh <- listSessionsCmd{reply: reply}
	return <-reply
}

func (e *Engine) handleCommand(cmd command) {
	switch c := cmd.(type) {
	case newConnectionCmd:
		e.handleNewConnection(c)
	case newListenerCmd:
		e.handleNewListener(c)
	case sendMessageCmd:
		e.handleSendMessage(c)
	case resendMessagesCmd:
		e.handleResendMessages(c)
	case approveNewConnectionCmd:
		e.handleApproveNewConnection(c)
	case rejectNewConnectionCmd:
		e.handleRejectNewConnection(c)
	case logoutCmd:
		e.handleLogout(c)
	case listSessionsCmd:
		e.handleListSessions(c)
	}
}

func (e *Engine) handleListSessions(c listSessionsCmd) {
	infos := make([]SessionInfo, 0, len(e.conns))
	for _, entry := range e.conns {
		infos = append(infos, SessionInfo{
			Conn:         entry.token,
			Listener:     entry.listener,
			SenderCompID: entry.sess.SenderCompID(),
			TargetCompID: entry.sess.TargetCompID(),
			Status:       entry.sess.Status(),
		})
	}
	c.reply <- infos
}

func (e *Engine) handleNewConnection(c newConnectionCmd) {
	token, err := e.tokens.Allocate()
	if err != nil {
		c.reply <- newConnectionResult{err: err}
		return
	}
	c.reply <- newConnectionResult{token: token}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		conn, dialErr := net.Dial("tcp", c.cfg.Address)
		e.dialCh <- dialResult{token: token, cfg: c.cfg, conn: conn, err: dialErr}
	}()
}

func (e *Engine) handleDialResult(dr dialResult) {
	if dr.err != nil {
		e.tokens.Release(dr.token)
		e.emit(ConnectionFailed{Conn: dr.token, Err: dr.err})
		return
	}
	if err := netio.TuneConn(dr.conn); err != nil {
		e.logger.Warn("tune dialed connection", "error", err)
	}
	entry := &connEntry{token: dr.token, conn: dr.conn}
	sink := &connSink{token: dr.token, eng: e}
	cfg := session.Config{
		Role:                  session.RoleInitiator,
		FIXVersion:            dr.cfg.FIXVersion,
		SenderCompID:          dr.cfg.SenderCompID,
		TargetCompID:          dr.cfg.TargetCompID,
		DefaultMessageVersion: dr.cfg.DefaultMessageVersion,
	}
	entry.sess = session.New(e.dictionary, cfg, &connTransport{conn: entry, eng: e}, sink, e.logger, e.metrics)
	e.conns[dr.token] = entry
	e.startReader(entry)
	e.emit(ConnectionSucceeded{Conn: dr.token})
	entry.sess.Start()
}

func (e *Engine) handleNewListener(c newListenerCmd) {
	token, err := e.tokens.Allocate()
	if err != nil {
		c.reply <- newListenerResult{err: err}
		return
	}
	ln, err := netio.Listen(c.cfg.Address, maxPendingAccepts)
	if err != nil {
		e.tokens.Release(token)
		c.reply <- newListenerResult{err: err}
		return
	}
	e.listeners[token] = &listenerEntry{token: token, senderCompID: c.cfg.SenderCompID, ln: ln}
	c.reply <- newListenerResult{token: token}

	e.wg.Add(1)
	go e.acceptLoop(token, ln)
}

func (e *Engine) acceptLoop(listener Token, ln net.Listener) {
	defer e.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			e.acceptedCh <- acceptedConn{listener: listener, err: err}
			return
		}
		e.acceptedCh <- acceptedConn{listener: listener, conn: conn, addr: conn.RemoteAddr().String()}
	}
}

func (e *Engine) handleAccepted(ac acceptedConn) {
	ln, ok := e.listeners[ac.listener]
	if !ok {
		if ac.conn != nil {
			_ = ac.conn.Close()
		}
		return
	}
	if ac.err != nil {
		e.emit(ListenerAcceptFailed{Listener: ac.listener, Err: ac.err})
		return
	}

	token, err := e.tokens.Allocate()
	if err != nil {
		_ = ac.conn.Close()
		e.emit(ConnectionDropped{Listener: ac.listener, Addr: ac.addr})
		return
	}
	if err := netio.TuneConn(ac.conn); err != nil {
		e.logger.Warn("tune accepted connection", "error", err)
	}

	entry := &connEntry{token: token, listener: ac.listener, conn: ac.conn}
	sink := &connSink{token: token, listener: ac.listener, eng: e}
	cfg := session.Config{
		Role:         session.RoleAcceptor,
		SenderCompID: ln.senderCompID,
	}
	entry.sess = session.New(e.dictionary, cfg, &connTransport{conn: entry, eng: e}, sink, e.logger, e.metrics)
	e.conns[token] = entry
	e.startReader(entry)
	entry.sess.Start()
}

func (e *Engine) startReader(entry *connEntry) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		buf := make([]byte, readChunkSize)
		for {
			n, err := entry.conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				e.inboundCh <- inboundChunk{conn: entry.token, data: chunk}
			}
			if err != nil {
				e.inboundCh <- inboundChunk{conn: entry.token, err: err}
				return
			}
		}
	}()
}

func (e *Engine) handleInboundChunk(chunk inboundChunk) {
	c, ok := e.conns[chunk.conn]
	if !ok {
		return
	}
	if chunk.err != nil {
		c.sess.Logout()
		e.reapIfTerminated(c)
		return
	}

	c.inbound = append(c.inbound, chunk.data...)
	now := time.Now()
	processed := 0
	for len(c.inbound) > 0 && processed < inboundMessagesBufferLenMax {
		consumed, err := c.sess.HandleInbound(now, c.inbound)
		if err != nil || consumed == 0 {
			break
		}
		c.inbound = c.inbound[consumed:]
		processed++
	}
	if len(c.inbound) == 0 {
		c.inbound = nil
	}
	e.reapIfTerminated(c)
}

// onWriteBlocked/onWriteUnblocked are wired into Session's backpressure
// hooks (session.OnWriteBlocked/OnWriteUnblocked) for the future
// non-blocking reactor to call; connTransport does not call them today
// (see connTransport's doc comment).
func (e *Engine) onWriteBlocked(token Token) {
	if c, ok := e.conns[token]; ok {
		c.sess.OnWriteBlocked(time.Now())
	}
}

func (e *Engine) onWriteUnblocked(token Token) {
	if c, ok := e.conns[token]; ok {
		c.sess.OnWriteUnblocked()
	}
}

var errConnNotFound = errors.New("engine: unknown connection token")

func (e *Engine) handleSendMessage(c sendMessageCmd) {
	entry, ok := e.conns[c.conn]
	if !ok {
		c.reply <- errConnNotFound
		return
	}
	c.reply <- entry.sess.Send(c.msg, c.version)
}

func (e *Engine) handleResendMessages(c resendMessagesCmd) {
	entry, ok := e.conns[c.conn]
	if !ok {
		c.reply <- errConnNotFound
		return
	}
	c.reply <- entry.sess.SendResendResponse(c.items)
}

func (e *Engine) handleApproveNewConnection(c approveNewConnectionCmd) {
	entry, ok := e.conns[c.conn]
	if !ok {
		return
	}
	entry.sess.ApproveNewConnection(c.reply, c.expectedInboundSeq)
}

func (e *Engine) handleRejectNewConnection(c rejectNewConnectionCmd) {
	entry, ok := e.conns[c.conn]
	if !ok {
		return
	}
	entry.sess.RejectNewConnection(c.text)
	e.reapIfTerminated(entry)
}

func (e *Engine) handleLogout(c logoutCmd) {
	entry, ok := e.conns[c.conn]
	if !ok {
		return
	}
	entry.sess.Logout()
}
