package session

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/fixdaemon/gofix/internal/fix/codec"
	"github.com/fixdaemon/gofix/internal/fix/dict"
	"github.com/fixdaemon/gofix/internal/fix/fixver"
	"github.com/fixdaemon/gofix/internal/fix/message"
)

// Standard SessionRejectReason (tag 373) values this engine emits (spec
// §4.2's named reasons only -- the full FIX enumeration is not exercised).
const (
	sessionRejectValueIncorrect = "5"
	sessionRejectCompIDProblem  = "9"
	sessionRejectInvalidMsgType = "11"
)

// Standard BusinessRejectReason (tag 380) value for an unimplemented but
// standard message type (spec §7 item 3).
const businessRejectUnsupportedMsgType = "3"

// ErrSequenceNumberOverflow is returned by Send when the outbound
// MsgSeqNum is already at 2^64-1 (spec §3 names this fatal): the session
// terminates with a session-rule-violation logout instead of wrapping.
var ErrSequenceNumberOverflow = errors.New("outbound MsgSeqNum would overflow")

// inboundTestRequestPadding is the configurable constant named in spec §9
// Design Notes ("Exact timing padding (250ms) ... any value in [100ms,
// 1s] preserves behavior").
const inboundTestRequestPadding = 250 * time.Millisecond

// logoutTimeout, logoutHangupTimeout, gapWaitTimeout, and
// writeBlockedTimeout are all the fixed 10s timers named in spec §4.2
// "Timers".
const (
	logoutTimeout        = 10 * time.Second
	logoutHangupTimeout  = 10 * time.Second
	gapWaitTimeout       = 10 * time.Second
	writeBlockedTimeout  = 10 * time.Second
	logonNeverReceivedTO = 10 * time.Second
)

// resendLoopLimit is the "exceeding 5 identical requests" threshold (spec
// §4.2 "Loop detection").
const resendLoopLimit = 5

// Config carries everything a Session needs at construction (spec §6
// "Configuration ... Per-connection at add_connection").
type Config struct {
	Role         Role
	FIXVersion   fixver.FIXVersion
	SenderCompID string
	TargetCompID string

	// DefaultMessageVersion is the application schema version assumed
	// before Logon negotiation (plain FIX 4.x: derived from FIXVersion;
	// FIXT.1.1: the newest the acceptor is willing to offer, or the
	// version the initiator intends to request).
	DefaultMessageVersion fixver.MessageVersion

	// ExpectedInboundSeqNum seeds the inbound sequence number, letting a
	// host resume a session after a restart (spec §6 "No persistence").
	ExpectedInboundSeqNum uint64

	// StartOutboundSeqNum seeds the outbound sequence number similarly;
	// zero means start at 1.
	StartOutboundSeqNum uint64
}

// Session enforces FIX session-layer rules on top of Codec output and
// manages one connection's lifecycle (spec §4.2). Unlike the teacher's
// per-session goroutine (internal/bfd/session.go's Run(ctx)), a Session
// here owns no goroutine of its own: spec §4.3 mandates a single I/O
// worker thread for every connection, so the engine's reactor calls
// Session's methods directly and synchronously from that one thread. The
// FSM-apply / execute-actions split below is otherwise the same pattern
// the teacher uses (applyFSMEvent -> executeFSMActions -> executeAction).
type Session struct {
	cfg   Config
	dict  *dict.Dictionary
	codec *codec.Codec

	status atomic.Uint32

	outboundSeqNum  atomic.Uint64
	inboundExpected atomic.Uint64

	heartBtInt time.Duration

	gapOutstanding   bool
	gapHighWaterMark uint64
	lastResendBegin  uint64
	resendLoopCount  int

	pendingTerminationReason TerminatedReason
	pendingTerminationDetail string
	pendingLogoutText        string
	pendingLogonSeqNum       uint64

	// deadlines, checked by the engine's poll loop via NextDeadline/OnTick
	// (spec §5 "Timeouts: all timers are relative durations ... cancelled
	// on state transition").
	heartbeatAt    time.Time
	testReqAt      time.Time
	testReqReplyAt time.Time
	stateAt        time.Time

	pendingTestReqID string

	transport Transport
	sink      EventSink
	logger    *slog.Logger
	metrics   MetricsReporter
}

// MetricsReporter abstracts the metrics backend, mirroring the teacher's
// MetricsReporter abstraction for BFD (internal/bfd/metrics.go) so Session
// can be unit-tested without a real Prometheus registry.
type MetricsReporter interface {
	IncMessagesSent(msgType string)
	IncMessagesReceived(msgType string)
	IncParseError(reason string)
	IncResendRequest(direction string)
	RecordSessionTransition(oldStatus, newStatus string)
	RecordTermination(reason string)
}

// NoopMetrics implements MetricsReporter with no-ops, the default when
// no reporter is supplied.
type NoopMetrics struct{}

func (NoopMetrics) IncMessagesSent(string)                 {}
func (NoopMetrics) IncMessagesReceived(string)              {}
func (NoopMetrics) IncParseError(string)                    {}
func (NoopMetrics) IncResendRequest(string)                 {}
func (NoopMetrics) RecordSessionTransition(string, string)  {}
func (NoopMetrics) RecordTermination(string)                {}

// New builds a Session bound to d (the shared, read-only Dictionary) and
// ready to drive transport. The FSM starts at StatusNone; the caller must
// call Start to fire the first handshake event.
func New(d *dict.Dictionary, cfg Config, transport Transport, sink EventSink, logger *slog.Logger, metrics MetricsReporter) *Session {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	s := &Session{
		cfg:               cfg,
		dict:              d,
		codec:             codec.New(d, defaultMaxMessageSize),
		transport:         transport,
		sink:              sink,
		logger:            logger,
		metrics:           metrics,
	}
	s.codec.SetDefaultMessageVersion(cfg.DefaultMessageVersion)
	s.inboundExpected.Store(max64(cfg.ExpectedInboundSeqNum, 1))
	start := cfg.StartOutboundSeqNum
	if start == 0 {
		start = 1
	}
	s.outboundSeqNum.Store(start)
	return s
}

const defaultMaxMessageSize = 4 << 20

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// Status returns the current session status (safe for concurrent read;
// the engine's control surface reads this from outside the I/O worker).
func (s *Session) Status() Status { return Status(s.status.Load()) } //nolint:gosec // Status fits uint8

// SenderCompID returns the configured local CompID (spec §4.2's SenderCompID).
func (s *Session) SenderCompID() string { return s.cfg.SenderCompID }

// TargetCompID returns the configured remote CompID (empty for an
// acceptor session until Logon negotiation fills it in via
// ApproveNewConnection's caller).
func (s *Session) TargetCompID() string { return s.cfg.TargetCompID }

// OutboundSeqNum returns the next outbound MsgSeqNum that will be used.
func (s *Session) OutboundSeqNum() uint64 { return s.outboundSeqNum.Load() }

// InboundExpected returns the next inbound MsgSeqNum expected.
func (s *Session) InboundExpected() uint64 { return s.inboundExpected.Load() }

// Start fires the connection-established event appropriate to cfg.Role
// (spec §4.2 handshake step 1, both sides).
func (s *Session) Start() {
	if s.cfg.Role == RoleInitiator {
		s.apply(EventConnectedInitiator)
	} else {
		s.apply(EventConnectedAcceptor)
	}
}

// NextDeadline returns the earliest armed timer deadline, or the zero
// Time if none is armed. The engine's reactor uses this to size its poll
// timeout (spec §4.3 "poll(timeout)").
func (s *Session) NextDeadline() time.Time {
	var best time.Time
	for _, t := range []time.Time{s.heartbeatAt, s.testReqAt, s.testReqReplyAt, s.stateAt} {
		if t.IsZero() {
			continue
		}
		if best.IsZero() || t.Before(best) {
			best = t
		}
	}
	return best
}

// OnTick is called by the engine's poll loop with the current time; it
// fires whichever timers have expired.
func (s *Session) OnTick(now time.Time) {
	if !s.heartbeatAt.IsZero() && !now.Before(s.heartbeatAt) {
		s.sendHeartbeat("")
		s.armHeartbeat()
	}
	if !s.testReqAt.IsZero() && !now.Before(s.testReqAt) {
		s.pendingTestReqID = now.UTC().Format("20060102-15:04:05.000")
		s.sendHeartbeatLikeTestRequest(s.pendingTestReqID)
		s.testReqAt = time.Time{}
		s.testReqReplyAt = now.Add(s.heartBtInt)
	}
	if !s.testReqReplyAt.IsZero() && !now.Before(s.testReqReplyAt) {
		s.terminate(ReasonTestRequestNotRespondedError, "no reply to TestRequest")
		return
	}
	if !s.stateAt.IsZero() && !now.Before(s.stateAt) {
		s.stateAt = time.Time{}
		switch s.Status() {
		case StatusReceivingLogon:
			s.apply(EventLogonTimerExpired)
		case StatusLoggingOut:
			// Either timer may be armed depending on who initiated logout;
			// both map to the same two terminal events' outcome, so reuse
			// whichever is semantically correct isn't distinguishable here
			// without extra state, so default to the no-response variant.
			s.apply(EventLogoutNoResponseTimeout)
		case StatusLoggingOutGapped:
			s.apply(EventGapWaitTimeout)
		}
	}
}

// OnWriteBlocked is called by the engine when a socket write returns
// WouldBlock, arming the 10s write-blocked timer (spec §4.3
// "Backpressure").
func (s *Session) OnWriteBlocked(now time.Time) {
	s.stateAt = now.Add(writeBlockedTimeout)
}

// OnWriteUnblocked cancels the write-blocked timer once a write succeeds.
func (s *Session) OnWriteUnblocked() {
	if s.Status() != StatusLoggingOut && s.Status() != StatusLoggingOutGapped {
		s.stateAt = time.Time{}
	}
}

// OnWriteBlockedTimeout is invoked by the engine once writeBlockedTimeout
// has elapsed with no successful write.
func (s *Session) OnWriteBlockedTimeout() {
	s.apply(EventWriteBlockedTimeout)
}

// HandleInbound feeds newly-read bytes through the codec and processes
// every message it yields. consumed is how many leading bytes of data
// the caller should discard from its buffer.
func (s *Session) HandleInbound(now time.Time, data []byte) (consumed int, err error) {
	total := 0
	for {
		n, perr := s.codec.Parse(data[total:])
		total += n
		if perr != nil {
			s.handleParseError(perr)
			continue
		}
		if n == 0 {
			break
		}
	}
	for _, msg := range s.codec.Drain() {
		s.testReqAt = now.Add(s.heartBtInt + inboundTestRequestPadding)
		s.testReqReplyAt = time.Time{}
		s.processMessage(msg)
	}
	return total, nil
}

// handleParseError maps a codec.ParseError to the garbled-vs-incremented
// rule of spec §7 item 1 / §4.2 "Parse error responses".
func (s *Session) handleParseError(perr *codec.ParseError) {
	s.metrics.IncParseError(perr.Kind.String())
	if perr.Garbled {
		if perr.HasMsgSeqNum {
			s.inboundExpected.Store(perr.MsgSeqNum + 1)
		}
		s.sink.MessageReceivedGarbled(perr)
		return
	}
	if perr.Kind == codec.MsgTypeUnknown {
		if !s.bumpInboundExpected() {
			return
		}
		if s.dict.IsStandardMsgType(perr.MsgType) {
			s.sendBusinessMessageReject(perr.MsgType, businessRejectUnsupportedMsgType, "unsupported message type")
		} else {
			s.sendReject(0, 0, perr.MsgType, sessionRejectInvalidMsgType, "invalid MsgType")
		}
		return
	}
	if !s.bumpInboundExpected() {
		return
	}
	s.sendReject(0, uint64(perr.Tag), "", "", perr.Error())
}

// processMessage runs the full identity/BeginString/sequence-number
// pipeline on one parsed message, then dispatches message-type-specific
// handling (spec §4.2 throughout).
func (s *Session) processMessage(msg *message.Message) {
	s.metrics.IncMessagesReceived(msg.MsgType)

	status := s.Status()
	isLogon := msg.MsgType == MsgTypeLogon

	switch status {
	case StatusSendingLogon:
		if !isLogon {
			s.apply(EventNonLogonReceived)
			return
		}
		s.installNegotiatedTimers(msg)
		s.apply(EventLogonReceived)
		if !s.bumpInboundExpected() {
			return
		}
		s.sink.MessageReceived(msg)
		return
	case StatusReceivingLogon:
		if !isLogon {
			s.apply(EventNonLogonReceived)
			return
		}
		if s.cfg.Role == RoleAcceptor {
			s.captureAcceptorIdentity(msg)
		}
		s.pendingLogonSeqNum = seqOf(msg)
		s.sink.ConnectionLoggingOn(msg)
		s.apply(EventLogonReceived)
		// inbound parsing is backpressured until the host approves; the
		// engine must stop reading this connection's socket once
		// ConnectionLoggingOn fires.
		return
	case StatusApprovingLogon:
		// Inbound is blocked in this status; nothing should arrive, but
		// tolerate and ignore rather than panic.
		return
	}

	// BeginString validation (spec §4.2 "BeginString validation").
	if msg.Meta.BeginString != s.cfg.FIXVersion.String() {
		s.terminate(ReasonBeginStrWrongError, fmt.Sprintf("received %s expected %s", msg.Meta.BeginString, s.cfg.FIXVersion.String()))
		return
	}

	// Identity validation (spec §4.2 "Identity validation").
	if sc, ok := msg.Get(dict.TagSenderCompID); ok && sc != s.cfg.TargetCompID {
		s.sendReject(seqOf(msg), uint64(dict.TagSenderCompID), msg.MsgType, sessionRejectCompIDProblem, "CompID problem")
		s.terminate(ReasonCompIDProblemError, "SenderCompID mismatch")
		return
	}
	if tc, ok := msg.Get(dict.TagTargetCompID); ok && tc != s.cfg.SenderCompID {
		s.sendReject(seqOf(msg), uint64(dict.TagTargetCompID), msg.MsgType, sessionRejectCompIDProblem, "CompID problem")
		s.terminate(ReasonCompIDProblemError, "TargetCompID mismatch")
		return
	}

	m := seqOf(msg)

	// SequenceReset-Reset special case bypasses ordinary seq handling
	// entirely (spec §4.2 "Special case").
	if msg.MsgType == MsgTypeSequenceReset {
		if gf, _ := msg.GetBool(dict.TagGapFillFlag); !gf {
			s.handleSequenceResetReset(msg)
			return
		}
	}

	expected := s.inboundExpected.Load()
	switch {
	case m > expected:
		s.handleHigherSeq(msg, m, expected)
		return
	case m < expected:
		s.handleLowerSeq(msg, m, expected)
		return
	case msg.MsgType == MsgTypeSequenceReset:
		// GapFill variant at m == expected: NewSeqNo announces the next
		// expected inbound MsgSeqNum directly, filling the range rather
		// than advancing by one (spec §4.2 "SequenceReset-GapFill").
		if newSeq, _ := msg.GetInt(dict.TagNewSeqNo); uint64(newSeq) > expected {
			s.inboundExpected.Store(uint64(newSeq))
		} else if !s.bumpInboundExpected() {
			return
		}
	default:
		if !s.bumpInboundExpected() {
			return
		}
	}

	s.dispatchByType(msg)
}

// bumpInboundExpected advances the next expected inbound MsgSeqNum by
// one. A MsgSeqNum of 2^64-1 is fatal (spec §3); reaching it terminates
// the session with a session-rule-violation logout (spec §7 item 4)
// instead of silently wrapping, and the caller must stop processing the
// current message when this returns false.
func (s *Session) bumpInboundExpected() bool {
	if s.inboundExpected.Load() == math.MaxUint64 {
		s.terminate(ReasonSequenceNumberOverflowError, "inbound MsgSeqNum would overflow")
		return false
	}
	s.inboundExpected.Add(1)
	return true
}

func seqOf(msg *message.Message) uint64 {
	v, _ := msg.GetInt(dict.TagMsgSeqNum)
	return uint64(v)
}

// handleSequenceResetReset implements spec §4.2's Reset-variant rule.
func (s *Session) handleSequenceResetReset(msg *message.Message) {
	newSeq, _ := msg.GetInt(dict.TagNewSeqNo)
	expected := s.inboundExpected.Load()
	switch {
	case uint64(newSeq) > expected:
		s.inboundExpected.Store(uint64(newSeq))
		s.gapOutstanding = false
	case uint64(newSeq) == expected:
		s.sink.SequenceResetResetHasNoEffect()
	default:
		s.sendReject(seqOf(msg), uint64(dict.TagNewSeqNo), msg.MsgType, sessionRejectValueIncorrect, "NewSeqNo before current expected")
		s.sink.SequenceResetResetInThePast()
	}
}

// handleHigherSeq implements spec §4.2 "If m > expected".
func (s *Session) handleHigherSeq(msg *message.Message, m, expected uint64) {
	if msg.MsgType == MsgTypeResendRequest {
		s.replyToResendRequest(msg)
	}
	s.metrics.IncResendRequest("sent")
	s.sendResendRequest(expected, 0)
	if m > s.gapHighWaterMark {
		s.gapHighWaterMark = m
	}
	s.gapOutstanding = true
	// The message itself is discarded (not processed further) unless it
	// is the Logon that just established the session, which the caller
	// (processMessage) already handled before reaching the seq-number
	// gate.
}

// handleLowerSeq implements spec §4.2 "If m < expected".
func (s *Session) handleLowerSeq(msg *message.Message, m, expected uint64) {
	possDup, _ := msg.GetBool(dict.TagPossDupFlag)
	if possDup {
		origSendTime, errOrig := msg.GetUTCTimestamp(dict.TagOrigSendTime)
		sendTime, errSend := msg.GetUTCTimestamp(dict.TagSendingTime)
		if errOrig == nil && errSend == nil && !origSendTime.After(sendTime) {
			s.sink.MessageReceivedDuplicate(msg)
			return
		}
	}
	s.terminate(ReasonInboundMsgSeqNumLowerThanExpectedError,
		fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", expected, m))
}

// dispatchByType implements spec §4.2 "Administrative auto-replies" plus
// the Logon/Logout/ResendRequest/SequenceReset-GapFill handling that
// isn't covered by the sequence-number gate above.
func (s *Session) dispatchByType(msg *message.Message) {
	switch msg.MsgType {
	case MsgTypeTestRequest:
		testReqID, _ := msg.Get(dict.TagTestReqID)
		s.sendHeartbeat(testReqID)
		s.sink.MessageReceived(msg)
	case MsgTypeHeartbeat:
		testReqID, _ := msg.Get(dict.TagTestReqID)
		if testReqID != "" && testReqID == s.pendingTestReqID {
			s.testReqReplyAt = time.Time{}
			s.pendingTestReqID = ""
		}
		s.sink.MessageReceived(msg)
	case MsgTypeResendRequest:
		s.replyToResendRequest(msg)
		s.sink.MessageReceived(msg)
	case MsgTypeSequenceReset:
		// GapFill variant: the gate above already advanced inboundExpected
		// to NewSeqNo; nothing further to do here beyond clearing a
		// satisfied gap.
		newSeq, _ := msg.GetInt(dict.TagNewSeqNo)
		if uint64(newSeq) >= s.gapHighWaterMark {
			s.gapOutstanding = false
		}
		s.sink.MessageReceived(msg)
	case MsgTypeLogout:
		if s.gapOutstanding && s.Status() == StatusEstablished {
			s.apply(EventPeerLogoutReceivedGapped)
		} else {
			s.apply(EventPeerLogoutReceived)
		}
	default:
		s.sink.MessageReceived(msg)
	}
}

// replyToResendRequest implements the ResendRequest auto-reply rule
// (spec §4.2 "Administrative auto-replies").
func (s *Session) replyToResendRequest(msg *message.Message) {
	begin, _ := msg.GetInt(dict.TagBeginSeqNo)
	end, _ := msg.GetInt(dict.TagEndSeqNo)
	if end != 0 && begin > end {
		s.sendReject(seqOf(msg), uint64(dict.TagEndSeqNo), msg.MsgType, sessionRejectValueIncorrect, "BeginSeqNo > EndSeqNo")
		return
	}
	if uint64(begin) == s.lastResendBegin && begin != 0 {
		s.resendLoopCount++
		if s.resendLoopCount > resendLoopLimit {
			s.terminate(ReasonInboundResendRequestLoopError,
				fmt.Sprintf("Detected ResendRequest loop for BeginSeqNo %d", begin))
			return
		}
	} else {
		s.lastResendBegin = uint64(begin)
		s.resendLoopCount = 1
	}
	effectiveEnd := uint64(end)
	if effectiveEnd == 0 {
		effectiveEnd = s.outboundSeqNum.Load() - 1
	}
	s.sink.ResendRequested(uint64(begin), effectiveEnd+1)
}

// captureAcceptorIdentity records the peer's declared BeginString and
// SenderCompID, and negotiates the default application version, off the
// inbound Logon that opens an acceptor session (spec §4.2 "Handshake
// (acceptor)" step 2: capture declared fix_version,
// default_message_version, target identifiers). It must run before the
// session leaves StatusReceivingLogon, since every later state validates
// inbound BeginString and CompIDs against cfg.
func (s *Session) captureAcceptorIdentity(logon *message.Message) {
	if fv, err := fixver.ParseBeginString(logon.Meta.BeginString); err == nil {
		s.cfg.FIXVersion = fv
	}
	if tc, ok := logon.Get(dict.TagSenderCompID); ok {
		s.cfg.TargetCompID = tc
	}
	if s.cfg.FIXVersion.IsFIXT() {
		if applVerID, ok := logon.Get(dict.TagDefaultApplVerID); ok {
			if v, err := fixver.ApplVerIDToMessageVersion(applVerID); err == nil {
				s.cfg.DefaultMessageVersion = v
			}
		}
	}
	s.installNegotiatedTimers(logon)
}

// installNegotiatedTimers applies the initiator's post-Logon-reply
// negotiation step (spec §4.2 handshake step 2).
func (s *Session) installNegotiatedTimers(logon *message.Message) {
	s.negotiateHeartBtInt(logon)
	s.installDefaultVersions(logon)
}

func (s *Session) negotiateHeartBtInt(logon *message.Message) {
	hbi, _ := logon.GetInt(dict.TagHeartBtInt)
	if hbi < 0 {
		s.terminate(ReasonNegativeHeartBtIntError, "negative HeartBtInt")
		return
	}
	s.heartBtInt = time.Duration(hbi) * time.Second
}

// installDefaultVersions installs DefaultApplVerID and the per-MsgType
// overrides carried in NoMsgTypeGrp (spec §4.2 handshake step 2).
func (s *Session) installDefaultVersions(logon *message.Message) {
	if applVerID, ok := logon.Get(dict.TagDefaultApplVerID); ok {
		if v, err := fixver.ApplVerIDToMessageVersion(applVerID); err == nil {
			s.codec.SetDefaultMessageVersion(v)
		}
	}
	grp, ok := logon.GetGroup(dict.TagNoMsgTypeGrp)
	if !ok {
		return
	}
	s.codec.ClearDefaultMessageTypeVersions()
	for _, occ := range grp.Occurrences {
		if occ[dict.TagDefaultVerIndic] != "Y" || occ[dict.TagMsgDirection] != "S" {
			continue
		}
		refMsgType, ok := occ[dict.TagRefMsgType]
		if !ok {
			continue
		}
		applVerID, ok := occ[dict.TagDefaultApplVerID]
		if !ok {
			continue
		}
		if v, err := fixver.ApplVerIDToMessageVersion(applVerID); err == nil {
			s.codec.SetDefaultMessageTypeVersion(refMsgType, v)
		}
	}
}

// Send stamps msg with the next outbound MsgSeqNum, SenderCompID,
// TargetCompID, and SendingTime, then serializes and writes it (spec
// §4.2 "send").
func (s *Session) Send(msg *message.Message, verOverride *fixver.MessageVersion) error {
	if s.outboundSeqNum.Load() == math.MaxUint64 {
		s.terminate(ReasonSequenceNumberOverflowError, "outbound MsgSeqNum would overflow")
		return ErrSequenceNumberOverflow
	}
	version := s.defaultOutboundVersion()
	if verOverride != nil {
		version = *verOverride
	}
	msg.SetInt(dict.TagMsgSeqNum, int64(s.outboundSeqNum.Add(1)-1))
	msg.SetUTCTimestamp(dict.TagSendingTime, timeNow())
	return s.writeMessage(msg, version)
}

func (s *Session) defaultOutboundVersion() fixver.MessageVersion {
	if s.cfg.FIXVersion.IsFIXT() {
		return s.cfg.DefaultMessageVersion
	}
	return fixver.DefaultMessageVersion(s.cfg.FIXVersion)
}

func (s *Session) writeMessage(msg *message.Message, version fixver.MessageVersion) error {
	var buf bytes.Buffer
	if err := s.codec.Serialize(msg, s.cfg.FIXVersion, s.cfg.SenderCompID, s.cfg.TargetCompID, version, &buf); err != nil {
		return err
	}
	if _, err := s.transport.Write(buf.Bytes()); err != nil {
		s.terminate(ReasonSocketWriteError, err.Error())
		return err
	}
	s.metrics.IncMessagesSent(msg.MsgType)
	s.armHeartbeat()
	return nil
}

// SendResendResponse answers a peer's ResendRequest (spec §4.2
// "send_resend_response"): administrative messages are gap-filled,
// business messages replayed with PossDupFlag=Y and OrigSendingTime
// preserved.
func (s *Session) SendResendResponse(items []ResendItem) error {
	for _, item := range items {
		if item.Msg == nil {
			gf := message.New(MsgTypeSequenceReset)
			gf.SetBool(dict.TagGapFillFlag, true)
			gf.SetInt(dict.TagNewSeqNo, int64(item.GapEndSeqNum))
			if err := s.Send(gf, nil); err != nil {
				return err
			}
			continue
		}
		item.Msg.SetBool(dict.TagPossDupFlag, true)
		if orig, ok := item.Msg.Get(dict.TagSendingTime); ok {
			item.Msg.Set(dict.TagOrigSendTime, orig)
		}
		if err := s.writeMessage(item.Msg, item.Msg.Meta.Version); err != nil {
			return err
		}
	}
	return nil
}

// ApproveNewConnection is the acceptor-side host callback approving a
// pending Logon (spec §4.2 "approve_new_connection").
func (s *Session) ApproveNewConnection(reply *LogonReply, expectedInboundSeq uint64) {
	naturalNext := s.pendingLogonSeqNum + 1
	if expectedInboundSeq > 0 {
		s.inboundExpected.Store(expectedInboundSeq)
	} else {
		expectedInboundSeq = naturalNext
		s.inboundExpected.Store(naturalNext)
	}
	s.apply(EventHostApprove)
	if reply != nil && reply.Msg != nil {
		maxVersion := fixver.MaxMessageVersion(s.cfg.FIXVersion)
		_ = s.Send(reply.Msg, &maxVersion)
	}
	if expectedInboundSeq < naturalNext {
		// A lower expected_inbound_seq than the peer's declared Logon seq
		// means a gap the acceptor must request replay for immediately.
		s.sendResendRequest(expectedInboundSeq, 0)
	}
}

// RejectNewConnection is the acceptor-side refusal (spec §4.2
// "reject_new_connection").
func (s *Session) RejectNewConnection(text string) {
	s.pendingLogoutText = text
	s.apply(EventHostReject)
}

// Logout begins orderly shutdown (spec §4.2 "logout").
func (s *Session) Logout() {
	s.apply(EventHostLogout)
}

// sendHeartbeat sends Heartbeat, echoing testReqID when replying to a
// TestRequest (empty string otherwise, spec §4.2 "Timers" / "Administrative
// auto-replies").
func (s *Session) sendHeartbeat(testReqID string) {
	hb := message.New(MsgTypeHeartbeat)
	if testReqID != "" {
		hb.Set(dict.TagTestReqID, testReqID)
	}
	_ = s.Send(hb, nil)
}

func (s *Session) sendHeartbeatLikeTestRequest(testReqID string) {
	tr := message.New(MsgTypeTestRequest)
	tr.Set(dict.TagTestReqID, testReqID)
	_ = s.Send(tr, nil)
}

func (s *Session) sendResendRequest(begin uint64, end uint64) {
	rr := message.New(MsgTypeResendRequest)
	rr.SetInt(dict.TagBeginSeqNo, int64(begin))
	rr.SetInt(dict.TagEndSeqNo, int64(end))
	_ = s.Send(rr, nil)
}

func (s *Session) sendReject(refSeqNum, refTagID uint64, refMsgType, reason, text string) {
	rej := message.New(MsgTypeReject)
	rej.SetInt(dict.TagRefSeqNum, int64(refSeqNum))
	if refTagID != 0 {
		rej.SetInt(dict.TagRefTagID, int64(refTagID))
	}
	if refMsgType != "" {
		rej.Set(dict.TagRefMsgType, refMsgType)
	}
	if reason != "" {
		rej.Set(dict.TagSessionRejRsn, reason)
	}
	if text != "" {
		rej.Set(dict.TagText, text)
	}
	_ = s.Send(rej, nil)
	s.sink.MessageRejected(rej)
}

func (s *Session) sendBusinessMessageReject(refMsgType, reason, text string) {
	bmr := message.New(MsgTypeBusinessMessageReject)
	bmr.Set(dict.TagRefMsgType, refMsgType)
	bmr.Set(dict.TagBusinessRejRsn, reason)
	if text != "" {
		bmr.Set(dict.TagText, text)
	}
	_ = s.Send(bmr, nil)
	s.sink.MessageRejected(bmr)
}

// terminate drives the FSM's error-logout path: stash the reason/detail
// the FSM's ActionEmitConnectionTerminated will consume, then apply the
// session-rule-error event.
func (s *Session) terminate(reason TerminatedReason, detail string) {
	s.pendingTerminationReason = reason
	s.pendingTerminationDetail = detail
	s.pendingLogoutText = detail
	s.apply(EventSessionRuleError)
}

func (s *Session) armHeartbeat() {
	if s.heartBtInt <= 0 {
		return
	}
	s.heartbeatAt = timeNow().Add(s.heartBtInt)
}

// apply runs the FSM and executes the returned actions, mirroring the
// teacher's applyFSMEvent/executeFSMActions/executeAction dispatch
// (internal/bfd/session.go).
func (s *Session) apply(event Event) {
	result := ApplyEvent(s.Status(), event)
	if result.Changed {
		s.status.Store(uint32(result.NewStatus))
		s.logger.Info("session status changed",
			slog.String("old_status", result.OldStatus.String()),
			slog.String("new_status", result.NewStatus.String()),
		)
		oldLabel := result.OldStatus.String()
		if result.OldStatus == StatusNone {
			oldLabel = "" // a new session has no prior state gauge to decrement
		}
		s.metrics.RecordSessionTransition(oldLabel, result.NewStatus.String())
	}
	for _, action := range result.Actions {
		s.executeAction(action)
	}
}

func (s *Session) executeAction(action Action) {
	now := timeNow()
	switch action {
	case ActionSendLogon:
		logon := message.New(MsgTypeLogon)
		logon.SetInt(dict.TagHeartBtInt, int64(s.heartBtInt/time.Second))
		logon.Set(dict.TagEncryptMethod, "0")
		if s.cfg.FIXVersion.IsFIXT() {
			if applVerID, err := fixver.MessageVersionToApplVerID(s.cfg.DefaultMessageVersion); err == nil {
				logon.Set(dict.TagDefaultApplVerID, applVerID)
			}
		}
		_ = s.Send(logon, nil)
	case ActionSendLogonReply:
		// Handled directly by ApproveNewConnection (it needs the host's
		// reply payload, which the FSM action alone cannot carry).
	case ActionSendLogout:
		lo := message.New(MsgTypeLogout)
		if s.pendingLogoutText != "" {
			lo.Set(dict.TagText, s.pendingLogoutText)
		}
		_ = s.Send(lo, nil)
	case ActionSendLogoutIfText:
		if s.pendingLogoutText != "" {
			lo := message.New(MsgTypeLogout)
			lo.Set(dict.TagText, s.pendingLogoutText)
			_ = s.Send(lo, nil)
		}
	case ActionArmLogonTimer:
		s.stateAt = now.Add(logonNeverReceivedTO)
	case ActionCancelLogonTimer:
		s.stateAt = time.Time{}
	case ActionInstallSessionTimers:
		s.armHeartbeat()
		s.testReqAt = now.Add(s.heartBtInt + inboundTestRequestPadding)
	case ActionArmLogoutNoResponseTimer:
		s.stateAt = now.Add(logoutTimeout)
	case ActionArmLogoutNoHangupTimer:
		s.stateAt = now.Add(logoutHangupTimeout)
	case ActionArmGapWaitTimer:
		s.stateAt = now.Add(gapWaitTimeout)
	case ActionBlockInbound, ActionUnblockInbound:
		// No-op at the Session level: the engine inspects Status() to
		// decide whether to keep reading this connection's socket (spec
		// §4.2 "block further inbound parsing").
	case ActionMaybeSendResendRequest:
		// Handled directly by ApproveNewConnection.
	case ActionDisconnect:
		// No-op at the Session level: the engine closes the socket once
		// it observes StatusTerminated.
	case ActionEmitConnectionAccepted:
		s.sink.ConnectionAccepted()
	case ActionEmitConnectionLoggingOn:
		// Handled directly in processMessage (it needs the Logon message
		// itself, which the FSM action alone cannot carry).
	case ActionEmitSessionEstablished:
		s.sink.SessionEstablished()
	case ActionEmitConnectionTerminated:
		reason := s.pendingTerminationReason
		if reason == ReasonUnspecified {
			reason = ReasonCleanTermination
		}
		s.metrics.RecordTermination(reason.String())
		s.sink.ConnectionTerminated(reason, s.pendingTerminationDetail)
	}
}

// timeNow is a seam for deterministic tests; production code always
// calls time.Now.
var timeNow = time.Now
