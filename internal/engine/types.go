package engine

import (
	"github.com/fixdaemon/gofix/internal/fix/codec"
	"github.com/fixdaemon/gofix/internal/fix/fixver"
	"github.com/fixdaemon/gofix/internal/fix/message"
	"github.com/fixdaemon/gofix/internal/fix/session"
)

// ConnConfig is the per-connection configuration supplied to AddConnection
// (spec §6 "Per-connection at add_connection").
type ConnConfig struct {
	FIXVersion            fixver.FIXVersion
	DefaultMessageVersion fixver.MessageVersion
	SenderCompID          string
	TargetCompID          string
	Address               string
}

// ListenerConfig is the per-listener configuration supplied to AddListener
// (spec §6 "Per-listener at add_listener").
type ListenerConfig struct {
	SenderCompID string
	Address      string
}

// command is the unexported marker every control message implements, the
// same closed-set-of-structs shape the FSM's Action enum uses for a fixed
// taxonomy, applied here to spec §6's "Control messages (host -> worker)"
// list.
type command interface{ isCommand() }

// newConnectionCmd implements add_connection (spec §4.3).
type newConnectionCmd struct {
	cfg   ConnConfig
	reply chan<- newConnectionResult
}

type newConnectionResult struct {
	token Token
	err   error
}

func (newConnectionCmd) isCommand() {}

// newListenerCmd implements add_listener (spec §4.3).
type newListenerCmd struct {
	cfg   ListenerConfig
	reply chan<- newListenerResult
}

type newListenerResult struct {
	token Token
	err   error
}

func (newListenerCmd) isCommand() {}

// sendMessageCmd implements send_message (spec §4.2 "send").
type sendMessageCmd struct {
	conn    Token
	version *fixver.MessageVersion
	msg     *message.Message
	reply   chan<- error
}

func (sendMessageCmd) isCommand() {}

// resendMessagesCmd implements send_resend_response (spec §4.2).
type resendMessagesCmd struct {
	conn  Token
	items []session.ResendItem
	reply chan<- error
}

func (resendMessagesCmd) isCommand() {}

// approveNewConnectionCmd implements approve_new_connection (spec §4.2).
type approveNewConnectionCmd struct {
	conn               Token
	reply              *session.LogonReply
	expectedInboundSeq uint64
}

func (approveNewConnectionCmd) isCommand() {}

// rejectNewConnectionCmd implements reject_new_connection (spec §4.2).
type rejectNewConnectionCmd struct {
	conn Token
	text string
}

func (rejectNewConnectionCmd) isCommand() {}

// logoutCmd implements logout() (spec §4.2).
type logoutCmd struct {
	conn Token
}

func (logoutCmd) isCommand() {}

// shutdownCmd implements the Shutdown control message (spec §5
// "Cancellation").
type shutdownCmd struct{}

func (shutdownCmd) isCommand() {}

// listSessionsCmd is a query command backing the control HTTP surface's
// session listing; it has no analog in spec §6's control-message list
// since that list predates the control API expansion, but it follows the
// same reply-channel shape as every other command here.
type listSessionsCmd struct {
	reply chan<- []SessionInfo
}

func (listSessionsCmd) isCommand() {}

// SessionInfo is a point-in-time snapshot of one connection's session,
// returned by Engine.Sessions for the control HTTP surface.
type SessionInfo struct {
	Conn         Token
	Listener     Token
	SenderCompID string
	TargetCompID string
	Status       session.Status
}

// Event is the closed set of host-visible notifications the worker
// produces (spec §6 "Event taxonomy"). Unlike the teacher's single
// StateChange struct -- BFD has exactly one event shape, a state
// transition -- this taxonomy has seventeen semantically distinct members,
// so each is its own struct carrying only the fields that member needs,
// joined by an unexported marker method the way command does above.
type Event interface{ isEngineEvent() }

type ConnectionFailed struct {
	Conn  Token
	Err   error
}

type ConnectionSucceeded struct{ Conn Token }

type ConnectionTerminated struct {
	Conn   Token
	Reason session.TerminatedReason
	Detail string
}

type ConnectionDropped struct {
	Listener Token
	Addr     string
}

type ConnectionAccepted struct {
	Listener Token
	Conn     Token
	Addr     string
}

type ConnectionLoggingOn struct {
	Listener Token
	Conn     Token
	Logon    *message.Message
}

type SessionEstablished struct{ Conn Token }

type ListenerFailed struct {
	Listener Token
	Err      error
}

type ListenerAcceptFailed struct {
	Listener Token
	Err      error
}

type MessageReceived struct {
	Conn Token
	Msg  *message.Message
}

type MessageReceivedGarbled struct {
	Conn  Token
	Err   *codec.ParseError
}

type MessageReceivedDuplicate struct {
	Conn Token
	Msg  *message.Message
}

type MessageRejected struct {
	Conn Token
	Msg  *message.Message
}

type ResendRequested struct {
	Conn            Token
	BeginSeqNum     uint64
	EndSeqNumExcl   uint64
}

type SequenceResetResetHasNoEffect struct{ Conn Token }

type SequenceResetResetInThePast struct{ Conn Token }

type FatalError struct {
	Description string
	Err         error
}

func (ConnectionFailed) isEngineEvent()               {}
func (ConnectionSucceeded) isEngineEvent()             {}
func (ConnectionTerminated) isEngineEvent()            {}
func (ConnectionDropped) isEngineEvent()               {}
func (ConnectionAccepted) isEngineEvent()              {}
func (ConnectionLoggingOn) isEngineEvent()             {}
func (SessionEstablished) isEngineEvent()              {}
func (ListenerFailed) isEngineEvent()                  {}
func (ListenerAcceptFailed) isEngineEvent()            {}
func (MessageReceived) isEngineEvent()                 {}
func (MessageReceivedGarbled) isEngineEvent()          {}
func (MessageReceivedDuplicate) isEngineEvent()        {}
func (MessageRejected) isEngineEvent()                 {}
func (ResendRequested) isEngineEvent()                 {}
func (SequenceResetResetHasNoEffect) isEngineEvent()   {}
func (SequenceResetResetInThePast) isEngineEvent()     {}
func (FatalError) isEngineEvent()                      {}
