package session

import (
	"github.com/fixdaemon/gofix/internal/fix/codec"
	"github.com/fixdaemon/gofix/internal/fix/message"
)

// Transport abstracts writing a fully-serialized message to the wire.
// This mirrors the teacher's PacketSender interface
// (internal/bfd/session.go), letting Session be tested without a real
// socket.
type Transport interface {
	Write(b []byte) (int, error)
}

// EventSink receives every host-visible event a Session produces (spec
// §6 "Event taxonomy", restricted to the subset a Session -- as opposed
// to a listener -- can emit). The engine implements this to attach the
// connection token and forward onto the host event channel.
type EventSink interface {
	ConnectionAccepted()
	ConnectionLoggingOn(logon *message.Message)
	SessionEstablished()
	ConnectionTerminated(reason TerminatedReason, detail string)
	MessageReceived(msg *message.Message)
	MessageReceivedGarbled(perr *codec.ParseError)
	MessageReceivedDuplicate(msg *message.Message)
	MessageRejected(msg *message.Message)
	ResendRequested(beginSeqNum, endSeqNum uint64)
	SequenceResetResetHasNoEffect()
	SequenceResetResetInThePast()
}
