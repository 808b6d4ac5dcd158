package session

import "github.com/fixdaemon/gofix/internal/fix/message"

// MsgType wire values for the administrative message types this engine
// speaks (spec §6 "Supported ... Administrative message types").
const (
	MsgTypeHeartbeat              = "0"
	MsgTypeTestRequest            = "1"
	MsgTypeResendRequest          = "2"
	MsgTypeReject                 = "3"
	MsgTypeSequenceReset          = "4"
	MsgTypeLogout                 = "5"
	MsgTypeLogon                  = "A"
	MsgTypeBusinessMessageReject  = "j"
)

// Role distinguishes which side of the handshake a Session plays (spec
// §4.2 "Handshake (initiator)" vs "Handshake (acceptor)").
type Role uint8

const (
	RoleInitiator Role = iota + 1
	RoleAcceptor
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "Initiator"
	case RoleAcceptor:
		return "Acceptor"
	default:
		return "Unknown"
	}
}

// TerminatedReason is the ConnectionTerminatedReason taxonomy named in
// spec §6 "Event taxonomy" / §7 "Error handling design".
type TerminatedReason uint8

const (
	ReasonUnspecified TerminatedReason = iota
	ReasonCleanTermination
	ReasonLogonNotFirstMessageError
	ReasonLogonNeverReceivedError
	ReasonRejectedByHost
	ReasonInboundMsgSeqNumLowerThanExpectedError
	ReasonInboundResendRequestLoopError
	ReasonBeginStrWrongError
	ReasonCompIDProblemError
	ReasonNegativeHeartBtIntError
	ReasonSequenceNumberOverflowError
	ReasonTestRequestNotRespondedError
	ReasonLogoutNoResponseError
	ReasonLogoutNoHangUpError
	ReasonSocketReadError
	ReasonSocketWriteError
	ReasonSocketNotWritableTimeoutError
)

var terminatedReasonNames = [...]string{
	ReasonUnspecified:                             "Unspecified",
	ReasonCleanTermination:                        "CleanTermination",
	ReasonLogonNotFirstMessageError:                "LogonNotFirstMessageError",
	ReasonLogonNeverReceivedError:                  "LogonNeverReceivedError",
	ReasonRejectedByHost:                           "RejectedByHost",
	ReasonInboundMsgSeqNumLowerThanExpectedError:   "InboundMsgSeqNumLowerThanExpectedError",
	ReasonInboundResendRequestLoopError:            "InboundResendRequestLoopError",
	ReasonBeginStrWrongError:                       "BeginStrWrongError",
	ReasonCompIDProblemError:                       "CompIDProblemError",
	ReasonNegativeHeartBtIntError:                  "NegativeHeartBtIntError",
	ReasonSequenceNumberOverflowError:              "SequenceNumberOverflowError",
	ReasonTestRequestNotRespondedError:              "TestRequestNotRespondedError",
	ReasonLogoutNoResponseError:                    "LogoutNoResponseError",
	ReasonLogoutNoHangUpError:                      "LogoutNoHangUpError",
	ReasonSocketReadError:                          "SocketReadError",
	ReasonSocketWriteError:                         "SocketWriteError",
	ReasonSocketNotWritableTimeoutError:            "SocketNotWritableTimeoutError",
}

func (r TerminatedReason) String() string {
	if int(r) < len(terminatedReasonNames) {
		return terminatedReasonNames[r]
	}
	return "Unknown"
}

// ResendItem is one entry of the ordered list the host furnishes to
// send_resend_response (spec §4.2 "send_resend_response"): either a
// concrete message to replay, or a gap to fill administratively.
type ResendItem struct {
	// Msg is set for a replayed message; nil means Gap.
	Msg *message.Message

	// GapBeginSeqNum/GapEndSeqNum describe an administrative gap-fill
	// range [begin, end) when Msg is nil.
	GapBeginSeqNum uint64
	GapEndSeqNum   uint64
}

// LogonReply carries the negotiated parameters the host's
// approve_new_connection call installs (spec §4.2 "Handshake (acceptor)"
// step 3).
type LogonReply struct {
	Msg *message.Message
}
