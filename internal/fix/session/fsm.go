// Package session implements the FIX session layer on top of the codec
// (spec §4.2 "Session"): handshake, sequence-number discipline,
// resend/gap-fill, heartbeat/test-request timers, and orderly logout.
package session

// This file is the pure session-lifecycle FSM: a side-effect-free
// function over a package-level transition table, following the same
// shape as the teacher's BFD FSM (internal/bfd/fsm.go). The handshake,
// logout, and gap-wait states/transitions are grounded directly on spec
// §4.2's prose ("Handshake (initiator)", "Handshake (acceptor)", and the
// "Timers" section's logout-while-gapped rule); there is no RFC
// pseudocode to transcribe here, so the table is authored directly from
// that prose rather than copied from a reference table.
//
// As in the teacher's FSM, Action values carry no parameters: the
// Session already holds whatever context (termination reason, logout
// text, negotiated timers) a given action needs by the time it executes
// the action the FSM returned.

// Status is a session-lifecycle state.
type Status uint8

const (
	// StatusNone is the zero value, used only as the FSM's starting key
	// before a connection's first event (EventConnectedInitiator /
	// EventConnectedAcceptor) arrives.
	StatusNone Status = iota

	// StatusSendingLogon is the initiator state between sending Logon and
	// receiving the peer's reply (spec §4.2 "Handshake (initiator)" step 1).
	StatusSendingLogon

	// StatusReceivingLogon is the acceptor state between socket accept and
	// the first inbound message, guarded by the 10s LogonNeverReceived
	// timer (spec §4.2 "Handshake (acceptor)" step 1).
	StatusReceivingLogon

	// StatusApprovingLogon is the acceptor state after receiving Logon,
	// blocked on the host's approve_new_connection/reject_new_connection
	// call; inbound parsing is backpressured (spec §4.2 "Handshake
	// (acceptor)" step 2).
	StatusApprovingLogon

	// StatusEstablished is the steady-state session (spec §4.2 handshake
	// step 2 "transition to Established").
	StatusEstablished

	// StatusLoggingOut covers both host-initiated and peer-initiated
	// orderly shutdown while waiting for the corresponding reply/hangup
	// (spec §4.2 "Timers": Logout, Logout-response).
	StatusLoggingOut

	// StatusLoggingOutGapped is StatusLoggingOut's variant entered when a
	// Logout arrives while inbound has an outstanding gap (spec §4.2
	// "Timers": Logout-while-gapped, "enter LoggingOut(ResendRequesting(Remote))").
	StatusLoggingOutGapped

	// StatusTerminated is the terminal state; the connection is closed and
	// no further events are processed.
	StatusTerminated
)

var statusNames = [...]string{
	StatusNone:             "None",
	StatusSendingLogon:     "SendingLogon",
	StatusReceivingLogon:   "ReceivingLogon",
	StatusApprovingLogon:   "ApprovingLogon",
	StatusEstablished:      "Established",
	StatusLoggingOut:       "LoggingOut",
	StatusLoggingOutGapped: "LoggingOutGapped",
	StatusTerminated:       "Terminated",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// Event is a session FSM event.
type Event uint8

const (
	// EventConnectedInitiator fires once for an initiator connection, the
	// moment its socket is ready to write (spec §4.2 handshake step 1).
	EventConnectedInitiator Event = iota

	// EventConnectedAcceptor fires once for an accepted connection (spec
	// §4.2 "Handshake (acceptor)" step 1).
	EventConnectedAcceptor

	// EventLogonReceived is the first inbound message and it is a Logon.
	EventLogonReceived

	// EventNonLogonReceived is any inbound message, first or otherwise,
	// arriving before the session is Established, that is not a Logon
	// (spec §4.2 "Any non-Logon message before Established").
	EventNonLogonReceived

	// EventLogonTimerExpired is the acceptor's 10s LogonNeverReceived
	// timer firing.
	EventLogonTimerExpired

	// EventHostApprove is the host calling approve_new_connection.
	EventHostApprove

	// EventHostReject is the host calling reject_new_connection.
	EventHostReject

	// EventSessionRuleError is any Established-state session-rule
	// violation that mandates error logout (spec §7 item 4): identity
	// mismatch, too-low inbound seq, negative HeartBtInt, sequence
	// overflow, BeginString mismatch, ResendRequest loop.
	EventSessionRuleError

	// EventHostLogout is the host calling logout().
	EventHostLogout

	// EventPeerLogoutReceived is an inbound Logout with no outstanding
	// inbound gap.
	EventPeerLogoutReceived

	// EventPeerLogoutReceivedGapped is an inbound Logout while inbound has
	// an outstanding gap (spec §4.2 "Logout-while-gapped").
	EventPeerLogoutReceivedGapped

	// EventGapFilled is the inbound gap closing while in
	// StatusLoggingOutGapped.
	EventGapFilled

	// EventGapWaitTimeout is the 10s logout-while-gapped timer expiring
	// before the gap closed; the session responds to the Logout anyway.
	EventGapWaitTimeout

	// EventLogoutNoResponseTimeout is the 10s timer after we sent Logout
	// expiring with no reply (spec §4.2 "Logout" timer).
	EventLogoutNoResponseTimeout

	// EventLogoutNoHangupTimeout is the 10s timer after we replied to a
	// peer Logout expiring with the peer still connected (spec §4.2
	// "Logout-response" timer).
	EventLogoutNoHangupTimeout

	// EventPeerSocketClosed is the peer closing the TCP connection.
	EventPeerSocketClosed

	// EventTransportError is a socket read/write failure (spec §7 item 5).
	EventTransportError

	// EventWriteBlockedTimeout is the 10s write-blocked timer expiring
	// (spec §4.2 "Write-blocked" timer).
	EventWriteBlockedTimeout
)

var eventNames = [...]string{
	EventConnectedInitiator:       "ConnectedInitiator",
	EventConnectedAcceptor:        "ConnectedAcceptor",
	EventLogonReceived:            "LogonReceived",
	EventNonLogonReceived:         "NonLogonReceived",
	EventLogonTimerExpired:        "LogonTimerExpired",
	EventHostApprove:              "HostApprove",
	EventHostReject:               "HostReject",
	EventSessionRuleError:         "SessionRuleError",
	EventHostLogout:               "HostLogout",
	EventPeerLogoutReceived:       "PeerLogoutReceived",
	EventPeerLogoutReceivedGapped: "PeerLogoutReceivedGapped",
	EventGapFilled:                "GapFilled",
	EventGapWaitTimeout:           "GapWaitTimeout",
	EventLogoutNoResponseTimeout:  "LogoutNoResponseTimeout",
	EventLogoutNoHangupTimeout:    "LogoutNoHangupTimeout",
	EventPeerSocketClosed:         "PeerSocketClosed",
	EventTransportError:           "TransportError",
	EventWriteBlockedTimeout:      "WriteBlockedTimeout",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "Unknown"
}

// Action is a side-effect the Session must execute after a transition.
// As in the teacher's FSM, the FSM itself never carries action
// parameters; Session already has whatever context (termination reason,
// logout text) the action needs.
type Action uint8

const (
	ActionSendLogon Action = iota + 1
	ActionSendLogonReply
	ActionSendLogout
	ActionSendLogoutIfText
	ActionArmLogonTimer
	ActionCancelLogonTimer
	ActionInstallSessionTimers
	ActionArmLogoutNoResponseTimer
	ActionArmLogoutNoHangupTimer
	ActionArmGapWaitTimer
	ActionBlockInbound
	ActionUnblockInbound
	ActionMaybeSendResendRequest
	ActionDisconnect
	ActionEmitConnectionAccepted
	ActionEmitConnectionLoggingOn
	ActionEmitSessionEstablished
	ActionEmitConnectionTerminated
)

var actionNames = [...]string{
	ActionSendLogon:                "SendLogon",
	ActionSendLogonReply:           "SendLogonReply",
	ActionSendLogout:               "SendLogout",
	ActionSendLogoutIfText:         "SendLogoutIfText",
	ActionArmLogonTimer:            "ArmLogonTimer",
	ActionCancelLogonTimer:         "CancelLogonTimer",
	ActionInstallSessionTimers:     "InstallSessionTimers",
	ActionArmLogoutNoResponseTimer: "ArmLogoutNoResponseTimer",
	ActionArmLogoutNoHangupTimer:   "ArmLogoutNoHangupTimer",
	ActionArmGapWaitTimer:          "ArmGapWaitTimer",
	ActionBlockInbound:             "BlockInbound",
	ActionUnblockInbound:           "UnblockInbound",
	ActionMaybeSendResendRequest:   "MaybeSendResendRequest",
	ActionDisconnect:               "Disconnect",
	ActionEmitConnectionAccepted:   "EmitConnectionAccepted",
	ActionEmitConnectionLoggingOn:  "EmitConnectionLoggingOn",
	ActionEmitSessionEstablished:   "EmitSessionEstablished",
	ActionEmitConnectionTerminated: "EmitConnectionTerminated",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "Unknown"
}

type statusEvent struct {
	status Status
	event  Event
}

type transition struct {
	newStatus Status
	actions   []Action
}

// Result is the outcome of applying an event to the FSM.
type Result struct {
	OldStatus Status
	NewStatus Status
	Actions   []Action
	Changed   bool
}

//nolint:gochecknoglobals // transition table is intentionally package-level, as in the teacher's FSM.
var fsmTable = map[statusEvent]transition{
	{StatusNone, EventConnectedInitiator}: {
		newStatus: StatusSendingLogon,
		actions:   []Action{ActionSendLogon},
	},
	{StatusNone, EventConnectedAcceptor}: {
		newStatus: StatusReceivingLogon,
		actions:   []Action{ActionEmitConnectionAccepted, ActionArmLogonTimer},
	},

	// --- initiator handshake (spec §4.2 "Handshake (initiator)") ---
	{StatusSendingLogon, EventLogonReceived}: {
		newStatus: StatusEstablished,
		actions:   []Action{ActionInstallSessionTimers, ActionEmitSessionEstablished},
	},
	{StatusSendingLogon, EventNonLogonReceived}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionSendLogout, ActionDisconnect, ActionEmitConnectionTerminated},
	},

	// --- acceptor handshake (spec §4.2 "Handshake (acceptor)") ---
	{StatusReceivingLogon, EventLogonReceived}: {
		newStatus: StatusApprovingLogon,
		actions:   []Action{ActionCancelLogonTimer, ActionEmitConnectionLoggingOn, ActionBlockInbound},
	},
	{StatusReceivingLogon, EventNonLogonReceived}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
	},
	{StatusReceivingLogon, EventLogonTimerExpired}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
	},
	{StatusApprovingLogon, EventHostApprove}: {
		newStatus: StatusEstablished,
		actions: []Action{
			ActionInstallSessionTimers, ActionUnblockInbound,
			ActionSendLogonReply, ActionMaybeSendResendRequest,
			ActionEmitSessionEstablished,
		},
	},
	{StatusApprovingLogon, EventHostReject}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionSendLogoutIfText, ActionDisconnect, ActionEmitConnectionTerminated},
	},

	// --- established-state exits ---
	{StatusEstablished, EventSessionRuleError}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionSendLogout, ActionDisconnect, ActionEmitConnectionTerminated},
	},
	{StatusEstablished, EventHostLogout}: {
		newStatus: StatusLoggingOut,
		actions:   []Action{ActionSendLogout, ActionArmLogoutNoResponseTimer},
	},
	{StatusEstablished, EventPeerLogoutReceived}: {
		newStatus: StatusLoggingOut,
		actions:   []Action{ActionSendLogout, ActionArmLogoutNoHangupTimer},
	},
	{StatusEstablished, EventPeerLogoutReceivedGapped}: {
		newStatus: StatusLoggingOutGapped,
		actions:   []Action{ActionArmGapWaitTimer},
	},
	{StatusEstablished, EventTransportError}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
	},

	// --- logout-while-gapped (spec §4.2 "Logout-while-gapped") ---
	{StatusLoggingOutGapped, EventGapFilled}: {
		newStatus: StatusLoggingOut,
		actions:   []Action{ActionSendLogout, ActionArmLogoutNoHangupTimer},
	},
	{StatusLoggingOutGapped, EventGapWaitTimeout}: {
		newStatus: StatusLoggingOut,
		actions:   []Action{ActionSendLogout, ActionArmLogoutNoHangupTimer},
	},
	{StatusLoggingOutGapped, EventTransportError}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
	},

	// --- logging-out terminal transitions ---
	{StatusLoggingOut, EventPeerLogoutReceived}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
	},
	{StatusLoggingOut, EventPeerSocketClosed}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
	},
	{StatusLoggingOut, EventLogoutNoResponseTimeout}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
	},
	{StatusLoggingOut, EventLogoutNoHangupTimeout}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
	},
	{StatusLoggingOut, EventTransportError}: {
		newStatus: StatusTerminated,
		actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
	},
}

// writeBlockedTransitions applies EventWriteBlockedTimeout uniformly
// across every non-terminal status (spec §4.2 "Write-blocked" timer
// applies regardless of session status).
func init() {
	for _, s := range []Status{
		StatusSendingLogon, StatusReceivingLogon, StatusApprovingLogon,
		StatusEstablished, StatusLoggingOut, StatusLoggingOutGapped,
	} {
		fsmTable[statusEvent{s, EventWriteBlockedTimeout}] = transition{
			newStatus: StatusTerminated,
			actions:   []Action{ActionDisconnect, ActionEmitConnectionTerminated},
		}
	}

	// EventSessionRuleError can in practice fire before Established too
	// (e.g. a negative HeartBtInt discovered while negotiating a Logon
	// reply); every pre-Established status gets the same error-logout
	// transition as Established itself.
	for _, s := range []Status{StatusSendingLogon, StatusReceivingLogon, StatusApprovingLogon} {
		fsmTable[statusEvent{s, EventSessionRuleError}] = transition{
			newStatus: StatusTerminated,
			actions:   []Action{ActionSendLogout, ActionDisconnect, ActionEmitConnectionTerminated},
		}
	}
}

// ApplyEvent applies event to currentStatus and returns the outcome. It
// is a pure function: the caller executes the returned Actions. An
// (status, event) pair absent from the table is silently ignored,
// mirroring the teacher's FSM (internal/bfd/fsm.go ApplyEvent).
func ApplyEvent(currentStatus Status, event Event) Result {
	tr, ok := fsmTable[statusEvent{currentStatus, event}]
	if !ok {
		return Result{OldStatus: currentStatus, NewStatus: currentStatus}
	}
	return Result{
		OldStatus: currentStatus,
		NewStatus: tr.newStatus,
		Actions:   tr.actions,
		Changed:   currentStatus != tr.newStatus,
	}
}
