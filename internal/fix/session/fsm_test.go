package session_test

import (
	"testing"

	"github.com/fixdaemon/gofix/internal/fix/session"
)

// TestFSMTransitionTable exercises the session lifecycle FSM against the
// handshake/logout prose this engine's session layer is built from.
func TestFSMTransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      session.Status
		event       session.Event
		wantStatus  session.Status
		wantChanged bool
		wantActions []session.Action
	}{
		{
			name:        "None+ConnectedInitiator->SendingLogon",
			status:      session.StatusNone,
			event:       session.EventConnectedInitiator,
			wantStatus:  session.StatusSendingLogon,
			wantChanged: true,
			wantActions: []session.Action{session.ActionSendLogon},
		},
		{
			name:        "None+ConnectedAcceptor->ReceivingLogon",
			status:      session.StatusNone,
			event:       session.EventConnectedAcceptor,
			wantStatus:  session.StatusReceivingLogon,
			wantChanged: true,
			wantActions: []session.Action{session.ActionEmitConnectionAccepted, session.ActionArmLogonTimer},
		},
		{
			name:        "SendingLogon+LogonReceived->Established",
			status:      session.StatusSendingLogon,
			event:       session.EventLogonReceived,
			wantStatus:  session.StatusEstablished,
			wantChanged: true,
			wantActions: []session.Action{session.ActionInstallSessionTimers, session.ActionEmitSessionEstablished},
		},
		{
			name:        "SendingLogon+NonLogonReceived->Terminated",
			status:      session.StatusSendingLogon,
			event:       session.EventNonLogonReceived,
			wantStatus:  session.StatusTerminated,
			wantChanged: true,
			wantActions: []session.Action{session.ActionSendLogout, session.ActionDisconnect, session.ActionEmitConnectionTerminated},
		},
		{
			name:        "ReceivingLogon+LogonReceived->ApprovingLogon",
			status:      session.StatusReceivingLogon,
			event:       session.EventLogonReceived,
			wantStatus:  session.StatusApprovingLogon,
			wantChanged: true,
			wantActions: []session.Action{session.ActionCancelLogonTimer, session.ActionEmitConnectionLoggingOn, session.ActionBlockInbound},
		},
		{
			name:        "ReceivingLogon+LogonTimerExpired->Terminated",
			status:      session.StatusReceivingLogon,
			event:       session.EventLogonTimerExpired,
			wantStatus:  session.StatusTerminated,
			wantChanged: true,
			wantActions: []session.Action{session.ActionDisconnect, session.ActionEmitConnectionTerminated},
		},
		{
			name:       "ApprovingLogon+HostApprove->Established",
			status:     session.StatusApprovingLogon,
			event:      session.EventHostApprove,
			wantStatus: session.StatusEstablished,
			wantChanged: true,
			wantActions: []session.Action{
				session.ActionInstallSessionTimers, session.ActionUnblockInbound,
				session.ActionSendLogonReply, session.ActionMaybeSendResendRequest,
				session.ActionEmitSessionEstablished,
			},
		},
		{
			name:        "Established+PeerLogoutReceivedGapped->LoggingOutGapped",
			status:      session.StatusEstablished,
			event:       session.EventPeerLogoutReceivedGapped,
			wantStatus:  session.StatusLoggingOutGapped,
			wantChanged: true,
			wantActions: []session.Action{session.ActionArmGapWaitTimer},
		},
		{
			name:        "LoggingOutGapped+GapWaitTimeout->LoggingOut",
			status:      session.StatusLoggingOutGapped,
			event:       session.EventGapWaitTimeout,
			wantStatus:  session.StatusLoggingOut,
			wantChanged: true,
			wantActions: []session.Action{session.ActionSendLogout, session.ActionArmLogoutNoHangupTimer},
		},
		{
			name:        "LoggingOut+LogoutNoResponseTimeout->Terminated",
			status:      session.StatusLoggingOut,
			event:       session.EventLogoutNoResponseTimeout,
			wantStatus:  session.StatusTerminated,
			wantChanged: true,
			wantActions: []session.Action{session.ActionDisconnect, session.ActionEmitConnectionTerminated},
		},
		{
			name:        "Established+unrelated event is ignored",
			status:      session.StatusEstablished,
			event:       session.EventLogonTimerExpired,
			wantStatus:  session.StatusEstablished,
			wantChanged: false,
			wantActions: nil,
		},
		{
			name:        "Terminated+WriteBlockedTimeout is ignored (terminal state)",
			status:      session.StatusTerminated,
			event:       session.EventWriteBlockedTimeout,
			wantStatus:  session.StatusTerminated,
			wantChanged: false,
			wantActions: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := session.ApplyEvent(tt.status, tt.event)

			if result.NewStatus != tt.wantStatus {
				t.Errorf("NewStatus = %v, want %v", result.NewStatus, tt.wantStatus)
			}
			if result.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", result.Changed, tt.wantChanged)
			}
			if len(result.Actions) != len(tt.wantActions) {
				t.Fatalf("Actions = %v, want %v", result.Actions, tt.wantActions)
			}
			for i, a := range result.Actions {
				if a != tt.wantActions[i] {
					t.Errorf("Actions[%d] = %v, want %v", i, a, tt.wantActions[i])
				}
			}
		})
	}
}

// TestWriteBlockedTimeoutUniform verifies every non-terminal status
// terminates on a write-blocked timeout (spec-derived: "Write-blocked"
// timer applies regardless of session status).
func TestWriteBlockedTimeoutUniform(t *testing.T) {
	t.Parallel()

	statuses := []session.Status{
		session.StatusSendingLogon, session.StatusReceivingLogon, session.StatusApprovingLogon,
		session.StatusEstablished, session.StatusLoggingOut, session.StatusLoggingOutGapped,
	}
	for _, s := range statuses {
		result := session.ApplyEvent(s, session.EventWriteBlockedTimeout)
		if result.NewStatus != session.StatusTerminated {
			t.Errorf("status %v: NewStatus = %v, want Terminated", s, result.NewStatus)
		}
	}
}
