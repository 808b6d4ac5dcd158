package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// Wire shapes mirror internal/control's unexported JSON request/response
// types field-for-field; fixctl depends only on the JSON contract, not on
// the control package's Go types, since those are intentionally
// unexported (an HTTP client has no business importing the server's
// internal types).

type sessionView struct {
	Token        uint32 `json:"token"`
	Listener     uint32 `json:"listener,omitempty"`
	SenderCompID string `json:"sender_comp_id"`
	TargetCompID string `json:"target_comp_id,omitempty"`
	Status       string `json:"status"`
}

type listSessionsResponse struct {
	Sessions []sessionView `json:"sessions"`
}

type addSessionResponse struct {
	Token uint32 `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage FIX sessions on a running fixd",
	}

	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionAddListenerCmd())
	cmd.AddCommand(sessionAddConnectionCmd())
	cmd.AddCommand(sessionLogoutCmd())
	cmd.AddCommand(sessionDeleteCmd())

	return cmd
}

// --- session list ---

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var resp listSessionsResponse
			if err := doJSON(http.MethodGet, controlURL("/sessions"), nil, &resp); err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(resp.Sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

// --- session add-listener ---

func sessionAddListenerCmd() *cobra.Command {
	var senderCompID, address string

	cmd := &cobra.Command{
		Use:   "add-listener",
		Short: "Start a new acceptor listener",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			body := map[string]string{
				"kind":           "listener",
				"sender_comp_id": senderCompID,
				"address":        address,
			}

			var resp addSessionResponse
			if err := doJSON(http.MethodPost, controlURL("/sessions"), body, &resp); err != nil {
				return fmt.Errorf("add listener: %w", err)
			}
			fmt.Printf("Listener added, token=%d\n", resp.Token)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&senderCompID, "sender-comp-id", "", "local CompID the listener answers as (required)")
	flags.StringVar(&address, "address", "", "listen address, e.g. :5001 (required)")

	return cmd
}

// --- session add-connection ---

func sessionAddConnectionCmd() *cobra.Command {
	var (
		fixVersion   string
		defaultMsgV  string
		senderCompID string
		targetCompID string
		address      string
	)

	cmd := &cobra.Command{
		Use:   "add-connection",
		Short: "Dial a new initiator connection",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			body := map[string]string{
				"kind":                    "connection",
				"fix_version":             fixVersion,
				"default_message_version": defaultMsgV,
				"sender_comp_id":          senderCompID,
				"target_comp_id":          targetCompID,
				"address":                 address,
			}

			var resp addSessionResponse
			if err := doJSON(http.MethodPost, controlURL("/sessions"), body, &resp); err != nil {
				return fmt.Errorf("add connection: %w", err)
			}
			fmt.Printf("Connection added, token=%d\n", resp.Token)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&fixVersion, "fix-version", "FIX.4.4", "begin string, e.g. FIX.4.4 or FIXT.1.1")
	flags.StringVar(&defaultMsgV, "default-message-version", "", "application schema version (FIXT.1.1 only)")
	flags.StringVar(&senderCompID, "sender-comp-id", "", "local CompID (required)")
	flags.StringVar(&targetCompID, "target-comp-id", "", "remote CompID (required)")
	flags.StringVar(&address, "address", "", "peer address, e.g. 127.0.0.1:5001 (required)")

	return cmd
}

// --- session logout / delete ---

func sessionLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <token>",
		Short: "Request an orderly Logout of a session (returns once the request is accepted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := doJSON(http.MethodPost, controlURL("/sessions/"+args[0]+"/logout"), nil, nil); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Printf("Logout requested for session %s.\n", args[0])
			return nil
		},
	}
}

func sessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token>",
		Short: "Tear down a session (the server runs the same orderly Logout as logout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := doJSON(http.MethodDelete, controlURL("/sessions/"+args[0]), nil, nil); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			fmt.Printf("Session %s deleted.\n", args[0])
			return nil
		},
	}
}

// doJSON sends req (if non-nil, JSON-encoded) to url via method, and
// decodes the response body into resp (if non-nil) on success. A non-2xx
// status is translated into an error carrying the server's errorResponse
// message when present.
func doJSON(method, url string, req, resp any) error {
	var bodyReader io.Reader
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusBadRequest {
		var errResp errorResponse
		_ = json.NewDecoder(httpResp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("%s: %s", httpResp.Status, errResp.Error)
		}
		return fmt.Errorf("%s", httpResp.Status)
	}

	if resp != nil {
		if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
