package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatSessions renders a slice of sessions in the requested format.
func formatSessions(sessions []sessionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatSessionsJSON(sessions)
	case formatTable:
		return formatSessionsTable(sessions), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatSessionsJSON(sessions []sessionView) (string, error) {
	b, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sessions: %w", err)
	}
	return string(b) + "\n", nil
}

func formatSessionsTable(sessions []sessionView) string {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "TOKEN\tLISTENER\tSENDER\tTARGET\tSTATUS")
	for _, s := range sessions {
		listener := "-"
		if s.Listener != 0 {
			listener = fmt.Sprintf("%d", s.Listener)
		}
		target := s.TargetCompID
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Token, listener, s.SenderCompID, target, s.Status)
	}

	_ = tw.Flush()
	if len(sessions) == 0 {
		return "No sessions.\n"
	}
	return sb.String()
}
