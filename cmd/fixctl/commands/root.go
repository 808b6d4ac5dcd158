// Package commands implements fixctl's cobra command tree, talking to a
// running fixd's control HTTP surface (internal/control) over plain JSON
// rather than the ConnectRPC client the teacher's gobfdctl used -- fixd
// has no generated RPC service (see DESIGN.md decision #1), only a
// net/http mux.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the client used for every control-surface request,
	// initialized in PersistentPreRunE.
	httpClient *http.Client

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the fixd control address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for fixctl.
var rootCmd = &cobra.Command{
	Use:   "fixctl",
	Short: "CLI client for the fixd control surface",
	Long:  "fixctl communicates with a running fixd daemon's control HTTP API to manage FIX sessions.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		httpClient = &http.Client{Timeout: 10 * time.Second}
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080",
		"fixd control address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(versionCmd())
}

// controlURL builds the full URL for a control-surface path.
func controlURL(path string) string {
	return "http://" + serverAddr + path
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
