package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version проставляется через -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "session-server",
	Short: "Real-time signaling and waiting-room server for docplus video sessions",
	Long: `session-server relays WebRTC signaling between participants of a docplus
video session, runs the waiting room (doctors admit patients one by one) and
carries the in-session control channel: chat, screen share, recording, mute.

Examples:
  session-server serve --config ./config/config.yaml
  session-server rooms list --target localhost:9090
  session-server rooms close 3f2c...`,
	Version: version,
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, roomsCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}
