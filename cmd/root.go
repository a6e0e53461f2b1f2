package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "pushlite",
	Short:   "pushlite - lightweight realtime pub/sub broker",
	Long:    `A single-binary multi-tenant pub/sub broker with presence, peer, and personal channels over WebSocket, backed by SQLite.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("pushlite version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
