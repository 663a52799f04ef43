// Supportd is a retrieval-augmented support chat server.
//
// It indexes support documents into a vector index, tracks per-session
// document collections and answers questions over HTTP with streamed,
// context-grounded model output.
//
// Usage:
//
//	# Start the server with defaults
//	supportd serve
//
//	# Use a config file and environment overrides
//	SUPPORTD_SERVER_PORT=9090 supportd serve --config supportd.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "supportd",
	Short: "Retrieval-augmented support chat server",
	Long: `supportd answers support questions grounded in your documents.
It chunks and indexes documents into a vector index, then serves a
retrieve-then-generate chat API with per-session document collections.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("supportd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
