// Package main is the entry point for the eventwatch CLI.
//
// eventwatch can be used either as a library (SDK) or as a standalone
// binary with YAML configuration. This CLI provides the standalone binary
// approach.
//
// Usage:
//
//	eventwatch watch -c config.yaml    # Stream new events as JSON lines
//	eventwatch validate -c config.yaml # Validate configuration
//	eventwatch version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "eventwatch",
	Short: "Watch a GitHub repository for new events",
	Long: `eventwatch polls a repository's public events feed and reports new
events of one kind, such as pushes.

Polling follows the API's rules: conditional requests with ETag, the
X-Poll-Interval hint, and a back-off of one interval after failures.

Quick start:
  1. Create a config file (eventwatch.yaml)
  2. Run: eventwatch watch -c eventwatch.yaml

Example config:
  owner: lulf
  repo: go-vex
  token: ${GITHUB_TOKEN}
  kind: PushEvent`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this eventwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("eventwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
