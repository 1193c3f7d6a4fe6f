// Package main is the agentmatch command line: the HTTP server, an offline
// scorer and a polling probe.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "agentmatch",
	Short:         "Business-profile matching and agent dispatch",
	Long:          "agentmatch ranks business profiles against each other and dispatches AI agents to hold introductory conversations with the best candidates.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
