package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Messages API gateway with credential pooling and usage events",
	Long: `gateway is a reverse proxy for the Anthropic Messages API.

Each request is sent upstream with the next key from a round-robin pool.
Streaming responses are relayed frame by frame while token usage is
accumulated, and exactly one usage event is published per request.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
