package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis - AI governance gateway",
	Long: `Aegis is an AI governance gateway for LLM traffic.

It evaluates every prompt and every model response against an ordered
chain of policies, providing:
  - Dual-checkpoint policy enforcement (input and output)
  - Reversible PII redaction
  - Human-in-the-loop escalation with a durable review queue
  - Multi-provider model routing with retry and fallback
  - An append-only audit trail correlated by trace id`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
