package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vodscribe",
	Short: "VodScribe billing backend",
	Long: `Receives PayPal and Ko-fi webhooks and keeps subscriptions, payments
and credits in sync.

Examples:
  vodscribe serve
  vodscribe migrate up
  vodscribe replay --provider kofi --event ./delivery.json`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
