package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/ManuelReschke/VodScribe/internal/pkg/billing"
	"github.com/ManuelReschke/VodScribe/internal/pkg/bootstrap"
)

var (
	replayProvider  string
	replayEventPath string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Feed a stored webhook payload through reconciliation",
	Long: `Runs a PayPal event or Ko-fi data object through classification and
reconciliation without checking signatures or delivery deduplication.

Examples:
  vodscribe replay --provider paypal --event ./event.json
  vodscribe replay --provider kofi --event ./data.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayProvider == "" {
			return errors.New("provider is required")
		}
		if replayEventPath == "" {
			return errors.New("event path is required")
		}
		payload, err := os.ReadFile(replayEventPath)
		if err != nil {
			return err
		}

		var svc *billing.Service
		app := fx.New(
			bootstrap.CoreModule,
			fx.WithLogger(zapEventLogger),
			fx.Populate(&svc),
		)
		startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := app.Start(startCtx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = app.Stop(stopCtx)
		}()

		res, err := svc.Replay(cmd.Context(), replayProvider, payload)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayProvider, "provider", "", "webhook provider (paypal, kofi)")
	replayCmd.Flags().StringVar(&replayEventPath, "event", "", "path to webhook event JSON")
}
