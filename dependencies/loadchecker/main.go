package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := LoadTestConfig{}

	rootCmd := &cobra.Command{
		Use:           "loadcheck",
		Short:         "Drive the payment gateway simulator over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.BaseURL, "base-url", "http://localhost:3000", "Simulator base URL")
	flags.IntVarP(&cfg.TotalRequests, "requests", "n", 1000, "Number of payments to send")
	flags.IntVarP(&cfg.Concurrency, "concurrency", "c", 100, "Concurrent requests")
	flags.StringVarP(&cfg.Gateway, "gateway", "g", "Stripe", "Gateway to target")
	flags.StringVar(&cfg.Currency, "currency", "USD", "Payment currency")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "normal",
		Short: "Concurrent payments with cards that draw a random outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			normalLoadScenario(cmd.Context(), cfg, cmd.OutOrStdout())
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "cards",
		Short: "Check every test card returns its fixed outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, mismatches := cardsScenario(cmd.Context(), cfg, cmd.OutOrStdout())
			if mismatches > 0 {
				return fmt.Errorf("%d test cards returned an unexpected status", mismatches)
			}
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "refund-race",
		Short: "Refund one approved payment concurrently and expect a single success",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := refundRaceScenario(cmd.Context(), cfg, cmd.OutOrStdout())
			return err
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Run every scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, mismatches := cardsScenario(cmd.Context(), cfg, out); mismatches > 0 {
				return fmt.Errorf("%d test cards returned an unexpected status", mismatches)
			}
			if _, err := refundRaceScenario(cmd.Context(), cfg, out); err != nil {
				return err
			}
			normalLoadScenario(cmd.Context(), cfg, out)
			return nil
		},
	})

	return rootCmd
}
