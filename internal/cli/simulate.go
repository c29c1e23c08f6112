package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"rateoracle/internal/app"
)

var (
	simulateRate    string
	simulateAge     time.Duration
	simulateInverse bool
	simulateMaxAge  time.Duration
	simulateMin     string
	simulateMax     string
	simulateAmount  string
	simulateAlert   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate BASE/QUOTE",
	Short: "Run a synthetic feed report through the pricing pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateRate == "" {
			return errors.New("--rate is required")
		}
		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Pair:    args[0],
			Rate:    simulateRate,
			Age:     simulateAge,
			Inverse: simulateInverse,
			MaxAge:  simulateMaxAge,
			Min:     simulateMin,
			Max:     simulateMax,
			Amount:  simulateAmount,
			Alert:   simulateAlert,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateRate, "rate", "", "feed rate as a decimal (quote per base)")
	simulateCmd.Flags().DurationVar(&simulateAge, "age", 0, "age of the report")
	simulateCmd.Flags().BoolVar(&simulateInverse, "inverse", false, "the feed quotes base per quote")
	simulateCmd.Flags().DurationVar(&simulateMaxAge, "max-age", 0, "staleness ceiling in whole seconds, 0 disables")
	simulateCmd.Flags().StringVar(&simulateMin, "min", "", "lower price bound")
	simulateCmd.Flags().StringVar(&simulateMax, "max", "", "upper price bound")
	simulateCmd.Flags().StringVar(&simulateAmount, "amount", "1", "base amount to price")
	simulateCmd.Flags().BoolVar(&simulateAlert, "alert", false, "send rejections through the configured alert channel")
}
