package cli

import (
	"time"

	"github.com/spf13/cobra"

	"rateoracle/internal/app"
)

var (
	sourceCaller        string
	sourceFeedID        string
	sourceBaseDecimals  uint8
	sourceQuoteDecimals uint8
	sourceInverse       bool
	sourceMaxAge        time.Duration
	sourceMin           string
	sourceMax           string
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage pair sources",
}

var sourceSetCmd = &cobra.Command{
	Use:   "set BASE/QUOTE",
	Short: "Configure a pair and its mirror",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetSource(cmd.Context(), app.SetSourceOptions{
			Caller:        sourceCaller,
			Pair:          args[0],
			BaseDecimals:  sourceBaseDecimals,
			QuoteDecimals: sourceQuoteDecimals,
			FeedID:        sourceFeedID,
			Inverse:       sourceInverse,
		})
	},
}

var sourceMaxAgeCmd = &cobra.Command{
	Use:   "max-age BASE/QUOTE",
	Short: "Set the staleness ceiling of a pair (0 disables)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetMaxAge(cmd.Context(), app.SetMaxAgeOptions{
			Caller: sourceCaller,
			Pair:   args[0],
			MaxAge: sourceMaxAge,
		})
	},
}

var sourceBoundsCmd = &cobra.Command{
	Use:   "bounds BASE/QUOTE",
	Short: "Set the price bounds of a pair (empty or 0 disables a side)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetBounds(cmd.Context(), app.SetBoundsOptions{
			Caller: sourceCaller,
			Pair:   args[0],
			Min:    sourceMin,
			Max:    sourceMax,
		})
	},
}

var sourceStatusCmd = &cobra.Command{
	Use:   "status [BASE/QUOTE...]",
	Short: "Show pair configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Status(cmd.Context(), args)
	},
}

func init() {
	for _, c := range []*cobra.Command{sourceSetCmd, sourceMaxAgeCmd, sourceBoundsCmd} {
		c.Flags().StringVar(&sourceCaller, "caller", "", "Address the change is made as")
		_ = c.MarkFlagRequired("caller")
	}

	sourceSetCmd.Flags().StringVar(&sourceFeedID, "feed", "", "Feed id: 0x-hex or a label hashed with keccak256")
	sourceSetCmd.Flags().Uint8Var(&sourceBaseDecimals, "base-decimals", 18, "Decimals of the base asset")
	sourceSetCmd.Flags().Uint8Var(&sourceQuoteDecimals, "quote-decimals", 18, "Decimals of the quote asset")
	sourceSetCmd.Flags().BoolVar(&sourceInverse, "inverse", false, "Feed reports base per quote")
	_ = sourceSetCmd.MarkFlagRequired("feed")

	sourceMaxAgeCmd.Flags().DurationVar(&sourceMaxAge, "max-age", 0, "Maximum report age, e.g. 90s")

	sourceBoundsCmd.Flags().StringVar(&sourceMin, "min", "", "Minimum accepted price (decimal)")
	sourceBoundsCmd.Flags().StringVar(&sourceMax, "max", "", "Maximum accepted price (decimal)")

	sourceCmd.AddCommand(sourceSetCmd, sourceMaxAgeCmd, sourceBoundsCmd, sourceStatusCmd)
}
