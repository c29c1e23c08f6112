package cli

import (
	"github.com/spf13/cobra"

	"rateoracle/internal/app"
)

var (
	priceAmount string
)

var peekCmd = &cobra.Command{
	Use:   "peek BASE/QUOTE",
	Short: "Value an amount of base in quote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Peek(cmd.Context(), app.PriceOptions{Pair: args[0], Amount: priceAmount})
	},
}

var getCmd = &cobra.Command{
	Use:   "get BASE/QUOTE",
	Short: "Same as peek, through the state-changing entry point",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Get(cmd.Context(), app.PriceOptions{Pair: args[0], Amount: priceAmount})
	},
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Inspect the upstream feed",
}

var feedReportsCmd = &cobra.Command{
	Use:   "reports FEED",
	Short: "Show the report count and latest report of a feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().FeedReports(cmd.Context(), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{peekCmd, getCmd} {
		c.Flags().StringVar(&priceAmount, "amount", "1", "Amount of the base asset (decimal)")
	}
	feedCmd.AddCommand(feedReportsCmd)
}
