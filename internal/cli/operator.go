package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/auctionkiosk/internal/app"
)

func newSendDetailsCmd() *cobra.Command {
	var auctionID string
	cmd := &cobra.Command{
		Use:   "send-details <email-or-phone>",
		Short: "Send a bidder their bidder number and PIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application := app.New(cfg, logger)
			defer application.Close()

			if err := application.SendBidderDetails(cmd.Context(), auctionID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bidder details sent to %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&auctionID, "auction", "", "auction id (defaults to kiosk.default_auction_id)")
	return cmd
}

func newExportRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-runs <auction-id>",
		Short: "Export an auction's recorded runs to object storage as JSONL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application := app.New(cfg, logger)
			defer application.Close()

			path, n, err := application.ExportRuns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded for %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d runs to %s\n", n, path)
			return nil
		},
	}
}
