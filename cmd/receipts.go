package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/anspn/iota-service/internal/output"
)

var receiptsLimit int

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "List ledger publication receipts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return receiptsRun()
	},
}

func init() {
	receiptsCmd.Flags().IntVar(&receiptsLimit, "limit", 0, "Maximum results (0 = all)")
	rootCmd.AddCommand(receiptsCmd)
}

func receiptsRun() error {
	store, err := getReceipts()
	if err != nil {
		return err
	}

	recs, err := store.List(context.Background(), receiptsLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		ui.Info("No publication receipts recorded.")
		return nil
	}

	table := ui.Table([]string{"Session", "Ledger ID", "Digest", "Published"})
	for _, r := range recs {
		table.Append([]string{
			output.Cyan(r.SessionID),
			r.LedgerID,
			shortDigest(r.Digest),
			timeAgo(r.PublishedAt),
		})
	}
	table.Render()
	return nil
}
