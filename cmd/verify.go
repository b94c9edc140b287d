package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anspn/iota-service/internal/notary"
	"github.com/anspn/iota-service/internal/output"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Recompute a session's digest and check it against the record",
	Long: `Verify a finalized session.

Rebuilds the canonical session document from the journal record, recomputes
its digest, and compares it to the digest stored at finalization. When a
publication receipt exists, the receipt's digest and ledger id are checked
against the session record too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifyRun(id string) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	sess, err := m.Lookup(id)
	if err != nil {
		return err
	}
	if sess.Digest == "" {
		return fmt.Errorf("session %s has no digest (status %s)", sess.ID, sess.Status)
	}

	doc, err := notary.BuildDocument(sess)
	if err != nil {
		return fmt.Errorf("rebuild session document: %w", err)
	}
	recomputed, err := notary.DigestJCS(doc)
	if err != nil {
		return fmt.Errorf("recompute digest: %w", err)
	}

	if recomputed != sess.Digest {
		ui.Error("Digest mismatch for %s", sess.ID)
		fmt.Fprintf(ui.Out, "  recorded:   %s\n", sess.Digest)
		fmt.Fprintf(ui.Out, "  recomputed: %s\n", recomputed)
		return fmt.Errorf("digest mismatch")
	}
	ui.Success("Digest verified: %s", output.Cyan(sess.Digest))

	store, err := getReceipts()
	if err != nil {
		ui.Warning("receipt store unavailable: %v", err)
		return nil
	}

	rcpt, err := store.GetBySession(context.Background(), sess.ID)
	if err != nil {
		ui.Info("No publication receipt on file.")
		return nil
	}

	if rcpt.Digest != sess.Digest {
		return fmt.Errorf("receipt digest %s does not match session digest %s", rcpt.Digest, sess.Digest)
	}
	if sess.LedgerID != "" && rcpt.LedgerID != sess.LedgerID {
		return fmt.Errorf("receipt ledger id %s does not match session ledger id %s", rcpt.LedgerID, sess.LedgerID)
	}
	ui.Success("Receipt verified: ledger id %s, published %s", rcpt.LedgerID, timeAgo(rcpt.PublishedAt))
	return nil
}
