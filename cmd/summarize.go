package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anspn/iota-service/internal/models"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <id>",
	Short: "Summarize a finalized session's transcript with the LLM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return summarizeRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}

func summarizeRun(id string) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	sess, err := m.Lookup(id)
	if err != nil {
		return err
	}
	if sess.Status == models.SessionStatusActive {
		return fmt.Errorf("session %s is still active; end it before summarizing", sess.ID)
	}

	client := newLLMClient()
	if client == nil {
		return fmt.Errorf("no Anthropic API key configured (set anthropic.api_key or ANTHROPIC_API_KEY)")
	}

	if dryRun {
		ui.DryRunMsg("Would summarize session %s (%d commands)", sess.ID, sess.CommandCount)
		return nil
	}

	summary, err := client.Summarize(context.Background(), sess)
	if err != nil {
		return err
	}

	fmt.Fprintln(ui.Out, summary)
	return nil
}
