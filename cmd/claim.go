package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anspn/iota-service/internal/handoff"
	"github.com/anspn/iota-service/internal/transcript"
)

var claimQuiet bool

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim the newest session ticket (for shell init hooks)",
	Long: `Claim the newest pending session ticket.

Meant to be called from the terminal's init hook: it consumes the newest
ticket, points the current-session file at the claimed id, and creates the
session's transcript directory. Prints the claimed session id on stdout so
the shell can record history into the right place:

  id=$(iotas claim --quiet) && export IOTAS_SESSION=$id`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return claimRun()
	},
}

func init() {
	claimCmd.Flags().BoolVarP(&claimQuiet, "quiet", "q", false, "Print only the session id")
	rootCmd.AddCommand(claimCmd)
}

func claimRun() error {
	ch, err := handoff.New(viper.GetString("tickets_dir"))
	if err != nil {
		return err
	}

	tk, err := ch.ClaimLatest()
	if err != nil {
		if errors.Is(err, handoff.ErrNoTicket) {
			return fmt.Errorf("no pending session ticket")
		}
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would claim session %s for %s", tk.SessionID, tk.Identity)
		return nil
	}

	sessionDir := filepath.Join(viper.GetString("sessions_dir"), tk.SessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	pointer := viper.GetString("pointer_file")
	if err := os.MkdirAll(filepath.Dir(pointer), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(pointer, []byte(tk.SessionID+"\n"), 0644); err != nil {
		return fmt.Errorf("update pointer file: %w", err)
	}

	if claimQuiet {
		fmt.Fprintln(ui.Out, tk.SessionID)
		return nil
	}

	ui.Success("Claimed session %s (identity %s)", tk.SessionID, tk.Identity)
	ui.Info("Transcript path: %s", filepath.Join(sessionDir, transcript.HistoryFile))
	return nil
}
