package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/anspn/iota-service/internal/manager"
	"github.com/anspn/iota-service/internal/models"
	"github.com/anspn/iota-service/internal/output"
)

var (
	sessionListOwner    string
	sessionListIdentity string
	sessionListStatus   string
	sessionListLimit    int
	sessionShowFull     bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage recorded sessions",
	Long: `Manage recorded sessions: start a new session, end and notarize one,
or inspect what has been recorded.

Running bare 'iotas session' is the same as 'iotas session list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <identity> <owner>",
	Short: "Start a new session bound to an identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStartRun(args[0], args[1])
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "End a session and anchor its transcript digest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionEndRun(args[0])
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionShowRun(args[0])
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStatsRun()
	},
}

func init() {
	sessionListCmd.Flags().StringVar(&sessionListOwner, "owner", "", "Filter by owner")
	sessionListCmd.Flags().StringVar(&sessionListIdentity, "identity", "", "Filter by DID")
	sessionListCmd.Flags().StringVar(&sessionListStatus, "status", "", "Filter by status (active, ended, notarized, failed)")
	sessionListCmd.Flags().IntVar(&sessionListLimit, "limit", 0, "Maximum results (default 100)")
	sessionShowCmd.Flags().BoolVar(&sessionShowFull, "full", false, "Include the full command transcript")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionStatsCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionStartRun(identity, owner string) error {
	if dryRun {
		ui.DryRunMsg("Would start session for %s (owner %s)", identity, owner)
		return nil
	}

	m, err := getManager()
	if err != nil {
		return err
	}

	sess, err := m.Start(context.Background(), identity, owner)
	if err != nil {
		return err
	}

	ui.Success("Session started: %s", sess.ID)
	ui.VerboseLog("ticket written for identity %s", sess.Identity)
	return nil
}

func sessionEndRun(id string) error {
	if dryRun {
		ui.DryRunMsg("Would end session %s", id)
		return nil
	}

	m, err := getManager()
	if err != nil {
		return err
	}

	sess, err := m.End(context.Background(), id)
	if err != nil {
		return err
	}

	switch sess.Status {
	case models.SessionStatusNotarized:
		ui.Success("Session %s notarized (ledger id %s)", sess.ID, sess.LedgerID)
	case models.SessionStatusEnded:
		ui.Success("Session %s ended (%d commands, digest %s)", sess.ID, sess.CommandCount, shortDigest(sess.Digest))
	case models.SessionStatusFailed:
		ui.Error("Session %s failed: %s", sess.ID, sess.Error)
	}
	return nil
}

func sessionShowRun(id string) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	sess, err := m.Lookup(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(sess.ID))
	fmt.Fprintf(ui.Out, "  Identity:  %s\n", sess.Identity)
	fmt.Fprintf(ui.Out, "  Owner:     %s\n", sess.Owner)
	fmt.Fprintf(ui.Out, "  Status:    %s\n", output.StatusColor(string(sess.Status)))
	fmt.Fprintf(ui.Out, "  Started:   %s (%s)\n", sess.StartedAt.Format(time.RFC3339), timeAgo(sess.StartedAt))
	if sess.EndedAt != nil {
		fmt.Fprintf(ui.Out, "  Ended:     %s\n", sess.EndedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(ui.Out, "  Commands:  %d\n", sess.CommandCount)
	if sess.Digest != "" {
		fmt.Fprintf(ui.Out, "  Digest:    %s\n", sess.Digest)
	}
	if sess.LedgerID != "" {
		fmt.Fprintf(ui.Out, "  Ledger ID: %s\n", sess.LedgerID)
	}
	if sess.Error != "" {
		fmt.Fprintf(ui.Out, "  Error:     %s\n", sess.Error)
	}

	if sessionShowFull && len(sess.Commands) > 0 {
		fmt.Fprintln(ui.Out)
		for i, c := range sess.Commands {
			if c.Timestamp != nil {
				fmt.Fprintf(ui.Out, "  %4d  %s  %s\n", i+1, c.Timestamp.Format("15:04:05"), c.Command)
			} else {
				fmt.Fprintf(ui.Out, "  %4d  %s\n", i+1, c.Command)
			}
		}
	}
	return nil
}

func sessionListRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}

	f := manager.Filter{
		Owner:    sessionListOwner,
		Identity: sessionListIdentity,
		Limit:    sessionListLimit,
	}
	if sessionListStatus != "" {
		st := models.SessionStatus(sessionListStatus)
		if !st.Valid() {
			return fmt.Errorf("invalid status: %s", sessionListStatus)
		}
		f.Status = st
	}

	sessions := m.List(f)
	if len(sessions) == 0 {
		ui.Info("No sessions recorded. Use 'iotas session start <identity> <owner>' to begin.")
		return nil
	}

	table := ui.Table([]string{"ID", "Identity", "Owner", "Status", "Commands", "Started"})
	for _, s := range sessions {
		table.Append([]string{
			output.Cyan(s.ID),
			s.Identity,
			s.Owner,
			output.StatusColor(string(s.Status)),
			strconv.Itoa(s.CommandCount),
			timeAgo(s.StartedAt),
		})
	}
	table.Render()
	return nil
}

func sessionStatsRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}

	stats := m.Stats()
	fmt.Fprintf(ui.Out, "  %-18s %d\n", "Total", stats.Total)
	fmt.Fprintf(ui.Out, "  %-18s %d\n", "Active", stats.Active)
	fmt.Fprintf(ui.Out, "  %-18s %d\n", "Ended", stats.Ended)
	fmt.Fprintf(ui.Out, "  %-18s %d\n", "Notarized", stats.Notarized)
	fmt.Fprintf(ui.Out, "  %-18s %d\n", "Failed", stats.Failed)
	fmt.Fprintf(ui.Out, "  %-18s %d\n", "Started (total)", stats.Started)
	fmt.Fprintf(ui.Out, "  %-18s %d\n", "Finalized (total)", stats.Finalized)
	return nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12] + "..."
	}
	return d
}
