package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anspn/iota-service/internal/manager"
	"github.com/anspn/iota-service/internal/notary"
	"github.com/anspn/iota-service/internal/output"
	"github.com/anspn/iota-service/internal/receipts"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui           *output.UI
	sessionMgr   *manager.Manager
	receiptStore receipts.Store

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "iotas",
	Short: "IOTA Sessions - record terminal sessions and notarize their transcripts",
	Long: `iotas binds recorded terminal sessions to a decentralized identity.
It hands session ids off to the terminal through one-shot tickets, recovers
the command transcript when a session ends, and anchors a canonical digest
of the transcript on the configured ledger node.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/iotas/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "iotas")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("IOTAS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(home, ".config", "iotas")

	viper.SetDefault("data_dir", defaultDataDir)
	viper.SetDefault("journal_dir", filepath.Join(defaultDataDir, "journal"))
	viper.SetDefault("sessions_dir", filepath.Join(defaultDataDir, "sessions"))
	viper.SetDefault("tickets_dir", filepath.Join(defaultDataDir, "tickets"))
	viper.SetDefault("pointer_file", filepath.Join(defaultDataDir, "current_session"))
	viper.SetDefault("receipts_db", filepath.Join(defaultDataDir, "receipts.db"))
	viper.SetDefault("node.url", "")
	viper.SetDefault("node.auth_token", "")
	viper.SetDefault("notary.timeout", "30s")
	viper.SetDefault("notary.end_timeout", "45s")
	viper.SetDefault("transcript.first_delay", "300ms")
	viper.SetDefault("transcript.second_delay", "1200ms")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("port", 8080)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The manager and receipt store are initialized lazily — only when
	// commands actually need them. This allows config/version commands to
	// run without touching the data directory.
}

// rootRun handles `iotas` with no subcommand: show the session the terminal
// is currently pointed at, or fall back to help.
func rootRun(cmd *cobra.Command) error {
	data, err := os.ReadFile(viper.GetString("pointer_file"))
	if err != nil {
		return cmd.Help()
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return cmd.Help()
	}

	m, err := getManager()
	if err != nil {
		return cmd.Help()
	}
	sess, err := m.Lookup(id)
	if err != nil {
		return cmd.Help()
	}
	return sessionShowRun(sess.ID)
}

// newNotaryClient builds the ledger client from config. An empty node URL
// yields a client whose Publish returns notary.ErrNotConfigured.
func newNotaryClient() *notary.HTTPClient {
	return notary.NewHTTPClient(
		viper.GetString("node.url"),
		viper.GetString("node.auth_token"),
		viper.GetDuration("notary.timeout"),
	)
}

// getManager returns the shared session manager, initializing it on first call.
func getManager() (*manager.Manager, error) {
	if sessionMgr != nil {
		return sessionMgr, nil
	}

	cfg := manager.Config{
		JournalDir:       viper.GetString("journal_dir"),
		SessionsDir:      viper.GetString("sessions_dir"),
		TicketsDir:       viper.GetString("tickets_dir"),
		PointerFile:      viper.GetString("pointer_file"),
		FirstRetryDelay:  viper.GetDuration("transcript.first_delay"),
		SecondRetryDelay: viper.GetDuration("transcript.second_delay"),
		EndTimeout:       viper.GetDuration("notary.end_timeout"),
	}

	opts := []manager.Option{}
	if store, err := getReceipts(); err == nil {
		opts = append(opts, manager.WithReceipts(store))
	} else {
		ui.Warning("receipt store unavailable: %v", err)
	}

	m, err := manager.New(cfg, newNotaryClient(), opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize session manager: %w", err)
	}

	sessionMgr = m
	return sessionMgr, nil
}

// getReceipts returns the shared receipt store, initializing it on first call.
func getReceipts() (receipts.Store, error) {
	if receiptStore != nil {
		return receiptStore, nil
	}

	dbPath := viper.GetString("receipts_db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s, err := receipts.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open receipts database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate receipts database: %w", err)
	}

	receiptStore = s
	return receiptStore, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "iotas %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

// timeAgo renders a duration since t in coarse human units.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
