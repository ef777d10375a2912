package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/calpane/internal/config"
	"github.com/teemow/calpane/internal/logging"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the CLI
func SetVersion(v string) {
	version = v
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
	logFormat  string
	storeType  string
	storeDir   string
	storePath  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "calpane",
		Short: "A local web UI for your Google Calendar",
		Long: `calpane signs you in to Google and serves a small web page on localhost
for listing, creating and deleting events on your primary calendar.

Events created through calpane are remembered in a local index so they can
be told apart from the rest of the calendar.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(`{{printf "calpane version %s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to the config file (default: ./calpane.toml, then ~/.config/calpane/calpane.toml)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging. Can also use CALPANE_DEBUG env var.")
	pf.StringVar(&flags.logFormat, "log-format", logging.FormatText, "Log format: text or json. Can also use CALPANE_LOG_FORMAT env var.")
	pf.StringVar(&flags.storeType, "store", "", "Created-event index store: memory, file, sqlite or valkey. Can also use CALPANE_STORE env var.")
	pf.StringVar(&flags.storeDir, "store-dir", "", "Directory of the file store. Can also use CALPANE_STORE_DIR env var.")
	pf.StringVar(&flags.storePath, "store-path", "", "Database file of the sqlite store. Can also use CALPANE_STORE_PATH env var.")

	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newIndexCmd(flags))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves defaults, the config file, the environment and flags, in that order.
func loadConfig(cmd *cobra.Command, flags *globalFlags, lookup func(string) (string, bool)) (config.Config, error) {
	cfg, _, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("debug") {
		cfg.Log.Debug = flags.debug
	}
	if changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if changed("store") {
		cfg.Store.Type = flags.storeType
	}
	if changed("store-dir") {
		cfg.Store.Dir = flags.storeDir
	}
	if changed("store-path") {
		cfg.Store.Path = flags.storePath
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	logger := logging.NewLogger(w, cfg.Log.Format, cfg.Log.Debug)
	slog.SetDefault(logger)
	return logger
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "calpane version %s\n", version)
		},
	}
}
