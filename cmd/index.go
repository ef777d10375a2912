package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/calpane/internal/index"
)

func newIndexCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the local index of events created through calpane",
	}
	cmd.AddCommand(newIndexListCmd(global))
	cmd.AddCommand(newIndexClearCmd(global))
	return cmd
}

func newIndexListCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the recorded event ids, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIndex(cmd, global, func(idx *index.Index) error {
				for _, id := range idx.List(cmd.Context()) {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func newIndexClearCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget every recorded event id",
		Long: `Forget every recorded event id. The events themselves stay in
Google Calendar; they are just no longer marked as created here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIndex(cmd, global, func(idx *index.Index) error {
				n := len(idx.List(cmd.Context()))
				idx.Clear(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d event id(s)\n", n)
				return nil
			})
		},
	}
}

func withIndex(cmd *cobra.Command, global *globalFlags, fn func(*index.Index) error) error {
	cfg, err := loadConfig(cmd, global, os.LookupEnv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)

	store, err := index.Open(cmd.Context(), cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	defer func() { _ = store.Close() }()

	return fn(index.New(store, index.WithLogger(logger)))
}
