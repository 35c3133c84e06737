// Package ctl implements ledgerctl, an offline inspector for chatkat ledgers.
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"chatkat/pkg/state"
	"chatkat/pkg/state/logger"
	"chatkat/pkg/store"
	"chatkat/pkg/store/engine"
)

var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	db      string
	engine  string
	config  string
	format  string
	verbose bool

	cfg *Config
}

// NewRootCmd builds the ledgerctl command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect a chatkat ledger offline",
		Long: `ledgerctl opens a chatkat ledger read-only and prints rankings,
latest points and raw entries.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.resolve(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&o.db, "db", "./.chatkat", "chatkat data directory")
	root.PersistentFlags().StringVar(&o.engine, "engine", store.EnginePebble, "store engine: pebble or sqlite")
	root.PersistentFlags().StringVarP(&o.config, "config", "c", "", "ledgerctl config file")
	root.PersistentFlags().StringVar(&o.format, "format", "table", "output format: table or json")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(newRankCmd(o), newLatestCmd(o), newEntriesCmd(o))
	return root
}

// Execute runs ledgerctl with os.Args.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolve applies the config file under explicitly set flags.
func (o *options) resolve(cmd *cobra.Command) error {
	level := "error"
	if o.verbose {
		level = "debug"
	}
	logger.InitWriter(cmd.ErrOrStderr(), level)

	o.cfg = &Config{}
	if o.config != "" {
		cfg, err := LoadConfig(o.config)
		if err != nil {
			return err
		}
		o.cfg = cfg
	}
	flags := cmd.Flags()
	if !flags.Changed("db") && o.cfg.DBPath != "" {
		o.db = o.cfg.DBPath
	}
	if !flags.Changed("engine") && o.cfg.Engine != "" {
		o.engine = o.cfg.Engine
	}
	if !flags.Changed("format") && o.cfg.Format != "" {
		o.format = o.cfg.Format
	}
	switch o.format {
	case "table", "json":
	default:
		return fmt.Errorf("invalid format: %s (valid values: table, json)", o.format)
	}
	return nil
}

// withStore opens the ledger read-only for the duration of fn.
func (o *options) withStore(fn func(ctx context.Context, s store.Store) error) error {
	path := state.StorePath(o.db)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no ledger at %s: %w", path, err)
	}
	s, err := engine.Open(engine.Options{Engine: o.engine, Path: path, ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(context.Background(), s)
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
