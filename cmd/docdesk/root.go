package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/app"
	"github.com/gmsas95/docdesk/internal/config"
	"github.com/gmsas95/docdesk/internal/store"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	cfgFile string
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "docdesk",
	Short: "Document processing core for scanned business documents",
	Long: `docdesk ingests multi-page PDFs and lets operators restructure them
(delete, reorder, merge, split pages) under optimistic per-document locks.

It also tracks extraction attempts as immutable revisions, flags likely
duplicate submissions, and serves a cursor-based "needs review" queue.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <data>/docdesk.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default: ~/.local/share/docdesk)")

	rootCmd.AddCommand(serveCmd, migrateCmd, importCmd, tokenCmd, versionCmd)
}

// bootstrap loads config, builds the logger and opens the store
func bootstrap() (*config.Config, *zap.Logger, *store.Store, error) {
	cfg, err := config.Load(cfgFile, dataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.New(&cfg.Storage)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return cfg, logger, st, nil
}
