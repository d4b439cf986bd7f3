package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/app"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the docdesk HTTP API and the maintenance scheduler.

The server provides:
  - /api/health  - liveness check
  - /metrics     - Prometheus metrics
  - /api/...     - document, revision, duplicate and review endpoints

Examples:
  docdesk serve
  docdesk serve --port 3000
  DOCDESK_BLOB_BACKEND=gcs DOCDESK_BLOB_BUCKET=scans docdesk serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, st, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer st.Close()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		a, err := app.New(cmd.Context(), cfg, st, logger, version)
		if err != nil {
			logger.Error("Failed to initialize app", zap.Error(err))
			return err
		}
		return a.RunServer()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override server.port")
}
