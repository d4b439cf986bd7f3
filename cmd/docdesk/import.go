package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmsas95/docdesk/internal/app"
	"github.com/gmsas95/docdesk/internal/batch"
	"github.com/gmsas95/docdesk/internal/scope"
)

var (
	importTenant      string
	importCompany     string
	importActor       string
	importConcurrency int
	importRPM         int
	importRecursive   bool
	importOutput      string
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Ingest every PDF in a directory",
	Long: `Ingest every PDF in a directory as new documents.

Each file goes through the same path as an API upload: it is stored,
its pages are fingerprinted and exact duplicates are reported. A file
that fails is listed in the summary and the import continues.

Examples:
  docdesk import ./scans --tenant acme
  docdesk import ./scans --tenant acme --company c1 --recursive --rpm 120
  docdesk import ./scans --tenant acme --output result.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importTenant == "" {
			return fmt.Errorf("--tenant is required")
		}
		cfg, logger, st, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer st.Close()

		a, err := app.New(cmd.Context(), cfg, st, logger, version)
		if err != nil {
			return err
		}
		defer a.Close()

		p := batch.NewProcessor(a.Pages, batch.Config{
			MaxConcurrency: importConcurrency,
			RPM:            importRPM,
			Burst:          1,
			Recursive:      importRecursive,
		}, logger)
		res, err := p.ProcessDir(cmd.Context(), scope.Scope{
			TenantID:  importTenant,
			CompanyID: importCompany,
			ActorID:   importActor,
		}, args[0], importOutput)
		if err != nil {
			return err
		}

		fmt.Print(res.Summary())
		if res.Failed > 0 {
			return fmt.Errorf("%d of %d files failed", res.Failed, res.Total)
		}
		return nil
	},
}

func init() {
	def := batch.DefaultConfig()
	importCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant id")
	importCmd.Flags().StringVar(&importCompany, "company", "", "company id for the new documents")
	importCmd.Flags().StringVar(&importActor, "actor", "import", "actor recorded as uploader")
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", def.MaxConcurrency, "parallel ingests")
	importCmd.Flags().IntVar(&importRPM, "rpm", 0, "max ingests per minute (0 = unlimited)")
	importCmd.Flags().BoolVar(&importRecursive, "recursive", false, "descend into subdirectories")
	importCmd.Flags().StringVarP(&importOutput, "output", "o", "", "write a JSON result file")
}
