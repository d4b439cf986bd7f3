package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmsas95/docdesk/internal/api"
	"github.com/gmsas95/docdesk/internal/config"
	"github.com/gmsas95/docdesk/internal/scope"
)

var (
	tokenTenant    string
	tokenCompany   string
	tokenCompanies []string
	tokenTTL       time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <actor>",
	Short: "Mint an API token for local testing",
	Long: `Mint an HS256 token signed with security.jwt_secret.

Production deployments issue tokens from their identity provider; this
command exists for local development and smoke tests.

Examples:
  docdesk token alice --tenant acme
  docdesk token bob --tenant acme --company c1 --ttl 1h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenTenant == "" {
			return fmt.Errorf("--tenant is required")
		}
		cfg, err := config.Load(cfgFile, dataDir)
		if err != nil {
			return err
		}
		if cfg.Security.EphemeralSecret {
			return fmt.Errorf("security.jwt_secret is not configured; a token signed now would not verify against a running server")
		}
		tok, err := api.IssueToken(cfg.Security.JWTSecret, scope.Scope{
			TenantID:   tokenTenant,
			CompanyID:  tokenCompany,
			ActorID:    args[0],
			CompanyIDs: tokenCompanies,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "tenant id")
	tokenCmd.Flags().StringVar(&tokenCompany, "company", "", "company id")
	tokenCmd.Flags().StringSliceVar(&tokenCompanies, "companies", nil, "companies the actor may see")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
