package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/sheets"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize read access to Google Sheets",
	Long: `Run the one-time OAuth consent flow in the browser and cache the refresh
token at the token path (VERSUS_TOKEN, default token.json). Not needed when
VERSUS_SERVICE_ACCOUNT is set.`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

func runAuth(cmd *cobra.Command, _ []string) error {
	if cfg.ServiceAccount {
		fmt.Fprintln(os.Stdout, "Service account configured, nothing to authorize.")
		return nil
	}
	auth := &sheets.Authorizer{
		CredentialsPath: cfg.CredentialsPath,
		TokenPath:       cfg.TokenPath,
		Out:             os.Stdout,
	}
	if _, err := auth.Interactive(cmd.Context()); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Token saved to %s\n", cfg.TokenPath)
	return nil
}
