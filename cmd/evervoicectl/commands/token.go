package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/lukasbauer/evervoice/internal/app"
	"github.com/lukasbauer/evervoice/internal/httpapi"
	"github.com/lukasbauer/evervoice/internal/share"
	"github.com/spf13/cobra"
)

var issueTTL time.Duration

// NewTokenCmd creates the token command.
func NewTokenCmd(cfg app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect share tokens and issue user tokens",
	}

	resolve := &cobra.Command{
		Use:   "resolve <share-token>",
		Short: "Show the owner and role behind a share token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := share.NewTokens(records, logger()).ResolveToken(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolving token: %w", err)
			}
			if t == nil {
				return fmt.Errorf("token %q not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user=%s role=%s created=%s\n", t.UserID, t.Role, t.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}

	issue := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "Sign a user bearer token with JWT_SECRET",
		Long: `Sign a user bearer token with JWT_SECRET, for local testing against
the HTTP API.

Examples:
  evervoicectl token issue user-123 --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			tok, err := httpapi.IssueUserToken(cfg.JWTSecret, args[0], issueTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	issue.Flags().DurationVar(&issueTTL, "ttl", 24*time.Hour, "Token lifetime")

	cmd.AddCommand(resolve, issue)
	return cmd
}
