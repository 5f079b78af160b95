package commands

import (
	"fmt"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/progression"
	"github.com/spf13/cobra"
)

// NewTierCmd creates the tier command.
func NewTierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tier",
		Short: "Manage subscription tiers",
	}

	grant := &cobra.Command{
		Use:   "grant <user-id> <tier>",
		Short: "Grant a tier and its one-time bonus",
		Long: `Grant a tier and its one-time bonus.

Granting a tier the user already holds, or one below it, reports
already_upgraded and changes nothing.

Examples:
  evervoicectl tier grant user-123 advanced`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := core.ParseTier(args[1])
			if err != nil {
				return err
			}
			records, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			ledger := progression.NewLedger(records, logger())
			result, p, err := ledger.GrantTier(cmd.Context(), args[0], tier)
			if err != nil {
				return fmt.Errorf("granting tier: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: tier=%s xp=%d energy=%d\n", result, p.Tier, p.XP, p.Energy)
			return nil
		},
	}

	cmd.AddCommand(grant)
	return cmd
}
