package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/progression"
	"github.com/spf13/cobra"
)

var (
	txLimit   int
	showSteps bool
)

// NewProfileCmd creates the profile command.
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect user progression",
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show XP, energy, tier and recent transactions",
		Long: `Show XP, energy, tier and recent transactions.

Examples:
  evervoicectl profile show user-123
  evervoicectl profile show user-123 --limit 50 --steps`,
		Args: cobra.ExactArgs(1),
		RunE: runProfileShow,
	}
	show.Flags().IntVar(&txLimit, "limit", 10, "Number of transactions to show")
	show.Flags().BoolVar(&showSteps, "steps", false, "Include completed training steps per role")

	cmd.AddCommand(show)
	return cmd
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	records, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	userID := args[0]
	ledger := progression.NewLedger(records, logger())
	p, err := records.GetProfile(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("getting profile: %w", err)
	}
	txs, err := ledger.Transactions(cmd.Context(), userID, txLimit)
	if err != nil {
		return fmt.Errorf("listing transactions: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:   %s\n", p.UserID)
	fmt.Fprintf(out, "Tier:   %s\n", p.Tier)
	fmt.Fprintf(out, "XP:     %d\n", p.XP)
	fmt.Fprintf(out, "Energy: %d\n", p.Energy)
	fmt.Fprintf(out, "Last:   %s\n", p.LastInteractionDate.Format(time.DateOnly))

	if showSteps {
		fmt.Fprintln(out, "\nTraining steps:")
		for _, role := range core.Roles {
			steps, err := records.CompletedSteps(cmd.Context(), userID, role)
			if err != nil {
				return fmt.Errorf("listing steps: %w", err)
			}
			if len(steps) > 0 {
				fmt.Fprintf(out, "  %s: %v\n", role, steps)
			}
		}
	}

	if len(txs) == 0 {
		return nil
	}
	fmt.Fprintln(out, "\nTransactions:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tXP\tENERGY\tREASON")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%+d\t%+d\t%s\n", tx.CreatedAt.Format(time.DateTime), tx.XPDelta, tx.EnergyDelta, tx.Reason)
	}
	return w.Flush()
}
