package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xela07ax/novel-moderation/internal/domain"
)

var (
	decideStatus   string
	decideReason   string
	decideOperator string
)

var decideCmd = &cobra.Command{
	Use:   "decide <ledger-id>",
	Short: "Record a manual pass/reject decision for a ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ledger id %q", args[0])
		}
		decision, err := parseDecisionFlag(decideStatus)
		if err != nil {
			return err
		}
		if decideOperator == "" {
			return fmt.Errorf("--operator is required")
		}

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		orch, closeFn, err := manualAuditor(ctx, store)
		if err != nil {
			return err
		}
		defer closeFn()

		entry, err := orch.ManualAudit(ctx, id, decision, decideReason, decideOperator)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d -> %s (%s)\n", entry.EntityKind, entry.EntityID, entry.Status, entry.Reason.String)
		return nil
	},
}

// parseDecisionFlag принимает pass/reject или числовой статус.
func parseDecisionFlag(s string) (int, error) {
	switch s {
	case "pass", "passed":
		return int(domain.StatusPassed), nil
	case "reject", "rejected":
		return int(domain.StatusRejected), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q (use pass or reject)", domain.ErrInvalidStatus, s)
	}
	if _, err := domain.ParseDecision(n); err != nil {
		return 0, err
	}
	return n, nil
}

func init() {
	decideCmd.Flags().StringVarP(&decideStatus, "status", "s", "", "pass or reject")
	decideCmd.Flags().StringVarP(&decideReason, "reason", "r", "", "Reason shown to the author")
	decideCmd.Flags().StringVar(&decideOperator, "operator", "", "Operator id written to the ledger")
	decideCmd.MarkFlagRequired("status")
	rootCmd.AddCommand(decideCmd)
}
