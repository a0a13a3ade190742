package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xela07ax/novel-moderation/internal/domain"
	"github.com/xela07ax/novel-moderation/internal/repository/postgres"
)

var (
	queueStatus int
	queueLimit  int
	queueJSON   bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List ledger entries waiting for a human decision",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status := domain.AuditStatus(queueStatus)
		if !status.Valid() {
			return fmt.Errorf("%w: %d", domain.ErrInvalidStatus, queueStatus)
		}

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := postgres.NewLedgerRepo(store).ListByStatus(ctx, status, queueLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if queueJSON {
			views := make([]domain.LedgerView, 0, len(entries))
			for i := range entries {
				views = append(views, entries[i].View())
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(views)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tENTITY\tCONFIDENCE\tUPDATED\tREASON")
		for _, e := range entries {
			conf := "-"
			if e.Confidence.Valid {
				conf = fmt.Sprintf("%.2f", e.Confidence.Float64)
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
				e.ID, e.EntityKind, e.EntityID, conf, e.UpdatedAt.Format("2006-01-02 15:04"), e.Reason.String)
		}
		return w.Flush()
	},
}

func init() {
	queueCmd.Flags().IntVar(&queueStatus, "status", int(domain.StatusPending), "Ledger status: 0 pending, 1 passed, 2 rejected")
	queueCmd.Flags().IntVarP(&queueLimit, "limit", "n", 50, "Maximum entries")
	queueCmd.Flags().BoolVar(&queueJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(queueCmd)
}
