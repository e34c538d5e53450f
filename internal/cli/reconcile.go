package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/brewmap/brewmap/internal/jobs"
	"github.com/brewmap/brewmap/internal/logging"
)

func (e *env) reconcileCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recount cafe vote counters from the vote tables",
		Long: "Recount cafe vote counters from the vote tables. Needs DATABASE_URL " +
			"pointing at the platform's Postgres.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r, err := e.app.Reconciler(ctx)
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("DATABASE_URL is not set")
			}

			if dryRun {
				drift, err := r.Drift(ctx)
				if err != nil {
					return err
				}
				if e.out.JSON() {
					return e.out.Value(drift)
				}
				if len(drift) == 0 {
					e.out.Success("all counters match")
					return nil
				}
				rows := make([][]string, 0, len(drift))
				for _, d := range drift {
					rows = append(rows, []string{
						d.CafeID,
						d.Name,
						strconv.Itoa(d.Upvotes) + " → " + strconv.Itoa(d.ActualUpvotes),
						strconv.Itoa(d.Downvotes) + " → " + strconv.Itoa(d.ActualDownvotes),
					})
				}
				return e.out.Table([]string{"ID", "NAME", "UPVOTES", "DOWNVOTES"}, rows)
			}

			n, err := jobs.NewScheduler(r, "", logging.NewDiscard(), nil).RunOnce(ctx)
			if err != nil {
				return err
			}
			if e.out.JSON() {
				return e.out.Value(map[string]int{"corrected": n})
			}
			e.out.Success("corrected %d cafe(s)", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list drifted cafes without changing them")
	return cmd
}
