package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/funnel-optimizer/internal/governor"
	"github.com/sells-group/funnel-optimizer/internal/model"
	"github.com/sells-group/funnel-optimizer/internal/store"
)

var (
	changelogStatus string
	changelogLimit  int
)

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Inspect and act on governed configuration changes",
}

var changelogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List changelog entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		filter := store.ChangelogFilter{Limit: changelogLimit}
		if changelogStatus != "" {
			filter.Status = model.ChangeStatus(changelogStatus)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListChangelogEntries(ctx, filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCATEGORY\tTYPE\tCREATED\tTITLE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.Status, e.Category, e.ChangeType,
				e.CreatedAt.Format("2006-01-02 15:04"), e.Title)
		}
		return w.Flush()
	},
}

// changeAction builds the approve/reject/apply/rollback subcommands, which
// differ only in the governor transition they invoke.
func changeAction(use, short string, act func(ctx context.Context, gov *governor.Governor, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			gov, err := initGovernor(st)
			if err != nil {
				return err
			}

			if err := act(ctx, gov, args[0]); err != nil {
				return err
			}

			entry, err := st.GetChangelogEntry(ctx, args[0])
			if err != nil {
				return err
			}
			if entry == nil {
				return eris.Errorf("changelog entry not found: %s", args[0])
			}
			fmt.Printf("%s: %s\n", entry.ID, entry.Status)
			return nil
		},
	}
}

func init() {
	changelogListCmd.Flags().StringVar(&changelogStatus, "status", "", "filter by status (pending, approved, rejected, applied, rolled_back)")
	changelogListCmd.Flags().IntVar(&changelogLimit, "limit", 50, "maximum entries to list")

	changelogCmd.AddCommand(changelogListCmd)
	changelogCmd.AddCommand(changeAction("approve", "Approve a pending change",
		func(ctx context.Context, g *governor.Governor, id string) error { return g.Approve(ctx, id) }))
	changelogCmd.AddCommand(changeAction("reject", "Reject a pending change",
		func(ctx context.Context, g *governor.Governor, id string) error { return g.Reject(ctx, id) }))
	changelogCmd.AddCommand(changeAction("apply", "Apply an approved change",
		func(ctx context.Context, g *governor.Governor, id string) error { return g.Apply(ctx, id) }))
	changelogCmd.AddCommand(changeAction("rollback", "Mark an applied change rolled back",
		func(ctx context.Context, g *governor.Governor, id string) error { return g.Rollback(ctx, id) }))
	rootCmd.AddCommand(changelogCmd)
}
