package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// LedgerOptions holds flags for the ledger command.
type LedgerOptions struct {
	All    bool
	Forget bool
}

func newLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{}

	cmd := &cobra.Command{
		Use:   "ledger <resource-id>",
		Short: "Show unfinished render runs of a resource",
		Long: `Read the crash ledger and list the render worker runs recorded for a
resource id that never finished. Enough unfinished runs make the player
downgrade the resource; --forget clears its history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(cmd.Context(), rootOpts, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&opts.All, "all", "a", false, "include finished runs")
	cmd.Flags().BoolVar(&opts.Forget, "forget", false, "delete the recorded runs")

	return cmd
}

func runLedger(ctx context.Context, rootOpts *RootOptions, opts *LedgerOptions, resourceID string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := rootOpts.store()
	if err != nil {
		return err
	}
	ledger, err := rootOpts.openLedger(store.Current())
	if err != nil {
		return err
	}
	defer ledger.Close()

	if opts.Forget {
		if err := ledger.Forget(ctx, resourceID); err != nil {
			return err
		}
		fmt.Fprintf(w, "forgot %s\n", resourceID)
		return nil
	}

	runs, err := ledger.Runs(ctx, resourceID)
	if err != nil {
		return err
	}
	unfinished, err := ledger.Unfinished(ctx, resourceID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %d unfinished of %d runs\n", resourceID, unfinished, len(runs))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range runs {
		if r.Finished() && !opts.All {
			continue
		}
		finished := "-"
		if r.Finished() {
			finished = r.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Thread, r.BegunAt.Format(time.RFC3339), finished)
	}
	return tw.Flush()
}
