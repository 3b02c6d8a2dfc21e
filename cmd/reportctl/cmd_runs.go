package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"reportanalyzer/internal/app"
	"reportanalyzer/internal/store"
)

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the most recent model calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			cfg, log, restore, err := setup()
			if err != nil {
				return err
			}
			defer restore()

			st, err := app.OpenStore(cmd.Context(), cfg.Store, log)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tPURPOSE\tMODEL\tLATENCY\tREPORT")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.CreatedAt.Format(time.DateTime), r.Purpose, r.ModelName,
					time.Duration(r.LatencyMS)*time.Millisecond, r.ReportID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultRunsLimit, "Number of runs to show")
	return cmd
}
