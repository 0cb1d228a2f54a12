package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunsCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		Example: `  rigel runs
  rigel runs --limit 5
  rigel runs 0b7f2c1e-5d0a-4d8e-9a51-3c2b1f0e7d6a`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(viper.GetString("db"))
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				result, err := store.GetRun(ctx, args[0])
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				data, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(out, string(data))
				return nil
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				data, _ := json.MarshalIndent(runs, "", "  ")
				fmt.Fprintln(out, string(data))
				return nil
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTATUS\tANSWER\tCANDIDATES\tSTARTED\tPROBLEM")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					r.RunID, r.Status, truncate(r.Answer, 20), r.Candidates, r.Runs,
					r.StartedAt.Local().Format(time.DateTime), truncate(oneLine(r.Problem), 50))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
