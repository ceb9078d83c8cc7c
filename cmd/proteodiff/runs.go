package main

import (
	"fmt"
	"text/tabwriter"

	"proteodiff/domain/core"
	"proteodiff/internal/errors"

	"github.com/spf13/cobra"
)

func newRunsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List or export analysis runs stored in DATABASE_URL",
	}
	cmd.AddCommand(newRunsListCmd(c), newRunsShowCmd(c))
	return cmd
}

func newRunsListCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := c.openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tCREATED\tCONTRAST\tFIT\tTESTED\tUP\tDOWN\tFINGERPRINT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s - %s\t%s\t%d\t%d\t%d\t%s\n",
					r.RunID, r.CreatedAt, r.Settings.Numerator, r.Settings.Denominator, r.Settings.FitMode,
					r.Summary.Tested, r.Summary.Increased, r.Summary.Decreased, r.Fingerprint.Short())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs listed")
	return cmd
}

func newRunsShowCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Export the result table of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := core.ParseRunID(args[0])
			if err != nil {
				return errors.InvalidInput(fmt.Sprintf("invalid run id %q", args[0]))
			}
			repo, closeRepo, err := c.openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			table, err := repo.GetTable(cmd.Context(), runID)
			if err != nil {
				return err
			}
			return c.writeResults(analyzeFlags{out: out}, table)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Results file (.tsv, .csv, .xlsx) or - for stdout")
	return cmd
}
