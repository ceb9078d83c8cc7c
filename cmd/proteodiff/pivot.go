package main

import (
	"path/filepath"
	"strings"

	"proteodiff/adapters/excel"
	"proteodiff/internal/errors"

	"github.com/spf13/cobra"
)

func newPivotCmd(c *cli) *cobra.Command {
	cfg := excel.DefaultLongConfig()
	var out string

	cmd := &cobra.Command{
		Use:   "pivot <report>",
		Short: "Turn a long precursor/protein report into a wide abundance matrix",
		Long: `Pivot a long report (one row per feature and run) into a feature-by-sample
matrix. Rows failing the q-value threshold or belonging to a contaminant group
are dropped; repeated observations are combined with --aggregate.

Example: proteodiff pivot report.tsv --value-column PG.MaxLFQ -o matrix.tsv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, stats, err := excel.Pivot(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}

			comma := '\t'
			if strings.EqualFold(filepath.Ext(out), ".csv") {
				comma = ','
			}
			w, done, err := c.createOutput(out)
			if err != nil {
				return err
			}
			if err := excel.WriteMatrix(w, m, comma); err != nil {
				done()
				return errors.IOError(out, err)
			}
			if err := done(); err != nil {
				return errors.IOError(out, err)
			}
			cmd.PrintErrf("pivoted %d of %d rows into %d features x %d samples\n",
				stats.Kept, stats.Rows, stats.Features, stats.Samples)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&cfg.FeatureColumn, "feature-column", cfg.FeatureColumn, "Feature id column")
	fl.StringVar(&cfg.SampleColumn, "sample-column", cfg.SampleColumn, "Sample/run column")
	fl.StringVar(&cfg.ValueColumn, "value-column", cfg.ValueColumn, "Quantity column")
	fl.StringSliceVar(&cfg.QValueColumns, "qvalue-columns", cfg.QValueColumns, "q-value columns to filter on")
	fl.Float64Var(&cfg.QValueThreshold, "qvalue", cfg.QValueThreshold, "Maximum q-value (0 disables)")
	fl.StringVar(&cfg.ContaminantPrefix, "contaminant-prefix", cfg.ContaminantPrefix, "Drop protein groups with a member starting with this prefix")
	fl.StringVar(&cfg.Aggregate, "aggregate", cfg.Aggregate, "Combine repeated observations: first, max or sum")
	fl.StringVar(&cfg.Sheet, "sheet", "", "Workbook sheet for XLSX input")
	fl.StringVarP(&out, "out", "o", "-", "Matrix file (.tsv, .csv) or - for stdout")

	return cmd
}
