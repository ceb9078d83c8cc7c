package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"proteodiff/adapters/excel"
	"proteodiff/adapters/report"
	"proteodiff/adapters/stats/classify"
	"proteodiff/app"
	"proteodiff/domain/abundance"
	"proteodiff/domain/core"
	"proteodiff/internal/config"
	"proteodiff/internal/errors"
	"proteodiff/internal/logger"

	"github.com/spf13/cobra"
)

type analyzeFlags struct {
	design       string
	groupPattern string
	numerator    string
	denominator  string
	intercept    bool
	fitMode      string
	fcThreshold  float64
	alpha        float64
	workers      int
	log2         bool
	sortLevels   bool

	long          bool
	idColumn      string
	samplePattern string
	stripPrefix   string
	sheet         string

	out     string
	format  string
	report  string
	topN    int
	persist bool
}

func newAnalyzeCmd(c *cli) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze <matrix>",
		Short: "Test every feature of an abundance matrix for a two-group difference",
		Long: `Analyze a wide feature-by-sample matrix (TSV, CSV or XLSX), or a long
precursor report with --long.

Samples are assigned to groups by a YAML design file (--design) or by a regular
expression over sample names (--group-pattern, default strips a trailing
replicate number so ctrl_1 and ctrl_2 form the group ctrl).

Example: proteodiff analyze intensities.tsv --numerator trt --denominator ctrl -o results.xlsx --report summary.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAnalyze(cmd, args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.design, "design", "d", "", "YAML design file mapping samples to groups")
	fl.StringVar(&f.groupPattern, "group-pattern", "", "Regex whose first capture group is the sample's group")
	fl.StringVar(&f.numerator, "numerator", "", "Group in the numerator of logFC (env PD_NUMERATOR)")
	fl.StringVar(&f.denominator, "denominator", "", "Reference group (env PD_DENOMINATOR)")
	fl.BoolVar(&f.intercept, "intercept", false, "Use an intercept parameterization (env PD_INTERCEPT)")
	fl.StringVar(&f.fitMode, "fit-mode", "ls", "ls or robust (env PD_FIT_MODE)")
	fl.Float64Var(&f.fcThreshold, "fc-threshold", classify.DefaultFCThreshold, "Minimum |log2 fold change|, default log2(1.5) (env PD_FC_THRESHOLD)")
	fl.Float64Var(&f.alpha, "alpha", classify.DefaultAlpha, "Adjusted p-value cutoff (env PD_ALPHA)")
	fl.IntVar(&f.workers, "workers", 0, "Parallel workers (env PD_WORKERS)")
	fl.BoolVar(&f.log2, "log2", true, "Log2-transform raw intensities (env PD_LOG2)")
	fl.BoolVar(&f.sortLevels, "sort-levels", false, "Order design columns alphabetically instead of first-seen")

	fl.BoolVar(&f.long, "long", false, "Input is a long report; pivot it with the default column names first")
	fl.StringVar(&f.idColumn, "id-column", "", "Feature id column (default first column)")
	fl.StringVar(&f.samplePattern, "sample-pattern", "", "Regex selecting intensity columns")
	fl.StringVar(&f.stripPrefix, "strip-prefix", "", "Prefix removed from intensity column names")
	fl.StringVar(&f.sheet, "sheet", "", "Workbook sheet for XLSX input")

	fl.StringVarP(&f.out, "out", "o", "-", "Results file (.tsv, .csv, .xlsx) or - for stdout")
	fl.StringVar(&f.format, "format", "", "Output format when writing to stdout (tsv, csv)")
	fl.StringVar(&f.report, "report", "", "Write a summary report (.md or .html)")
	fl.IntVar(&f.topN, "top", 20, "Features listed in the report")
	fl.BoolVar(&f.persist, "persist", false, "Store the run in DATABASE_URL")

	return cmd
}

// apply overrides environment settings with explicitly set flags
func (f analyzeFlags) apply(cmd *cobra.Command, a *config.AnalysisConfig) {
	changed := cmd.Flags().Changed
	if changed("numerator") {
		a.Numerator = f.numerator
	}
	if changed("denominator") {
		a.Denominator = f.denominator
	}
	if changed("intercept") {
		a.Intercept = f.intercept
	}
	if changed("fit-mode") {
		a.FitMode = strings.ToLower(f.fitMode)
	}
	if changed("fc-threshold") {
		a.FCThreshold = f.fcThreshold
	}
	if changed("alpha") {
		a.Alpha = f.alpha
	}
	if changed("workers") {
		a.Workers = f.workers
	}
	if changed("log2") {
		a.Log2 = f.log2
	}
	if changed("group-pattern") {
		a.GroupPattern = f.groupPattern
	}
}

// runAnalyze layers settings as env < design sheet < flags
func (c *cli) runAnalyze(cmd *cobra.Command, input string, f analyzeFlags) error {
	ctx := cmd.Context()
	log := logger.Named("analyze")

	a := c.cfg.Analysis
	var sheet *config.DesignFile
	if f.design != "" {
		var err error
		if sheet, err = config.LoadDesignFile(f.design); err != nil {
			return err
		}
		sheet.Apply(&a)
	}
	f.apply(cmd, &a)

	cfg := *c.cfg
	cfg.Analysis = a
	if err := cfg.Validate(); err != nil {
		return err
	}

	m, err := c.readInput(ctx, input, f)
	if err != nil {
		return err
	}

	m, groups, err := assignGroups(m, sheet, a.GroupPattern)
	if err != nil {
		return errors.FromDomain(err, "sample groups")
	}

	var levels []string
	if sheet != nil {
		levels = sheet.Levels
	}
	if a.Numerator == "" || a.Denominator == "" {
		found := groups.Levels(m.SampleIDs)
		if len(found) != 2 {
			return errors.InvalidInput(fmt.Sprintf("found groups %v; choose a pair with --numerator and --denominator", found))
		}
		a.Denominator, a.Numerator = found[0], found[1]
		log.Info().Str("numerator", a.Numerator).Str("denominator", a.Denominator).Msg("contrast inferred from sample order")
	}

	mode, ok := abundance.ParseFitMode(a.FitMode)
	if !ok {
		return errors.ConfigInvalid(fmt.Sprintf("unknown fit mode %q", a.FitMode))
	}

	var weights []float64
	if sheet != nil && len(sheet.Weights) > 0 {
		weights = make([]float64, len(m.SampleIDs))
		for j, s := range m.SampleIDs {
			weights[j] = 1
			if w, ok := sheet.Weights[s]; ok {
				weights[j] = w
			}
		}
	}

	svc := app.NewAnalysisService(nil, a.Workers)
	if f.persist {
		repo, closeRepo, err := c.openRepository(ctx)
		if err != nil {
			return err
		}
		defer closeRepo()
		svc = app.NewAnalysisService(repo, a.Workers)
	}

	table, err := svc.Run(ctx, app.AnalysisRequest{
		Matrix: m,
		Groups: groups,
		Settings: abundance.Settings{
			FitMode:     mode,
			Numerator:   a.Numerator,
			Denominator: a.Denominator,
			FCThreshold: a.FCThreshold,
			Alpha:       a.Alpha,
			Intercept:   a.Intercept,
		},
		Log2:          a.Log2,
		Levels:        levels,
		SortLevels:    f.sortLevels,
		SampleWeights: weights,
	})
	if err != nil {
		return err
	}

	if err := c.writeResults(f, table); err != nil {
		return err
	}
	if f.report != "" {
		if err := c.writeReport(f, table); err != nil {
			return err
		}
	}

	sum := table.Summarize()
	log.Info().
		Str("run_id", table.RunID.String()).
		Int("increased", sum.Increased).
		Int("decreased", sum.Decreased).
		Int("untestable", sum.Untestable).
		Msg("done")
	return nil
}

func (c *cli) readInput(ctx context.Context, input string, f analyzeFlags) (*abundance.Matrix, error) {
	if f.long {
		lc := excel.DefaultLongConfig()
		lc.Sheet = f.sheet
		m, _, err := excel.Pivot(ctx, input, lc)
		return m, err
	}
	return excel.NewMatrixReader(input, excel.WideConfig{
		IDColumn:      f.idColumn,
		SamplePattern: f.samplePattern,
		StripPrefix:   f.stripPrefix,
		Sheet:         f.sheet,
	}).ReadMatrix(ctx)
}

// assignGroups restricts the matrix to the sheet's samples when a sheet is
// given, otherwise derives groups from sample names
func assignGroups(m *abundance.Matrix, sheet *config.DesignFile, pattern string) (*abundance.Matrix, abundance.GroupAssignment, error) {
	if sheet == nil || len(sheet.Samples) == 0 {
		groups, err := abundance.GroupsFromSampleNames(m.SampleIDs, pattern)
		return m, groups, err
	}

	present := make(map[string]bool, len(m.SampleIDs))
	for _, s := range m.SampleIDs {
		present[s] = true
	}
	for s := range sheet.Samples {
		if !present[s] {
			return nil, nil, fmt.Errorf("%w: design file sample %q is not in the matrix", core.ErrDesign, s)
		}
	}
	var keep []string
	for _, s := range m.SampleIDs {
		if _, ok := sheet.Samples[s]; ok {
			keep = append(keep, s)
		}
	}
	sub, err := m.SelectSamples(keep)
	if err != nil {
		return nil, nil, err
	}
	return sub, abundance.GroupAssignment(sheet.Samples), nil
}

func (c *cli) writeResults(f analyzeFlags, table *abundance.ResultTable) error {
	target := f.out
	if (target == "" || target == "-") && f.format != "" {
		target = f.format
	}
	writer, err := excel.WriterFor(target)
	if err != nil {
		return errors.InvalidInput(err.Error())
	}
	w, done, err := c.createOutput(f.out)
	if err != nil {
		return err
	}
	if err := writer.WriteTable(w, table); err != nil {
		done()
		return errors.IOError(f.out, err)
	}
	if err := done(); err != nil {
		return errors.IOError(f.out, err)
	}
	return nil
}

func (c *cli) writeReport(f analyzeFlags, table *abundance.ResultTable) error {
	opts := report.DefaultOptions()
	opts.TopN = f.topN
	ext := strings.ToLower(filepath.Ext(f.report))
	opts.HTML = ext == ".html" || ext == ".htm"

	out, err := os.Create(f.report)
	if err != nil {
		return errors.IOError(f.report, err)
	}
	if err := report.Write(out, table, opts); err != nil {
		out.Close()
		return errors.IOError(f.report, err)
	}
	return out.Close()
}
