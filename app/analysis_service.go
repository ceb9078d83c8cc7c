package app

import (
	"context"
	"fmt"
	"time"

	"proteodiff/adapters/stats/classify"
	"proteodiff/adapters/stats/contrast"
	"proteodiff/adapters/stats/design"
	"proteodiff/adapters/stats/ebayes"
	"proteodiff/adapters/stats/fdr"
	"proteodiff/adapters/stats/lmfit"
	"proteodiff/domain/abundance"
	"proteodiff/domain/core"
	"proteodiff/internal/errors"
	"proteodiff/internal/logger"
	"proteodiff/ports"
)

// AnalysisService runs the differential-abundance pipeline:
// design -> fit -> contrast -> moderation -> FDR -> classification.
type AnalysisService struct {
	repo    ports.ResultRepository
	workers int
}

// NewAnalysisService creates the service. repo may be nil.
func NewAnalysisService(repo ports.ResultRepository, workers int) *AnalysisService {
	return &AnalysisService{repo: repo, workers: workers}
}

// AnalysisRequest defines one analysis run
type AnalysisRequest struct {
	Matrix   *abundance.Matrix
	Groups   abundance.GroupAssignment
	Settings abundance.Settings
	// Log2 transforms raw intensities before fitting.
	Log2 bool
	// Levels optionally fixes the design column order.
	Levels        []string
	SortLevels    bool
	SampleWeights []float64
}

// Run executes the pipeline once and returns the complete result table.
// Design, matrix and correction errors abort the run; per-feature
// problems are reported on the feature rows.
func (s *AnalysisService) Run(ctx context.Context, req AnalysisRequest) (*abundance.ResultTable, error) {
	startTime := time.Now()
	runID := core.NewRunID()
	ctx = logger.WithRun(ctx, runID.String())
	log := logger.C(ctx)

	if req.Matrix == nil {
		return nil, errors.InvalidInput("analysis requires an abundance matrix")
	}
	if err := req.Matrix.Validate(); err != nil {
		return nil, errors.FromDomain(err, "invalid abundance matrix")
	}
	settings := req.Settings
	if settings.FitMode == "" {
		settings.FitMode = abundance.FitLeastSquares
	}
	thresholds := classify.Thresholds{FC: settings.FCThreshold, Alpha: settings.Alpha}
	if err := thresholds.Validate(); err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "invalid thresholds")
	}

	m := req.Matrix
	if req.Log2 {
		m = m.Log2()
	}

	d, err := design.Build(m.SampleIDs, req.Groups, design.Options{
		Levels:     req.Levels,
		SortLevels: req.SortLevels,
		Intercept:  settings.Intercept,
	})
	if err != nil {
		return nil, errors.FromDomain(err, "design matrix")
	}
	c, err := contrast.NewPair(d, settings.Numerator, settings.Denominator)
	if err != nil {
		return nil, errors.FromDomain(err, "contrast definition")
	}

	log.Info().
		Int("features", m.NumFeatures()).
		Int("samples", m.NumSamples()).
		Strs("levels", d.Levels).
		Str("contrast", c.Name).
		Str("fit_mode", string(settings.FitMode)).
		Msg("analysis started")

	fitter := lmfit.NewFitter(settings.FitMode, s.workers)
	fitter.SampleWeights = req.SampleWeights
	fit, err := fitter.Fit(ctx, m, d)
	if err != nil {
		return nil, errors.FromDomain(err, "linear model fit")
	}

	contrasts := contrast.Evaluate(fit, c)

	moderated, err := ebayes.NewModerator(s.workers).Moderate(ctx, contrasts)
	if err != nil {
		return nil, errors.Wrap(err, "variance moderation")
	}

	pvalues := make([]float64, len(moderated.Results))
	for i, r := range moderated.Results {
		pvalues[i] = r.PValue
	}
	adjusted, err := fdr.BenjaminiHochberg(pvalues)
	if err != nil {
		return nil, errors.FromDomain(err, "multiple testing correction")
	}

	table := &abundance.ResultTable{
		RunID:       runID,
		Fingerprint: Fingerprint(req.Matrix, req.Groups, settings, req.Log2),
		CreatedAt:   core.Now(),
		Settings:    settings,
		Prior:       moderated.Prior,
		Results:     make([]abundance.Result, len(moderated.Results)),
	}
	if moderated.Warning != nil {
		table.Warnings = append(table.Warnings, moderated.Warning.Error())
	}

	for i, r := range moderated.Results {
		table.Results[i] = abundance.Result{
			FeatureID:     r.FeatureID,
			LogFC:         r.Estimate,
			AveExpr:       r.AveExpr,
			T:             r.T,
			ModeratedT:    r.ModeratedT,
			PValue:        r.PValue,
			AdjPValue:     adjusted[i],
			ModeratedVar:  r.S2Post,
			ModeratedDF:   r.DFTotal,
			Status:        classify.Classify(r.Estimate, adjusted[i], thresholds),
			Tested:        r.Tested,
			UntestableWhy: r.Reason,
		}
	}

	summary := table.Summarize()
	log.Info().
		Int("tested", summary.Tested).
		Int("untestable", summary.Untestable).
		Int("increased", summary.Increased).
		Int("decreased", summary.Decreased).
		Float64("prior_df", table.Prior.D0).
		Float64("prior_var", table.Prior.S02).
		Str("fingerprint", table.Fingerprint.Short()).
		Dur("elapsed", time.Since(startTime)).
		Msg("analysis finished")

	if s.repo != nil {
		if err := s.repo.SaveTable(ctx, table); err != nil {
			return table, errors.Wrap(err, "failed to persist result table")
		}
	}

	return table, nil
}

// Fingerprint identifies the inputs of a run. Two runs with the same
// fingerprint produce identical result rows.
func Fingerprint(m *abundance.Matrix, groups abundance.GroupAssignment, settings abundance.Settings, log2 bool) core.Hash {
	fp := core.NewFingerprinter()
	m.Fingerprint(fp)
	fp.StringMap(groups)
	fp.String(string(settings.FitMode)).
		String(settings.Numerator).
		String(settings.Denominator).
		Float(settings.FCThreshold).
		Float(settings.Alpha).
		String(fmt.Sprintf("intercept=%t log2=%t", settings.Intercept, log2))
	return fp.Sum()
}

// DefaultSettings returns the documented defaults for a B - A comparison
func DefaultSettings(numerator, denominator string) abundance.Settings {
	th := classify.DefaultThresholds()
	return abundance.Settings{
		FitMode:     abundance.FitLeastSquares,
		Numerator:   numerator,
		Denominator: denominator,
		FCThreshold: th.FC,
		Alpha:       th.Alpha,
	}
}
