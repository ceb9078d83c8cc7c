// Package ebayes moderates per-feature variances toward a prior pooled
// across all features and computes moderated t-statistics.
package ebayes

import (
	"context"
	"math"
	"runtime"

	"proteodiff/adapters/stats/contrast"
	"proteodiff/domain/abundance"
	"proteodiff/internal/logger"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

// Moderated extends a contrast result with moderated statistics. Untested
// features keep NaN in every moderated field.
type Moderated struct {
	contrast.Result
	S2Post     float64
	DFTotal    float64
	ModeratedT float64
	PValue     float64
}

// Outcome is the product of one moderation pass
type Outcome struct {
	Prior   abundance.Prior
	Results []Moderated
	// Warning is set when the prior could not be fit and shrinkage was disabled.
	Warning error
}

// Moderator performs the single reduction and then fans out
type Moderator struct {
	Workers int
}

// NewModerator creates a moderator. Workers <= 0 uses GOMAXPROCS.
func NewModerator(workers int) *Moderator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Moderator{Workers: workers}
}

// Moderate estimates the prior from every tested feature and then computes
// moderated statistics per feature. A prior fit failure is not an error;
// it is returned in Outcome.Warning with D0 = 0.
func (m *Moderator) Moderate(ctx context.Context, results []contrast.Result) (*Outcome, error) {
	log := logger.C(ctx).With().Str("component", "ebayes").Logger()

	variances := make([]float64, 0, len(results))
	dfs := make([]float64, 0, len(results))
	pooledDF := 0.0
	for _, r := range results {
		if !r.Tested {
			continue
		}
		variances = append(variances, r.Sigma*r.Sigma)
		dfs = append(dfs, r.DF)
		pooledDF += r.DF
	}

	prior, warn := FitPrior(variances, dfs)
	if warn != nil {
		log.Warn().Err(warn).Int("testable", len(variances)).Msg("variance prior not estimated, shrinkage disabled")
	} else {
		log.Debug().Float64("d0", prior.D0).Float64("s0_squared", prior.S02).Msg("variance prior fitted")
	}

	out := &Outcome{
		Prior:   prior,
		Results: make([]Moderated, len(results)),
		Warning: warn,
	}

	workers := max(m.Workers, 1)
	chunk := max((len(results)+workers-1)/workers, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(results); lo += chunk {
		hi := min(lo+chunk, len(results))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				out.Results[i] = moderateOne(results[i], prior, pooledDF)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func moderateOne(r contrast.Result, prior abundance.Prior, pooledDF float64) Moderated {
	mr := Moderated{
		Result:     r,
		S2Post:     math.NaN(),
		DFTotal:    math.NaN(),
		ModeratedT: math.NaN(),
		PValue:     math.NaN(),
	}
	if !r.Tested {
		return mr
	}

	mr.S2Post = PosteriorVariance(r.Sigma*r.Sigma, r.DF, prior)
	mr.DFTotal = math.Min(prior.D0+r.DF, pooledDF)
	mr.ModeratedT = contrast.Ratio(r.Estimate, r.StdevUnscaled*math.Sqrt(mr.S2Post))
	mr.PValue = TwoSidedP(mr.ModeratedT, mr.DFTotal)
	return mr
}

// TwoSidedP is P(|T| >= |t|) for a Student t with df degrees of freedom
func TwoSidedP(t, df float64) float64 {
	switch {
	case math.IsNaN(t) || !(df > 0):
		return math.NaN()
	case math.IsInf(t, 0):
		return 0
	case t == 0:
		return 1
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	return math.Min(math.Max(p, 0), 1)
}
