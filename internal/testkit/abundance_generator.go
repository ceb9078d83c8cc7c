package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"proteodiff/domain/abundance"
)

// AbundanceGeneratorConfig configures the synthetic log2 abundance generator.
// Per-feature variances are drawn from a scaled inverse chi-squared
// distribution with PriorDF degrees of freedom and scale PriorVar, which is
// exactly the prior the moderation step assumes.
type AbundanceGeneratorConfig struct {
	FeatureCount      int      `json:"feature_count"`
	SamplesPerGroup   int      `json:"samples_per_group"`
	Groups            []string `json:"groups"`
	Baseline          float64  `json:"baseline"`
	PriorDF           int      `json:"prior_df"`
	PriorVar          float64  `json:"prior_var"`
	ChangedFraction   float64  `json:"changed_fraction"`
	EffectSize        float64  `json:"effect_size"`
	MissingRate       float64  `json:"missing_rate"`
	Seed              int64    `json:"seed"`
	IdenticalVariance bool     `json:"identical_variance"`
}

// DefaultAbundanceConfig returns a 2 x 3 design with 10% changed features
func DefaultAbundanceConfig() AbundanceGeneratorConfig {
	return AbundanceGeneratorConfig{
		FeatureCount:    2000,
		SamplesPerGroup: 3,
		Groups:          []string{"A", "B"},
		Baseline:        20,
		PriorDF:         4,
		PriorVar:        0.05,
		ChangedFraction: 0.1,
		EffectSize:      2,
		Seed:            42,
	}
}

// SyntheticExperiment is a generated matrix with its ground truth
type SyntheticExperiment struct {
	Matrix *abundance.Matrix
	Groups abundance.GroupAssignment
	// TrueLogFC is the injected second-minus-first group difference
	TrueLogFC map[string]float64
	// TrueVariance is the per-feature residual variance used
	TrueVariance map[string]float64
}

// AbundanceGenerator produces deterministic synthetic experiments
type AbundanceGenerator struct {
	config AbundanceGeneratorConfig
	rng    *rand.Rand
}

// NewAbundanceGenerator creates a new generator
func NewAbundanceGenerator(config AbundanceGeneratorConfig) *AbundanceGenerator {
	return &AbundanceGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds the experiment. Changed features are the first
// ChangedFraction of rows; their second group is shifted by EffectSize,
// alternating sign.
func (g *AbundanceGenerator) Generate() (*SyntheticExperiment, error) {
	cfg := g.config
	if len(cfg.Groups) < 2 || cfg.SamplesPerGroup < 1 || cfg.FeatureCount < 1 {
		return nil, fmt.Errorf("generator needs two groups, one sample per group and one feature")
	}

	var samples []string
	groups := abundance.GroupAssignment{}
	for _, grp := range cfg.Groups {
		for r := 1; r <= cfg.SamplesPerGroup; r++ {
			id := fmt.Sprintf("%s_%d", grp, r)
			samples = append(samples, id)
			groups[id] = grp
		}
	}

	changed := int(math.Round(cfg.ChangedFraction * float64(cfg.FeatureCount)))
	exp := &SyntheticExperiment{
		Groups:       groups,
		TrueLogFC:    make(map[string]float64, cfg.FeatureCount),
		TrueVariance: make(map[string]float64, cfg.FeatureCount),
	}

	ids := make([]string, cfg.FeatureCount)
	values := make([][]float64, cfg.FeatureCount)
	for i := 0; i < cfg.FeatureCount; i++ {
		id := fmt.Sprintf("PROT%05d", i+1)
		ids[i] = id

		variance := cfg.PriorVar
		if !cfg.IdenticalVariance && cfg.PriorDF > 0 {
			variance = float64(cfg.PriorDF) * cfg.PriorVar / g.chiSquared(cfg.PriorDF)
		}
		sd := math.Sqrt(variance)

		effect := 0.0
		if i < changed {
			effect = cfg.EffectSize
			if i%2 == 1 {
				effect = -effect
			}
		}
		exp.TrueLogFC[id] = effect
		exp.TrueVariance[id] = variance

		row := make([]float64, len(samples))
		for j, s := range samples {
			v := cfg.Baseline + g.rng.NormFloat64()*sd
			if groups[s] == cfg.Groups[1] {
				v += effect
			}
			if cfg.MissingRate > 0 && g.rng.Float64() < cfg.MissingRate {
				v = math.NaN()
			}
			row[j] = v
		}
		values[i] = row
	}

	m, err := abundance.NewMatrix(ids, samples, values)
	if err != nil {
		return nil, err
	}
	exp.Matrix = m
	return exp, nil
}

// ScaledInvChiSquaredVariances draws n sample variances whose true
// variances follow the prior and which each carry df degrees of freedom.
func (g *AbundanceGenerator) ScaledInvChiSquaredVariances(n, df int) []float64 {
	out := make([]float64, n)
	for i := range out {
		sigma2 := g.config.PriorVar
		if g.config.PriorDF > 0 {
			sigma2 = float64(g.config.PriorDF) * g.config.PriorVar / g.chiSquared(g.config.PriorDF)
		}
		out[i] = sigma2 * g.chiSquared(df) / float64(df)
	}
	return out
}

func (g *AbundanceGenerator) chiSquared(k int) float64 {
	sum := 0.0
	for i := 0; i < k; i++ {
		z := g.rng.NormFloat64()
		sum += z * z
	}
	return sum
}
