package excel

import (
	"regexp"
	"strings"
)

// WideConfig describes a feature-by-sample matrix file: one ID column and
// one intensity column per sample
type WideConfig struct {
	IDColumn string `yaml:"id_column"` // first column when empty
	// SampleColumns lists intensity columns explicitly. When empty, columns
	// matching SamplePattern are used, or every column whose non-missing
	// cells are all numeric.
	SampleColumns []string `yaml:"sample_columns"`
	SamplePattern string   `yaml:"sample_pattern"`
	// StripPrefix is removed from sample column names, e.g. "Intensity "
	StripPrefix string `yaml:"strip_prefix"`
	Sheet       string `yaml:"sheet"`
}

// LongConfig describes a precursor or peptide level report with one row
// per (feature, sample) observation
type LongConfig struct {
	FeatureColumn     string   `yaml:"feature_column"`
	SampleColumn      string   `yaml:"sample_column"`
	ValueColumn       string   `yaml:"value_column"`
	QValueColumns     []string `yaml:"qvalue_columns"`
	QValueThreshold   float64  `yaml:"qvalue_threshold"`
	ContaminantPrefix string   `yaml:"contaminant_prefix"`
	Aggregate         string   `yaml:"aggregate"` // first, max or sum
	Sheet             string   `yaml:"sheet"`
}

// DefaultLongConfig matches DIA-NN style precursor reports
func DefaultLongConfig() LongConfig {
	return LongConfig{
		FeatureColumn:     "Protein.Group",
		SampleColumn:      "Run",
		ValueColumn:       "PG.MaxLFQ",
		QValueColumns:     []string{"Q.Value", "PG.Q.Value"},
		QValueThreshold:   0.01,
		ContaminantPrefix: "CON__",
		Aggregate:         AggregateFirst,
	}
}

const (
	AggregateFirst = "first"
	AggregateMax   = "max"
	AggregateSum   = "sum"
)

func (c WideConfig) sampleMatcher() (*regexp.Regexp, error) {
	if strings.TrimSpace(c.SamplePattern) == "" {
		return nil, nil
	}
	return regexp.Compile(c.SamplePattern)
}
