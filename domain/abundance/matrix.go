// Package abundance holds the feature x sample measurement types that flow
// through the differential-abundance pipeline.
package abundance

import (
	"fmt"
	"math"

	"proteodiff/domain/core"
)

// Matrix is a features x samples table of abundances. Missing cells are NaN.
// Rows are indexed like FeatureIDs, columns like SampleIDs.
type Matrix struct {
	FeatureIDs []string    `json:"feature_ids"`
	SampleIDs  []string    `json:"sample_ids"`
	Values     [][]float64 `json:"values"`
}

// NewMatrix validates shape and identifier uniqueness
func NewMatrix(featureIDs, sampleIDs []string, values [][]float64) (*Matrix, error) {
	m := &Matrix{FeatureIDs: featureIDs, SampleIDs: sampleIDs, Values: values}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the matrix invariants
func (m *Matrix) Validate() error {
	if len(m.SampleIDs) == 0 {
		return core.NewMatrixError("no samples")
	}
	if len(m.FeatureIDs) != len(m.Values) {
		return core.NewMatrixError(fmt.Sprintf("%d feature ids for %d rows", len(m.FeatureIDs), len(m.Values)))
	}
	if err := unique("feature", m.FeatureIDs); err != nil {
		return err
	}
	if err := unique("sample", m.SampleIDs); err != nil {
		return err
	}
	for i, row := range m.Values {
		if len(row) != len(m.SampleIDs) {
			return core.NewMatrixError(fmt.Sprintf("row %s has %d values, want %d", m.FeatureIDs[i], len(row), len(m.SampleIDs)))
		}
	}
	return nil
}

func unique(kind string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return core.NewMatrixError(fmt.Sprintf("empty %s id", kind))
		}
		if _, ok := seen[id]; ok {
			return core.NewMatrixError(fmt.Sprintf("duplicate %s id %q", kind, id))
		}
		seen[id] = struct{}{}
	}
	return nil
}

// NumFeatures returns the row count
func (m *Matrix) NumFeatures() int { return len(m.FeatureIDs) }

// NumSamples returns the column count
func (m *Matrix) NumSamples() int { return len(m.SampleIDs) }

// Observed reports whether a cell holds a usable value. NaN and ±Inf
// (log2 of zero written by R as -Inf) count as missing.
func Observed(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// HasMissing reports whether any cell is not Observed
func (m *Matrix) HasMissing() bool {
	for _, row := range m.Values {
		for _, v := range row {
			if !Observed(v) {
				return true
			}
		}
	}
	return false
}

// Log2 returns a transformed copy. Non-positive and non-finite intensities
// become missing.
func (m *Matrix) Log2() *Matrix {
	out := &Matrix{
		FeatureIDs: m.FeatureIDs,
		SampleIDs:  m.SampleIDs,
		Values:     make([][]float64, len(m.Values)),
	}
	for i, row := range m.Values {
		r := make([]float64, len(row))
		for j, v := range row {
			if v > 0 && !math.IsInf(v, 0) {
				r[j] = math.Log2(v)
			} else {
				r[j] = math.NaN()
			}
		}
		out.Values[i] = r
	}
	return out
}

// SelectSamples returns a view restricted to the given sample ids in that order
func (m *Matrix) SelectSamples(ids []string) (*Matrix, error) {
	index := make(map[string]int, len(m.SampleIDs))
	for j, s := range m.SampleIDs {
		index[s] = j
	}
	cols := make([]int, len(ids))
	for k, id := range ids {
		j, ok := index[id]
		if !ok {
			return nil, core.NewMatrixError(fmt.Sprintf("unknown sample %q", id))
		}
		cols[k] = j
	}
	out := &Matrix{
		FeatureIDs: m.FeatureIDs,
		SampleIDs:  append([]string(nil), ids...),
		Values:     make([][]float64, len(m.Values)),
	}
	for i, row := range m.Values {
		r := make([]float64, len(cols))
		for k, j := range cols {
			r[k] = row[j]
		}
		out.Values[i] = r
	}
	return out, nil
}

// Fingerprint hashes identifiers and values in order
func (m *Matrix) Fingerprint(fp *core.Fingerprinter) {
	for _, s := range m.SampleIDs {
		fp.String(s)
	}
	for i, id := range m.FeatureIDs {
		fp.String(id).Floats(m.Values[i])
	}
}

// GroupAssignment maps sample id to group label
type GroupAssignment map[string]string

// Levels returns distinct labels of the given samples in first-seen order
func (g GroupAssignment) Levels(samples []string) []string {
	seen := make(map[string]struct{})
	var levels []string
	for _, s := range samples {
		label, ok := g[s]
		if !ok || label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		levels = append(levels, label)
	}
	return levels
}
