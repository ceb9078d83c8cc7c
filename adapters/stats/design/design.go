// Package design builds group-membership design matrices from sample labels.
package design

import (
	"fmt"
	"sort"

	"proteodiff/domain/abundance"
	"proteodiff/domain/core"

	"gonum.org/v1/gonum/mat"
)

// InterceptColumn is the name of the intercept column when one is requested
const InterceptColumn = "(Intercept)"

// Options controls level ordering and parameterization
type Options struct {
	// Levels fixes the column order. Every sample label must be one of them.
	Levels []string
	// SortLevels orders levels lexically instead of first-seen.
	SortLevels bool
	// Intercept replaces the first level's indicator with an all-ones column;
	// the remaining columns then estimate differences from that level.
	Intercept bool
}

// Matrix is a samples x columns design. It is never mutated after Build.
type Matrix struct {
	Samples   []string
	Levels    []string
	Columns   []string
	Intercept bool
	X         *mat.Dense
}

// Build turns sample labels into a design matrix. Without an intercept
// every row has exactly one 1 and the column count equals the number of
// levels. With an intercept the column count is the same: one intercept
// column plus one indicator for each non-reference level.
func Build(samples []string, groups abundance.GroupAssignment, opts Options) (*Matrix, error) {
	if len(samples) == 0 {
		return nil, core.NewMatrixError("design needs at least one sample")
	}

	labels := make([]string, len(samples))
	seen := make(map[string]struct{}, len(samples))
	for i, s := range samples {
		if _, dup := seen[s]; dup {
			return nil, core.NewDesignError(s, fmt.Errorf("%w: duplicate sample", core.ErrDesign))
		}
		seen[s] = struct{}{}

		label, ok := groups[s]
		if !ok || label == "" {
			return nil, core.NewDesignError(s, core.ErrUnassignedLabel)
		}
		labels[i] = label
	}

	levels, err := resolveLevels(samples, labels, groups, opts)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(levels))
	for k, l := range levels {
		index[l] = k
	}

	p := len(levels)
	x := mat.NewDense(len(samples), p, nil)
	for i, label := range labels {
		k := index[label]
		if opts.Intercept {
			x.Set(i, 0, 1)
			if k > 0 {
				x.Set(i, k, 1)
			}
		} else {
			x.Set(i, k, 1)
		}
	}

	columns := append([]string(nil), levels...)
	if opts.Intercept {
		columns[0] = InterceptColumn
	}

	return &Matrix{
		Samples:   append([]string(nil), samples...),
		Levels:    levels,
		Columns:   columns,
		Intercept: opts.Intercept,
		X:         x,
	}, nil
}

func resolveLevels(samples, labels []string, groups abundance.GroupAssignment, opts Options) ([]string, error) {
	var levels []string
	if len(opts.Levels) > 0 {
		allowed := make(map[string]struct{}, len(opts.Levels))
		for _, l := range opts.Levels {
			if _, dup := allowed[l]; dup {
				return nil, fmt.Errorf("%w: level %q listed twice", core.ErrDesign, l)
			}
			allowed[l] = struct{}{}
		}
		for i, label := range labels {
			if _, ok := allowed[label]; !ok {
				return nil, core.NewDesignError(samples[i], fmt.Errorf("%w: %q", core.ErrUnknownLevel, label))
			}
		}
		levels = append(levels, opts.Levels...)
	} else {
		levels = groups.Levels(samples)
		if opts.SortLevels {
			sort.Strings(levels)
		}
	}

	if len(levels) < 2 {
		return nil, core.ErrTooFewLevels
	}
	return levels, nil
}

// Rows returns the sample count
func (m *Matrix) Rows() int {
	r, _ := m.X.Dims()
	return r
}

// Cols returns the coefficient count
func (m *Matrix) Cols() int {
	_, c := m.X.Dims()
	return c
}

// LevelIndex returns the position of a level in Levels
func (m *Matrix) LevelIndex(level string) (int, bool) {
	for k, l := range m.Levels {
		if l == level {
			return k, true
		}
	}
	return -1, false
}

// LevelRow returns the design row shared by every sample of level, i.e. the
// coefficient combination that equals that group's mean.
func (m *Matrix) LevelRow(level string) ([]float64, error) {
	k, ok := m.LevelIndex(level)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownLevel, level)
	}
	row := make([]float64, m.Cols())
	if m.Intercept {
		row[0] = 1
		if k > 0 {
			row[k] = 1
		}
	} else {
		row[k] = 1
	}
	return row, nil
}

// GroupSizes counts samples per level in Levels order
func (m *Matrix) GroupSizes(groups abundance.GroupAssignment) []int {
	sizes := make([]int, len(m.Levels))
	for _, s := range m.Samples {
		if k, ok := m.LevelIndex(groups[s]); ok {
			sizes[k]++
		}
	}
	return sizes
}
