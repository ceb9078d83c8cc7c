package design

import (
	"testing"

	"proteodiff/domain/abundance"
	"proteodiff/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeByThree() ([]string, abundance.GroupAssignment) {
	samples := []string{"A1", "B1", "A2", "B2", "A3", "B3"}
	groups := abundance.GroupAssignment{
		"A1": "ctrl", "A2": "ctrl", "A3": "ctrl",
		"B1": "treat", "B2": "treat", "B3": "treat",
	}
	return samples, groups
}

func TestBuild_OneHotRowsSumToOne(t *testing.T) {
	samples, groups := threeByThree()

	d, err := Build(samples, groups, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ctrl", "treat"}, d.Levels)
	assert.Equal(t, []string{"ctrl", "treat"}, d.Columns)
	assert.Equal(t, 6, d.Rows())
	assert.Equal(t, 2, d.Cols())

	for i := 0; i < d.Rows(); i++ {
		sum := 0.0
		for j := 0; j < d.Cols(); j++ {
			v := d.X.At(i, j)
			assert.True(t, v == 0 || v == 1, "entry (%d,%d) = %v", i, j, v)
			sum += v
		}
		assert.Equal(t, 1.0, sum, "row %d", i)
	}
	assert.Equal(t, 1.0, d.X.At(1, 1), "B1 should be in treat column")
	assert.Equal(t, []int{3, 3}, d.GroupSizes(groups))
}

func TestBuild_LevelOrdering(t *testing.T) {
	samples := []string{"s1", "s2", "s3", "s4"}
	groups := abundance.GroupAssignment{"s1": "zeta", "s2": "alpha", "s3": "zeta", "s4": "mid"}

	firstSeen, err := Build(samples, groups, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, firstSeen.Levels)

	sorted, err := Build(samples, groups, Options{SortLevels: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, sorted.Levels)

	explicit, err := Build(samples, groups, Options{Levels: []string{"mid", "zeta", "alpha"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"mid", "zeta", "alpha"}, explicit.Levels)
	assert.Equal(t, 1.0, explicit.X.At(3, 0))
}

func TestBuild_Intercept(t *testing.T) {
	samples, groups := threeByThree()

	d, err := Build(samples, groups, Options{Intercept: true})
	require.NoError(t, err)

	assert.Equal(t, []string{InterceptColumn, "treat"}, d.Columns)
	assert.Equal(t, 2, d.Cols())
	for i := 0; i < d.Rows(); i++ {
		assert.Equal(t, 1.0, d.X.At(i, 0))
	}
	assert.Equal(t, 0.0, d.X.At(0, 1))
	assert.Equal(t, 1.0, d.X.At(1, 1))

	ctrl, err := d.LevelRow("ctrl")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, ctrl)
	treat, err := d.LevelRow("treat")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, treat)
}

func TestBuild_DesignErrors(t *testing.T) {
	samples, groups := threeByThree()

	tests := []struct {
		name    string
		samples []string
		groups  abundance.GroupAssignment
		opts    Options
	}{
		{
			name:    "missing label",
			samples: append(append([]string(nil), samples...), "C1"),
			groups:  groups,
		},
		{
			name:    "empty label",
			samples: []string{"A1", "B1", "X"},
			groups:  abundance.GroupAssignment{"A1": "ctrl", "B1": "treat", "X": ""},
		},
		{
			name:    "label outside requested levels",
			samples: samples,
			groups:  groups,
			opts:    Options{Levels: []string{"ctrl", "other"}},
		},
		{
			name:    "single group",
			samples: []string{"A1", "A2"},
			groups:  abundance.GroupAssignment{"A1": "ctrl", "A2": "ctrl"},
		},
		{
			name:    "duplicate sample",
			samples: []string{"A1", "A1", "B1"},
			groups:  groups,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.samples, tt.groups, tt.opts)
			require.Error(t, err)
			assert.True(t, core.IsDesignError(err), "want DesignError, got %v", err)
		})
	}
}

func TestLevelRow_Unknown(t *testing.T) {
	samples, groups := threeByThree()
	d, err := Build(samples, groups, Options{})
	require.NoError(t, err)

	_, err = d.LevelRow("nope")
	assert.True(t, core.IsDesignError(err))
}
