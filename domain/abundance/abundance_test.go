package abundance

import (
	"math"
	"testing"

	"proteodiff/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatrix_Validation(t *testing.T) {
	_, err := NewMatrix([]string{"P1"}, []string{"a", "b"}, [][]float64{{1, 2}})
	require.NoError(t, err)

	cases := map[string]struct {
		features []string
		samples  []string
		values   [][]float64
	}{
		"duplicate sample":  {[]string{"P1"}, []string{"a", "a"}, [][]float64{{1, 2}}},
		"duplicate feature": {[]string{"P1", "P1"}, []string{"a"}, [][]float64{{1}, {2}}},
		"ragged row":        {[]string{"P1"}, []string{"a", "b"}, [][]float64{{1}}},
		"row count":         {[]string{"P1", "P2"}, []string{"a"}, [][]float64{{1}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewMatrix(tc.features, tc.samples, tc.values)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidMatrix)
		})
	}
}

func TestMatrix_Log2(t *testing.T) {
	m, err := NewMatrix([]string{"P1"}, []string{"a", "b", "c", "d"}, [][]float64{{1024, 0, -3, math.Inf(1)}})
	require.NoError(t, err)

	out := m.Log2()
	assert.Equal(t, 10.0, out.Values[0][0])
	for j := 1; j < 4; j++ {
		assert.True(t, math.IsNaN(out.Values[0][j]))
	}
	assert.Equal(t, 1024.0, m.Values[0][0], "input is untouched")
	assert.True(t, m.HasMissing(), "+Inf counts as missing")
	assert.True(t, out.HasMissing())
}

func TestObserved(t *testing.T) {
	assert.True(t, Observed(0))
	assert.True(t, Observed(-3.5))
	assert.False(t, Observed(math.NaN()))
	assert.False(t, Observed(math.Inf(-1)))
	assert.False(t, Observed(math.Inf(1)))

	m, err := NewMatrix([]string{"P1"}, []string{"a", "b"}, [][]float64{{1, math.Inf(-1)}})
	require.NoError(t, err)
	assert.True(t, m.HasMissing())
}

func TestMatrix_SelectSamples(t *testing.T) {
	m, err := NewMatrix([]string{"P1"}, []string{"a", "b", "c"}, [][]float64{{1, 2, 3}})
	require.NoError(t, err)

	sub, err := m.SelectSamples([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, sub.Values[0])

	_, err = m.SelectSamples([]string{"z"})
	assert.ErrorIs(t, err, core.ErrInvalidMatrix)
}

func TestMatrix_FingerprintIsOrderSensitive(t *testing.T) {
	a, _ := NewMatrix([]string{"P1", "P2"}, []string{"s"}, [][]float64{{1}, {2}})
	b, _ := NewMatrix([]string{"P2", "P1"}, []string{"s"}, [][]float64{{2}, {1}})

	fa, fb := core.NewFingerprinter(), core.NewFingerprinter()
	a.Fingerprint(fa)
	b.Fingerprint(fb)
	assert.NotEqual(t, fa.Sum(), fb.Sum())
}

func TestGroupsFromSampleNames(t *testing.T) {
	groups, err := GroupsFromSampleNames([]string{"ctrl_1", "ctrl_2", "trt-1", "trt10"}, "")
	require.NoError(t, err)
	assert.Equal(t, GroupAssignment{"ctrl_1": "ctrl", "ctrl_2": "ctrl", "trt-1": "trt", "trt10": "trt"}, groups)
	assert.Equal(t, []string{"ctrl", "trt"}, groups.Levels([]string{"ctrl_1", "trt-1", "ctrl_2"}))
	assert.Equal(t, []LevelCount{{"ctrl", 2}, {"trt", 2}}, groups.Counts())

	groups, err = GroupsFromSampleNames([]string{"S1_WT_rep1", "S2_KO_rep1"}, `_(?P<group>[A-Z]+)_`)
	require.NoError(t, err)
	assert.Equal(t, "KO", groups["S2_KO_rep1"])

	_, err = GroupsFromSampleNames([]string{"pool"}, "")
	assert.ErrorIs(t, err, core.ErrDesign)

	_, err = GroupsFromSampleNames([]string{"a1"}, `^\w+$`)
	assert.ErrorIs(t, err, core.ErrDesign)
}

func TestResultTable_Summarize(t *testing.T) {
	table := &ResultTable{Results: []Result{
		{FeatureID: "P1", Status: StatusIncreased, Tested: true},
		{FeatureID: "P2", Status: StatusDecreased, Tested: true},
		{FeatureID: "P3", Status: StatusNotSignificant, Tested: true},
		{FeatureID: "P4", Status: StatusNotSignificant},
	}}
	assert.Equal(t, Summary{Total: 4, Tested: 3, Untestable: 1, Increased: 1, Decreased: 1}, table.Summarize())

	r, ok := table.Lookup("P2")
	require.True(t, ok)
	assert.Equal(t, StatusDecreased, r.Status)
	_, ok = table.Lookup("P9")
	assert.False(t, ok)
}

func TestParseFitMode(t *testing.T) {
	mode, ok := ParseFitMode("robust")
	assert.True(t, ok)
	assert.Equal(t, FitRobust, mode)

	mode, ok = ParseFitMode("")
	assert.True(t, ok)
	assert.Equal(t, FitLeastSquares, mode)

	_, ok = ParseFitMode("huber")
	assert.False(t, ok)
}
