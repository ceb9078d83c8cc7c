package app

import (
	"context"
	"math"
	"testing"

	"proteodiff/domain/abundance"
	"proteodiff/domain/core"
	"proteodiff/internal/errors"
	"proteodiff/internal/testkit"
	"proteodiff/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) SaveTable(ctx context.Context, table *abundance.ResultTable) error {
	args := m.Called(ctx, table)
	return args.Error(0)
}

func (m *MockResultRepository) GetTable(ctx context.Context, runID core.RunID) (*abundance.ResultTable, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(*abundance.ResultTable), args.Error(1)
}

func (m *MockResultRepository) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]ports.RunSummary), args.Error(1)
}

var nan = math.NaN()

func threeVsThree(t *testing.T, ids []string, rows [][]float64) AnalysisRequest {
	t.Helper()
	samples := []string{"A1", "A2", "A3", "B1", "B2", "B3"}
	m, err := abundance.NewMatrix(ids, samples, rows)
	require.NoError(t, err)
	return AnalysisRequest{
		Matrix: m,
		Groups: abundance.GroupAssignment{
			"A1": "A", "A2": "A", "A3": "A",
			"B1": "B", "B2": "B", "B3": "B",
		},
		Settings: DefaultSettings("B", "A"),
	}
}

func TestRun_NoiseFreeIncrease(t *testing.T) {
	svc := NewAnalysisService(nil, 2)
	req := threeVsThree(t, []string{"P1", "P2"}, [][]float64{
		{10, 10, 10, 12, 12, 12},
		{10, 10, 10, 14, 14, 14},
	})

	table, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, table.Results, 2)

	p1 := table.Results[0]
	assert.Equal(t, "P1", p1.FeatureID)
	assert.InDelta(t, 2.0, p1.LogFC, 1e-9)
	assert.InDelta(t, 11.0, p1.AveExpr, 1e-9)
	assert.Less(t, p1.PValue, 1e-10)
	assert.Equal(t, abundance.StatusIncreased, p1.Status)
	assert.True(t, p1.Tested)

	p2 := table.Results[1]
	assert.InDelta(t, 4.0, p2.LogFC, 1e-9)
	assert.Equal(t, abundance.StatusIncreased, p2.Status)
}

func TestRun_RawIntensitiesWithLog2(t *testing.T) {
	svc := NewAnalysisService(nil, 1)
	req := threeVsThree(t, []string{"P1"}, [][]float64{{1024, 1024, 1024, 4096, 4096, 4096}})
	req.Log2 = true

	table, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, table.Results[0].LogFC, 1e-9)
	assert.Equal(t, abundance.StatusIncreased, table.Results[0].Status)
}

func TestRun_ConstantFeature(t *testing.T) {
	gen := testkit.NewAbundanceGenerator(testkit.DefaultAbundanceConfig())
	exp, err := gen.Generate()
	require.NoError(t, err)

	rows := append([][]float64{{7, 7, 7, 7, 7, 7}}, exp.Matrix.Values[:300]...)
	ids := append([]string{"constant"}, exp.Matrix.FeatureIDs[:300]...)
	m, err := abundance.NewMatrix(ids, exp.Matrix.SampleIDs, rows)
	require.NoError(t, err)

	svc := NewAnalysisService(nil, 4)
	table, err := svc.Run(context.Background(), AnalysisRequest{
		Matrix:   m,
		Groups:   exp.Groups,
		Settings: DefaultSettings("B", "A"),
	})
	require.NoError(t, err)

	c, ok := table.Lookup("constant")
	require.True(t, ok)
	assert.Equal(t, 0.0, c.LogFC)
	assert.Equal(t, 0.0, c.ModeratedT)
	assert.InDelta(t, 1.0, c.PValue, 1e-12)
	assert.Equal(t, abundance.StatusNotSignificant, c.Status)
}

func TestRun_SyntheticRecovery(t *testing.T) {
	cfg := testkit.DefaultAbundanceConfig()
	cfg.FeatureCount = 1000
	exp, err := testkit.NewAbundanceGenerator(cfg).Generate()
	require.NoError(t, err)

	svc := NewAnalysisService(nil, 0)
	table, err := svc.Run(context.Background(), AnalysisRequest{
		Matrix:   exp.Matrix,
		Groups:   exp.Groups,
		Settings: DefaultSettings("B", "A"),
	})
	require.NoError(t, err)
	assert.Empty(t, table.Warnings)
	assert.Greater(t, table.Prior.D0, 0.0)

	truePos, falsePos := 0, 0
	for _, r := range table.Results {
		called := r.Status != abundance.StatusNotSignificant
		switch {
		case called && exp.TrueLogFC[r.FeatureID] != 0:
			truePos++
			want := abundance.StatusIncreased
			if exp.TrueLogFC[r.FeatureID] < 0 {
				want = abundance.StatusDecreased
			}
			assert.Equal(t, want, r.Status, r.FeatureID)
		case called:
			falsePos++
		}
	}
	assert.GreaterOrEqual(t, truePos, 85, "changed features detected")
	assert.LessOrEqual(t, falsePos, 10, "false discoveries")
}

func TestRun_UntestableFeaturesKeepRows(t *testing.T) {
	svc := NewAnalysisService(nil, 1)
	req := threeVsThree(t, []string{"ok1", "ok2", "ok3", "gone", "oneGroup"}, [][]float64{
		{10, 10.2, 9.9, 12, 12.3, 11.8},
		{8, 8.5, 8.1, 8.2, 8.3, 8.0},
		{15, 14.6, 15.3, 13, 13.4, 12.9},
		{nan, nan, nan, nan, nan, nan},
		{5, 5.1, 5.2, nan, nan, nan},
	})

	table, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, table.Results, 5)

	summary := table.Summarize()
	assert.Equal(t, 3, summary.Tested)
	assert.Equal(t, 2, summary.Untestable)

	for _, id := range []string{"gone", "oneGroup"} {
		r, ok := table.Lookup(id)
		require.True(t, ok)
		assert.False(t, r.Tested)
		assert.True(t, math.IsNaN(r.PValue))
		assert.True(t, math.IsNaN(r.AdjPValue))
		assert.Equal(t, abundance.StatusNotSignificant, r.Status)
		assert.NotEmpty(t, r.UntestableWhy)
	}
}

func TestRun_Idempotent(t *testing.T) {
	cfg := testkit.DefaultAbundanceConfig()
	cfg.FeatureCount = 400
	cfg.MissingRate = 0.05
	exp, err := testkit.NewAbundanceGenerator(cfg).Generate()
	require.NoError(t, err)

	req := AnalysisRequest{Matrix: exp.Matrix, Groups: exp.Groups, Settings: DefaultSettings("B", "A")}
	first, err := NewAnalysisService(nil, 1).Run(context.Background(), req)
	require.NoError(t, err)
	second, err := NewAnalysisService(nil, 8).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Prior, second.Prior)
	require.Len(t, second.Results, len(first.Results))
	for i := range first.Results {
		a, b := first.Results[i], second.Results[i]
		assert.Equal(t, a.FeatureID, b.FeatureID)
		assert.Equal(t, a.Status, b.Status)
		assert.Equal(t, a.Tested, b.Tested)
		if a.Tested {
			assert.Equal(t, a.LogFC, b.LogFC)
			assert.Equal(t, a.PValue, b.PValue)
			assert.Equal(t, a.AdjPValue, b.AdjPValue)
		}
	}
}

func TestRun_FatalErrors(t *testing.T) {
	svc := NewAnalysisService(nil, 1)

	unlabeled := threeVsThree(t, []string{"P1"}, [][]float64{{1, 2, 3, 4, 5, 6}})
	delete(unlabeled.Groups, "B3")
	_, err := svc.Run(context.Background(), unlabeled)
	require.Error(t, err)
	assert.True(t, core.IsDesignError(err))
	assert.Equal(t, errors.CodeDesign, errors.GetCode(err))

	badContrast := threeVsThree(t, []string{"P1"}, [][]float64{{1, 2, 3, 4, 5, 6}})
	badContrast.Settings.Numerator = "C"
	_, err = svc.Run(context.Background(), badContrast)
	assert.True(t, core.IsDesignError(err))

	robust := threeVsThree(t, []string{"P1"}, [][]float64{{1, nan, 3, 4, 5, 6}})
	robust.Settings.FitMode = abundance.FitRobust
	_, err = svc.Run(context.Background(), robust)
	assert.ErrorIs(t, err, core.ErrMissingRobust)

	nothing := threeVsThree(t, []string{"P1"}, [][]float64{{nan, nan, nan, nan, nan, nan}})
	_, err = svc.Run(context.Background(), nothing)
	assert.ErrorIs(t, err, core.ErrCorrection)

	thresholds := threeVsThree(t, []string{"P1"}, [][]float64{{1, 2, 3, 4, 5, 6}})
	thresholds.Settings.Alpha = 0
	_, err = svc.Run(context.Background(), thresholds)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestRun_RobustMode(t *testing.T) {
	cfg := testkit.DefaultAbundanceConfig()
	cfg.FeatureCount = 300
	exp, err := testkit.NewAbundanceGenerator(cfg).Generate()
	require.NoError(t, err)

	settings := DefaultSettings("B", "A")
	settings.FitMode = abundance.FitRobust
	table, err := NewAnalysisService(nil, 2).Run(context.Background(), AnalysisRequest{
		Matrix: exp.Matrix, Groups: exp.Groups, Settings: settings,
	})
	require.NoError(t, err)
	assert.Equal(t, abundance.FitRobust, table.Settings.FitMode)
	assert.Equal(t, 300, table.Summarize().Tested)
}

func TestRun_PersistsToRepository(t *testing.T) {
	repo := new(MockResultRepository)
	repo.On("SaveTable", mock.Anything, mock.AnythingOfType("*abundance.ResultTable")).Return(nil)

	svc := NewAnalysisService(repo, 1)
	table, err := svc.Run(context.Background(), threeVsThree(t, []string{"P1"}, [][]float64{{10, 10, 10, 12, 12, 12}}))
	require.NoError(t, err)
	assert.False(t, table.RunID.String() == "")
	repo.AssertExpectations(t)
}

func TestRun_InterceptMatchesCellMeans(t *testing.T) {
	cfg := testkit.DefaultAbundanceConfig()
	cfg.FeatureCount = 200
	exp, err := testkit.NewAbundanceGenerator(cfg).Generate()
	require.NoError(t, err)

	cell := DefaultSettings("B", "A")
	withIntercept := cell
	withIntercept.Intercept = true

	a, err := NewAnalysisService(nil, 1).Run(context.Background(), AnalysisRequest{Matrix: exp.Matrix, Groups: exp.Groups, Settings: cell})
	require.NoError(t, err)
	b, err := NewAnalysisService(nil, 1).Run(context.Background(), AnalysisRequest{Matrix: exp.Matrix, Groups: exp.Groups, Settings: withIntercept})
	require.NoError(t, err)

	for i := range a.Results {
		assert.InDelta(t, a.Results[i].LogFC, b.Results[i].LogFC, 1e-9)
		assert.InDelta(t, a.Results[i].PValue, b.Results[i].PValue, 1e-9)
	}
}
