package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapengine/internal/frame"
)

// weeklyDataset builds ten weeks of widget data with comma-formatted view
// counts, the shape the upstream exports arrive in.
func weeklyDataset(t *testing.T) [][]string {
	t.Helper()
	records := [][]string{{"week", "views", "clicks"}}
	for i := 0; i < 10; i++ {
		records = append(records, []string{
			fmt.Sprintf("2024-01-%02d", 1+7*i%28),
			fmt.Sprintf("1,%d00", i),
			fmt.Sprintf("%d", 10+i*5),
		})
	}
	return records
}

func TestExecutePlanSumsCoercedColumn(t *testing.T) {
	df, err := frame.FromRecords(weeklyDataset(t))
	require.NoError(t, err)

	e := New(nil, nil)
	out := e.ExecutePlan(context.Background(), df, Plan{Metrics: []MetricSpec{
		{Name: "Total Views", Code: `df.Col("VIEWS").Sum()`},
	}})

	require.Equal(t, []string{"Total Views"}, out.Order)
	res := out.Metrics["Total Views"]
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, 14500.0, res.Value)
}

func TestExecutePlanSafeDivisionByZero(t *testing.T) {
	df, err := frame.FromRecords([][]string{
		{"views", "clicks"},
		{"0", "10"},
		{"2,000", "40"},
	})
	require.NoError(t, err)

	e := New(nil, nil)
	out := e.ExecutePlan(context.Background(), df, Plan{Metrics: []MetricSpec{
		{Name: "CTR", Code: `safe_divide(df.Col("CLICKS"), df.Col("VIEWS"))`},
	}})

	res := out.Metrics["CTR"]
	require.False(t, res.Failed(), res.Error)
	vals, ok := res.Value.([]interface{})
	require.True(t, ok, "expected per-row values, got %T", res.Value)
	require.Len(t, vals, 2)
	assert.Equal(t, 0.0, vals[0])
	assert.Equal(t, 0.02, vals[1])
}

func TestExecutePlanMetricReferencesPriorResult(t *testing.T) {
	df, err := frame.FromRecords(weeklyDataset(t))
	require.NoError(t, err)

	e := New(nil, nil)
	out := e.ExecutePlan(context.Background(), df, Plan{Metrics: []MetricSpec{
		{Name: "Total Views", Code: `df.Col("VIEWS").Sum()`},
		{Name: "Share", Code: `total_views / 29000`},
	}})

	res := out.Metrics["Share"]
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, 0.5, res.Value)
}

func TestExecutePlanIsolatesFailures(t *testing.T) {
	df, err := frame.FromRecords(weeklyDataset(t))
	require.NoError(t, err)

	e := New(nil, nil)
	out := e.ExecutePlan(context.Background(), df, Plan{Metrics: []MetricSpec{
		{Name: "Bad Import", Code: "import \"os\"\nresult = 1"},
		{Name: "Bad Runtime", Code: `no_such_value * 2`},
		{Name: "Good", Code: `df.Col("CLICKS").Sum()`},
	}})

	require.Equal(t, []string{"Bad Import", "Bad Runtime", "Good"}, out.Order)
	assert.Contains(t, out.Metrics["Bad Import"].Error, "validation failed")
	assert.Contains(t, out.Metrics["Bad Runtime"].Error, "execution failed")

	good := out.Metrics["Good"]
	require.False(t, good.Failed(), good.Error)
	assert.Equal(t, 325.0, good.Value)
}

func TestExecutePlanCancelledMidPlanFailsRemainingMetrics(t *testing.T) {
	df, err := frame.FromRecords(weeklyDataset(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	e := New(nil, nil)
	out := e.ExecutePlan(ctx, df, Plan{Metrics: []MetricSpec{
		{Name: "Slow", Code: "n := 0.0\nfor i := 0; i < 5000000; i++ {\n\tn = n + 1\n}\nn"},
		{Name: "After", Code: `df.Col("VIEWS").Sum()`},
	}})

	require.Equal(t, []string{"Slow", "After"}, out.Order)
	assert.Contains(t, out.Metrics["Slow"].Error, "interrupted")
	assert.Contains(t, out.Metrics["After"].Error, "interrupted")
}

func TestExecutePlanSkipsDuplicateNames(t *testing.T) {
	df, err := frame.FromRecords(weeklyDataset(t))
	require.NoError(t, err)

	e := New(nil, nil)
	out := e.ExecutePlan(context.Background(), df, Plan{Metrics: []MetricSpec{
		{Name: "Total Views", Code: `df.Col("VIEWS").Sum()`},
		{Name: "Total Views", Code: `df.Col("CLICKS").Sum()`},
	}})

	require.Equal(t, []string{"Total Views"}, out.Order)
	assert.Equal(t, 14500.0, out.Metrics["Total Views"].Value)
}

func TestExecutePlanUnnamedMetric(t *testing.T) {
	df, err := frame.FromRecords(weeklyDataset(t))
	require.NoError(t, err)

	e := New(nil, nil)
	out := e.ExecutePlan(context.Background(), df, Plan{Metrics: []MetricSpec{
		{Code: `df.Col("VIEWS").Sum()`},
	}})

	require.Equal(t, []string{"metric_1"}, out.Order)
	assert.Contains(t, out.Metrics["metric_1"].Error, "name is empty")
}

func TestDetectPatternsNeverFails(t *testing.T) {
	e := New(nil, nil)

	df, err := frame.FromRecords(weeklyDataset(t))
	require.NoError(t, err)
	report := e.DetectPatterns(df)
	assert.NotNil(t, report.Correlations)
	assert.NotNil(t, report.Categorical)

	empty, err := frame.FromRecords([][]string{{"a"}, {"x"}})
	require.NoError(t, err)
	report = e.DetectPatterns(empty)
	assert.NotNil(t, report.KeyMetrics)
}
