package frame

import (
	"math"
	"testing"

	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeDivideScalar(t *testing.T) {
	assert.Equal(t, 2.0, SafeDivide(10.0, 5.0))
	assert.Equal(t, 0.0, SafeDivide(10.0, 0.0))
	assert.Equal(t, 0.0, SafeDivide(10.0, math.NaN()))
	assert.Equal(t, 0.0, SafeDivide(math.Inf(1), 2.0))
	assert.Equal(t, 5.0, SafeDivide(10, 2))
}

func TestSafeDivideColumnwise(t *testing.T) {
	num := series.New([]float64{10, 20, 30}, series.Float, "CLICKS")
	den := series.New([]float64{2, 0, 10}, series.Float, "VIEWS")

	out, ok := SafeDivide(num, den).(series.Series)
	require.True(t, ok, "columnwise division should return a series")

	got := out.Float()
	require.Len(t, got, 3)
	assert.Equal(t, []float64{5, 0, 3}, got)
	for _, v := range got {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "no NaN/Inf in output")
	}
}

func TestSafeDivideBroadcast(t *testing.T) {
	num := series.New([]float64{10, 20}, series.Float, "x")
	out, ok := SafeDivide(num, 10.0).(series.Series)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, out.Float())
}

func TestSafeContains(t *testing.T) {
	col := series.New([]string{"Widget A", "banner", "NaN"}, series.String, "NAME")
	out := SafeContains(col, "WIDGET")
	got, err := out.Bool()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false}, got)
}

func TestCleanResultDeep(t *testing.T) {
	in := map[string]interface{}{
		"a": math.NaN(),
		"b": []interface{}{1.5, math.Inf(1)},
		"c": map[string]interface{}{"d": math.Inf(-1)},
	}
	out := CleanResult(in).(map[string]interface{})
	assert.Equal(t, 0.0, out["a"])
	assert.Equal(t, []interface{}{1.5, 0.0}, out["b"])
	assert.Equal(t, 0.0, out["c"].(map[string]interface{})["d"])
}

func TestScrubShallow(t *testing.T) {
	assert.Equal(t, 0.0, ScrubShallow(math.NaN()))
	assert.Equal(t, 3.5, ScrubShallow(3.5))

	flat := map[string]interface{}{"x": math.Inf(1), "y": 2.0, "z": "keep"}
	out := ScrubShallow(flat).(map[string]interface{})
	assert.Equal(t, 0.0, out["x"])
	assert.Equal(t, 2.0, out["y"])
	assert.Equal(t, "keep", out["z"])

	// Deeper structures are left for the normalizer.
	nested := map[string]interface{}{"inner": map[string]interface{}{"v": math.NaN()}}
	kept := ScrubShallow(nested).(map[string]interface{})
	inner := kept["inner"].(map[string]interface{})
	assert.True(t, math.IsNaN(inner["v"].(float64)))
}

func TestSumMeanCount(t *testing.T) {
	col := series.New([]float64{1, 2, 3, math.NaN()}, series.Float, "x")
	assert.Equal(t, 6.0, Sum(col))
	assert.Equal(t, 2.0, Mean(col))
	assert.Equal(t, 4, Count(col))
	assert.Equal(t, 0, Count(nil))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 3.14, Round(3.14159))
	assert.Equal(t, 3.142, Round(3.14159, 3))
	assert.Equal(t, 0.0, Round(math.NaN()))
}
