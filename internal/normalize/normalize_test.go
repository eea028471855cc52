package normalize

import (
	"fmt"
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapengine/internal/config"
)

func newTestNormalizer() *Normalizer {
	return New(config.Default().Normalize, nil)
}

// largeFrame builds a 1500-row dataset whose VIEWS column counts up from 1,
// alternating between two widget names.
func largeFrame(n int) dataframe.DataFrame {
	names := make([]string, n)
	views := make([]float64, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			names[i] = "banner_a"
		} else {
			names[i] = "banner_b"
		}
		views[i] = float64(i + 1)
	}
	return dataframe.New(
		series.New(names, series.String, "WIDGET_NAME"),
		series.New(views, series.Float, "VIEWS"),
	)
}

func TestNormalizeScalars(t *testing.T) {
	n := newTestNormalizer()
	df := dataframe.DataFrame{}

	assert.Nil(t, n.Normalize(nil, df))
	assert.Equal(t, 3.14, n.Normalize(3.14159, df))
	assert.Equal(t, 0.0, n.Normalize(math.NaN(), df))
	assert.Equal(t, 0.0, n.Normalize(math.Inf(1), df))
	assert.Equal(t, true, n.Normalize(true, df))
	assert.Equal(t, "banner_a", n.Normalize("banner_a", df))
	assert.Equal(t, 7, n.Normalize(int64(7), df))
}

func TestNormalizeMap(t *testing.T) {
	n := newTestNormalizer()
	out := n.Normalize(map[string]interface{}{
		"ctr":   0.123456,
		"views": math.Inf(-1),
		"name":  "banner_a",
	}, dataframe.DataFrame{})

	m, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 0.12, m["ctr"])
	assert.Equal(t, 0.0, m["views"])
	assert.Equal(t, "banner_a", m["name"])
}

func TestNormalizeSmallSeries(t *testing.T) {
	n := newTestNormalizer()
	s := series.New([]float64{1.005, math.NaN(), 3}, series.Float, "VIEWS")

	out := n.Normalize(s, dataframe.DataFrame{})
	vals, ok := out.([]interface{})
	require.True(t, ok)
	require.Len(t, vals, 3)
	assert.Equal(t, 0.0, vals[1])
	assert.Equal(t, 3.0, vals[2])
}

func TestNormalizeLargeNumericSeriesBuckets(t *testing.T) {
	n := newTestNormalizer()
	df := largeFrame(1500)
	s := df.Col("VIEWS")

	out := n.Normalize(s, df)
	buckets, ok := out.([]Bucket)
	require.True(t, ok, "expected percentile buckets, got %T", out)

	wantRanges := []string{"0-1", "1-5", "5-10", "10-25", "25-50", "50-100"}
	wantSizes := []int{15, 60, 75, 225, 375, 750}
	require.Len(t, buckets, len(wantRanges))

	total := 0
	for i, b := range buckets {
		assert.Equal(t, wantRanges[i], b.Range)
		assert.Equal(t, wantSizes[i], b.SampleSize)
		assert.LessOrEqual(t, b.Min, b.Median)
		assert.LessOrEqual(t, b.Median, b.Max)
		total += b.SampleSize
	}
	assert.Equal(t, 1500, total)

	// Values 1..1500 land in rank order, so the bottom range holds 1..15.
	assert.Equal(t, 1.0, buckets[0].Min)
	assert.Equal(t, 15.0, buckets[0].Max)
	assert.Equal(t, 1500.0, buckets[5].Max)
}

func TestBucketCharacteristics(t *testing.T) {
	n := newTestNormalizer()
	df := largeFrame(1500)

	out := n.Normalize(df.Col("VIEWS"), df)
	buckets, ok := out.([]Bucket)
	require.True(t, ok)

	ch := buckets[0].Characteristics
	require.NotNil(t, ch)

	widget, ok := ch["WIDGET_NAME"].(map[string]interface{})
	require.True(t, ok)
	top, ok := widget["top_values"].(map[string]float64)
	require.True(t, ok)
	assert.Contains(t, top, "banner_a")

	views, ok := ch["VIEWS"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 8.0, views["average"])
}

func TestNormalizeLargeStringSeriesSampled(t *testing.T) {
	n := newTestNormalizer()
	vals := make([]string, 1500)
	for i := range vals {
		vals[i] = fmt.Sprintf("widget_%d", i)
	}
	s := series.New(vals, series.String, "WIDGET_NAME")

	out := n.Normalize(s, dataframe.DataFrame{})
	sampled, ok := out.(Sampled)
	require.True(t, ok)
	assert.Equal(t, 1500, sampled.Summary.Count)
	sample, ok := sampled.Summary.Sample.([]interface{})
	require.True(t, ok)
	assert.Len(t, sample, 50)
}

func TestNormalizeLargeFrameSampled(t *testing.T) {
	n := newTestNormalizer()
	df := largeFrame(1500)

	out := n.Normalize(df, df)
	sampled, ok := out.(Sampled)
	require.True(t, ok)
	assert.Equal(t, 1500, sampled.Summary.Count)

	means, ok := sampled.Summary.Mean.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 750.5, means["VIEWS"])
}

func TestNormalizeIdempotent(t *testing.T) {
	n := newTestNormalizer()
	df := largeFrame(1500)

	first := n.Normalize(df.Col("VIEWS"), df)
	second := n.Normalize(first, df)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("normalization not idempotent (-first +second):\n%s", diff)
	}

	scalar := n.Normalize(3.14159, df)
	assert.Equal(t, scalar, n.Normalize(scalar, df))

	sampled := n.Normalize(df, df)
	if diff := cmp.Diff(sampled, n.Normalize(sampled, df)); diff != "" {
		t.Errorf("sampled summary not idempotent (-first +second):\n%s", diff)
	}
}

func TestNormalizeUnknownTypeCoerced(t *testing.T) {
	n := newTestNormalizer()

	type odd struct{ A int }
	out := n.Normalize(odd{A: 1}, dataframe.DataFrame{})
	_, isString := out.(string)
	assert.True(t, isString, "unrecognized types coerce to string, got %T", out)
}
