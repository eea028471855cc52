// Package normalize converts raw snippet results into bounded, JSON-safe
// values: finite numbers, strings, booleans, arrays, and string-keyed
// objects only. Oversized tabular results are summarized into percentile
// buckets, or a count/mean/sample summary when bucketing does not apply.
package normalize

import (
	"fmt"
	"math"
	"reflect"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"

	"tapengine/internal/config"
)

// Normalizer bounds and scrubs metric results.
type Normalizer struct {
	cfg config.NormalizeConfig
	log *zap.Logger
}

// New creates a normalizer. A nil logger is replaced with a no-op logger.
func New(cfg config.NormalizeConfig, log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{cfg: cfg, log: log}
}

// Sampled is the fallback summary for an oversized result that cannot be
// bucketed by percentile.
type Sampled struct {
	Summary SampleStats `json:"summary"`
}

// SampleStats carries the count, optional mean, and a fixed-size head sample
// of an oversized result.
type SampleStats struct {
	Count  int         `json:"count"`
	Mean   interface{} `json:"mean,omitempty"`
	Sample interface{} `json:"sample"`
}

// Normalize converts a raw metric result into its JSON-safe form. The
// dataset is the prepared frame the snippet ran against; percentile buckets
// join back to it for characteristic summaries. Normalize never panics past
// its API: an unexpected failure falls back to string coercion.
func (n *Normalizer) Normalize(raw interface{}, df dataframe.DataFrame) (out interface{}) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Warn("normalization failed, coercing to string", zap.Any("panic", r))
			out = fmt.Sprint(raw)
		}
	}()

	switch x := raw.(type) {
	case nil:
		return nil

	case series.Series:
		if x.Len() > n.cfg.SizeThreshold {
			if vals, ok := numericValues(x); ok {
				if buckets, ok := n.bucketize(vals, df); ok {
					return buckets
				}
			}
			return n.sampleSeries(x)
		}
		return n.scrub(seriesValues(x))

	case dataframe.DataFrame:
		if x.Nrow() > n.cfg.SizeThreshold {
			return n.sampleFrame(x)
		}
		return n.scrub(x.Maps())

	case []float64:
		if len(x) > n.cfg.SizeThreshold {
			if buckets, ok := n.bucketize(x, df); ok {
				return buckets
			}
			return n.sampleFloats(x)
		}
		return n.scrub(x)

	case []interface{}:
		if len(x) > n.cfg.SizeThreshold {
			if vals, ok := floatsOf(x); ok {
				if buckets, ok := n.bucketize(vals, df); ok {
					return buckets
				}
				return n.sampleFloats(vals)
			}
			return n.sampleValues(x)
		}
		return n.scrub(x)

	default:
		return n.scrub(raw)
	}
}

// scrub recursively produces the JSON-safe representation of a value whose
// size is already acceptable: NaN/Inf become 0, floats are rounded to two
// decimals, wrapper numeric types collapse to int/float64, arrays become
// nested sequences.
func (n *Normalizer) scrub(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, string, int:
		return x
	case float64:
		return round2(x)
	case float32:
		return round2(float64(x))
	case int8:
		return int(x)
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint, uint8, uint16, uint32, uint64:
		return int(reflect.ValueOf(x).Uint())
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = n.scrub(e)
		}
		return out
	case map[string]float64:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = round2(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = n.scrub(e)
		}
		return out
	case []float64:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = round2(e)
		}
		return out
	case []int:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case []string:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = n.scrub(e)
		}
		return out
	case series.Series:
		return n.scrub(seriesValues(x))
	case []Bucket, Sampled:
		// Already normalized shapes pass through untouched.
		return x
	default:
		return n.scrubReflect(v)
	}
}

// scrubReflect handles remaining numeric wrappers, arrays, and maps through
// reflection; anything unrecognized is coerced to a string.
func (n *Normalizer) scrubReflect(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return round2(rv.Float())
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = n.scrub(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]interface{}, rv.Len())
			for _, key := range rv.MapKeys() {
				out[key.String()] = n.scrub(rv.MapIndex(key).Interface())
			}
			return out
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

func (n *Normalizer) sampleSeries(s series.Series) Sampled {
	stats := SampleStats{Count: s.Len()}
	if vals, ok := numericValues(s); ok {
		stats.Mean = round2(meanOf(vals))
	}
	head := s.Len()
	if head > n.cfg.SampleSize {
		head = n.cfg.SampleSize
	}
	sample := make([]interface{}, head)
	for i := 0; i < head; i++ {
		sample[i] = n.scrub(s.Val(i))
	}
	stats.Sample = sample
	return Sampled{Summary: stats}
}

func (n *Normalizer) sampleFrame(df dataframe.DataFrame) Sampled {
	stats := SampleStats{Count: df.Nrow()}

	means := make(map[string]interface{})
	for _, name := range df.Names() {
		if vals, ok := numericValues(df.Col(name)); ok && len(vals) > 0 {
			means[name] = round2(meanOf(vals))
		}
	}
	if len(means) > 0 {
		stats.Mean = means
	}

	head := df.Nrow()
	if head > n.cfg.SampleSize {
		head = n.cfg.SampleSize
	}
	rows := make([]int, head)
	for i := range rows {
		rows[i] = i
	}
	sampled := df.Subset(rows)
	if sampled.Error() == nil {
		stats.Sample = n.scrub(sampled.Maps())
	} else {
		stats.Sample = []interface{}{}
	}
	return Sampled{Summary: stats}
}

func (n *Normalizer) sampleFloats(vals []float64) Sampled {
	head := len(vals)
	if head > n.cfg.SampleSize {
		head = n.cfg.SampleSize
	}
	sample := make([]interface{}, head)
	for i := 0; i < head; i++ {
		sample[i] = round2(vals[i])
	}
	return Sampled{Summary: SampleStats{
		Count:  len(vals),
		Mean:   round2(meanOf(vals)),
		Sample: sample,
	}}
}

func (n *Normalizer) sampleValues(vals []interface{}) Sampled {
	head := len(vals)
	if head > n.cfg.SampleSize {
		head = n.cfg.SampleSize
	}
	sample := make([]interface{}, head)
	for i := 0; i < head; i++ {
		sample[i] = n.scrub(vals[i])
	}
	return Sampled{Summary: SampleStats{Count: len(vals), Sample: sample}}
}

// numericValues extracts a numeric column's float values; ok is false for
// non-numeric columns.
func numericValues(s series.Series) ([]float64, bool) {
	if s.Type() != series.Int && s.Type() != series.Float {
		return nil, false
	}
	return s.Float(), true
}

func seriesValues(s series.Series) []interface{} {
	out := make([]interface{}, s.Len())
	for i := range out {
		out[i] = s.Val(i)
	}
	return out
}

// floatsOf converts a slice to floats when every element is numeric.
func floatsOf(vals []interface{}) ([]float64, bool) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case float64:
			out[i] = x
		case int:
			out[i] = float64(x)
		case int64:
			out[i] = float64(x)
		case float32:
			out[i] = float64(x)
		default:
			return nil, false
		}
	}
	return out, true
}

func meanOf(vals []float64) float64 {
	var total float64
	n := 0
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total += v
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Round(x*100) / 100
}
