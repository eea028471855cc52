package frame

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Safe helpers bound into the snippet namespace. Snippets come from a
// machine generator, so every helper tolerates the degenerate inputs the
// generator tends to produce (zero denominators, missing values, mixed
// scalar/column arguments) instead of raising.

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SafeDivide divides a by b element-wise or scalar-wise. Any position whose
// denominator is zero or non-finite yields 0, and non-finite numerators are
// treated as 0. Scalar inputs return a float64; column inputs return a float
// series aligned to the numerator.
func SafeDivide(a, b interface{}) interface{} {
	num, numIsVec := toFloatVector(a)
	den, denIsVec := toFloatVector(b)

	if !numIsVec && !denIsVec {
		return safeDivideScalar(num[0], den[0])
	}

	n := len(num)
	if !numIsVec {
		n = len(den)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = safeDivideScalar(pick(num, i, numIsVec), pick(den, i, denIsVec))
	}
	return series.New(out, series.Float, "safe_divide")
}

func safeDivideScalar(a, b float64) float64 {
	if b == 0 || !isFinite(b) || !isFinite(a) {
		return 0
	}
	q := a / b
	if !isFinite(q) {
		return 0
	}
	return q
}

func pick(vals []float64, i int, isVec bool) float64 {
	if !isVec {
		return vals[0]
	}
	if i >= len(vals) {
		return 0
	}
	return vals[i]
}

// toFloatVector coerces scalars and column-like values to a float slice.
// The bool result reports whether the input was column-like. Unrecognized
// inputs become a single NaN, which the division then maps to 0.
func toFloatVector(v interface{}) ([]float64, bool) {
	switch x := v.(type) {
	case series.Series:
		return x.Float(), true
	case []float64:
		return x, true
	case []int:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, true
	case []interface{}:
		out := make([]float64, len(x))
		for i, e := range x {
			s, _ := toFloatVector(e)
			out[i] = s[0]
		}
		return out, true
	case float64:
		return []float64{x}, false
	case float32:
		return []float64{float64(x)}, false
	case int:
		return []float64{float64(x)}, false
	case int64:
		return []float64{float64(x)}, false
	case string:
		if f, ok := ParseNumeric(x); ok {
			return []float64{f}, false
		}
		return []float64{math.NaN()}, false
	default:
		return []float64{math.NaN()}, false
	}
}

// SafeContains reports, per row, whether the column value contains the
// pattern, case-insensitively. Missing values never match. The result is a
// bool series the same length as the column.
func SafeContains(column interface{}, pattern string) series.Series {
	pattern = strings.ToLower(pattern)
	var out []bool
	switch col := column.(type) {
	case series.Series:
		out = make([]bool, col.Len())
		for i := range out {
			elem := col.Elem(i)
			if elem.IsNA() {
				continue
			}
			out[i] = strings.Contains(strings.ToLower(elem.String()), pattern)
		}
	case []string:
		out = make([]bool, len(col))
		for i, v := range col {
			out[i] = strings.Contains(strings.ToLower(v), pattern)
		}
	default:
		out = []bool{strings.Contains(strings.ToLower(fmt.Sprint(column)), pattern)}
	}
	return series.New(out, series.Bool, "safe_contains")
}

// CleanResult recursively replaces NaN and Infinity with 0 inside scalars,
// maps, slices, series, and data frames.
func CleanResult(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if !isFinite(x) {
			return float64(0)
		}
		return x
	case float32:
		return CleanResult(float64(x))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = CleanResult(e)
		}
		return out
	case map[string]float64:
		out := make(map[string]float64, len(x))
		for k, e := range x {
			if isFinite(e) {
				out[k] = e
			} else {
				out[k] = 0
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = CleanResult(e)
		}
		return out
	case []float64:
		out := make([]float64, len(x))
		for i, e := range x {
			if isFinite(e) {
				out[i] = e
			} else {
				out[i] = 0
			}
		}
		return out
	case series.Series:
		if x.Type() != series.Float && x.Type() != series.Int {
			return x
		}
		cleaned := CleanResult(x.Float()).([]float64)
		return series.New(cleaned, series.Float, x.Name)
	case dataframe.DataFrame:
		cols := make([]series.Series, 0, len(x.Names()))
		for _, name := range x.Names() {
			col := x.Col(name)
			if cleaned, ok := CleanResult(col).(series.Series); ok {
				col = cleaned
			}
			cols = append(cols, col)
		}
		return dataframe.New(cols...)
	default:
		return v
	}
}

// ScrubShallow is the validator's normalization tail: it zeroes a non-finite
// scalar result and the non-finite values of a flat key-value mapping.
// Deeper structures are left for the result normalizer.
func ScrubShallow(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if !isFinite(x) {
			return float64(0)
		}
		return x
	case float32:
		return ScrubShallow(float64(x))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			if f, ok := e.(float64); ok && !isFinite(f) {
				out[k] = float64(0)
				continue
			}
			out[k] = e
		}
		return out
	case map[string]float64:
		return CleanResult(x)
	default:
		return v
	}
}

// Round rounds to the given number of decimal places, defaulting to 2. It is
// exposed to snippets as round(x) / round(x, n).
func Round(x float64, places ...int) float64 {
	p := 2
	if len(places) > 0 {
		p = places[0]
	}
	if !isFinite(x) {
		return 0
	}
	shift := math.Pow(10, float64(p))
	return math.Round(x*shift) / shift
}

// Abs is exposed to snippets as abs(x).
func Abs(x float64) float64 { return math.Abs(x) }

// Sum totals a column or slice, ignoring non-finite entries. Exposed to
// snippets as sum(x).
func Sum(v interface{}) float64 {
	vals, _ := toFloatVector(v)
	var total float64
	for _, f := range vals {
		if isFinite(f) {
			total += f
		}
	}
	return total
}

// Mean averages a column or slice, ignoring non-finite entries. Exposed to
// snippets as mean(x).
func Mean(v interface{}) float64 {
	vals, _ := toFloatVector(v)
	var total float64
	n := 0
	for _, f := range vals {
		if isFinite(f) {
			total += f
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// Count reports the number of entries in a column, slice, or map. Exposed to
// snippets as count(x).
func Count(v interface{}) int {
	switch x := v.(type) {
	case series.Series:
		return x.Len()
	case dataframe.DataFrame:
		return x.Nrow()
	case []interface{}:
		return len(x)
	case []float64:
		return len(x)
	case []string:
		return len(x)
	case map[string]interface{}:
		return len(x)
	case nil:
		return 0
	default:
		return 1
	}
}
