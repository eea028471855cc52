package normalize

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// bucketRanges are the fixed percentile ranges, selected by the
// (lower, upper] rule.
var bucketRanges = [][2]float64{
	{0, 1}, {1, 5}, {5, 10}, {10, 25}, {25, 50}, {50, 100},
}

// Bucket summarizes the entities whose percentile rank falls in one range.
type Bucket struct {
	Range           string                 `json:"percentile_range"`
	Min             float64                `json:"min"`
	Max             float64                `json:"max"`
	Mean            float64                `json:"mean"`
	Median          float64                `json:"median"`
	SampleSize      int                    `json:"sample_size"`
	Characteristics map[string]interface{} `json:"characteristics,omitempty"`
}

// bucketize summarizes an oversized numeric result into percentile buckets.
// It reports false when the values carry no usable numeric spread (all NaN),
// in which case the caller falls back to sampling. Ranges with no matching
// entities are omitted; a failure analyzing one range skips that range only.
func (n *Normalizer) bucketize(values []float64, df dataframe.DataFrame) ([]Bucket, bool) {
	finite := make([]float64, 0, len(values))
	positions := make([]int, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		finite = append(finite, v)
		positions = append(positions, i)
	}
	if len(finite) == 0 {
		return nil, false
	}

	sorted := append([]float64(nil), finite...)
	sort.Float64s(sorted)

	// Percentile rank per value: fraction of values <= v, so ranks are in
	// (0, 100] and the (lower, upper] selection is consistent at the
	// boundaries.
	ranks := make([]float64, len(finite))
	for i, v := range finite {
		ranks[i] = stat.CDF(v, stat.Empirical, sorted, nil) * 100
	}

	var buckets []Bucket
	for _, r := range bucketRanges {
		if b, ok := n.bucketForRange(r[0], r[1], finite, ranks, positions, df); ok {
			buckets = append(buckets, b)
		}
	}
	if len(buckets) == 0 {
		return nil, false
	}
	return buckets, true
}

func (n *Normalizer) bucketForRange(lower, upper float64, values, ranks []float64, positions []int, df dataframe.DataFrame) (bucket Bucket, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Warn("percentile bucket failed, omitting range",
				zap.Float64("lower", lower), zap.Float64("upper", upper), zap.Any("panic", r))
			ok = false
		}
	}()

	var subset []float64
	var rows []int
	for i, rank := range ranks {
		if rank > lower && rank <= upper {
			subset = append(subset, values[i])
			rows = append(rows, positions[i])
		}
	}
	if len(subset) == 0 {
		return Bucket{}, false
	}

	sortedSubset := append([]float64(nil), subset...)
	sort.Float64s(sortedSubset)

	bucket = Bucket{
		Range:      fmt.Sprintf("%g-%g", lower, upper),
		Min:        round2(sortedSubset[0]),
		Max:        round2(sortedSubset[len(sortedSubset)-1]),
		Mean:       round2(stat.Mean(subset, nil)),
		Median:     round2(stat.Quantile(0.5, stat.Empirical, sortedSubset, nil)),
		SampleSize: len(subset),
	}
	bucket.Characteristics = n.characteristics(rows, df)
	return bucket, true
}

// characteristics joins a bucket's entities back to the dataset rows by
// position and summarizes the configured columns: top-2 values with their
// frequency for categorical columns, rounded average and median for numeric
// columns.
func (n *Normalizer) characteristics(rows []int, df dataframe.DataFrame) map[string]interface{} {
	if df.Nrow() == 0 {
		return nil
	}
	valid := make([]int, 0, len(rows))
	for _, r := range rows {
		if r >= 0 && r < df.Nrow() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	names := make(map[string]bool, len(df.Names()))
	for _, name := range df.Names() {
		names[name] = true
	}

	out := make(map[string]interface{})
	for _, col := range n.cfg.CategoricalColumns {
		col = strings.ToUpper(col)
		if !names[col] {
			continue
		}
		if top := topValues(df.Col(col), valid, 2); len(top) > 0 {
			out[col] = map[string]interface{}{"top_values": top}
		}
	}
	for _, col := range n.cfg.NumericColumns {
		col = strings.ToUpper(col)
		if !names[col] {
			continue
		}
		vals := columnSubset(df.Col(col), valid)
		if len(vals) == 0 {
			continue
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		out[col] = map[string]interface{}{
			"average": round2(stat.Mean(vals, nil)),
			"median":  round2(stat.Quantile(0.5, stat.Empirical, sorted, nil)),
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// topValues returns the k most frequent values among the given rows with
// their rounded share of the subset.
func topValues(s series.Series, rows []int, k int) map[string]float64 {
	counts := make(map[string]int)
	total := 0
	for _, r := range rows {
		elem := s.Elem(r)
		if elem.IsNA() {
			continue
		}
		v := strings.TrimSpace(elem.String())
		if v == "" {
			continue
		}
		counts[v]++
		total++
	}
	if total == 0 {
		return nil
	}
	type vc struct {
		value string
		count int
	}
	ordered := make([]vc, 0, len(counts))
	for v, c := range counts {
		ordered = append(ordered, vc{v, c})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].value < ordered[j].value
	})
	if k < len(ordered) {
		ordered = ordered[:k]
	}
	out := make(map[string]float64, len(ordered))
	for _, e := range ordered {
		out[e.value] = round2(float64(e.count) / float64(total))
	}
	return out
}

func columnSubset(s series.Series, rows []int) []float64 {
	if s.Type() != series.Int && s.Type() != series.Float {
		return nil
	}
	all := s.Float()
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r < len(all) && !math.IsNaN(all[r]) && !math.IsInf(all[r], 0) {
			out = append(out, all[r])
		}
	}
	return out
}
