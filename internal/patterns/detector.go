package patterns

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"tapengine/internal/config"
	"tapengine/internal/frame"
)

// Detector profiles datasets. It never returns an error: any internal
// failure yields an empty, well-shaped report.
type Detector struct {
	cfg config.PatternsConfig
	log *zap.Logger
}

// NewDetector creates a detector with the given thresholds. A nil logger is
// replaced with a no-op logger.
func NewDetector(cfg config.PatternsConfig, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{cfg: cfg, log: log}
}

// correlated column pair, kept alongside the report's string-keyed maps so
// that key-metric counting does not have to re-parse map keys.
type corrPair struct {
	a, b string
	r    float64
}

type depPair struct {
	cat, num string
	strength float64
}

// Detect builds the pattern report for a dataset.
func (d *Detector) Detect(df dataframe.DataFrame) (report Report) {
	report = Empty()
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("pattern detection failed, returning empty report",
				zap.Any("panic", r))
			report = Empty()
		}
	}()

	if df.Nrow() == 0 || len(df.Names()) == 0 {
		return report
	}

	numericCols := frame.Columns(df, frame.KindNumeric)
	temporalCols := frame.Columns(df, frame.KindTemporal)
	categoricalCols := frame.Columns(df, frame.KindCategorical)

	d.detectTemporal(df, temporalCols, &report)

	var corrs []corrPair
	var deps []depPair
	if len(numericCols) >= 2 {
		corrs = d.detectCorrelations(df, numericCols, &report)
		deps = d.detectDependencies(df, categoricalCols, numericCols, &report)
	}

	d.detectCategorical(df, categoricalCols, numericCols, &report)
	d.rankKeyMetrics(df, numericCols, corrs, deps, &report)
	report.ColumnStructure = DescribeColumns(df)

	return report
}

func (d *Detector) detectTemporal(df dataframe.DataFrame, cols []string, report *Report) {
	for _, name := range cols {
		times := frame.Times(df.Col(name))
		if len(times) == 0 {
			continue
		}
		sorted := make([]time.Time, len(times))
		copy(sorted, times)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

		start, end := sorted[0], sorted[len(sorted)-1]
		report.Temporal[name] = TemporalPattern{
			Frequency: inferFrequency(sorted),
			Range: TimeRange{
				Start:    start.Format(time.RFC3339),
				End:      end.Format(time.RFC3339),
				SpanDays: int(end.Sub(start).Hours() / 24),
			},
		}
	}
}

// inferFrequency guesses the sampling interval from the median gap between
// consecutive distinct timestamps.
func inferFrequency(sorted []time.Time) string {
	var gaps []float64
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Sub(sorted[i-1]).Hours() / 24
		if gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	if len(gaps) == 0 {
		return "unknown"
	}
	sort.Float64s(gaps)
	median := gaps[len(gaps)/2]
	switch {
	case median <= 1.5:
		return "daily"
	case median >= 6 && median <= 8:
		return "weekly"
	case median >= 28 && median <= 31:
		return "monthly"
	case median >= 89 && median <= 92:
		return "quarterly"
	case median >= 360 && median <= 370:
		return "yearly"
	default:
		return "irregular"
	}
}

func (d *Detector) detectCorrelations(df dataframe.DataFrame, numericCols []string, report *Report) []corrPair {
	var pairs []corrPair
	for i := 0; i < len(numericCols); i++ {
		for j := i + 1; j < len(numericCols); j++ {
			a, b := numericCols[i], numericCols[j]
			x, y := alignedFloats(df.Col(a), df.Col(b))
			if len(x) < 2 {
				continue
			}
			r := stat.Correlation(x, y, nil)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				continue
			}
			if math.Abs(r) > d.cfg.StrongCorrelation {
				report.Correlations = append(report.Correlations, Correlation{
					Columns:     []string{a, b},
					Correlation: r,
				})
			}
			if math.Abs(r) > d.cfg.RelatedCorrelation {
				direction := "positive"
				if r < 0 {
					direction = "negative"
				}
				report.Relationships.Correlations[a+"_"+b] = RelatedCorrelation{
					Strength:  round3(r),
					Direction: direction,
				}
				pairs = append(pairs, corrPair{a: a, b: b, r: r})
			}
		}
	}
	return pairs
}

func (d *Detector) detectDependencies(df dataframe.DataFrame, categoricalCols, numericCols []string, report *Report) []depPair {
	var pairs []depPair
	for _, cat := range categoricalCols {
		for _, num := range numericCols {
			dep := CategoricalImpact(df, cat, num)
			if dep.Strength > d.cfg.DependencyThreshold {
				report.Relationships.Dependencies[cat+"_"+num] = dep
				pairs = append(pairs, depPair{cat: cat, num: num, strength: dep.Strength})
			}
		}
	}
	return pairs
}

func (d *Detector) detectCategorical(df dataframe.DataFrame, categoricalCols, numericCols []string, report *Report) {
	nrow := df.Nrow()
	for _, name := range categoricalCols {
		values := nonNullRecords(df.Col(name))
		distinct := distinctCount(values)
		if nrow == 0 || float64(distinct)/float64(nrow) >= d.cfg.CategoricalUniqueRatio {
			continue
		}
		pattern := CategoricalPattern{
			UniqueValues: distinct,
			Distribution: distribution(values, 0),
		}
		if len(numericCols) > 0 {
			pattern.NumericImpacts = make(map[string]Dependency, len(numericCols))
			for _, num := range numericCols {
				pattern.NumericImpacts[num] = CategoricalImpact(df, name, num)
			}
		}
		report.Categorical[name] = pattern
	}
}

// CategoricalImpact measures how strongly a categorical column separates a
// numeric column: the standard deviation of per-group means divided by the
// overall mean. A zero overall mean gives strength 0; a failed computation
// (fewer than two groups, no numeric data) gives strength 0 with
// impact "error".
func CategoricalImpact(df dataframe.DataFrame, catCol, numCol string) Dependency {
	cats := df.Col(catCol).Records()
	nums := df.Col(numCol).Float()
	if len(cats) != len(nums) {
		return Dependency{Strength: 0, Impact: "error"}
	}

	groups := make(map[string][]float64)
	var overall []float64
	for i, v := range nums {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		overall = append(overall, v)
		groups[cats[i]] = append(groups[cats[i]], v)
	}
	if len(groups) < 2 || len(overall) == 0 {
		return Dependency{Strength: 0, Impact: "error"}
	}

	means := make([]float64, 0, len(groups))
	for _, vals := range groups {
		means = append(means, stat.Mean(vals, nil))
	}
	overallMean := stat.Mean(overall, nil)
	if overallMean == 0 {
		return Dependency{Strength: 0, Impact: impactLabel(0)}
	}
	strength := stat.StdDev(means, nil) / overallMean
	if math.IsNaN(strength) || math.IsInf(strength, 0) {
		return Dependency{Strength: 0, Impact: "error"}
	}
	strength = round3(strength)
	return Dependency{Strength: strength, Impact: impactLabel(strength)}
}

func impactLabel(strength float64) string {
	switch {
	case strength > 0.5:
		return "high"
	case strength > 0.2:
		return "medium"
	default:
		return "low"
	}
}

func (d *Detector) rankKeyMetrics(df dataframe.DataFrame, numericCols []string, corrs []corrPair, deps []depPair, report *Report) {
	type ranked struct {
		name  string
		order int
		km    KeyMetric
	}
	var metrics []ranked
	for i, name := range numericCols {
		count := 0
		var related []string
		for _, p := range corrs {
			if p.a == name {
				count++
				related = append(related, p.b)
			} else if p.b == name {
				count++
				related = append(related, p.a)
			}
		}
		for _, p := range deps {
			if p.num == name {
				count++
			}
		}
		metrics = append(metrics, ranked{
			name:  name,
			order: i,
			km: KeyMetric{
				RelationshipCount: count,
				Type:              metricType(df.Col(name)),
				RelatedMetrics:    related,
			},
		})
	}
	// Descending by relationship count; ties keep original column order.
	sort.SliceStable(metrics, func(i, j int) bool {
		return metrics[i].km.RelationshipCount > metrics[j].km.RelationshipCount
	})
	limit := d.cfg.KeyMetricLimit
	if limit <= 0 || limit > len(metrics) {
		limit = len(metrics)
	}
	for _, m := range metrics[:limit] {
		report.KeyMetrics[m.name] = m.km
	}
}

// metricType classifies a numeric column: non-negative integers count
// things, non-negative floats are continuous, anything signed tracks change.
func metricType(s series.Series) string {
	vals, _ := frame.Floats(s)
	for _, v := range vals {
		if v < 0 {
			return "change_metric"
		}
	}
	if s.Type() == series.Int {
		return "count_metric"
	}
	return "continuous_metric"
}

// DescribeColumns builds the per-column structure summary.
func DescribeColumns(df dataframe.DataFrame) map[string]ColumnProfile {
	out := make(map[string]ColumnProfile, len(df.Names()))
	for _, name := range df.Names() {
		col := df.Col(name)
		switch frame.ColumnKind(col) {
		case frame.KindNumeric:
			vals, _ := frame.Floats(col)
			profile := ColumnProfile{Type: "numeric"}
			nulls := col.Len() - len(vals)
			stats := &NumericStats{}
			if len(vals) > 0 {
				sorted := append([]float64(nil), vals...)
				sort.Float64s(sorted)
				stats.Min = sorted[0]
				stats.Max = sorted[len(sorted)-1]
				stats.Mean = stat.Mean(vals, nil)
			}
			if col.Len() > 0 {
				stats.NullPercentage = float64(nulls) / float64(col.Len()) * 100
			}
			profile.Stats = stats
			out[name] = profile
		case frame.KindTemporal:
			times := frame.Times(col)
			profile := ColumnProfile{Type: "temporal"}
			if len(times) > 0 {
				sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
				profile.Range = &TimeRange{
					Start:    times[0].Format(time.RFC3339),
					End:      times[len(times)-1].Format(time.RFC3339),
					SpanDays: int(times[len(times)-1].Sub(times[0]).Hours() / 24),
				}
			}
			out[name] = profile
		default:
			values := nonNullRecords(col)
			out[name] = ColumnProfile{
				Type:         "categorical",
				UniqueValues: distinctCount(values),
				Distribution: distribution(values, 5),
			}
		}
	}
	return out
}

func nonNullRecords(s series.Series) []string {
	var out []string
	for i := 0; i < s.Len(); i++ {
		elem := s.Elem(i)
		if elem.IsNA() {
			continue
		}
		v := strings.TrimSpace(elem.String())
		if v == "" || strings.EqualFold(v, "nan") {
			continue
		}
		out = append(out, v)
	}
	return out
}

func distinctCount(values []string) int {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		seen[v] = true
	}
	return len(seen)
}

// distribution returns value frequencies normalized over non-null entries.
// A positive head keeps only the most frequent values.
func distribution(values []string, head int) map[string]float64 {
	if len(values) == 0 {
		return map[string]float64{}
	}
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
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
	if head > 0 && head < len(ordered) {
		ordered = ordered[:head]
	}
	total := float64(len(values))
	out := make(map[string]float64, len(ordered))
	for _, e := range ordered {
		out[e.value] = float64(e.count) / total
	}
	return out
}

// alignedFloats returns the rows where both columns hold finite values.
func alignedFloats(a, b series.Series) ([]float64, []float64) {
	af, bf := a.Float(), b.Float()
	n := len(af)
	if len(bf) < n {
		n = len(bf)
	}
	var x, y []float64
	for i := 0; i < n; i++ {
		if math.IsNaN(af[i]) || math.IsInf(af[i], 0) || math.IsNaN(bf[i]) || math.IsInf(bf[i], 0) {
			continue
		}
		x = append(x, af[i])
		y = append(y, bf[i])
	}
	return x, y
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
