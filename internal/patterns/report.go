// Package patterns profiles a dataset into the statistical report consumed
// by the external plan generator: temporal facts, strong correlations,
// categorical distributions and their impact on numeric columns, a
// relationships sub-report, and a ranking of the most connected metrics.
package patterns

// Report is the full statistical profile of one dataset. Every field is
// always present; a failed detection produces the empty shape rather than an
// error.
type Report struct {
	Temporal        map[string]TemporalPattern    `json:"temporal_patterns"`
	Correlations    []Correlation                 `json:"correlations"`
	Categorical     map[string]CategoricalPattern `json:"categorical_patterns"`
	KeyMetrics      map[string]KeyMetric          `json:"key_metrics"`
	Relationships   Relationships                 `json:"relationships"`
	ColumnStructure map[string]ColumnProfile      `json:"column_structure"`
}

// Empty returns a well-shaped report with no findings.
func Empty() Report {
	return Report{
		Temporal:     map[string]TemporalPattern{},
		Correlations: []Correlation{},
		Categorical:  map[string]CategoricalPattern{},
		KeyMetrics:   map[string]KeyMetric{},
		Relationships: Relationships{
			Correlations: map[string]RelatedCorrelation{},
			Dependencies: map[string]Dependency{},
		},
		ColumnStructure: map[string]ColumnProfile{},
	}
}

// TemporalPattern describes one temporal column.
type TemporalPattern struct {
	Frequency string    `json:"frequency"`
	Range     TimeRange `json:"range"`
}

// TimeRange is an inclusive time span.
type TimeRange struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	SpanDays int    `json:"span_days"`
}

// Correlation is a strongly correlated column pair.
type Correlation struct {
	Columns     []string `json:"columns"`
	Correlation float64  `json:"correlation"`
}

// CategoricalPattern describes a likely-category column.
type CategoricalPattern struct {
	UniqueValues int `json:"unique_values"`

	// Distribution maps each value to its normalized frequency.
	Distribution map[string]float64 `json:"distribution"`

	// NumericImpacts maps each numeric column to the category's impact on it.
	NumericImpacts map[string]Dependency `json:"numeric_impacts,omitempty"`
}

// Dependency is the strength of a categorical column's influence on a
// numeric column. Impact is "high", "medium", "low", or "error" when the
// strength could not be computed.
type Dependency struct {
	Strength float64 `json:"strength"`
	Impact   string  `json:"impact"`
}

// Relationships collects the weaker-threshold findings used for ranking.
type Relationships struct {
	Correlations map[string]RelatedCorrelation `json:"correlations"`
	Dependencies map[string]Dependency         `json:"dependencies"`
}

// RelatedCorrelation is one correlation above the relationship threshold.
type RelatedCorrelation struct {
	Strength  float64 `json:"strength"`
	Direction string  `json:"direction"`
}

// KeyMetric ranks a numeric column by how many relationships reference it.
type KeyMetric struct {
	RelationshipCount int      `json:"relationship_count"`
	Type              string   `json:"type"`
	RelatedMetrics    []string `json:"related_metrics"`
}

// ColumnProfile is the per-column structure summary.
type ColumnProfile struct {
	Type         string             `json:"type"`
	Stats        *NumericStats      `json:"stats,omitempty"`
	Range        *TimeRange         `json:"range,omitempty"`
	UniqueValues int                `json:"unique_values,omitempty"`
	Distribution map[string]float64 `json:"distribution,omitempty"`
}

// NumericStats summarizes a numeric column.
type NumericStats struct {
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Mean           float64 `json:"mean"`
	NullPercentage float64 `json:"null_percentage"`
}
