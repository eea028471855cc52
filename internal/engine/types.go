package engine

// Plan is an externally supplied, ordered list of metric computations. The
// engine never originates plans; it only consumes them.
type Plan struct {
	Metrics []MetricSpec `json:"metrics"`
}

// MetricSpec is one named data-transformation snippet. Names must be unique
// within a plan; each becomes a key in the result mapping and, lowercased,
// an identifier later metrics can reference.
type MetricSpec struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// MetricResult is either a JSON-safe computed value or an error marker.
type MetricResult struct {
	Value interface{} `json:"value,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Failed reports whether the metric produced an error instead of a value.
func (r MetricResult) Failed() bool { return r.Error != "" }

// PlanResult maps metric names to their results, with Order preserving the
// plan's execution order.
type PlanResult struct {
	Order   []string                `json:"order"`
	Metrics map[string]MetricResult `json:"metrics"`
}
