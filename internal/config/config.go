// Package config holds the engine's tunable thresholds. The defaults encode
// the documented behavior; a YAML file can override individual values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	// Pattern detection thresholds
	Patterns PatternsConfig `yaml:"patterns"`

	// Dataset preparation before plan execution
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Result normalization
	Normalize NormalizeConfig `yaml:"normalize"`
}

// PatternsConfig configures the pattern detector.
type PatternsConfig struct {
	// StrongCorrelation is the |r| cutoff for the top-level correlations
	// section.
	StrongCorrelation float64 `yaml:"strong_correlation"`

	// RelatedCorrelation is the lower |r| cutoff for the relationships
	// sub-report.
	RelatedCorrelation float64 `yaml:"related_correlation"`

	// DependencyThreshold is the minimum categorical-to-numeric impact
	// strength recorded as a dependency.
	DependencyThreshold float64 `yaml:"dependency_threshold"`

	// CategoricalUniqueRatio is the unique-value ratio below which a text
	// column is treated as categorical.
	CategoricalUniqueRatio float64 `yaml:"categorical_unique_ratio"`

	// KeyMetricLimit caps the key-metrics ranking.
	KeyMetricLimit int `yaml:"key_metric_limit"`
}

// SandboxConfig configures the one-time dataset preparation that runs before
// any metric executes.
type SandboxConfig struct {
	// CoercionMarkers lists substrings of column names whose values are
	// comma-stripped and coerced to numeric.
	CoercionMarkers []string `yaml:"coercion_markers"`

	// PlaceholderColumns are string columns checked for placeholder rows.
	PlaceholderColumns []string `yaml:"placeholder_columns"`

	// PlaceholderTerms are the generic values that mark a row as a stray
	// description rather than data.
	PlaceholderTerms []string `yaml:"placeholder_terms"`
}

// NormalizeConfig configures the result normalizer.
type NormalizeConfig struct {
	// SizeThreshold is the row/length count above which a result is
	// summarized instead of returned verbatim.
	SizeThreshold int `yaml:"size_threshold"`

	// SampleSize is the number of entries kept by the sampling fallback.
	SampleSize int `yaml:"sample_size"`

	// CategoricalColumns are summarized (top values) per percentile bucket.
	CategoricalColumns []string `yaml:"categorical_columns"`

	// NumericColumns are summarized (average, median) per percentile bucket.
	NumericColumns []string `yaml:"numeric_columns"`
}

// Default returns the engine's default configuration.
func Default() *Config {
	return &Config{
		Patterns: PatternsConfig{
			StrongCorrelation:      0.7,
			RelatedCorrelation:     0.3,
			DependencyThreshold:    0.1,
			CategoricalUniqueRatio: 0.1,
			KeyMetricLimit:         5,
		},
		Sandbox: SandboxConfig{
			CoercionMarkers:    []string{"VIEWS", "CLICKS", "NUMBER_OF"},
			PlaceholderColumns: []string{"WIDGET_NAME", "ACCOUNT_NAME", "PLACEMENT"},
			PlaceholderTerms:   []string{"widget", "account", "placement"},
		},
		Normalize: NormalizeConfig{
			SizeThreshold:      1000,
			SampleSize:         50,
			CategoricalColumns: []string{"WIDGET_NAME", "LAYOUT", "PLACEMENT"},
			NumericColumns:     []string{"VIEWS", "CLICKS", "ATTRIBUTED_REVENUE"},
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
