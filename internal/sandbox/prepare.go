// Package sandbox prepares a dataset for plan execution and runs validated
// metric snippets inside a yaegi interpreter that exposes only the dataset
// and the safe helpers. Metrics run strictly in plan order; each normalized
// result is bound back into the interpreter so later metrics can reference
// earlier ones.
package sandbox

import (
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"tapengine/internal/config"
	"tapengine/internal/frame"
)

// Prepare applies the one-time dataset transforms that run before any
// metric: column names are uppercased, header-like noise rows are dropped,
// marked columns are comma-stripped and coerced to numeric, and rows whose
// known string columns hold generic placeholder terms are removed. The input
// frame is not modified.
func Prepare(df dataframe.DataFrame, cfg config.SandboxConfig) dataframe.DataFrame {
	df = uppercaseColumns(df)
	df = dropHeaderNoise(df)
	df = coerceMarkedColumns(df, cfg.CoercionMarkers)
	df = dropPlaceholderRows(df, cfg.PlaceholderColumns, cfg.PlaceholderTerms)
	return df
}

// uppercaseColumns renames every column to its trimmed uppercase form. A
// name that collides after uppercasing keeps only the first column.
func uppercaseColumns(df dataframe.DataFrame) dataframe.DataFrame {
	seen := make(map[string]bool, len(df.Names()))
	var cols []series.Series
	for _, name := range df.Names() {
		upper := strings.ToUpper(strings.TrimSpace(name))
		if seen[upper] {
			continue
		}
		seen[upper] = true
		col := df.Col(name).Copy()
		col.Name = upper
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return df
	}
	out := dataframe.New(cols...)
	if out.Error() != nil {
		return df
	}
	return out
}

// dropHeaderNoise removes rows where any column's stringified value contains
// that column's own name. Such rows are almost always a stray header
// duplicated into the data.
func dropHeaderNoise(df dataframe.DataFrame) dataframe.DataFrame {
	names := df.Names()
	keep := make([]int, 0, df.Nrow())
	for row := 0; row < df.Nrow(); row++ {
		noisy := false
		for _, name := range names {
			val := strings.TrimSpace(df.Col(name).Elem(row).String())
			if val == "" {
				continue
			}
			if strings.Contains(strings.ToUpper(val), name) {
				noisy = true
				break
			}
		}
		if !noisy {
			keep = append(keep, row)
		}
	}
	return subset(df, keep)
}

// coerceMarkedColumns rebuilds columns whose name contains a coercion marker
// as numeric, stripping thousands separators. Unparseable values become 0.
func coerceMarkedColumns(df dataframe.DataFrame, markers []string) dataframe.DataFrame {
	var cols []series.Series
	changed := false
	for _, name := range df.Names() {
		col := df.Col(name)
		if nameHasMarker(name, markers) && col.Type() != series.Float {
			records := col.Records()
			vals := make([]float64, len(records))
			for i, r := range records {
				if f, ok := frame.ParseNumeric(r); ok {
					vals[i] = f
				}
			}
			col = series.New(vals, series.Float, name)
			changed = true
		}
		cols = append(cols, col)
	}
	if !changed || len(cols) == 0 {
		return df
	}
	out := dataframe.New(cols...)
	if out.Error() != nil {
		return df
	}
	return out
}

func nameHasMarker(name string, markers []string) bool {
	upper := strings.ToUpper(name)
	for _, m := range markers {
		if m != "" && strings.Contains(upper, strings.ToUpper(m)) {
			return true
		}
	}
	return false
}

// dropPlaceholderRows removes rows whose value in one of the known string
// columns is a bare placeholder term ("widget", "account", "placement").
func dropPlaceholderRows(df dataframe.DataFrame, columns, terms []string) dataframe.DataFrame {
	present := make([]string, 0, len(columns))
	names := make(map[string]bool, len(df.Names()))
	for _, n := range df.Names() {
		names[n] = true
	}
	for _, c := range columns {
		if names[strings.ToUpper(c)] {
			present = append(present, strings.ToUpper(c))
		}
	}
	if len(present) == 0 || len(terms) == 0 {
		return df
	}

	keep := make([]int, 0, df.Nrow())
	for row := 0; row < df.Nrow(); row++ {
		placeholder := false
		for _, name := range present {
			val := strings.TrimSpace(df.Col(name).Elem(row).String())
			for _, term := range terms {
				if strings.EqualFold(val, term) {
					placeholder = true
					break
				}
			}
			if placeholder {
				break
			}
		}
		if !placeholder {
			keep = append(keep, row)
		}
	}
	return subset(df, keep)
}

func subset(df dataframe.DataFrame, rows []int) dataframe.DataFrame {
	if len(rows) == df.Nrow() {
		return df
	}
	out := df.Subset(rows)
	if out.Error() != nil {
		return df
	}
	return out
}
