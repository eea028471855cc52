// Package frame builds and classifies the tabular datasets the engine
// operates on. It is a thin layer over gota: gota supplies the DataFrame
// representation and string-to-type inference, frame adds the pieces gota
// does not have (temporal column detection, comma-tolerant numeric parsing)
// and hosts the safe helpers exposed to metric snippets.
package frame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var (
	// ErrNoColumns is returned when a dataset has no columns at all.
	ErrNoColumns = errors.New("dataset has no columns")

	// ErrDuplicateColumn is returned when two column names collide after
	// whitespace trimming.
	ErrDuplicateColumn = errors.New("duplicate column name")
)

// Kind classifies a column for profiling purposes.
type Kind int

const (
	KindNumeric Kind = iota
	KindTemporal
	KindCategorical
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindTemporal:
		return "temporal"
	default:
		return "categorical"
	}
}

// timeLayouts are tried in order when probing a column for temporal values.
var timeLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// FromRecords builds a DataFrame from a header row plus data rows. Column
// names are whitespace-trimmed and must be unique after trimming; value
// types are inferred by gota.
func FromRecords(records [][]string) (dataframe.DataFrame, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return dataframe.DataFrame{}, ErrNoColumns
	}
	header := make([]string, len(records[0]))
	seen := make(map[string]bool, len(header))
	for i, name := range records[0] {
		trimmed := strings.TrimSpace(name)
		if seen[trimmed] {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %q", ErrDuplicateColumn, trimmed)
		}
		seen[trimmed] = true
		header[i] = trimmed
	}
	clean := make([][]string, len(records))
	clean[0] = header
	copy(clean[1:], records[1:])

	df := dataframe.LoadRecords(clean, dataframe.DetectTypes(true), dataframe.HasHeader(true))
	if df.Error() != nil {
		return dataframe.DataFrame{}, fmt.Errorf("load records: %w", df.Error())
	}
	return df, nil
}

// FromRows builds a DataFrame from row maps, as decoded from a JSON array of
// objects. Keys are whitespace-trimmed.
func FromRows(rows []map[string]interface{}) (dataframe.DataFrame, error) {
	if len(rows) == 0 {
		return dataframe.DataFrame{}, ErrNoColumns
	}
	clean := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		m := make(map[string]interface{}, len(row))
		for k, v := range row {
			m[strings.TrimSpace(k)] = v
		}
		clean[i] = m
	}
	df := dataframe.LoadMaps(clean, dataframe.DetectTypes(true))
	if df.Error() != nil {
		return dataframe.DataFrame{}, fmt.Errorf("load rows: %w", df.Error())
	}
	return df, nil
}

// ColumnKind classifies a single column. Numeric gota types are numeric;
// string columns whose non-empty values mostly parse as dates are temporal;
// everything else is categorical.
func ColumnKind(s series.Series) Kind {
	switch s.Type() {
	case series.Int, series.Float:
		return KindNumeric
	case series.Bool:
		return KindCategorical
	}
	records := s.Records()
	parsed, nonEmpty := 0, 0
	for _, r := range records {
		r = strings.TrimSpace(r)
		if r == "" || strings.EqualFold(r, "nan") {
			continue
		}
		nonEmpty++
		if _, ok := ParseTime(r); ok {
			parsed++
		}
	}
	if nonEmpty > 0 && parsed*5 >= nonEmpty*4 { // at least 80% parse as dates
		return KindTemporal
	}
	return KindCategorical
}

// ParseTime parses a value against the known date layouts.
func ParseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseNumeric parses a possibly comma-formatted number such as "1,000" or
// " 12.5 ". It reports false for anything that is not a number.
func ParseNumeric(value string) (float64, bool) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Columns returns the dataset's column names split by kind, preserving the
// original column order within each slice.
func Columns(df dataframe.DataFrame, kind Kind) []string {
	var out []string
	for _, name := range df.Names() {
		if ColumnKind(df.Col(name)) == kind {
			out = append(out, name)
		}
	}
	return out
}

// Times parses a temporal column into time values, skipping unparseable
// entries.
func Times(s series.Series) []time.Time {
	var out []time.Time
	for _, r := range s.Records() {
		if t, ok := ParseTime(r); ok {
			out = append(out, t)
		}
	}
	return out
}

// Floats returns the finite float values of a numeric column, in order. The
// second return value maps each kept value back to its row index.
func Floats(s series.Series) ([]float64, []int) {
	raw := s.Float()
	vals := make([]float64, 0, len(raw))
	rows := make([]int, 0, len(raw))
	for i, v := range raw {
		if isFinite(v) {
			vals = append(vals, v)
			rows = append(rows, i)
		}
	}
	return vals, rows
}
