package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// Field types reported by the field catalog that trigger coercion.
const (
	TypeInteger  = "integer"
	TypeDatetime = "datetime"
)

// UnknownValues are group values the service uses for missing metadata.
var UnknownValues = []string{
	"No place, unknown, or undetermined", "", " ", "Unknown",
	"Unknown or not specified", "No attempt to code", "Undetermined", "|||",
	"???", "N/A", "unk",
}

// FrameOptions controls how rows become a table.
type FrameOptions struct {
	// DropZeros removes rows whose counts are all zero.
	DropZeros bool
	// DropUnknowns removes rows with any group value in UnknownValues.
	DropUnknowns bool
	// DTypes maps group fields to catalog types for value coercion.
	DTypes map[string]string
}

// Frame is a table of rows with group columns followed by count columns,
// sorted by the count columns in descending order.
type Frame struct {
	Groups     []string
	CountTypes []string
	Rows       []Row
}

// NewFrame builds a frame from expanded rows. The input rows are not modified.
func NewFrame(rows []Row, groups, countTypes []string, opts FrameOptions) *Frame {
	unknown := make(map[string]bool, len(UnknownValues))
	for _, v := range UnknownValues {
		unknown[v] = true
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if opts.DropUnknowns && hasUnknown(r, groups, unknown) {
			continue
		}
		if opts.DropZeros && allZero(r, countTypes) {
			continue
		}
		out = append(out, coerce(r, opts.DTypes))
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, ct := range countTypes {
			a, b := toFloat(out[i][ct]), toFloat(out[j][ct])
			if a != b {
				return a > b
			}
		}
		return false
	})

	return &Frame{
		Groups:     append([]string{}, groups...),
		CountTypes: append([]string{}, countTypes...),
		Rows:       out,
	}
}

// Columns returns the group columns followed by the count columns.
func (f *Frame) Columns() []string {
	cols := make([]string, 0, len(f.Groups)+len(f.CountTypes))
	cols = append(cols, f.Groups...)
	return append(cols, f.CountTypes...)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Head returns a frame with at most n rows. A non-positive n keeps all rows.
func (f *Frame) Head(n int) *Frame {
	if n <= 0 || n >= len(f.Rows) {
		return f
	}
	return &Frame{Groups: f.Groups, CountTypes: f.CountTypes, Rows: f.Rows[:n]}
}

// Column returns the values of one column in row order.
func (f *Frame) Column(name string) []any {
	out := make([]any, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r[name]
	}
	return out
}

// Tuples returns each row as a slice ordered by Columns.
func (f *Frame) Tuples() [][]any {
	cols := f.Columns()
	out := make([][]any, len(f.Rows))
	for i, r := range f.Rows {
		t := make([]any, len(cols))
		for j, c := range cols {
			t[j] = r[c]
		}
		out[i] = t
	}
	return out
}

// WriteCSV writes a header row and one record per row.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns()); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, t := range f.Tuples() {
		record := make([]string, len(t))
		for i, v := range t {
			record[i] = formatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV renders the frame as CSV text.
func (f *Frame) CSV() (string, error) {
	var sb strings.Builder
	if err := f.WriteCSV(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// WriteTable writes an aligned plain-text table.
func (f *Frame) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(f.Columns(), "\t"))
	for _, t := range f.Tuples() {
		cells := make([]string, len(t))
		for i, v := range t {
			cells[i] = formatValue(v)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// Markdown renders the frame as a markdown table.
func (f *Frame) Markdown() string {
	var sb strings.Builder
	cols := f.Columns()
	sb.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
	for _, t := range f.Tuples() {
		cells := make([]string, len(t))
		for i, v := range t {
			cells[i] = strings.ReplaceAll(formatValue(v), "|", `\|`)
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return sb.String()
}

// JSON encodes the rows as a list of objects.
func (f *Frame) JSON() ([]byte, error) {
	return json.Marshal(f.Rows)
}

func hasUnknown(r Row, groups []string, unknown map[string]bool) bool {
	for _, g := range groups {
		if s, ok := r[g].(string); ok && unknown[s] {
			return true
		}
	}
	return false
}

func allZero(r Row, countTypes []string) bool {
	for _, ct := range countTypes {
		if toFloat(r[ct]) != 0 {
			return false
		}
	}
	return true
}

func coerce(r Row, dtypes map[string]string) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch dtypes[k] {
		case TypeInteger:
			if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				out[k] = i
			}
		case TypeDatetime:
			for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
				if ts, err := time.Parse(layout, s); err == nil {
					out[k] = ts
					break
				}
			}
		}
	}
	return out
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.DateOnly)
	default:
		return fmt.Sprint(v)
	}
}
