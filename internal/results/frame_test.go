package results

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	return []Row{
		{"state": "Ohio", "year": "1900", "TextCount": 5.0, "WordCount": 100.0},
		{"state": "Unknown", "year": "1901", "TextCount": 9.0, "WordCount": 50.0},
		{"state": "Maine", "year": "1902", "TextCount": 0.0, "WordCount": 0.0},
		{"state": "Iowa", "year": "1903", "TextCount": 5.0, "WordCount": 200.0},
	}
}

func TestNewFrame_SortsByCountTypesDescending(t *testing.T) {
	f := NewFrame(sampleRows(), []string{"state", "year"}, []string{"TextCount", "WordCount"}, FrameOptions{})

	assert.Equal(t, []any{"Unknown", "Iowa", "Ohio", "Maine"}, f.Column("state"))
}

func TestNewFrame_DropZeros(t *testing.T) {
	f := NewFrame(sampleRows(), []string{"state", "year"}, []string{"TextCount", "WordCount"}, FrameOptions{DropZeros: true})

	assert.Equal(t, 3, f.Len())
	assert.NotContains(t, f.Column("state"), "Maine")
}

func TestNewFrame_DropUnknowns(t *testing.T) {
	f := NewFrame(sampleRows(), []string{"state", "year"}, []string{"TextCount", "WordCount"}, FrameOptions{DropUnknowns: true})

	assert.NotContains(t, f.Column("state"), "Unknown")
	assert.Equal(t, 3, f.Len())
}

func TestNewFrame_CoercesTypedGroups(t *testing.T) {
	rows := []Row{
		{"year": "1900", "date": "1900-01-02", "TextCount": 1.0},
		{"year": "n/a", "date": "soon", "TextCount": 0.0},
	}
	f := NewFrame(rows, []string{"year", "date"}, []string{"TextCount"}, FrameOptions{
		DTypes: map[string]string{"year": TypeInteger, "date": TypeDatetime},
	})

	assert.Equal(t, int64(1900), f.Rows[0]["year"])
	assert.Equal(t, time.Date(1900, 1, 2, 0, 0, 0, 0, time.UTC), f.Rows[0]["date"])
	assert.Equal(t, "n/a", f.Rows[1]["year"])
	assert.Equal(t, "soon", f.Rows[1]["date"])
	assert.Equal(t, "1900", rows[0]["year"], "input rows must not change")
}

func TestFrame_Tuples(t *testing.T) {
	f := NewFrame(sampleRows()[:1], []string{"state", "year"}, []string{"TextCount", "WordCount"}, FrameOptions{})

	assert.Equal(t, []string{"state", "year", "TextCount", "WordCount"}, f.Columns())
	assert.Equal(t, [][]any{{"Ohio", "1900", 5.0, 100.0}}, f.Tuples())
}

func TestFrame_CSV(t *testing.T) {
	f := NewFrame(sampleRows()[:2], []string{"state"}, []string{"TextCount"}, FrameOptions{})

	out, err := f.CSV()
	require.NoError(t, err)
	assert.Equal(t, "state,TextCount\nUnknown,9\nOhio,5\n", out)
}

func TestFrame_WriteTable(t *testing.T) {
	f := NewFrame(sampleRows()[:1], []string{"state"}, []string{"TextCount"}, FrameOptions{})

	var buf bytes.Buffer
	require.NoError(t, f.WriteTable(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "state"))
	assert.Contains(t, lines[1], "Ohio")
}

func TestFrame_Markdown(t *testing.T) {
	rows := []Row{{"publisher": "A|B", "TextCount": 2.0}}
	f := NewFrame(rows, []string{"publisher"}, []string{"TextCount"}, FrameOptions{})

	md := f.Markdown()
	assert.Contains(t, md, "| publisher | TextCount |")
	assert.Contains(t, md, `| A\|B | 2 |`)
}

func TestFrame_Head(t *testing.T) {
	f := NewFrame(sampleRows(), []string{"state"}, []string{"TextCount"}, FrameOptions{})

	assert.Equal(t, 2, f.Head(2).Len())
	assert.Equal(t, 4, f.Head(0).Len())
	assert.Equal(t, 4, f.Head(10).Len())
}

func TestResults_Frame(t *testing.T) {
	r, err := Decode([]byte(`{"1900": [1, 10], "1901": [3, 30]}`), []string{"date_year"}, []string{"TextCount", "WordCount"},
		map[string]string{"date_year": TypeInteger})
	require.NoError(t, err)

	f, err := r.Frame(FrameOptions{})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1901), int64(1900)}, f.Column("date_year"))

	raw, err := r.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"1900": [1, 10], "1901": [3, 30]}`, string(raw))
}

func TestResults_ShapeErrorPropagates(t *testing.T) {
	r, err := Decode([]byte(`{"1900": [1]}`), []string{"date_year"}, []string{"TextCount", "WordCount"}, nil)
	require.NoError(t, err)

	_, err = r.Frame(FrameOptions{})
	assert.ErrorIs(t, err, ErrShape)
}

func TestResults_InMemory(t *testing.T) {
	r := New(Branch(Entry{Key: "A", Value: Leaf(1)}), []string{"x"}, []string{"C"}, nil)

	raw, err := r.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":[1]}`, string(raw))
	assert.Equal(t, []string{"x"}, r.Groups())
	assert.Equal(t, []string{"C"}, r.CountTypes())
}
