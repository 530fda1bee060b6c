package query

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T, fields ...string) *Builder {
	t.Helper()
	b, err := NewBuilder("hathipd", fields)
	require.NoError(t, err)
	return b
}

func TestNewBuilder_RequiresDatabase(t *testing.T) {
	_, err := NewBuilder("", []string{"date_year"})
	assert.ErrorIs(t, err, ErrMissingDatabase)
}

func TestNewBuilder_Defaults(t *testing.T) {
	b := newTestBuilder(t, "date_year")
	d := b.Descriptor()

	assert.Equal(t, "hathipd", d.Database)
	assert.Equal(t, MethodReturnJSON, d.Method)
	assert.Equal(t, []string{CountText, CountWord}, d.CountType)
	assert.Empty(t, d.Groups)
	assert.Empty(t, d.SearchLimits)
	assert.Equal(t, DefaultWordsCollation, d.WordsCollation)
}

func TestNewBuilder_RegistersFieldsInOrder(t *testing.T) {
	b := newTestBuilder(t, "country", "date_year", "country")

	names := make([]string, 0)
	for _, f := range b.Fields() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"country", "date_year"}, names)

	_, ok := b.Field("publisher")
	assert.False(t, ok)
}

func TestNewBuilder_RenamesReservedNames(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	b, err := NewBuilder("hathipd", []string{"groups", "date_year"}, WithLogger(logger))
	require.NoError(t, err)

	renamed, ok := b.Field("groups" + CollisionSuffix)
	require.True(t, ok)
	assert.Equal(t, "groups_bw", renamed.Name())
	assert.Equal(t, map[string]string{"groups": "groups_bw"}, b.Renamed())

	_, ok = b.Field("groups")
	assert.False(t, ok)

	b.Groups(renamed, b.MustField("date_year"))
	assert.Equal(t, []string{"groups_bw", "date_year"}, b.Descriptor().Groups)

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "renamed_to=groups_bw")
}

func TestBuilder_WireDescriptorRestoresRenamedNames(t *testing.T) {
	b := newTestBuilder(t, "groups", "query", "date_year")
	groups := b.MustField("groups" + CollisionSuffix)
	date := b.MustField("date_year")

	b.SearchLimits(groups.Eq("poetry"), Or(b.MustField("query"+CollisionSuffix).Eq("x"), date.Gt(1900)))
	b.CompareLimits(groups.Ne("prose"))
	b.Groups(groups, date)

	d := b.WireDescriptor()
	assert.Equal(t, []string{"groups", "date_year"}, d.Groups)
	require.Len(t, d.SearchLimits, 1)
	assert.Equal(t, []any{map[string]any{OpEq: "poetry"}}, d.SearchLimits[0]["groups"])
	assert.Equal(t, []any{
		Fragment{"query": map[string]any{OpEq: "x"}},
		Fragment{"date_year": map[string]any{OpGt: 1900}},
	}, d.SearchLimits[0][LogicalOr])
	assert.NotContains(t, d.SearchLimits[0], "groups_bw")
	assert.Equal(t, []Fragment{{"groups": map[string]any{OpNe: "prose"}}}, d.CompareLimits)

	assert.Equal(t, []string{"groups_bw", "date_year"}, b.Descriptor().Groups)
	assert.Contains(t, b.Descriptor().SearchLimits[0], "groups_bw")
}

func TestBuilder_WireDescriptorWithoutRenames(t *testing.T) {
	b := newTestBuilder(t, "date_year")
	b.Groups(b.MustField("date_year"))
	assert.Equal(t, b.Descriptor(), b.WireDescriptor())
}

func TestBuilder_SearchLimitsMergesIntoOneEntry(t *testing.T) {
	b := newTestBuilder(t, "author_gender", "country", "publish_year")

	b.SearchLimits(
		b.MustField("author_gender").Eq("Female"),
		b.MustField("country").Eq("United States"),
		b.MustField("publish_year").Eq(1890),
	)

	limits := b.Descriptor().SearchLimits
	require.Len(t, limits, 1)
	assert.Equal(t, []string{"author_gender", "country", "publish_year"}, limits[0].Keys())
}

func TestBuilder_SearchLimitsSingleFragmentUsedDirectly(t *testing.T) {
	b := newTestBuilder(t, "country")
	f := b.MustField("country").Ne("Canada")

	b.SearchLimits(f)

	assert.Equal(t, []Fragment{f}, b.Descriptor().SearchLimits)
}

func TestBuilder_SearchLimitsReplacesPrevious(t *testing.T) {
	b := newTestBuilder(t, "country")
	country := b.MustField("country")

	b.SearchLimits(country.Eq("USA"))
	b.SearchLimits(country.Eq("Canada"))

	assert.Equal(t, []Fragment{country.Eq("Canada")}, b.Descriptor().SearchLimits)

	b.SearchLimits()
	assert.Empty(t, b.Descriptor().SearchLimits)
}

func TestBuilder_CompareLimits(t *testing.T) {
	b := newTestBuilder(t, "date_year")
	year := b.MustField("date_year")

	b.CompareLimits(year.Gt(1800), year.Lt(1900))

	limits := b.Descriptor().CompareLimits
	require.Len(t, limits, 1)
	assert.Len(t, limits[0]["date_year"], 2)
	assert.Empty(t, b.Descriptor().SearchLimits)
}

func TestBuilder_IndexKeepsEntriesSeparate(t *testing.T) {
	b := newTestBuilder(t, "country")
	usa := b.MustField("country").Eq("USA")
	canada := b.MustField("country").Eq("Canada")

	b.Index(usa, canada)

	assert.Equal(t, []Fragment{usa, canada}, b.Descriptor().SearchLimits)
}

func TestBuilder_Groups(t *testing.T) {
	b := newTestBuilder(t, "publication_state", "date_year")

	b.Groups(b.MustField("publication_state"), b.MustField("date_year"))
	assert.Equal(t, []string{"publication_state", "date_year"}, b.Descriptor().Groups)

	b.Groups(b.MustField("date_year"))
	assert.Equal(t, []string{"date_year"}, b.Descriptor().Groups)
}

func TestBuilder_Chaining(t *testing.T) {
	b := newTestBuilder(t, "date_year", "publication_state")
	year := b.MustField("date_year")

	got := b.SearchLimits(And(year.Gt(1750), year.Lte(1923))).Groups(b.MustField("publication_state"))

	assert.Same(t, b, got)
}

func TestBuilder_Where(t *testing.T) {
	b := newTestBuilder(t, "date_year", "groups")

	_, err := b.Where("date_year>=1900", "word=whale", "groups=x")
	require.NoError(t, err)

	limits := b.Descriptor().SearchLimits
	require.Len(t, limits, 1)
	assert.Equal(t, []any{map[string]any{"gte": int64(1900)}}, limits[0]["date_year"])
	assert.Equal(t, []any{"whale"}, limits[0]["word"])
	assert.Contains(t, limits[0], "groups_bw")
}

func TestBuilder_WhereFailureKeepsState(t *testing.T) {
	b := newTestBuilder(t, "date_year")
	b.SearchLimits(b.MustField("date_year").Gt(1800))
	before := b.Descriptor()

	_, err := b.Where("date_year>=1900", "nonsense")
	require.ErrorIs(t, err, ErrInvalidCondition)

	assert.Equal(t, before, b.Descriptor())
}

func TestBuilder_DescriptorIsACopy(t *testing.T) {
	b := newTestBuilder(t, "date_year")
	b.Groups(b.MustField("date_year"))

	d := b.Descriptor()
	d.Groups[0] = "changed"

	assert.Equal(t, []string{"date_year"}, b.Descriptor().Groups)
}

func TestBuilder_String(t *testing.T) {
	b := newTestBuilder(t, "date_year")
	year := b.MustField("date_year")
	b.SearchLimits(Or(year.Lt(1800), year.Gt(1900))).Groups(year)

	s := b.String()

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	assert.Equal(t, "hathipd", decoded["database"])
	assert.Equal(t, []any{"date_year"}, decoded["groups"])
	assert.True(t, strings.Contains(s, `"or":[`))
}

func TestBuilder_CountTypes(t *testing.T) {
	b := newTestBuilder(t)

	b.CountTypes("WordsPerMillion")
	assert.Equal(t, []string{"WordsPerMillion"}, b.Descriptor().CountType)

	b.CountTypes()
	assert.Equal(t, DefaultCountTypes(), b.Descriptor().CountType)
}

func TestBuilder_Term(t *testing.T) {
	b := newTestBuilder(t, "date_year", "query")

	assert.IsType(t, WordTerm{}, b.Term("word"))
	assert.Equal(t, "date_year", b.Term("date_year").Name())
	assert.Equal(t, "query_bw", b.Term("query").Name())
	assert.Equal(t, "unregistered", b.Term("unregistered").Name())
}
