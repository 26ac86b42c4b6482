package report

import (
	"encoding/json"
	"math"
	"strconv"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testReport models a small three-column profile with a duplicated column
// name ("age" occupies positions 1 and 2).
func testReport() *Map {
	schema := NewMap().
		Set("id", Seq{Int(0)}).
		Set("age", Seq{Int(1), Int(2)})

	global := NewMap().
		Set("samples_used", Int(3)).
		Set("column_count", Int(3)).
		Set("row_count", Int(3)).
		Set("profile_schema", schema).
		Set("times", NewMap().Set("row_stats", Float(0.00123456)))

	col0 := NewMap().
		Set("column_name", String("id")).
		Set("data_type", String("int")).
		Set("statistics", NewMap().
			Set("min", Float(1)).
			Set("max", Float(3)).
			Set("mean", Float(2.123456789)).
			Set("times", NewMap().Set("min", Float(0.5))).
			Set("null_types_index", NewMap()).
			Set("histogram", NewMap().
				Set("bin_counts", Array{1, 1, 1}).
				Set("bin_edges", Array{1, 1.5, 2.5, 3})).
			Set("quantiles", NewMap().
				Set("0", Float(1)).
				Set("1", Float(2)).
				Set("2", Float(3))))

	col1 := NewMap().
		Set("column_name", String("age")).
		Set("data_type", String("int")).
		Set("samples", Seq{String("34"), String("28")}).
		Set("statistics", NewMap().
			Set("min", Float(28)).
			Set("max", Float(34)).
			Set("mean", Float(31.33333333)).
			Set("null_types", Set{String("nan"), String("")}).
			Set("times", NewMap().Set("min", Float(0.001))).
			Set("null_types_index", NewMap().Set("nan", Seq{Int(2)})).
			Set("histogram", NewMap().
				Set("bin_counts", Array{2, 1}).
				Set("bin_edges", Array{28, 31, 34})))

	col2 := NewMap().
		Set("column_name", String("age")).
		Set("data_type", String("float")).
		Set("statistics", NewMap().
			Set("min", Float(1.5)).
			Set("max", Float(9.25)).
			Set("times", NewMap().Set("min", Float(0.002))))

	return NewMap().
		Set("global_stats", global).
		Set("data_stats", Seq{col0, col1, col2})
}

func asJSON(t *testing.T, v Value) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":             FormatNone,
		"none":         FormatNone,
		"Pretty":       FormatPretty,
		"COMPACT":      FormatCompact,
		"serializable": FormatSerializable,
		"Flat":         FormatFlat,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	_, err := ParseFormat("yaml")
	assert.Error(t, err)
}

func TestTransformNoneIsVerbatim(t *testing.T) {
	rep := testReport()
	out := Transform(rep, FormatNone, nil)
	// Sets canonicalize in every format; the fixture set is already checked
	// through its canonical JSON form on both sides.
	assert.Equal(t, asJSON(t, rep), asJSON(t, out))
}

func TestTransformNilReport(t *testing.T) {
	out := Transform(nil, FormatPretty, []string{"a.b"})
	assert.Equal(t, 0, out.Len())
}

func TestPrettyRoundsFloats(t *testing.T) {
	out := Transform(testReport(), FormatPretty, nil)

	gs := mustMap(t, out, "global_stats")
	times := mustMap(t, gs, "times")
	v, _ := times.Get("row_stats")
	assert.Equal(t, Float(0.0012), v)

	stats := columnStats(t, out, 0)
	mean, _ := stats.Get("mean")
	assert.Equal(t, Float(2.1235), mean)

	// Ints stay ints.
	rc, _ := gs.Get("row_count")
	assert.Equal(t, Int(3), rc)
}

func TestPrettyWindowsLongSequences(t *testing.T) {
	vals := make(Seq, 1000)
	for i := range vals {
		vals[i] = Int(i)
	}
	rep := NewMap().Set("vals", vals)

	out := Transform(rep, FormatPretty, nil)
	got, _ := out.Get("vals")
	want := String("[0, 1, 2, 3, 4, 5, ... , 994, 995, 996, 997, 998, 999]")
	require.Equal(t, want, got, "shaped tree: %s", spew.Sdump(out))
	assert.Greater(t, len(want), maxPrettyChars)
}

func TestPrettyLeavesShortSequences(t *testing.T) {
	rep := NewMap().
		Set("few", Seq{Int(1), Int(2), Int(3), Int(4), Int(5), Int(6)}).
		Set("wide", Seq{
			String("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			String("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		})

	out := Transform(rep, FormatPretty, nil)

	few, _ := out.Get("few")
	assert.Equal(t, String("[1, 2, 3, 4, 5, 6]"), few)

	// Two elements render in full no matter how long the string gets.
	wide, _ := out.Get("wide")
	assert.Equal(t,
		String("[aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa, bbbbbbbbbbbbbbbbbbbbbbbbbbbbbb]"),
		wide)
}

func TestSerializableConvertsArrays(t *testing.T) {
	out := Transform(testReport(), FormatSerializable, nil)
	require.False(t, hasArrayLeaf(out), "serializable output kept a numeric vector: %s", spew.Sdump(out))

	stats := columnStats(t, out, 0)
	hist := mustMap(t, stats, "histogram")
	counts, _ := hist.Get("bin_counts")
	assert.Equal(t, Seq{Float(1), Float(1), Float(1)}, counts)
}

func TestSerializableRoundTrip(t *testing.T) {
	first := Transform(testReport(), FormatSerializable, nil)
	data, err := json.Marshal(first)
	require.NoError(t, err)

	back, err := DecodeJSON(data)
	require.NoError(t, err)

	second := Transform(back, FormatSerializable, nil)
	again, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestOmitExactKey(t *testing.T) {
	out := Transform(testReport(), FormatNone, []string{"global_stats.times"})

	gs := mustMap(t, out, "global_stats")
	_, ok := gs.Get("times")
	assert.False(t, ok)
	_, ok = gs.Get("row_count")
	assert.True(t, ok)
}

func TestOmissionIdempotent(t *testing.T) {
	omit := []string{"data_stats.age", "global_stats.times"}
	first := Transform(testReport(), FormatNone, omit)
	second := Transform(first, FormatNone, omit)
	assert.Equal(t, asJSON(t, first), asJSON(t, second))
}

func TestOmitColumnByNameLeavesNulls(t *testing.T) {
	out := Transform(testReport(), FormatNone, []string{"data_stats.age"})

	cols := mustColumns(t, out)
	require.Len(t, cols, 3)
	assert.Equal(t, KindMap, cols[0].Kind())
	assert.Equal(t, KindNull, cols[1].Kind())
	assert.Equal(t, KindNull, cols[2].Kind())

	// The schema still points at the original positions.
	gs := mustMap(t, out, "global_stats")
	schema := mustMap(t, gs, "profile_schema")
	idxs, _ := schema.Get("age")
	assert.Equal(t, Seq{Int(1), Int(2)}, idxs)
}

func TestOmitColumnByIndex(t *testing.T) {
	out := Transform(testReport(), FormatNone, []string{"data_stats.0"})

	cols := mustColumns(t, out)
	require.Len(t, cols, 3)
	assert.Equal(t, KindNull, cols[0].Kind())
	assert.Equal(t, KindMap, cols[1].Kind())
	assert.Equal(t, KindMap, cols[2].Kind())
}

func TestWildcardStatisticsOmission(t *testing.T) {
	out := Transform(testReport(), FormatNone, []string{"data_stats.*.statistics.times"})

	for i := 0; i < 3; i++ {
		stats := columnStats(t, out, i)
		_, ok := stats.Get("times")
		assert.False(t, ok, "column %d", i)
		_, ok = stats.Get("min")
		assert.True(t, ok, "column %d", i)
	}
}

func TestWildcardSuppressesWholeLevel(t *testing.T) {
	out := Transform(testReport(), FormatNone, []string{"*"})
	assert.Equal(t, 0, out.Len())

	out = Transform(testReport(), FormatNone, []string{"global_stats.*"})
	gs := mustMap(t, out, "global_stats")
	assert.Equal(t, 0, gs.Len())
	_, ok := out.Get("data_stats")
	assert.True(t, ok)
}

func TestCompactEqualsPrettyPlusBuiltins(t *testing.T) {
	caller := []string{"global_stats.times"}

	compact := Transform(testReport(), FormatCompact, caller)
	pretty := Transform(testReport(), FormatPretty, append(append([]string{}, caller...), compactOmissions...))
	assert.Equal(t, asJSON(t, pretty), asJSON(t, compact))

	stats := columnStats(t, compact, 1)
	for _, dropped := range []string{"times", "null_types_index", "histogram"} {
		_, ok := stats.Get(dropped)
		assert.False(t, ok, "compact should drop %s", dropped)
	}
	_, ok := stats.Get("min")
	assert.True(t, ok)
}

func TestCompactDoesNotMutateOmissions(t *testing.T) {
	omit := []string{"global_stats.times"}
	first := Transform(testReport(), FormatCompact, omit)
	second := Transform(testReport(), FormatCompact, omit)

	assert.Equal(t, []string{"global_stats.times"}, omit)
	assert.Equal(t, asJSON(t, first), asJSON(t, second))
}

func TestMalformedOmissionsAreInert(t *testing.T) {
	baseline := asJSON(t, Transform(testReport(), FormatNone, nil))

	for _, omit := range [][]string{
		{"data_stats.nosuch.statistics"},
		{"...."},
		{"data_stats.."},
		{".leading"},
		{"global_stats.times."},
	} {
		out := Transform(testReport(), FormatNone, omit)
		assert.Equal(t, baseline, asJSON(t, out), "omit %v", omit)
	}
}

func TestNameOmissionWithoutSchemaOrName(t *testing.T) {
	// No profile_schema and no column_name: name paths must silently miss,
	// positional paths still work.
	rep := NewMap().Set("data_stats", Seq{
		NewMap().Set("x", Int(1)),
		NewMap().Set("x", Int(2)),
	})

	byName := Transform(rep, FormatNone, []string{"data_stats.age"})
	assert.Equal(t, asJSON(t, rep), asJSON(t, byName))

	byIndex := Transform(rep, FormatNone, []string{"data_stats.1"})
	cols := mustColumns(t, byIndex)
	require.Len(t, cols, 2)
	assert.Equal(t, KindMap, cols[0].Kind())
	assert.Equal(t, KindNull, cols[1].Kind())
}

func TestProfileSchemaCopiedVerbatim(t *testing.T) {
	out := Transform(testReport(), FormatPretty, nil)

	gs := mustMap(t, out, "global_stats")
	schema := mustMap(t, gs, "profile_schema")
	idxs, _ := schema.Get("id")
	// Pretty never stringifies the schema's index lists.
	assert.Equal(t, Seq{Int(0)}, idxs)
}

func TestSetsCanonicalizeInEveryFormat(t *testing.T) {
	rep := NewMap().Set("null_types", Set{String("nan"), String(""), Int(2)})

	for _, format := range []Format{FormatNone, FormatSerializable, FormatFlat} {
		out := Transform(rep, format, nil)
		v, ok := out.Get("null_types")
		require.True(t, ok, "format %q", format)
		assert.Equal(t, Seq{Int(2), String(""), String("nan")}, v, "format %q", format)
	}
}

func TestFlatFormat(t *testing.T) {
	out := Transform(testReport(), FormatFlat, nil)

	v, ok := out.Get("global_stats_row_count")
	require.True(t, ok)
	assert.Equal(t, Int(3), v)

	// Column records flatten individually inside the list.
	cols := mustColumns(t, out)
	require.Len(t, cols, 3)
	first, ok := cols[0].(*Map)
	require.True(t, ok)
	v, ok = first.Get("statistics_min")
	require.True(t, ok)
	assert.Equal(t, Float(1), v)

	// Nothing nested survives at the top level.
	for _, key := range out.Keys() {
		val, _ := out.Get(key)
		assert.NotEqual(t, KindMap, val.Kind(), "key %s", key)
	}
}

func TestBinQuantilesInReportPipeline(t *testing.T) {
	values := make([]float64, 999)
	for i := range values {
		values[i] = float64(i + 1)
	}
	bins := BinQuantiles(values, 4)
	require.Len(t, bins, 3)
	assert.Equal(t, values[249], bins[0])
	assert.Equal(t, values[499], bins[1])
	assert.Equal(t, values[749], bins[2])
}

func TestPrettyFloatEdgeCases(t *testing.T) {
	rep := NewMap().
		Set("tiny", Float(0.00004)).
		Set("negative", Float(-2.71828182)).
		Set("whole", Float(5))

	out := Transform(rep, FormatPretty, nil)

	v, _ := out.Get("tiny")
	assert.Equal(t, Float(0), v)
	v, _ = out.Get("negative")
	assert.InDelta(t, -2.7183, float64(v.(Float)), 1e-9)
	v, _ = out.Get("whole")
	assert.Equal(t, Float(5), v)
}

func mustMap(t *testing.T, m *Map, key string) *Map {
	t.Helper()
	v, ok := m.Get(key)
	require.True(t, ok, "missing key %s", key)
	child, ok := v.(*Map)
	require.True(t, ok, "%s is %s, want a map", key, v.Kind())
	return child
}

func mustColumns(t *testing.T, rep *Map) Seq {
	t.Helper()
	v, ok := rep.Get("data_stats")
	require.True(t, ok, "missing data_stats")
	cols, ok := v.(Seq)
	require.True(t, ok, "data_stats is %s, want a sequence", v.Kind())
	return cols
}

func columnStats(t *testing.T, rep *Map, idx int) *Map {
	t.Helper()
	cols := mustColumns(t, rep)
	require.Greater(t, len(cols), idx)
	col, ok := cols[idx].(*Map)
	require.True(t, ok, "column %d is %s, want a map", idx, cols[idx].Kind())
	return mustMap(t, col, "statistics")
}

func hasArrayLeaf(v Value) bool {
	switch t := v.(type) {
	case Array:
		return true
	case Seq:
		for _, el := range t {
			if hasArrayLeaf(el) {
				return true
			}
		}
	case *Map:
		for _, k := range t.Keys() {
			el, _ := t.Get(k)
			if hasArrayLeaf(el) {
				return true
			}
		}
	}
	return false
}

func TestRound4(t *testing.T) {
	assert.Equal(t, 2.0, round4(2.0))
	assert.True(t, math.Abs(round4(1.23456789)-1.2346) < 1e-12)
	assert.True(t, math.Abs(round4(1.23454)-1.2345) < 1e-12)
	assert.True(t, math.Abs(round4(-1.23456789)+1.2346) < 1e-12)
}

func TestColumnAddressingByNameMatcher(t *testing.T) {
	// Records can be addressed by column_name even without a schema.
	rep := NewMap().Set("data_stats", Seq{
		NewMap().Set("column_name", String("a")).Set("x", Int(1)),
		NewMap().Set("column_name", String("b")).Set("x", Int(2)),
	})

	out := Transform(rep, FormatNone, []string{"data_stats.b.x"})
	cols := mustColumns(t, out)
	second, ok := cols[1].(*Map)
	require.True(t, ok)
	_, ok = second.Get("x")
	assert.False(t, ok)

	first, ok := cols[0].(*Map)
	require.True(t, ok)
	_, ok = first.Get("x")
	assert.True(t, ok)
}

func TestResolvedIndexPathsStayIndependent(t *testing.T) {
	// One name expanding to two indices must produce two distinct paths.
	out := Transform(testReport(), FormatNone, []string{"data_stats.age.statistics.times"})

	for _, idx := range []int{1, 2} {
		stats := columnStats(t, out, idx)
		_, ok := stats.Get("times")
		assert.False(t, ok, "column %d", idx)
		_, ok = stats.Get("min")
		assert.True(t, ok, "column %d", idx)
	}

	stats := columnStats(t, out, 0)
	_, ok := stats.Get("times")
	assert.True(t, ok, "column 0 is not named age and keeps its times")
}

func TestPrettySequenceWindowGrowth(t *testing.T) {
	// Twelve three-digit elements render at 60 chars, and the first window
	// to pass 50 chars needs five elements per side.
	elems := make([]string, 12)
	for i := range elems {
		elems[i] = strconv.Itoa(100 + i)
	}
	got := prettySeq(elems)
	assert.Equal(t, "[100, 101, 102, 103, 104, ... , 107, 108, 109, 110, 111]", got)
}
