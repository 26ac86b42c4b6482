package report

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Format selects how Transform renders leaf values.
type Format string

const (
	// FormatNone passes values through untouched.
	FormatNone Format = ""
	// FormatPretty rounds floats to four decimals and shortens long
	// sequences to a head/tail window.
	FormatPretty Format = "pretty"
	// FormatCompact is pretty plus a built-in set of omissions covering
	// per-column timing, prediction and histogram detail.
	FormatCompact Format = "compact"
	// FormatSerializable converts numeric vectors to plain sequences so the
	// result survives JSON round trips unchanged.
	FormatSerializable Format = "serializable"
	// FormatFlat collapses the nested structure into single-level maps with
	// underscore-joined keys.
	FormatFlat Format = "flat"
)

// ParseFormat maps user input to a Format. Matching is case-insensitive;
// both "" and "none" select the pass-through format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return FormatNone, nil
	case "pretty":
		return FormatPretty, nil
	case "compact":
		return FormatCompact, nil
	case "serializable":
		return FormatSerializable, nil
	case "flat":
		return FormatFlat, nil
	}
	return FormatNone, fmt.Errorf("unknown report format %q", s)
}

const (
	// maxPrettyChars is the rendered length beyond which a sequence is
	// shortened in pretty output.
	maxPrettyChars = 50
	// maxPrettyElems is the element count a sequence must exceed before
	// shortening applies.
	maxPrettyElems = 5
)

// compactOmissions is appended to caller omissions in compact format.
var compactOmissions = []string{
	"data_stats.*.statistics.times",
	"data_stats.*.statistics.avg_predictions",
	"data_stats.*.statistics.data_label_representation",
	"data_stats.*.statistics.null_types_index",
	"data_stats.*.statistics.histogram",
}

// Transform returns a shaped copy of rep. Dotted omission paths remove
// subtrees; a segment may be a literal key, a "*" wildcard, or, under
// data_stats, a positional index or column name. Neither rep, its values
// nor omit are ever modified, so callers can derive any number of
// independent views from one report, concurrently if they like.
func Transform(rep *Map, format Format, omit []string) *Map {
	if rep == nil {
		return NewMap()
	}
	keys := append([]string(nil), omit...)
	if format == FormatCompact {
		keys = append(keys, compactOmissions...)
		format = FormatPretty
	}
	keys = resolveColumnKeys(rep, keys)
	out := walk(rep, format, keys)
	if format == FormatFlat {
		out = flattenReport(out)
	}
	return out
}

// resolveColumnKeys rewrites omission paths that address data_stats records
// by column name into positional form, using global_stats.profile_schema.
// A name mapped to several indices expands to one path per index. Segments
// that do not resolve are kept as written; the record matcher still honors
// positional and column_name addressing directly.
func resolveColumnKeys(rep *Map, keys []string) []string {
	schema := schemaIndices(rep)
	if len(schema) == 0 {
		return keys
	}
	resolved := make([]string, 0, len(keys))
	for _, key := range keys {
		segs := strings.SplitN(key, ".", 3)
		if len(segs) < 2 || segs[0] != "data_stats" || segs[1] == "*" {
			resolved = append(resolved, key)
			continue
		}
		idxs, ok := schema[segs[1]]
		if !ok {
			resolved = append(resolved, key)
			continue
		}
		rest := ""
		if len(segs) == 3 {
			rest = "." + segs[2]
		}
		for _, idx := range idxs {
			resolved = append(resolved, "data_stats."+strconv.Itoa(idx)+rest)
		}
	}
	return resolved
}

// schemaIndices reads global_stats.profile_schema as a column name to
// positional indices mapping. Any shape it does not recognize yields nil.
func schemaIndices(rep *Map) map[string][]int {
	gs, ok := rep.Get("global_stats")
	if !ok {
		return nil
	}
	gsm, ok := gs.(*Map)
	if !ok {
		return nil
	}
	ps, ok := gsm.Get("profile_schema")
	if !ok {
		return nil
	}
	psm, ok := ps.(*Map)
	if !ok {
		return nil
	}
	schema := make(map[string][]int, psm.Len())
	for _, name := range psm.Keys() {
		v, _ := psm.Get(name)
		seq, ok := v.(Seq)
		if !ok {
			continue
		}
		for _, el := range seq {
			if n, ok := numeric(el); ok {
				schema[name] = append(schema[name], int(n))
			}
		}
	}
	return schema
}

func walk(m *Map, format Format, omit []string) *Map {
	out := NewMap()
	// A bare "*" omits the whole level.
	if slices.Contains(omit, "*") {
		return out
	}
	for _, key := range m.Keys() {
		if slices.Contains(omit, key) {
			continue
		}
		value, _ := m.Get(key)
		if key == "data_stats" {
			if cols, ok := value.(Seq); ok {
				out.Set(key, walkColumns(cols, format, residuals(omit, key)))
				continue
			}
		}
		// profile_schema is copied verbatim, never recursed or reformatted.
		if key == "profile_schema" {
			out.Set(key, value)
			continue
		}
		if child, ok := value.(*Map); ok {
			out.Set(key, walk(child, format, residuals(omit, key)))
			continue
		}
		out.Set(key, formatLeaf(value, format))
	}
	return out
}

// residuals collects the sub-paths of omit that apply one level down under
// key. A "*" head matches every key at the current level.
func residuals(omit []string, key string) []string {
	var next []string
	for _, p := range omit {
		head, rest, found := strings.Cut(p, ".")
		if !found || rest == "" {
			continue
		}
		if head == "*" || head == key {
			next = append(next, rest)
		}
	}
	return next
}

// walkColumns shapes the data_stats record list. A record omitted as a
// whole leaves an explicit null in its position, so the output list stays
// index-aligned with profile_schema.
func walkColumns(cols Seq, format Format, omit []string) Seq {
	out := make(Seq, 0, len(cols))
	for i, col := range cols {
		name := columnName(col)
		if columnOmitted(omit, i, name) {
			out = append(out, Null{})
			continue
		}
		if m, ok := col.(*Map); ok {
			out = append(out, walk(m, format, columnResiduals(omit, i, name)))
			continue
		}
		out = append(out, formatLeaf(col, format))
	}
	return out
}

func columnName(v Value) string {
	m, ok := v.(*Map)
	if !ok {
		return ""
	}
	if nv, ok := m.Get("column_name"); ok {
		if s, ok := nv.(String); ok {
			return string(s)
		}
	}
	return ""
}

// columnOmitted reports whether a record is dropped wholesale: a bare "*",
// the record's positional index, or its column name as a single-segment
// path.
func columnOmitted(omit []string, idx int, name string) bool {
	pos := strconv.Itoa(idx)
	for _, p := range omit {
		if strings.Contains(p, ".") {
			continue
		}
		if p == "*" || p == pos || (name != "" && p == name) {
			return true
		}
	}
	return false
}

// columnResiduals collects the sub-paths that apply within the record at
// idx. The head may be "*", the positional index, or the column name.
func columnResiduals(omit []string, idx int, name string) []string {
	pos := strconv.Itoa(idx)
	var next []string
	for _, p := range omit {
		head, rest, found := strings.Cut(p, ".")
		if !found || rest == "" {
			continue
		}
		if head == "*" || head == pos || (name != "" && head == name) {
			next = append(next, rest)
		}
	}
	return next
}

func formatLeaf(v Value, format Format) Value {
	if set, ok := v.(Set); ok {
		v = set.canonical()
	}
	switch format {
	case FormatPretty:
		switch t := v.(type) {
		case Seq:
			return String(prettySeq(scalarStrings(t)))
		case Array:
			return String(prettySeq(scalarStrings(t.seq())))
		case Float:
			return Float(round4(float64(t)))
		}
	case FormatSerializable:
		if arr, ok := v.(Array); ok {
			return arr.seq()
		}
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// prettySeq renders elems as "[a, b, c]". A sequence longer than
// maxPrettyElems whose full rendition exceeds maxPrettyChars is windowed:
// head and tail grow one element per side until the string first passes
// the limit, with ", ... , " marking the elision.
func prettySeq(elems []string) string {
	full := "[" + strings.Join(elems, ", ") + "]"
	if len(full) <= maxPrettyChars || len(elems) <= maxPrettyElems {
		return full
	}
	var s string
	for ind := 1; ind <= len(elems); ind++ {
		head := "[" + strings.Join(elems[:ind], ", ")
		tail := strings.Join(elems[len(elems)-ind:], ", ") + "]"
		s = head + ", ... , " + tail
		if len(s) > maxPrettyChars {
			break
		}
	}
	return s
}

func scalarStrings(s Seq) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = scalarString(v)
	}
	return out
}

func scalarString(v Value) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(t))
	case Int:
		return strconv.FormatInt(int64(t), 10)
	case Float:
		return strconv.FormatFloat(float64(t), 'g', -1, 64)
	case String:
		return string(t)
	case Seq:
		return "[" + strings.Join(scalarStrings(t), ", ") + "]"
	case Set:
		return "[" + strings.Join(scalarStrings(t.canonical()), ", ") + "]"
	case Array:
		return "[" + strings.Join(scalarStrings(t.seq()), ", ") + "]"
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return ""
}

// flattenReport flattens the shaped report. Column records flatten
// individually so the data_stats list keeps its positions; everything else
// collapses into the top level.
func flattenReport(m *Map) *Map {
	if ds, ok := m.Get("data_stats"); ok {
		if cols, ok := ds.(Seq); ok {
			flat := make(Seq, len(cols))
			for i, col := range cols {
				if cm, ok := col.(*Map); ok {
					flat[i] = Flatten(cm)
					continue
				}
				flat[i] = col
			}
			m.Set("data_stats", flat)
		}
	}
	return Flatten(m)
}
