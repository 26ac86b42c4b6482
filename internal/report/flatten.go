package report

import "strings"

// Flatten collapses nested maps into a single level, joining key paths
// with an underscore.
func Flatten(m *Map) *Map {
	return FlattenSep(m, "_")
}

// FlattenSep collapses nested maps, joining key paths with sep. Spaces in
// parent key segments are normalized to the joiner; the leaf's own segment
// is kept as written. Sequences are leaves and do not recurse. When two
// paths collapse to the same key the later value wins and the earlier
// position is kept.
func FlattenSep(m *Map, sep string) *Map {
	out := NewMap()
	flattenInto(out, m, sep, "")
	return out
}

func flattenInto(out, m *Map, sep, prefix string) {
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		key := k
		if prefix != "" {
			key = prefix + sep + k
		}
		if child, ok := v.(*Map); ok {
			flattenInto(out, child, sep, strings.ReplaceAll(key, " ", sep))
			continue
		}
		out.Set(key, v)
	}
}
