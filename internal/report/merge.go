package report

// Merge returns a new map combining base and overlay. Where both hold a
// map under the same key the two merge recursively; otherwise the overlay
// value wins. Base keys keep their positions and new overlay keys append
// in their own order. Neither input is modified.
func Merge(base, overlay *Map) *Map {
	out := NewMap()
	if base != nil {
		for _, k := range base.Keys() {
			v, _ := base.Get(k)
			out.Set(k, v)
		}
	}
	if overlay == nil {
		return out
	}
	for _, k := range overlay.Keys() {
		ov, _ := overlay.Get(k)
		if bv, ok := out.Get(k); ok {
			bm, baseIsMap := bv.(*Map)
			om, overlayIsMap := ov.(*Map)
			if baseIsMap && overlayIsMap {
				out.Set(k, Merge(bm, om))
				continue
			}
		}
		out.Set(k, ov)
	}
	return out
}
