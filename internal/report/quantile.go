package report

import "math"

// defaultQuantileGroups is used when a requested group count is unusable.
const defaultQuantileGroups = 4

// BinQuantiles reduces a sorted quantile vector to groups-1 boundary
// values keyed by boundary position. A group count outside
// (0, len(values)+1] falls back to four groups. Boundary i holds
// values[ceil((i+1)*(len+1)/groups)-1], the same fencepost arithmetic the
// rest of the reporting path assumes; indices are clamped into range so
// short vectors never fault. An empty vector yields an empty result.
func BinQuantiles(values []float64, groups int) map[int]float64 {
	out := make(map[int]float64)
	n := len(values)
	if n == 0 {
		return out
	}
	if groups <= 0 || groups > n+1 {
		groups = defaultQuantileGroups
	}
	multiplier := float64(n+1) / float64(groups)
	for i := 0; i < groups-1; i++ {
		idx := int(math.Ceil(float64(i+1)*multiplier)) - 1
		if idx < 0 {
			idx = 0
		}
		if idx > n-1 {
			idx = n - 1
		}
		out[i] = values[idx]
	}
	return out
}
