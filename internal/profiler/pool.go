package profiler

import "runtime"

const defaultMaxWorkers = 4

// poolSize picks how many column workers may run at once: one fewer than
// the host's cores, capped at max. One- and two-core hosts profile
// sequentially.
func poolSize(max int) int {
	if max <= 0 {
		max = defaultMaxWorkers
	}
	cpu := runtime.NumCPU()
	if cpu <= 2 {
		return 1
	}
	if cpu-1 < max {
		return cpu - 1
	}
	return max
}
