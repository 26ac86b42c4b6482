package profiler

import "math/rand/v2"

const defaultChunkSize = 1024

// indexSampler draws row indices without replacement in shuffled order.
// It runs a Fisher-Yates shuffle lazily: only the positions a swap has
// touched live in swapped, so drawing a small sample from a large
// dataset never materializes the full permutation.
type indexSampler struct {
	rng     *rand.Rand
	total   int
	next    int
	swapped map[int]int
}

func newIndexSampler(total int, seed uint64) *indexSampler {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &indexSampler{
		rng:     rand.New(rand.NewPCG(seed, seed<<32|seed>>32)),
		total:   total,
		swapped: make(map[int]int),
	}
}

// at reads position i of the virtual permutation.
func (s *indexSampler) at(i int) int {
	if v, ok := s.swapped[i]; ok {
		return v
	}
	return i
}

// draw returns up to n freshly shuffled indices, or nil once the
// permutation is exhausted. Consumed positions are dropped from the
// swap table so memory tracks the draw front, not the dataset.
func (s *indexSampler) draw(n int) []int {
	if s.next >= s.total || n <= 0 {
		return nil
	}
	if rem := s.total - s.next; n > rem {
		n = rem
	}
	out := make([]int, 0, n)
	for ; n > 0; n-- {
		i := s.next
		j := i + s.rng.IntN(s.total-i)
		vi, vj := s.at(i), s.at(j)
		out = append(out, vj)
		s.swapped[j] = vi
		delete(s.swapped, i)
		s.next = i + 1
	}
	return out
}

// sampleIndices picks n distinct row indices out of total, shuffling in
// chunks. n outside (0, total] means the whole dataset.
func sampleIndices(total, n, chunk int, seed uint64) []int {
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	if n <= 0 || n > total {
		n = total
	}
	s := newIndexSampler(total, seed)
	out := make([]int, 0, n)
	for len(out) < n {
		batch := s.draw(min(chunk, n-len(out)))
		if batch == nil {
			break
		}
		out = append(out, batch...)
	}
	return out
}
