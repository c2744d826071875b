package solver

import (
	"runtime"
	"sync"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// Parallel is the shared-memory multi-core backend. The equation range
// [1, N] is split into contiguous chunks, one per worker; within a sweep
// each worker writes only its own chunk but may read neighbor values from
// other chunks. Those cross-chunk reads race with the owning worker's
// writes and can observe stale values; classic parallel Jacobi relaxation
// tolerates this, converging at the same asymptotic rate as the sequential
// version for this diagonally dominant system. Do not add locking here: it
// would serialize sweeps without changing the fixed point.
type Parallel struct {
	workers int
	sys     *models.EquationSystem
	bounds  []int
	out     []uint8
}

// NewParallel returns a shared-memory solver using the given worker count,
// defaulting to GOMAXPROCS when workers < 1.
func NewParallel(workers int) *Parallel {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Parallel{workers: workers}
}

// Reset loads an assembled system and recomputes the per-worker chunk
// bounds. Chunk sizes differ by at most one equation, remainder going to
// the lowest-indexed workers.
func (p *Parallel) Reset(sys *models.EquationSystem) {
	p.sys = sys
	p.out = nil
	p.bounds = ChunkBounds(sys.N, p.workers)
}

// ChunkBounds splits [1, n] into len = workers+1 fenceposts; worker w owns
// equations bounds[w]..bounds[w+1]-1.
func ChunkBounds(n, workers int) []int {
	bounds := make([]int, workers+1)
	bounds[0] = 1
	extra := n % workers
	for w := 0; w < workers; w++ {
		size := n / workers
		if w < extra {
			size++
		}
		bounds[w+1] = bounds[w] + size
	}
	return bounds
}

// Sync is a no-op for the shared-memory backend.
func (p *Parallel) Sync() error { return nil }

// Step performs the requested number of sweeps, with a fork-join barrier
// after every sweep so the residual computation reads a fully written X.
func (p *Parallel) Step(iterations int) ([]uint8, [3]float64, error) {
	for it := 0; it < iterations; it++ {
		var wg sync.WaitGroup
		for w := 0; w < p.workers; w++ {
			lo, hi := p.bounds[w], p.bounds[w+1]-1
			if lo > hi {
				continue
			}
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				SweepRange(p.sys, lo, hi)
			}(lo, hi)
		}
		wg.Wait()
	}
	p.out = ClampPixels(p.sys, p.out)
	return p.out, Residual(p.sys), nil
}

// Close releases nothing; workers are joined at the end of every Step.
func (p *Parallel) Close() error { return nil }
