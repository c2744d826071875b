package solver

import (
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// Sequential is the single-threaded reference backend. Sweeps update X in
// place in id order, so later equations within a sweep read already-updated
// neighbor values; all backends converge to the same fixed point because
// the system is diagonally dominant.
type Sequential struct {
	sys *models.EquationSystem
	out []uint8
}

// NewSequential returns an unassembled sequential solver.
func NewSequential() *Sequential {
	return &Sequential{}
}

// Reset loads an assembled system, discarding any prior solution.
func (s *Sequential) Reset(sys *models.EquationSystem) {
	s.sys = sys
	s.out = nil
}

// Sync is a no-op for the sequential backend.
func (s *Sequential) Sync() error { return nil }

// Step performs the requested number of sweeps and reports the current
// clamped pixels and residual. With an empty system (N = 0) it is a no-op
// returning a sentinel-only buffer and a zero residual.
func (s *Sequential) Step(iterations int) ([]uint8, [3]float64, error) {
	for it := 0; it < iterations; it++ {
		SweepRange(s.sys, 1, s.sys.N)
	}
	s.out = ClampPixels(s.sys, s.out)
	return s.out, Residual(s.sys), nil
}

// Close releases nothing; the sequential backend owns only Go memory.
func (s *Sequential) Close() error { return nil }
