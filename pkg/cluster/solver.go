package cluster

import (
	"fmt"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/solver"
)

// EquSolver runs Jacobi relaxation across the process group. Rank 0 owns
// the assembled system and the composite output; Sync replicates the
// system to every rank, and Step interleaves local sweeps over each
// rank's partition with gather-and-rebroadcast rounds that merge the
// partitions back into a consistent grid state.
type EquSolver struct {
	comm *Comm

	// minInterval is how many local sweeps each rank runs between
	// synchronization rounds. Larger values trade accuracy at partition
	// seams for less traffic; the stale boundary reads are the same
	// relaxation the shared-memory backend makes.
	minInterval int

	sys   *models.EquationSystem
	fence []int
	out   []uint8
}

// NewEquSolver binds a solver to an established process group. Only rank
// 0 ever receives a real equation system through Reset; the other ranks
// get theirs from Sync.
func NewEquSolver(comm *Comm, minInterval int) *EquSolver {
	if minInterval < 1 {
		minInterval = 1
	}
	return &EquSolver{comm: comm, minInterval: minInterval}
}

// Reset installs the equation system on the root rank. Non-root ranks
// pass nil and allocate once Sync tells them the size.
func (s *EquSolver) Reset(sys *models.EquationSystem) {
	s.sys = sys
	s.fence = nil
	s.out = nil
}

// Sync replicates the system across the group and computes the static
// partition. Every rank must call it before Step.
func (s *EquSolver) Sync() error {
	n := 0
	if s.comm.Root() {
		if s.sys == nil {
			return fmt.Errorf("rank 0 has no equation system to distribute")
		}
		n = s.sys.N
	}
	n, err := s.comm.BcastInt(n)
	if err != nil {
		return fmt.Errorf("broadcasting equation count: %w", err)
	}
	if !s.comm.Root() {
		s.sys = models.NewEquationSystem(n)
	}
	if err := s.comm.BcastInt32s(s.sys.A); err != nil {
		return fmt.Errorf("broadcasting neighbor table: %w", err)
	}
	if err := s.comm.BcastFloat32s(s.sys.B); err != nil {
		return fmt.Errorf("broadcasting right-hand side: %w", err)
	}
	if err := s.comm.BcastFloat32s(s.sys.X); err != nil {
		return fmt.Errorf("broadcasting initial state: %w", err)
	}
	s.fence = Offsets(n, s.comm.World)
	if s.comm.Root() {
		s.out = make([]uint8, (n+1)*3)
	} else {
		// Placeholder so Step has a stable return shape off-root.
		s.out = make([]uint8, 3)
	}
	return nil
}

// Step advances the whole group by iterations sweeps and returns the
// clamped pixels and per-channel residual. Pixels are only meaningful on
// rank 0; the residual is computed there and broadcast so every rank can
// report or stop on the same value.
func (s *EquSolver) Step(iterations int) ([]uint8, [3]float64, error) {
	var res [3]float64
	if s.fence == nil {
		return nil, res, fmt.Errorf("Step called before Sync")
	}
	lo := s.fence[s.comm.Rank]
	hi := s.fence[s.comm.Rank+1] - 1
	for done := 0; done < iterations; {
		sweeps := s.minInterval
		if rem := iterations - done; rem < sweeps {
			sweeps = rem
		}
		for k := 0; k < sweeps; k++ {
			solver.SweepRange(s.sys, lo, hi)
		}
		done += sweeps
		// The X segments carry 3 floats per equation, and entry 0 is
		// the boundary sentinel, so the gather fenceposts are offset
		// into the (n+1)*3 layout by the same rule on every rank.
		if err := s.comm.GatherFloat32s(s.sys.X, s.fence, 3); err != nil {
			return nil, res, err
		}
		if err := s.comm.BcastFloat32s(s.sys.X); err != nil {
			return nil, res, fmt.Errorf("broadcasting merged state: %w", err)
		}
	}
	if s.comm.Root() {
		s.out = solver.ClampPixels(s.sys, s.out)
		res = solver.Residual(s.sys)
	}
	if err := s.comm.BcastFloat64s(res[:]); err != nil {
		return nil, res, fmt.Errorf("broadcasting residual: %w", err)
	}
	return s.out, res, nil
}

// Close leaves the process group.
func (s *EquSolver) Close() error {
	return s.comm.Close()
}
