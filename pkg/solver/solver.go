package solver

import (
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// Solver is the contract shared by every Jacobi backend operating on the
// flattened equation form. The caller sequences the calls: Reset loads an
// assembled system, Sync distributes it (a no-op everywhere except the
// distributed backend), and Step advances the solve. Calling Step before
// Reset is a contract violation.
type Solver interface {
	// Reset discards any prior state and loads an assembled system. The
	// solver takes ownership of the system buffers until the next Reset.
	Reset(sys *models.EquationSystem)

	// Sync distributes the assembled system across execution resources.
	// Non-distributed backends return nil immediately.
	Sync() error

	// Step performs exactly iterations Jacobi sweeps over all equations
	// and returns the clamped 8-bit pixel buffer indexed by equation id
	// ((N+1)*3 bytes, entry 0 zero) and the per-channel sums of absolute
	// equation residuals.
	Step(iterations int) (pixels []uint8, residual [3]float64, err error)

	// Close releases backend resources (device buffers, connections).
	Close() error
}

// GridSolver is the grid-domain counterpart of Solver: it iterates directly
// over the cropped mask rectangle instead of an id-indexed table. Step
// returns the clamped crop (Rows*Cols*3 bytes) with non-interior cells
// holding the clamped target values.
type GridSolver interface {
	Reset(sys *models.GridSystem)
	Sync() error
	Step(iterations int) (pixels []uint8, residual [3]float64, err error)
	Close() error
}
