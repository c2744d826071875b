package solver

import (
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// GridSequential is the single-threaded grid-domain backend.
type GridSequential struct {
	sys *models.GridSystem
	out []uint8
}

// NewGridSequential returns an unassembled sequential grid solver.
func NewGridSequential() *GridSequential {
	return &GridSequential{}
}

func (s *GridSequential) Reset(sys *models.GridSystem) {
	s.sys = sys
	s.out = nil
}

func (s *GridSequential) Sync() error { return nil }

// Step sweeps the crop row by row, updating interior cells in place.
func (s *GridSequential) Step(iterations int) ([]uint8, [3]float64, error) {
	sys := s.sys
	for it := 0; it < iterations; it++ {
		for r := 1; r < sys.Rows-1; r++ {
			for c := 1; c < sys.Cols-1; c++ {
				if sys.Mask[r*sys.Cols+c] != 0 {
					updateGridCell(sys, r, c)
				}
			}
		}
	}
	s.out = ClampGrid(sys, s.out)
	return s.out, GridResidual(sys), nil
}

func (s *GridSequential) Close() error { return nil }
