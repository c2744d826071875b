package solver

import (
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// mixGradient combines one directional source gradient with the matching
// target gradient according to the policy. a is the source gradient, b the
// target gradient, both per channel.
func mixGradient(a, b float32, policy models.Policy) float32 {
	switch policy {
	case models.PolicySrc:
		return a
	case models.PolicyAvg:
		return (a + b) / 2
	default: // PolicyMax, see Equ. 12 in the PIE paper
		aa, bb := a, b
		if aa < 0 {
			aa = -aa
		}
		if bb < 0 {
			bb = -bb
		}
		if aa < bb {
			return b
		}
		return a
	}
}

// neighborOffsets enumerates the four axis directions in up/down/left/right
// order. The order is part of the data layout: A records store neighbor ids
// in this order.
var neighborOffsets = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// AssembleEquations builds the neighbor table, right-hand side and initial
// solution for every interior pixel of a prepared mask. The mask must have
// been produced by Prepare (so that every interior pixel has four in-bounds
// neighbors); src and tgt must contain the placed mask rectangle entirely,
// which is a caller contract.
func AssembleEquations(m *Mask, idx *IndexMap, src, tgt *models.Image, place models.Placement, policy models.Policy) *models.EquationSystem {
	sys := models.NewEquationSystem(idx.N)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			id := idx.IDs[r*m.Cols+c]
			if id == 0 {
				continue
			}
			srcOff := src.Offset(r+place.SrcRow, c+place.SrcCol)
			tgtOff := tgt.Offset(r+place.TgtRow, c+place.TgtCol)
			off3 := int(id) * 3
			off4 := int(id) * 4

			// Solution starts from the target pixel.
			copy(sys.X[off3:off3+3], tgt.Pix[tgtOff:tgtOff+3])

			for d, nb := range neighborOffsets {
				nr, nc := r+nb[0], c+nb[1]
				srcNb := src.Offset(nr+place.SrcRow, nc+place.SrcCol)
				tgtNb := tgt.Offset(nr+place.TgtRow, nc+place.TgtCol)
				for ch := 0; ch < 3; ch++ {
					ga := src.Pix[srcOff+ch] - src.Pix[srcNb+ch]
					gb := tgt.Pix[tgtOff+ch] - tgt.Pix[tgtNb+ch]
					sys.B[off3+ch] += mixGradient(ga, gb, policy)
				}
				if nbID := idx.ID(nr, nc); nbID != 0 {
					sys.A[off4+d] = nbID
				} else {
					// Boundary neighbor: fold its target value
					// into B so the solve never looks it up.
					for ch := 0; ch < 3; ch++ {
						sys.B[off3+ch] += tgt.Pix[tgtNb+ch]
					}
				}
			}
		}
	}
	return sys
}
