package solver

import (
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// AssembleGrid builds the grid-domain system for a prepared mask: the
// cropped target rectangle (which doubles as the solution buffer) and the
// mixed gradient field, zero outside the mask. The mask must come from
// Prepare, so interior cells never touch the rectangle edge.
func AssembleGrid(m *Mask, src, tgt *models.Image, place models.Placement, policy models.Policy) *models.GridSystem {
	sys := models.NewGridSystem(m.Rows, m.Cols)
	copy(sys.Mask, m.In)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			tgtOff := tgt.Offset(r+place.TgtRow, c+place.TgtCol)
			copy(sys.Tgt[(r*m.Cols+c)*3:(r*m.Cols+c)*3+3], tgt.Pix[tgtOff:tgtOff+3])
		}
	}
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if m.In[r*m.Cols+c] == 0 {
				continue
			}
			srcOff := src.Offset(r+place.SrcRow, c+place.SrcCol)
			tgtOff := tgt.Offset(r+place.TgtRow, c+place.TgtCol)
			gOff := (r*m.Cols + c) * 3
			for _, nb := range neighborOffsets {
				nr, nc := r+nb[0], c+nb[1]
				srcNb := src.Offset(nr+place.SrcRow, nc+place.SrcCol)
				tgtNb := tgt.Offset(nr+place.TgtRow, nc+place.TgtCol)
				for ch := 0; ch < 3; ch++ {
					ga := src.Pix[srcOff+ch] - src.Pix[srcNb+ch]
					gb := tgt.Pix[tgtOff+ch] - tgt.Pix[tgtNb+ch]
					sys.Grad[gOff+ch] += mixGradient(ga, gb, policy)
				}
			}
		}
	}
	return sys
}

// updateGridCell applies one Jacobi update to interior cell (r, c),
// averaging the four spatial neighbors of the in-place target buffer.
func updateGridCell(sys *models.GridSystem, r, c int) {
	cols := sys.Cols
	off := (r*cols + c) * 3
	up := off - cols*3
	down := off + cols*3
	left := off - 3
	right := off + 3
	sys.Tgt[off] = (sys.Grad[off] + sys.Tgt[up] + sys.Tgt[down] + sys.Tgt[left] + sys.Tgt[right]) / 4
	sys.Tgt[off+1] = (sys.Grad[off+1] + sys.Tgt[up+1] + sys.Tgt[down+1] + sys.Tgt[left+1] + sys.Tgt[right+1]) / 4
	sys.Tgt[off+2] = (sys.Grad[off+2] + sys.Tgt[up+2] + sys.Tgt[down+2] + sys.Tgt[left+2] + sys.Tgt[right+2]) / 4
}

// GridResidual sums per-channel absolute residuals over interior cells.
func GridResidual(sys *models.GridSystem) [3]float64 {
	var res [3]float64
	cols := sys.Cols
	for r := 0; r < sys.Rows; r++ {
		for c := 0; c < cols; c++ {
			if sys.Mask[r*cols+c] == 0 {
				continue
			}
			off := (r*cols + c) * 3
			up := off - cols*3
			down := off + cols*3
			left := off - 3
			right := off + 3
			for ch := 0; ch < 3; ch++ {
				v := float64(4*sys.Tgt[off+ch] -
					(sys.Tgt[up+ch] + sys.Tgt[down+ch] + sys.Tgt[left+ch] + sys.Tgt[right+ch]) -
					sys.Grad[off+ch])
				if v < 0 {
					v = -v
				}
				res[ch] += v
			}
		}
	}
	return res
}

// ClampGrid quantizes the whole crop into an 8-bit buffer.
func ClampGrid(sys *models.GridSystem, out []uint8) []uint8 {
	n := sys.Rows * sys.Cols * 3
	if cap(out) < n {
		out = make([]uint8, n)
	}
	out = out[:n]
	for i := 0; i < n; i++ {
		v := sys.Tgt[i]
		switch {
		case v < 0:
			out[i] = 0
		case v > 255:
			out[i] = 255
		default:
			out[i] = uint8(v)
		}
	}
	return out
}
