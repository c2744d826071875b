package solver

import (
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// updateEquation applies one Jacobi update to equation i, reading whatever
// neighbor values X currently holds. Neighbor id 0 contributes X[0] = 0, so
// boundary terms already baked into B are not double-counted.
func updateEquation(sys *models.EquationSystem, i int) {
	off3 := i * 3
	off4 := i * 4
	id0 := int(sys.A[off4]) * 3
	id1 := int(sys.A[off4+1]) * 3
	id2 := int(sys.A[off4+2]) * 3
	id3 := int(sys.A[off4+3]) * 3
	sys.X[off3] = (sys.B[off3] + sys.X[id0] + sys.X[id1] + sys.X[id2] + sys.X[id3]) / 4
	sys.X[off3+1] = (sys.B[off3+1] + sys.X[id0+1] + sys.X[id1+1] + sys.X[id2+1] + sys.X[id3+1]) / 4
	sys.X[off3+2] = (sys.B[off3+2] + sys.X[id0+2] + sys.X[id1+2] + sys.X[id2+2] + sys.X[id3+2]) / 4
}

// SweepRange updates equations lo..hi inclusive, in id order.
func SweepRange(sys *models.EquationSystem, lo, hi int) {
	for i := lo; i <= hi; i++ {
		updateEquation(sys, i)
	}
}

// Residual computes the per-channel sums of absolute equation
// residuals |4*X[i] - sum(X[neighbors]) - B[i]| over equations 1..N.
func Residual(sys *models.EquationSystem) [3]float64 {
	var res [3]float64
	for i := 1; i <= sys.N; i++ {
		off3 := i * 3
		off4 := i * 4
		id0 := int(sys.A[off4]) * 3
		id1 := int(sys.A[off4+1]) * 3
		id2 := int(sys.A[off4+2]) * 3
		id3 := int(sys.A[off4+3]) * 3
		for ch := 0; ch < 3; ch++ {
			r := float64(4*sys.X[off3+ch] -
				(sys.X[id0+ch] + sys.X[id1+ch] + sys.X[id2+ch] + sys.X[id3+ch]) -
				sys.B[off3+ch])
			if r < 0 {
				r = -r
			}
			res[ch] += r
		}
	}
	return res
}

// ClampPixels quantizes X into an 8-bit pixel buffer, saturating each
// channel to [0, 255]. Entry 0 stays zero.
func ClampPixels(sys *models.EquationSystem, out []uint8) []uint8 {
	n := (sys.N + 1) * 3
	if cap(out) < n {
		out = make([]uint8, n)
	}
	out = out[:n]
	for i := 3; i < n; i++ {
		v := sys.X[i]
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
