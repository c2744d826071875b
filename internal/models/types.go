package models

import "fmt"

// Policy selects how source and target gradients are mixed into the
// right-hand side of the Poisson system.
type Policy int

const (
	// PolicyMax keeps, per channel and per direction, whichever of the
	// source or target gradient has the larger magnitude.
	PolicyMax Policy = iota

	// PolicySrc uses the source gradient only.
	PolicySrc

	// PolicyAvg averages the source and target gradients.
	PolicyAvg
)

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "max":
		return PolicyMax, nil
	case "src":
		return PolicySrc, nil
	case "avg":
		return PolicyAvg, nil
	}
	return PolicyMax, fmt.Errorf("unknown gradient policy %q (want max, src or avg)", s)
}

func (p Policy) String() string {
	switch p {
	case PolicyMax:
		return "max"
	case PolicySrc:
		return "src"
	case PolicyAvg:
		return "avg"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// Placement locates the cropped mask rectangle on the source and target
// images. Offsets are in (row, col) order and are added to mask-local
// coordinates.
type Placement struct {
	// SrcRow, SrcCol place the mask on the source image.
	SrcRow, SrcCol int

	// TgtRow, TgtCol place the mask on the target image.
	TgtRow, TgtCol int
}

// Image is a 3-channel floating-point image in row-major order.
// Pixel (r, c) occupies Pix[(r*Cols+c)*3 : (r*Cols+c)*3+3].
type Image struct {
	Rows, Cols int
	Pix        []float32
}

// NewImage allocates a zero image of the given shape.
func NewImage(rows, cols int) *Image {
	return &Image{
		Rows: rows,
		Cols: cols,
		Pix:  make([]float32, rows*cols*3),
	}
}

// Offset returns the index of the first channel of pixel (r, c).
func (im *Image) Offset(r, c int) int {
	return (r*im.Cols + c) * 3
}

// EquationSystem is the assembled sparse Poisson system. Index 0 in every
// per-equation slice is the boundary sentinel and stays all-zero; equation
// ids run 1..N.
type EquationSystem struct {
	// N is the number of equations (interior pixels).
	N int

	// A holds 4 neighbor ids per equation, (N+1)*4 entries in
	// up/down/left/right order. 0 means the neighbor is a boundary pixel
	// whose contribution is already folded into B.
	A []int32

	// B is the right-hand side, (N+1)*3 entries: the mixed gradient term
	// plus the target values of boundary neighbors.
	B []float32

	// X is the solution vector, (N+1)*3 entries, mutated in place by
	// every backend. Initialized from the target image.
	X []float32
}

// NewEquationSystem allocates an all-zero system with n equations.
func NewEquationSystem(n int) *EquationSystem {
	return &EquationSystem{
		N: n,
		A: make([]int32, (n+1)*4),
		B: make([]float32, (n+1)*3),
		X: make([]float32, (n+1)*3),
	}
}

// GridSystem is the grid-domain form of the system: instead of a flattened
// equation table it keeps the cropped mask rectangle directly, trading an
// indirection lookup for spatial locality.
type GridSystem struct {
	// Rows, Cols are the dimensions of the cropped mask rectangle.
	Rows, Cols int

	// Mask marks interior cells with 1, Rows*Cols entries. Interior cells
	// never touch the rectangle edge (the crop keeps a 1-pixel border).
	Mask []uint8

	// Tgt is the cropped target image, Rows*Cols*3 entries. It doubles as
	// the solution buffer and is mutated in place by grid backends.
	Tgt []float32

	// Grad is the mixed gradient field, Rows*Cols*3 entries, zero outside
	// the mask.
	Grad []float32
}

// NewGridSystem allocates a zero grid system of the given shape.
func NewGridSystem(rows, cols int) *GridSystem {
	return &GridSystem{
		Rows: rows,
		Cols: cols,
		Mask: make([]uint8, rows*cols),
		Tgt:  make([]float32, rows*cols*3),
		Grad: make([]float32, rows*cols*3),
	}
}
