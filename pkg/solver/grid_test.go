package solver

import (
	"math"
	"testing"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// gridScene assembles both forms of the same blend problem so tests can
// compare the grid-domain backends against the flattened reference.
func gridScene(t *testing.T) (*models.EquationSystem, *models.GridSystem, *IndexMap) {
	t.Helper()
	maskImg := models.NewImage(14, 16)
	for r := 3; r <= 10; r++ {
		for c := 4; c <= 12; c++ {
			if (r*3+c)%11 != 0 {
				setPixel(maskImg, r, c, 255, 255, 255)
			}
		}
	}
	src := rampImage(14, 16, 6)
	tgt := rampImage(14, 16, 13)
	m, place := Prepare(maskImg, models.Placement{})
	if m == nil {
		t.Fatal("Scene mask is empty")
	}
	idx := Partition(m)
	equ := AssembleEquations(m, idx, src, tgt, place, models.PolicyMax)
	grid := AssembleGrid(m, src, tgt, place, models.PolicyMax)
	return equ, grid, idx
}

// TestGridMatchesEquation verifies that the grid-domain sequential backend
// converges to the same pixels as the flattened sequential backend within
// quantization tolerance (summation order differs between the two forms).
func TestGridMatchesEquation(t *testing.T) {
	equ, grid, idx := gridScene(t)

	s := NewSequential()
	s.Reset(equ)
	pixEqu, _, _ := s.Step(400)

	g := NewGridSequential()
	g.Reset(grid)
	pixGrid, _, _ := g.Step(400)

	rows, cols := idx.Coordinates()
	for id := 1; id <= idx.N; id++ {
		gOff := (int(rows[id])*grid.Cols + int(cols[id])) * 3
		for ch := 0; ch < 3; ch++ {
			d := int(pixEqu[id*3+ch]) - int(pixGrid[gOff+ch])
			if d < -2 || d > 2 {
				t.Fatalf("Pixel id %d channel %d differs beyond tolerance: %d vs %d",
					id, ch, pixEqu[id*3+ch], pixGrid[gOff+ch])
			}
		}
	}
}

// TestGridParallelMatchesGridSequential verifies tile-parallel equivalence
// with the sequential grid backend after convergence.
func TestGridParallelMatchesGridSequential(t *testing.T) {
	_, gridSeq, _ := gridScene(t)
	gridPar := cloneGridSystem(gridSeq)

	g := NewGridSequential()
	g.Reset(gridSeq)
	pixSeq, _, _ := g.Step(400)

	p := NewGridParallel(4, 4, 3)
	p.Reset(gridPar)
	pixPar, _, _ := p.Step(400)

	for i := range pixSeq {
		d := int(pixSeq[i]) - int(pixPar[i])
		if d < -2 || d > 2 {
			t.Fatalf("Pixel %d differs beyond tolerance: %d vs %d", i, pixSeq[i], pixPar[i])
		}
	}
}

// TestGridExteriorUntouched verifies that non-interior cells keep their
// target values through any number of sweeps.
func TestGridExteriorUntouched(t *testing.T) {
	_, grid, _ := gridScene(t)
	before := make([]float32, len(grid.Tgt))
	copy(before, grid.Tgt)

	g := NewGridSequential()
	g.Reset(grid)
	g.Step(25)

	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			if grid.Mask[r*grid.Cols+c] != 0 {
				continue
			}
			off := (r*grid.Cols + c) * 3
			for ch := 0; ch < 3; ch++ {
				if grid.Tgt[off+ch] != before[off+ch] {
					t.Fatalf("Exterior cell (%d,%d) mutated", r, c)
				}
			}
		}
	}
}

// TestGridResidualDecreases verifies the long-run residual trend for the
// grid backend.
func TestGridResidualDecreases(t *testing.T) {
	_, grid, _ := gridScene(t)
	g := NewGridSequential()
	g.Reset(grid)
	_, first, _ := g.Step(10)
	_, later, _ := g.Step(100)
	for ch := 0; ch < 3; ch++ {
		if later[ch] > first[ch] {
			t.Errorf("Channel %d residual grew: %g -> %g", ch, first[ch], later[ch])
		}
	}
}

// TestGridGradientZeroOutsideMask verifies the assembled gradient field is
// zero on exterior cells.
func TestGridGradientZeroOutsideMask(t *testing.T) {
	_, grid, _ := gridScene(t)
	for i, in := range grid.Mask {
		if in != 0 {
			continue
		}
		for ch := 0; ch < 3; ch++ {
			if v := grid.Grad[i*3+ch]; math.Abs(float64(v)) > 0 {
				t.Fatalf("Gradient nonzero on exterior cell %d: %g", i, v)
			}
		}
	}
}

// TestGridTileAssignmentContiguous verifies that every worker owns one
// contiguous run of tiles in row-major tile order and that the runs
// cover the interior exactly once.
func TestGridTileAssignmentContiguous(t *testing.T) {
	_, grid, _ := gridScene(t)
	p := NewGridParallel(3, 3, 4)
	p.Reset(grid)

	var flat []gridTile
	for w, tiles := range p.assignments {
		for i := 1; i < len(tiles); i++ {
			prev, cur := tiles[i-1], tiles[i]
			rowMajorNext := (cur.r0 == prev.r0 && cur.c0 == prev.c1) ||
				(cur.r0 == prev.r1 && cur.c0 == 1)
			if !rowMajorNext {
				t.Errorf("Worker %d tiles %d and %d are not adjacent in tile order: %+v then %+v",
					w, i-1, i, prev, cur)
			}
		}
		flat = append(flat, tiles...)
	}

	covered := make([]int, grid.Rows*grid.Cols)
	for _, tile := range flat {
		for r := tile.r0; r < tile.r1; r++ {
			for c := tile.c0; c < tile.c1; c++ {
				covered[r*grid.Cols+c]++
			}
		}
	}
	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			want := 0
			if r >= 1 && r < grid.Rows-1 && c >= 1 && c < grid.Cols-1 {
				want = 1
			}
			if covered[r*grid.Cols+c] != want {
				t.Fatalf("Cell (%d,%d) covered %d times, want %d", r, c, covered[r*grid.Cols+c], want)
			}
		}
	}
}

// cloneGridSystem deep-copies a grid system.
func cloneGridSystem(sys *models.GridSystem) *models.GridSystem {
	out := models.NewGridSystem(sys.Rows, sys.Cols)
	copy(out.Mask, sys.Mask)
	copy(out.Tgt, sys.Tgt)
	copy(out.Grad, sys.Grad)
	return out
}
