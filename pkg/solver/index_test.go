package solver

import (
	"testing"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// TestPartitionRowMajor verifies that equation ids are assigned in
// row-major scan order starting at 1, with 0 reserved for non-interior
// pixels.
func TestPartitionRowMajor(t *testing.T) {
	m := &Mask{Rows: 3, Cols: 3, In: []uint8{
		0, 1, 0,
		1, 1, 1,
		0, 1, 0,
	}}

	idx := Partition(m)

	if idx.N != 5 {
		t.Fatalf("Expected 5 equations, got %d", idx.N)
	}
	want := []int32{
		0, 1, 0,
		2, 3, 4,
		0, 5, 0,
	}
	for i, w := range want {
		if idx.IDs[i] != w {
			t.Errorf("IDs[%d]: expected %d, got %d", i, w, idx.IDs[i])
		}
	}
}

// TestPartitionDeterminism verifies that repeated partitioning of the same
// mask yields identical index maps.
func TestPartitionDeterminism(t *testing.T) {
	m := blobMask(16, 20)

	a := Partition(m)
	b := Partition(m)

	if a.N != b.N {
		t.Fatalf("Equation counts differ: %d vs %d", a.N, b.N)
	}
	for i := range a.IDs {
		if a.IDs[i] != b.IDs[i] {
			t.Fatalf("Index maps differ at %d: %d vs %d", i, a.IDs[i], b.IDs[i])
		}
	}
}

// TestPartitionCoordinates verifies that Coordinates inverts the index map.
func TestPartitionCoordinates(t *testing.T) {
	m := blobMask(12, 12)
	idx := Partition(m)

	rows, cols := idx.Coordinates()
	if len(rows) != idx.N+1 || len(cols) != idx.N+1 {
		t.Fatalf("Expected %d coordinate entries, got %d/%d", idx.N+1, len(rows), len(cols))
	}
	for id := 1; id <= idx.N; id++ {
		if got := idx.ID(int(rows[id]), int(cols[id])); got != int32(id) {
			t.Errorf("Coordinate of id %d maps back to %d", id, got)
		}
	}
}

// TestPrepareEmptyMask verifies that a mask with no interior pixels (after
// edge zeroing) prepares to nil.
func TestPrepareEmptyMask(t *testing.T) {
	img := models.NewImage(4, 4)
	// Only edge pixels lit; edge zeroing removes them all.
	for c := 0; c < 4; c++ {
		px := img.Offset(0, c)
		img.Pix[px], img.Pix[px+1], img.Pix[px+2] = 255, 255, 255
	}

	m, _ := Prepare(img, models.Placement{})
	if m != nil {
		t.Errorf("Expected nil mask for edge-only input, got %dx%d", m.Rows, m.Cols)
	}
}

// TestPrepareCropOffsets verifies that Prepare crops to the interior
// bounding box plus a 1-pixel border and shifts placements accordingly.
func TestPrepareCropOffsets(t *testing.T) {
	img := models.NewImage(10, 10)
	// Interior block rows 4..5, cols 6..7.
	for r := 4; r <= 5; r++ {
		for c := 6; c <= 7; c++ {
			px := img.Offset(r, c)
			img.Pix[px], img.Pix[px+1], img.Pix[px+2] = 200, 200, 200
		}
	}

	m, place := Prepare(img, models.Placement{SrcRow: 1, SrcCol: 2, TgtRow: 3, TgtCol: 4})
	if m == nil {
		t.Fatal("Expected non-nil mask")
	}
	if m.Rows != 4 || m.Cols != 4 {
		t.Errorf("Expected 4x4 crop, got %dx%d", m.Rows, m.Cols)
	}
	if place.SrcRow != 1+3 || place.SrcCol != 2+5 {
		t.Errorf("Source placement not shifted by crop origin: %+v", place)
	}
	if place.TgtRow != 3+3 || place.TgtCol != 4+5 {
		t.Errorf("Target placement not shifted by crop origin: %+v", place)
	}
	// Border of the crop must be exterior.
	for c := 0; c < m.Cols; c++ {
		if m.At(0, c) || m.At(m.Rows-1, c) {
			t.Fatal("Crop border contains interior pixels")
		}
	}
}

// blobMask builds a deterministic non-rectangular mask with a 1-pixel
// exterior border, used by several tests.
func blobMask(rows, cols int) *Mask {
	m := &Mask{Rows: rows, Cols: cols, In: make([]uint8, rows*cols)}
	for r := 1; r < rows-1; r++ {
		for c := 1; c < cols-1; c++ {
			if (r+2*c)%7 != 0 {
				m.In[r*cols+c] = 1
			}
		}
	}
	return m
}
