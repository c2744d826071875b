package solver

// IndexMap assigns each interior mask pixel a unique 1-based equation id in
// row-major scan order. Non-interior pixels map to the boundary sentinel 0.
type IndexMap struct {
	Rows, Cols int

	// IDs holds the equation id of each pixel, Rows*Cols entries.
	IDs []int32

	// N is the number of equations assigned.
	N int
}

// Partition scans the mask top-to-bottom, left-to-right and assigns ids
// incrementally starting at 1. The assignment is deterministic for a fixed
// mask, which every backend relies on for reproducible partitioning.
func Partition(m *Mask) *IndexMap {
	idx := &IndexMap{
		Rows: m.Rows,
		Cols: m.Cols,
		IDs:  make([]int32, m.Rows*m.Cols),
	}
	var next int32
	for i, in := range m.In {
		if in != 0 {
			next++
			idx.IDs[i] = next
		}
	}
	idx.N = int(next)
	return idx
}

// ID returns the equation id at (r, c); out-of-bounds coordinates return
// the boundary sentinel.
func (ix *IndexMap) ID(r, c int) int32 {
	if r < 0 || r >= ix.Rows || c < 0 || c >= ix.Cols {
		return 0
	}
	return ix.IDs[r*ix.Cols+c]
}

// Coordinates returns the mask-local (row, col) of every equation id,
// indexed by id with entry 0 unused. Callers use it to scatter solved
// pixels back into the target image.
func (ix *IndexMap) Coordinates() (rows, cols []int32) {
	rows = make([]int32, ix.N+1)
	cols = make([]int32, ix.N+1)
	for r := 0; r < ix.Rows; r++ {
		for c := 0; c < ix.Cols; c++ {
			if id := ix.IDs[r*ix.Cols+c]; id != 0 {
				rows[id] = int32(r)
				cols[id] = int32(c)
			}
		}
	}
	return rows, cols
}
