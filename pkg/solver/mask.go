// Package solver implements the core of the Poisson blending system: the
// construction of the per-pixel equation system from mask and gradient data,
// and the Jacobi iteration engine that solves it. The engine exists in
// several execution strategies (sequential, shared-memory parallel, GPU and
// distributed) that share one numerical contract; this package holds the
// CPU strategies and the pieces common to all of them.
package solver

import (
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// interiorThreshold is the intensity above which a mask pixel counts as
// interior, on the usual 0..255 scale.
const interiorThreshold = 128

// Mask is a 2D boolean grid of interior pixels, immutable once prepared.
type Mask struct {
	Rows, Cols int
	In         []uint8
}

// NewMask derives an interior mask from an intensity image: a pixel is
// interior when its channel mean reaches the threshold.
func NewMask(img *models.Image) *Mask {
	m := &Mask{
		Rows: img.Rows,
		Cols: img.Cols,
		In:   make([]uint8, img.Rows*img.Cols),
	}
	for i := 0; i < len(m.In); i++ {
		mean := (img.Pix[i*3] + img.Pix[i*3+1] + img.Pix[i*3+2]) / 3
		if mean >= interiorThreshold {
			m.In[i] = 1
		}
	}
	return m
}

// At reports whether (r, c) is interior. Out-of-bounds coordinates are
// exterior.
func (m *Mask) At(r, c int) bool {
	if r < 0 || r >= m.Rows || c < 0 || c >= m.Cols {
		return false
	}
	return m.In[r*m.Cols+c] != 0
}

// ZeroEdges clears the outermost rows and columns so that every interior
// pixel has four in-bounds neighbors.
func (m *Mask) ZeroEdges() {
	if m.Rows == 0 || m.Cols == 0 {
		return
	}
	for c := 0; c < m.Cols; c++ {
		m.In[c] = 0
		m.In[(m.Rows-1)*m.Cols+c] = 0
	}
	for r := 0; r < m.Rows; r++ {
		m.In[r*m.Cols] = 0
		m.In[r*m.Cols+m.Cols-1] = 0
	}
}

// Crop shrinks the mask to the bounding box of its interior pixels plus a
// 1-pixel border, and returns the cropped mask together with the offset of
// the crop origin in the original mask. An empty mask crops to nil with
// zero offsets.
func (m *Mask) Crop() (cropped *Mask, r0, c0 int) {
	minR, minC := m.Rows, m.Cols
	maxR, maxC := -1, -1
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if m.In[r*m.Cols+c] != 0 {
				if r < minR {
					minR = r
				}
				if r > maxR {
					maxR = r
				}
				if c < minC {
					minC = c
				}
				if c > maxC {
					maxC = c
				}
			}
		}
	}
	if maxR < 0 {
		return nil, 0, 0
	}
	r0, c0 = minR-1, minC-1
	r1, c1 := maxR+2, maxC+2 // exclusive
	cropped = &Mask{
		Rows: r1 - r0,
		Cols: c1 - c0,
		In:   make([]uint8, (r1-r0)*(c1-c0)),
	}
	for r := 0; r < cropped.Rows; r++ {
		copy(cropped.In[r*cropped.Cols:(r+1)*cropped.Cols],
			m.In[(r0+r)*m.Cols+c0:(r0+r)*m.Cols+c1])
	}
	return cropped, r0, c0
}

// Prepare runs the standard preprocessing pipeline on a raw intensity mask:
// threshold, edge zeroing, bounding-box crop, and placement adjustment so
// that the returned placement maps cropped-mask coordinates onto the source
// and target images. A nil mask is returned when no interior pixel remains.
func Prepare(maskImg *models.Image, place models.Placement) (*Mask, models.Placement) {
	m := NewMask(maskImg)
	m.ZeroEdges()
	cropped, r0, c0 := m.Crop()
	if cropped == nil {
		return nil, place
	}
	place.SrcRow += r0
	place.SrcCol += c0
	place.TgtRow += r0
	place.TgtCol += c0
	return cropped, place
}
