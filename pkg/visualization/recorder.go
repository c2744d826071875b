// Package visualization records the progress of an iterative blend:
// intermediate composites written as a numbered frame sequence, plus the
// residual trace behind them, so a run can be inspected or turned into an
// animation afterwards.
package visualization

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/imageio"
)

// Sample is one recorded point of the residual trace.
type Sample struct {
	// Sweeps is the cumulative iteration count at the time of the
	// sample.
	Sweeps int

	// Residual is the per-channel absolute residual sum.
	Residual [3]float64
}

// Recorder writes intermediate composites and keeps the residual trace
// for one solver run.
type Recorder struct {
	outputDir string
	frames    int
	trace     []Sample
}

// NewRecorder creates a recorder writing frames into outputDir. The
// directory is created on the first frame.
func NewRecorder(outputDir string) *Recorder {
	return &Recorder{outputDir: outputDir}
}

// RecordFrame writes the composite as the next numbered frame and
// appends the residual sample.
func (r *Recorder) RecordFrame(img *models.Image, sweeps int, res [3]float64) error {
	filename := filepath.Join(r.outputDir, fmt.Sprintf("frame_%05d.png", r.frames))
	if err := imageio.Save(filename, img); err != nil {
		return fmt.Errorf("saving frame %d: %w", r.frames, err)
	}
	r.frames++
	r.trace = append(r.trace, Sample{Sweeps: sweeps, Residual: res})
	return nil
}

// Frames reports how many composites were written.
func (r *Recorder) Frames() int {
	return r.frames
}

// Trace returns the recorded residual samples in order.
func (r *Recorder) Trace() []Sample {
	return r.trace
}

// WriteTrace writes the residual trace as CSV next to the frames.
func (r *Recorder) WriteTrace() error {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("creating trace directory: %w", err)
	}
	var b strings.Builder
	b.WriteString("sweeps,residual_r,residual_g,residual_b\n")
	for _, s := range r.trace {
		fmt.Fprintf(&b, "%d,%g,%g,%g\n", s.Sweeps, s.Residual[0], s.Residual[1], s.Residual[2])
	}
	path := filepath.Join(r.outputDir, "residuals.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing residual trace: %w", err)
	}
	return nil
}
