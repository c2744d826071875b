// Package blend orchestrates the full Poisson blending pipeline: loading
// the source, mask and target images, preparing and indexing the mask,
// assembling the linear system, driving a solver backend in report-sized
// batches and compositing the solved pixels back into the target canvas.
package blend

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/imageio"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/solver"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/visualization"
)

// Params holds the pipeline configuration for one blend.
type Params struct {
	// SourcePath, MaskPath and TargetPath name the three input images.
	// The mask is thresholded on its channel mean, so grayscale and RGB
	// masks both work.
	SourcePath string
	MaskPath   string
	TargetPath string

	// OutputPath is where the composited result is written; the format
	// follows the extension.
	OutputPath string

	// ResizeRows and ResizeCols, when both positive, rescale the source
	// and mask to that shape on load so oversized inputs fit the target
	// canvas. Zero keeps the native size.
	ResizeRows int
	ResizeCols int

	// Placement positions the mask rectangle inside the source and
	// target images.
	Placement models.Placement

	// Gradient selects how source and target gradients mix inside the
	// blended region.
	Gradient models.Policy

	// Iterations is the total number of solver sweeps.
	Iterations int

	// ReportInterval is how many sweeps run between residual reports.
	ReportInterval int

	// SaveProgress writes an intermediate composite at every report
	// interval into ProgressDir.
	SaveProgress bool
	ProgressDir  string

	// Verbose enables per-batch residual logging.
	Verbose bool
}

// Metrics summarizes one pipeline run.
type Metrics struct {
	// Equations is the system size; for the grid method it counts the
	// masked cells of the crop.
	Equations int

	// Sweeps is the total number of iterations actually run.
	Sweeps int

	// Residual is the final per-channel absolute residual sum.
	Residual [3]float64

	// MeanBatchSeconds and StddevBatchSeconds describe the per-batch
	// solve time distribution.
	MeanBatchSeconds   float64
	StddevBatchSeconds float64
}

// Processor runs the pipeline against one solver backend. Exactly one of
// equ or grid is set, fixing the domain formulation.
type Processor struct {
	params *Params
	equ    solver.Solver
	grid   solver.GridSolver

	recorder *visualization.Recorder
	metrics  Metrics
}

// NewEquProcessor builds a pipeline around the flattened-equation
// formulation.
func NewEquProcessor(params *Params, s solver.Solver) *Processor {
	return &Processor{params: params, equ: s}
}

// NewGridProcessor builds a pipeline around the rectangular grid
// formulation.
func NewGridProcessor(params *Params, s solver.GridSolver) *Processor {
	return &Processor{params: params, grid: s}
}

// Metrics returns the run summary; valid after Process.
func (p *Processor) Metrics() Metrics {
	return p.metrics
}

// Process runs the complete blending pipeline.
func (p *Processor) Process() error {
	if p.params.Iterations < 1 {
		return fmt.Errorf("iterations must be positive, got %d", p.params.Iterations)
	}
	if p.params.ReportInterval < 1 {
		return fmt.Errorf("report interval must be positive, got %d", p.params.ReportInterval)
	}
	if p.params.Verbose {
		fmt.Println("Step 1: Loading input images...")
	}
	src, err := p.loadResizable(p.params.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}
	maskImg, err := p.loadResizable(p.params.MaskPath)
	if err != nil {
		return fmt.Errorf("failed to load mask: %w", err)
	}
	tgt, err := imageio.Load(p.params.TargetPath)
	if err != nil {
		return fmt.Errorf("failed to load target: %w", err)
	}

	if p.params.Verbose {
		fmt.Println("Step 2: Preparing mask and assembling system...")
	}
	m, place := solver.Prepare(maskImg, p.params.Placement)
	if m == nil {
		return fmt.Errorf("mask has no interior pixels after preparation")
	}
	if err := checkBounds(m, src, tgt, place); err != nil {
		return err
	}

	if p.params.SaveProgress {
		p.recorder = visualization.NewRecorder(p.params.ProgressDir)
	}

	if p.grid != nil {
		return p.processGrid(m, src, tgt, place)
	}
	return p.processEqu(m, src, tgt, place)
}

// loadResizable reads one of the inputs the resize shape applies to. The
// source and mask rescale together so mask-local coordinates keep lining
// up between them.
func (p *Processor) loadResizable(path string) (*models.Image, error) {
	if p.params.ResizeRows > 0 && p.params.ResizeCols > 0 {
		return imageio.LoadScaled(path, p.params.ResizeRows, p.params.ResizeCols)
	}
	return imageio.Load(path)
}

func (p *Processor) processEqu(m *solver.Mask, src, tgt *models.Image, place models.Placement) error {
	idx := solver.Partition(m)
	sys := solver.AssembleEquations(m, idx, src, tgt, place, p.params.Gradient)
	p.metrics.Equations = sys.N
	rows, cols := idx.Coordinates()

	p.equ.Reset(sys)
	if err := p.equ.Sync(); err != nil {
		return fmt.Errorf("failed to synchronize solver: %w", err)
	}

	if p.params.Verbose {
		fmt.Printf("Step 3: Solving %d equations...\n", sys.N)
	}
	var (
		pixels  []uint8
		res     [3]float64
		seconds []float64
	)
	for done := 0; done < p.params.Iterations; {
		batch := p.params.ReportInterval
		if rem := p.params.Iterations - done; rem < batch {
			batch = rem
		}
		start := time.Now()
		var err error
		pixels, res, err = p.equ.Step(batch)
		if err != nil {
			return fmt.Errorf("solver step failed after %d sweeps: %w", done, err)
		}
		done += batch
		seconds = append(seconds, time.Since(start).Seconds())
		p.report(done, res)
		if p.recorder != nil {
			frame := compositeEqu(tgt, pixels, rows, cols, place)
			if err := p.recorder.RecordFrame(frame, done, res); err != nil {
				fmt.Printf("Warning: failed to save progress frame at sweep %d: %v\n", done, err)
			}
		}
	}
	p.finishMetrics(res, seconds)

	if p.params.Verbose {
		fmt.Println("Step 4: Compositing and writing output...")
	}
	out := compositeEqu(tgt, pixels, rows, cols, place)
	if err := imageio.Save(p.params.OutputPath, out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (p *Processor) processGrid(m *solver.Mask, src, tgt *models.Image, place models.Placement) error {
	sys := solver.AssembleGrid(m, src, tgt, place, p.params.Gradient)
	for _, v := range sys.Mask {
		if v != 0 {
			p.metrics.Equations++
		}
	}

	p.grid.Reset(sys)
	if err := p.grid.Sync(); err != nil {
		return fmt.Errorf("failed to synchronize solver: %w", err)
	}

	if p.params.Verbose {
		fmt.Printf("Step 3: Solving %d grid cells...\n", p.metrics.Equations)
	}
	var (
		pixels  []uint8
		res     [3]float64
		seconds []float64
	)
	for done := 0; done < p.params.Iterations; {
		batch := p.params.ReportInterval
		if rem := p.params.Iterations - done; rem < batch {
			batch = rem
		}
		start := time.Now()
		var err error
		pixels, res, err = p.grid.Step(batch)
		if err != nil {
			return fmt.Errorf("solver step failed after %d sweeps: %w", done, err)
		}
		done += batch
		seconds = append(seconds, time.Since(start).Seconds())
		p.report(done, res)
		if p.recorder != nil {
			frame := compositeGrid(tgt, pixels, sys, place)
			if err := p.recorder.RecordFrame(frame, done, res); err != nil {
				fmt.Printf("Warning: failed to save progress frame at sweep %d: %v\n", done, err)
			}
		}
	}
	p.finishMetrics(res, seconds)

	if p.params.Verbose {
		fmt.Println("Step 4: Compositing and writing output...")
	}
	out := compositeGrid(tgt, pixels, sys, place)
	if err := imageio.Save(p.params.OutputPath, out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (p *Processor) report(done int, res [3]float64) {
	if p.params.Verbose {
		fmt.Printf("  sweep %d: residual = [%.3f %.3f %.3f]\n", done, res[0], res[1], res[2])
	}
}

func (p *Processor) finishMetrics(res [3]float64, seconds []float64) {
	p.metrics.Sweeps = p.params.Iterations
	p.metrics.Residual = res
	if len(seconds) > 0 {
		p.metrics.MeanBatchSeconds = stat.Mean(seconds, nil)
		p.metrics.StddevBatchSeconds = stat.StdDev(seconds, nil)
	}
	if p.recorder != nil {
		if err := p.recorder.WriteTrace(); err != nil {
			fmt.Printf("Warning: failed to write residual trace: %v\n", err)
		}
	}
}

// compositeEqu scatters the solved pixels into a copy of the target using
// the crop-local coordinates of each equation.
func compositeEqu(tgt *models.Image, pixels []uint8, rows, cols []int32, place models.Placement) *models.Image {
	out := models.NewImage(tgt.Rows, tgt.Cols)
	copy(out.Pix, tgt.Pix)
	for id := 1; id < len(rows); id++ {
		o := out.Offset(int(rows[id])+place.TgtRow, int(cols[id])+place.TgtCol)
		out.Pix[o] = float32(pixels[id*3])
		out.Pix[o+1] = float32(pixels[id*3+1])
		out.Pix[o+2] = float32(pixels[id*3+2])
	}
	return out
}

// compositeGrid scatters the masked cells of the solved crop into a copy
// of the target.
func compositeGrid(tgt *models.Image, pixels []uint8, sys *models.GridSystem, place models.Placement) *models.Image {
	out := models.NewImage(tgt.Rows, tgt.Cols)
	copy(out.Pix, tgt.Pix)
	for r := 0; r < sys.Rows; r++ {
		for c := 0; c < sys.Cols; c++ {
			if sys.Mask[r*sys.Cols+c] == 0 {
				continue
			}
			i := (r*sys.Cols + c) * 3
			o := out.Offset(r+place.TgtRow, c+place.TgtCol)
			out.Pix[o] = float32(pixels[i])
			out.Pix[o+1] = float32(pixels[i+1])
			out.Pix[o+2] = float32(pixels[i+2])
		}
	}
	return out
}

// checkBounds rejects placements that would index outside either image.
// The crop needs a one-pixel margin for neighbor reads.
func checkBounds(m *solver.Mask, src, tgt *models.Image, place models.Placement) error {
	if place.SrcRow < 0 || place.SrcCol < 0 ||
		place.SrcRow+m.Rows > src.Rows || place.SrcCol+m.Cols > src.Cols {
		return fmt.Errorf("mask region %dx%d at (%d,%d) exceeds source %dx%d",
			m.Rows, m.Cols, place.SrcRow, place.SrcCol, src.Rows, src.Cols)
	}
	if place.TgtRow < 0 || place.TgtCol < 0 ||
		place.TgtRow+m.Rows > tgt.Rows || place.TgtCol+m.Cols > tgt.Cols {
		return fmt.Errorf("mask region %dx%d at (%d,%d) exceeds target %dx%d",
			m.Rows, m.Cols, place.TgtRow, place.TgtCol, tgt.Rows, tgt.Cols)
	}
	return nil
}
