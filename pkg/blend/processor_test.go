package blend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/imageio"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/solver"
)

// TestProcessEndToEnd runs the whole pipeline on generated images with
// the sequential backend and checks the output composite keeps the
// target untouched outside the mask.
func TestProcessEndToEnd(t *testing.T) {
	dir := t.TempDir()
	params := writeScene(t, dir)
	params.Iterations = 300
	params.ReportInterval = 100

	p := NewEquProcessor(params, solver.NewSequential())
	if err := p.Process(); err != nil {
		t.Fatalf("Process: %v", err)
	}

	out, err := imageio.Load(params.OutputPath)
	if err != nil {
		t.Fatalf("loading output: %v", err)
	}
	tgt, err := imageio.Load(params.TargetPath)
	if err != nil {
		t.Fatalf("loading target: %v", err)
	}
	if out.Rows != tgt.Rows || out.Cols != tgt.Cols {
		t.Fatalf("output is %dx%d, target %dx%d", out.Rows, out.Cols, tgt.Rows, tgt.Cols)
	}
	// Corners are far from the mask block and must pass through.
	for _, rc := range [][2]int{{0, 0}, {0, tgt.Cols - 1}, {tgt.Rows - 1, 0}, {tgt.Rows - 1, tgt.Cols - 1}} {
		o := tgt.Offset(rc[0], rc[1])
		for ch := 0; ch < 3; ch++ {
			if out.Pix[o+ch] != tgt.Pix[o+ch] {
				t.Errorf("pixel (%d,%d) ch %d changed: %v -> %v", rc[0], rc[1], ch, tgt.Pix[o+ch], out.Pix[o+ch])
			}
		}
	}

	m := p.Metrics()
	if m.Equations == 0 || m.Sweeps != 300 {
		t.Errorf("metrics = %+v, want nonzero equations and 300 sweeps", m)
	}
}

// TestProcessGridMatchesEqu blends the same scene with both formulations
// and requires the composites to agree within two gray levels.
func TestProcessGridMatchesEqu(t *testing.T) {
	dir := t.TempDir()
	equParams := writeScene(t, dir)
	equParams.Iterations = 400
	equParams.ReportInterval = 200

	gridParams := *equParams
	gridParams.OutputPath = filepath.Join(dir, "result_grid.png")

	if err := NewEquProcessor(equParams, solver.NewSequential()).Process(); err != nil {
		t.Fatalf("equ Process: %v", err)
	}
	if err := NewGridProcessor(&gridParams, solver.NewGridSequential()).Process(); err != nil {
		t.Fatalf("grid Process: %v", err)
	}

	a, err := imageio.Load(equParams.OutputPath)
	if err != nil {
		t.Fatalf("loading equ output: %v", err)
	}
	b, err := imageio.Load(gridParams.OutputPath)
	if err != nil {
		t.Fatalf("loading grid output: %v", err)
	}
	for i := range a.Pix {
		d := a.Pix[i] - b.Pix[i]
		if d < 0 {
			d = -d
		}
		if d > 2 {
			t.Fatalf("pixel component %d: equ %v vs grid %v", i, a.Pix[i], b.Pix[i])
		}
	}
}

// TestProcessSavesProgress checks that progress frames land in the
// configured directory.
func TestProcessSavesProgress(t *testing.T) {
	dir := t.TempDir()
	params := writeScene(t, dir)
	params.Iterations = 200
	params.ReportInterval = 50
	params.SaveProgress = true
	params.ProgressDir = filepath.Join(dir, "progress")

	if err := NewEquProcessor(params, solver.NewSequential()).Process(); err != nil {
		t.Fatalf("Process: %v", err)
	}
	entries, err := os.ReadDir(params.ProgressDir)
	if err != nil {
		t.Fatalf("reading progress dir: %v", err)
	}
	frames := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".png" {
			frames++
		}
	}
	if frames != 4 {
		t.Errorf("progress dir has %d frames, want 4", frames)
	}
	if _, err := os.Stat(filepath.Join(params.ProgressDir, "residuals.csv")); err != nil {
		t.Errorf("residual trace missing: %v", err)
	}
}

// TestProcessResizesSourceAndMask feeds a source and mask at twice the
// target's shape and asks the pipeline to scale them down on load; the
// blend must then succeed against the smaller target.
func TestProcessResizesSourceAndMask(t *testing.T) {
	dir := t.TempDir()
	params := writeScene(t, dir)
	params.Iterations = 200
	params.ReportInterval = 100

	// Rewrite source and mask at double resolution, same content layout.
	const big = 48
	src := models.NewImage(big, big)
	maskImg := models.NewImage(big, big)
	for r := 0; r < big; r++ {
		for c := 0; c < big; c++ {
			o := src.Offset(r, c)
			src.Pix[o] = float32(30 + (r*5+c*3)%50)
			src.Pix[o+1] = float32(60 + (r*2+c*7)%40)
			src.Pix[o+2] = float32(20 + (r*9+c)%60)
			if r >= 16 && r < 32 && c >= 16 && c < 32 {
				maskImg.Pix[o] = 255
				maskImg.Pix[o+1] = 255
				maskImg.Pix[o+2] = 255
			}
		}
	}
	if err := imageio.Save(params.SourcePath, src); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	if err := imageio.Save(params.MaskPath, maskImg); err != nil {
		t.Fatalf("writing mask: %v", err)
	}

	// Without resizing the 48x48 mask cannot fit the 24x24 canvas.
	if err := NewEquProcessor(params, solver.NewSequential()).Process(); err == nil {
		t.Fatal("Process accepted a mask larger than the images it maps into")
	}

	params.ResizeRows = 24
	params.ResizeCols = 24
	if err := NewEquProcessor(params, solver.NewSequential()).Process(); err != nil {
		t.Fatalf("Process with resize: %v", err)
	}
	out, err := imageio.Load(params.OutputPath)
	if err != nil {
		t.Fatalf("loading output: %v", err)
	}
	if out.Rows != 24 || out.Cols != 24 {
		t.Errorf("output is %dx%d, want 24x24", out.Rows, out.Cols)
	}
}

// TestProcessRejectsNonPositiveIntervals checks that a zero report
// interval or sweep budget fails up front instead of stalling the batch
// loop.
func TestProcessRejectsNonPositiveIntervals(t *testing.T) {
	dir := t.TempDir()

	params := writeScene(t, dir)
	params.Iterations = 100
	params.ReportInterval = 0
	if err := NewEquProcessor(params, solver.NewSequential()).Process(); err == nil {
		t.Error("Process accepted a zero report interval")
	}

	params = writeScene(t, dir)
	params.Iterations = 0
	params.ReportInterval = 50
	if err := NewGridProcessor(params, solver.NewGridSequential()).Process(); err == nil {
		t.Error("Process accepted a zero sweep budget")
	}
}

// TestProcessRejectsOutOfBoundsPlacement shifts the mask past the target
// edge and expects a descriptive failure.
func TestProcessRejectsOutOfBoundsPlacement(t *testing.T) {
	dir := t.TempDir()
	params := writeScene(t, dir)
	params.Placement.TgtRow = 1000

	err := NewEquProcessor(params, solver.NewSequential()).Process()
	if err == nil {
		t.Fatal("Process accepted an out-of-bounds placement")
	}
}

// writeScene writes a 24x24 source, mask and target to disk and returns
// pipeline parameters pointing at them. The mask is a solid block in the
// middle, so after cropping the blend sits well inside both images.
func writeScene(t *testing.T, dir string) *Params {
	t.Helper()
	const size = 24
	src := models.NewImage(size, size)
	maskImg := models.NewImage(size, size)
	tgt := models.NewImage(size, size)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			o := src.Offset(r, c)
			src.Pix[o] = float32(30 + (r*5+c*3)%50)
			src.Pix[o+1] = float32(60 + (r*2+c*7)%40)
			src.Pix[o+2] = float32(20 + (r*9+c)%60)
			tgt.Pix[o] = float32(180 - (r*3+c*2)%30)
			tgt.Pix[o+1] = float32(100 + (r+c*5)%35)
			tgt.Pix[o+2] = float32(90 + (r*6+c*4)%25)
			if r >= 8 && r < 16 && c >= 8 && c < 16 {
				maskImg.Pix[o] = 255
				maskImg.Pix[o+1] = 255
				maskImg.Pix[o+2] = 255
			}
		}
	}
	params := &Params{
		SourcePath: filepath.Join(dir, "source.png"),
		MaskPath:   filepath.Join(dir, "mask.png"),
		TargetPath: filepath.Join(dir, "target.png"),
		OutputPath: filepath.Join(dir, "result.png"),
		Gradient:   models.PolicyMax,
	}
	if err := imageio.Save(params.SourcePath, src); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	if err := imageio.Save(params.MaskPath, maskImg); err != nil {
		t.Fatalf("writing mask: %v", err)
	}
	if err := imageio.Save(params.TargetPath, tgt); err != nil {
		t.Fatalf("writing target: %v", err)
	}
	return params
}
