package visualization

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// TestRecordFrameSequence writes three frames and checks the numbered
// files and the trace both line up.
func TestRecordFrameSequence(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(dir)
	img := models.NewImage(4, 4)
	for i := 0; i < 3; i++ {
		res := [3]float64{float64(i), float64(i) * 2, float64(i) * 3}
		if err := rec.RecordFrame(img, (i+1)*100, res); err != nil {
			t.Fatalf("RecordFrame %d: %v", i, err)
		}
	}
	if rec.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", rec.Frames())
	}
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, "frame_0000"+string(rune('0'+i))+".png")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("frame %d missing: %v", i, err)
		}
	}
	trace := rec.Trace()
	if len(trace) != 3 {
		t.Fatalf("trace has %d samples, want 3", len(trace))
	}
	if trace[2].Sweeps != 300 || trace[2].Residual[1] != 4 {
		t.Errorf("last sample = %+v, want sweeps 300 and residual_g 4", trace[2])
	}
}

// TestWriteTrace checks the CSV layout.
func TestWriteTrace(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(dir)
	img := models.NewImage(2, 2)
	if err := rec.RecordFrame(img, 50, [3]float64{1.5, 2.5, 3.5}); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}
	if err := rec.WriteTrace(); err != nil {
		t.Fatalf("WriteTrace: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "residuals.csv"))
	if err != nil {
		t.Fatalf("reading trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("trace has %d lines, want 2", len(lines))
	}
	if lines[1] != "50,1.5,2.5,3.5" {
		t.Errorf("sample line = %q", lines[1])
	}
}
