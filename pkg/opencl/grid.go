package opencl

import (
	"fmt"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/solver"
)

// defaultBlockRows and defaultBlockCols shape the work group when the
// caller does not pick one.
const (
	defaultBlockRows = 8
	defaultBlockCols = 8
)

// One work item per interior cell, one work group per block of cells. The
// group cooperatively stages its block plus a one-cell halo in local
// memory, so every neighbor read is serviced from the tile. Cells outside
// the mask are never written: they carry the target values both ping-pong
// buffers were initialized with and act as the Dirichlet boundary. Tile
// cells past the grid edge are zero-filled; only work items that exit
// after the barrier would read them.
const gridKernelSource = `__kernel void grid_step(
    const int rows,
    const int cols,
    __global const uchar* mask,
    __global const float* grad,
    __global const float* tgt,
    __global float* tgt_next,
    __local float* tile)
{
    int br = get_local_size(0);
    int bc = get_local_size(1);
    int tcols = bc + 2;
    int r0 = get_group_id(0) * br + 1;
    int c0 = get_group_id(1) * bc + 1;
    int cells = (br + 2) * tcols;
    for (int t = get_local_id(0) * bc + get_local_id(1); t < cells; t += br * bc) {
        int gr = r0 - 1 + t / tcols;
        int gc = c0 - 1 + t % tcols;
        for (int ch = 0; ch < 3; ch++) {
            tile[t * 3 + ch] = (gr < rows && gc < cols)
                ? tgt[(gr * cols + gc) * 3 + ch]
                : 0.0f;
        }
    }
    barrier(CLK_LOCAL_MEM_FENCE);
    int r = get_global_id(0) + 1;
    int c = get_global_id(1) + 1;
    if (r >= rows - 1 || c >= cols - 1) {
        return;
    }
    int idx = r * cols + c;
    if (!mask[idx]) {
        return;
    }
    int lidx = (get_local_id(0) + 1) * tcols + get_local_id(1) + 1;
    for (int ch = 0; ch < 3; ch++) {
        tgt_next[idx * 3 + ch] = (grad[idx * 3 + ch] +
            tile[(lidx - tcols) * 3 + ch] + tile[(lidx + tcols) * 3 + ch] +
            tile[(lidx - 1) * 3 + ch] + tile[(lidx + 1) * 3 + ch]) * 0.25f;
    }
}`

// GridSolver is the rectangular-domain counterpart of EquSolver: the
// whole cropped tile lives on the device, masked interior cells relax in
// a 2D dispatch and everything else stays fixed.
type GridSolver struct {
	device  *cl.Device
	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel

	maskBuf *cl.MemObject
	gradBuf *cl.MemObject
	tgtBuf  [2]*cl.MemObject
	cur     int

	blockRows int
	blockCols int

	sys *models.GridSystem
	out []uint8
}

// NewGridSolver selects a device and compiles the grid iteration kernel.
// blockRows by blockCols is the 2D work-group shape; values below 1 fall
// back to the defaults.
func NewGridSolver(blockRows, blockCols int) (*GridSolver, error) {
	if blockRows < 1 {
		blockRows = defaultBlockRows
	}
	if blockCols < 1 {
		blockCols = defaultBlockCols
	}
	device, err := FindDevice()
	if err != nil {
		return nil, err
	}
	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		context.Release()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	program, err := context.CreateProgramWithSource([]string{gridKernelSource})
	if err != nil {
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err := program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		program.Release()
		queue.Release()
		context.Release()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program: %w", err)
	}
	kernel, err := program.CreateKernel("grid_step")
	if err != nil {
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("creating OpenCL kernel: %w", err)
	}
	return &GridSolver{
		device:    device,
		context:   context,
		queue:     queue,
		program:   program,
		kernel:    kernel,
		blockRows: blockRows,
		blockCols: blockCols,
	}, nil
}

// DeviceName reports which device the kernels compile for.
func (s *GridSolver) DeviceName() string {
	return s.device.Name()
}

// Reset installs a new grid system.
func (s *GridSolver) Reset(sys *models.GridSystem) {
	s.releaseBuffers()
	s.sys = sys
	s.out = nil
}

// Sync allocates device buffers and uploads the mask, gradient field and
// initial target values into both ping-pong buffers.
func (s *GridSolver) Sync() error {
	if s.sys == nil {
		return fmt.Errorf("Sync called before Reset")
	}
	s.releaseBuffers()
	sys := s.sys
	var err error
	s.maskBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, len(sys.Mask))
	if err != nil {
		return fmt.Errorf("allocating mask buffer: %w", err)
	}
	s.gradBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, len(sys.Grad)*4)
	if err != nil {
		return fmt.Errorf("allocating gradient buffer: %w", err)
	}
	for i := range s.tgtBuf {
		s.tgtBuf[i], err = s.context.CreateEmptyBuffer(cl.MemReadWrite, len(sys.Tgt)*4)
		if err != nil {
			return fmt.Errorf("allocating target buffer %d: %w", i, err)
		}
	}
	if _, err := s.queue.EnqueueWriteBuffer(s.maskBuf, false, 0, len(sys.Mask), unsafe.Pointer(&sys.Mask[0]), nil); err != nil {
		return fmt.Errorf("uploading mask: %w", err)
	}
	if _, err := s.queue.EnqueueWriteBufferFloat32(s.gradBuf, false, 0, sys.Grad, nil); err != nil {
		return fmt.Errorf("uploading gradient field: %w", err)
	}
	for i := range s.tgtBuf {
		if _, err := s.queue.EnqueueWriteBufferFloat32(s.tgtBuf[i], false, 0, sys.Tgt, nil); err != nil {
			return fmt.Errorf("uploading initial target values: %w", err)
		}
	}
	if err := s.queue.Finish(); err != nil {
		return fmt.Errorf("flushing uploads: %w", err)
	}
	s.cur = 0
	s.out = make([]uint8, sys.Rows*sys.Cols*3)
	return nil
}

// Step runs the given number of device sweeps over the interior, reads
// the tile back and returns the clamped pixels with the residual.
func (s *GridSolver) Step(iterations int) ([]uint8, [3]float64, error) {
	var res [3]float64
	if s.tgtBuf[0] == nil {
		return nil, res, fmt.Errorf("Step called before Sync")
	}
	sys := s.sys
	if sys.Rows > 2 && sys.Cols > 2 {
		local := []int{s.blockRows, s.blockCols}
		global := []int{
			roundUp(sys.Rows-2, s.blockRows),
			roundUp(sys.Cols-2, s.blockCols),
		}
		tile := cl.LocalBuffer((s.blockRows + 2) * (s.blockCols + 2) * 3 * 4)
		for k := 0; k < iterations; k++ {
			src, dst := s.tgtBuf[s.cur], s.tgtBuf[1-s.cur]
			if err := s.kernel.SetArgs(int32(sys.Rows), int32(sys.Cols), s.maskBuf, s.gradBuf, src, dst, tile); err != nil {
				return nil, res, fmt.Errorf("setting kernel arguments: %w", err)
			}
			if _, err := s.queue.EnqueueNDRangeKernel(s.kernel, nil, global, local, nil); err != nil {
				return nil, res, fmt.Errorf("enqueueing iteration kernel: %w", err)
			}
			s.cur = 1 - s.cur
		}
		if _, err := s.queue.EnqueueReadBufferFloat32(s.tgtBuf[s.cur], true, 0, sys.Tgt, nil); err != nil {
			return nil, res, fmt.Errorf("reading target buffer: %w", err)
		}
	}
	s.out = solver.ClampGrid(sys, s.out)
	return s.out, solver.GridResidual(sys), nil
}

// Close releases all device resources.
func (s *GridSolver) Close() error {
	s.releaseBuffers()
	if s.kernel != nil {
		s.kernel.Release()
		s.kernel = nil
	}
	if s.program != nil {
		s.program.Release()
		s.program = nil
	}
	if s.queue != nil {
		s.queue.Release()
		s.queue = nil
	}
	if s.context != nil {
		s.context.Release()
		s.context = nil
	}
	return nil
}

func (s *GridSolver) releaseBuffers() {
	if s.maskBuf != nil {
		s.maskBuf.Release()
		s.maskBuf = nil
	}
	if s.gradBuf != nil {
		s.gradBuf.Release()
		s.gradBuf = nil
	}
	for i := range s.tgtBuf {
		if s.tgtBuf[i] != nil {
			s.tgtBuf[i].Release()
			s.tgtBuf[i] = nil
		}
	}
}
