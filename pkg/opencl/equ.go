package opencl

import (
	"fmt"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/solver"
)

// defaultBlockSize is the work-group size used when the caller does not
// pick one.
const defaultBlockSize = 64

// One work item per equation, one work group per block of consecutive
// equation ids. The block stages its own slice of X in local memory, so
// neighbor ids falling inside the block (left/right neighbors always do,
// up/down when a mask row fits in one block) are serviced from the tile
// instead of global memory. Record 0 is the boundary sentinel: its state
// stays zero in both ping-pong buffers because no work item ever writes
// it, and its id never lands in a block's range, so sentinel reads go to
// global memory and fold no contribution in.
const equKernelSource = `__kernel void jacobi_step(
    const int n,
    __global const int* nbr,
    __global const float* rhs,
    __global const float* x,
    __global float* x_next,
    __local float* tile)
{
    int i = get_global_id(0) + 1;
    int lid = get_local_id(0);
    int lsz = get_local_size(0);
    int first = i - lid;
    if (i <= n) {
        tile[lid * 3] = x[i * 3];
        tile[lid * 3 + 1] = x[i * 3 + 1];
        tile[lid * 3 + 2] = x[i * 3 + 2];
    }
    barrier(CLK_LOCAL_MEM_FENCE);
    if (i > n) {
        return;
    }
    float acc0 = rhs[i * 3];
    float acc1 = rhs[i * 3 + 1];
    float acc2 = rhs[i * 3 + 2];
    for (int d = 0; d < 4; d++) {
        int a = nbr[i * 4 + d];
        int off = a - first;
        if (off >= 0 && off < lsz) {
            acc0 += tile[off * 3];
            acc1 += tile[off * 3 + 1];
            acc2 += tile[off * 3 + 2];
        } else {
            acc0 += x[a * 3];
            acc1 += x[a * 3 + 1];
            acc2 += x[a * 3 + 2];
        }
    }
    x_next[i * 3] = acc0 * 0.25f;
    x_next[i * 3 + 1] = acc1 * 0.25f;
    x_next[i * 3 + 2] = acc2 * 0.25f;
}`

// EquSolver runs Jacobi relaxation for the flattened equation system on an
// OpenCL device. Unlike the CPU backends it is a pure Jacobi iteration:
// every sweep reads one buffer and writes the other, so no work item ever
// observes a half-updated grid state.
type EquSolver struct {
	device  *cl.Device
	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel

	nbrBuf *cl.MemObject
	rhsBuf *cl.MemObject
	xBuf   [2]*cl.MemObject
	cur    int

	blockSize int

	sys *models.EquationSystem
	out []uint8
}

// NewEquSolver selects a device and compiles the iteration kernel.
// blockSize is the work-group size and local tile length; values below 1
// fall back to the default. Buffer allocation is deferred to Sync, which
// knows the system size.
func NewEquSolver(blockSize int) (*EquSolver, error) {
	if blockSize < 1 {
		blockSize = defaultBlockSize
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
	program, err := context.CreateProgramWithSource([]string{equKernelSource})
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
	kernel, err := program.CreateKernel("jacobi_step")
	if err != nil {
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("creating OpenCL kernel: %w", err)
	}
	return &EquSolver{
		device:    device,
		context:   context,
		queue:     queue,
		program:   program,
		kernel:    kernel,
		blockSize: blockSize,
	}, nil
}

// DeviceName reports which device the kernels compile for.
func (s *EquSolver) DeviceName() string {
	return s.device.Name()
}

// Reset installs a new equation system. Device buffers from a previous
// system are released; Sync reallocates for the new size.
func (s *EquSolver) Reset(sys *models.EquationSystem) {
	s.releaseBuffers()
	s.sys = sys
	s.out = nil
}

// Sync allocates device buffers for the current system and uploads the
// neighbor table, right-hand side and initial state. Both ping-pong
// state buffers receive the initial X so the sentinel record is zero in
// each.
func (s *EquSolver) Sync() error {
	if s.sys == nil {
		return fmt.Errorf("Sync called before Reset")
	}
	s.releaseBuffers()
	sys := s.sys
	var err error
	s.nbrBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, len(sys.A)*4)
	if err != nil {
		return fmt.Errorf("allocating neighbor buffer: %w", err)
	}
	s.rhsBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, len(sys.B)*4)
	if err != nil {
		return fmt.Errorf("allocating right-hand-side buffer: %w", err)
	}
	for i := range s.xBuf {
		s.xBuf[i], err = s.context.CreateEmptyBuffer(cl.MemReadWrite, len(sys.X)*4)
		if err != nil {
			return fmt.Errorf("allocating state buffer %d: %w", i, err)
		}
	}
	byteLen := len(sys.A) * 4
	if _, err := s.queue.EnqueueWriteBuffer(s.nbrBuf, false, 0, byteLen, unsafe.Pointer(&sys.A[0]), nil); err != nil {
		return fmt.Errorf("uploading neighbor table: %w", err)
	}
	if _, err := s.queue.EnqueueWriteBufferFloat32(s.rhsBuf, false, 0, sys.B, nil); err != nil {
		return fmt.Errorf("uploading right-hand side: %w", err)
	}
	for i := range s.xBuf {
		if _, err := s.queue.EnqueueWriteBufferFloat32(s.xBuf[i], false, 0, sys.X, nil); err != nil {
			return fmt.Errorf("uploading initial state: %w", err)
		}
	}
	if err := s.queue.Finish(); err != nil {
		return fmt.Errorf("flushing uploads: %w", err)
	}
	s.cur = 0
	s.out = make([]uint8, (sys.N+1)*3)
	return nil
}

// Step runs the given number of device sweeps, reads the state back and
// returns the clamped pixels with the per-channel residual.
func (s *EquSolver) Step(iterations int) ([]uint8, [3]float64, error) {
	var res [3]float64
	if s.xBuf[0] == nil {
		return nil, res, fmt.Errorf("Step called before Sync")
	}
	sys := s.sys
	if sys.N > 0 {
		local := []int{s.blockSize}
		global := []int{roundUp(sys.N, s.blockSize)}
		tile := cl.LocalBuffer(s.blockSize * 3 * 4)
		for k := 0; k < iterations; k++ {
			src, dst := s.xBuf[s.cur], s.xBuf[1-s.cur]
			if err := s.kernel.SetArgs(int32(sys.N), s.nbrBuf, s.rhsBuf, src, dst, tile); err != nil {
				return nil, res, fmt.Errorf("setting kernel arguments: %w", err)
			}
			if _, err := s.queue.EnqueueNDRangeKernel(s.kernel, nil, global, local, nil); err != nil {
				return nil, res, fmt.Errorf("enqueueing iteration kernel: %w", err)
			}
			s.cur = 1 - s.cur
		}
		if _, err := s.queue.EnqueueReadBufferFloat32(s.xBuf[s.cur], true, 0, sys.X, nil); err != nil {
			return nil, res, fmt.Errorf("reading state buffer: %w", err)
		}
	}
	s.out = solver.ClampPixels(sys, s.out)
	return s.out, solver.Residual(sys), nil
}

// Close releases all device resources.
func (s *EquSolver) Close() error {
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

func (s *EquSolver) releaseBuffers() {
	if s.nbrBuf != nil {
		s.nbrBuf.Release()
		s.nbrBuf = nil
	}
	if s.rhsBuf != nil {
		s.rhsBuf.Release()
		s.rhsBuf = nil
	}
	for i := range s.xBuf {
		if s.xBuf[i] != nil {
			s.xBuf[i].Release()
			s.xBuf[i] = nil
		}
	}
}
