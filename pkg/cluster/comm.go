// Package cluster implements the distributed Jacobi backend: a static TCP
// process group with rank 0 as root, collective broadcast/gather primitives
// over zstd-compressed frames, and the partition-and-broadcast equation
// solver built on them. Rank and world size are explicit fields of the
// group, constructed once at startup, never ambient globals.
package cluster

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Environment variables carrying the process-group context to spawned
// worker processes.
const (
	EnvRank  = "FPIE_RANK"
	EnvWorld = "FPIE_WORLD"
	EnvAddr  = "FPIE_ADDR"
)

// dialRetry is how long a worker keeps retrying the root listener before
// giving up; covers the window between process spawn and root accept.
const dialRetry = 10 * time.Second

// Comm is a static process group. On rank 0, conns[j] is the connection to
// rank j (conns[0] unused); on other ranks, conns holds the single root
// connection at index 0.
type Comm struct {
	Rank, World int

	conns []net.Conn
	enc   *zstd.Encoder
	dec   *zstd.Decoder

	scratch []byte
}

// NewRootComm listens on addr and accepts the other world-1 ranks. Each
// rank identifies itself with a one-byte handshake. The listener is closed
// once the group is complete.
func NewRootComm(addr string, world int) (*Comm, error) {
	c, err := newComm(0, world)
	if err != nil {
		return nil, err
	}
	if world == 1 {
		return c, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for process group on %s: %w", addr, err)
	}
	defer ln.Close()
	for i := 1; i < world; i++ {
		conn, err := ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("accepting rank connection: %w", err)
		}
		var hello [1]byte
		if _, err := io.ReadFull(conn, hello[:]); err != nil {
			return nil, fmt.Errorf("reading rank handshake: %w", err)
		}
		rank := int(hello[0])
		if rank < 1 || rank >= world || c.conns[rank] != nil {
			return nil, fmt.Errorf("invalid rank handshake %d for world size %d", rank, world)
		}
		c.conns[rank] = conn
	}
	return c, nil
}

// NewWorkerComm dials the root at addr and registers as the given rank.
// Dialing retries briefly so workers may start before the root listens.
func NewWorkerComm(addr string, rank, world int) (*Comm, error) {
	if rank < 1 || rank >= world {
		return nil, fmt.Errorf("worker rank %d out of range for world size %d", rank, world)
	}
	c, err := newComm(rank, world)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(dialRetry)
	var conn net.Conn
	for {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("dialing root at %s: %w", addr, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
	if _, err := conn.Write([]byte{byte(rank)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending rank handshake: %w", err)
	}
	c.conns[0] = conn
	return c, nil
}

// FromEnv builds a Comm from the process-group environment set by Launch.
// It returns (nil, nil) when the environment carries no cluster context.
func FromEnv() (*Comm, error) {
	rankStr := os.Getenv(EnvRank)
	if rankStr == "" {
		return nil, nil
	}
	rank, err := strconv.Atoi(rankStr)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvRank, err)
	}
	world, err := strconv.Atoi(os.Getenv(EnvWorld))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvWorld, err)
	}
	addr := os.Getenv(EnvAddr)
	if rank == 0 {
		return NewRootComm(addr, world)
	}
	return NewWorkerComm(addr, rank, world)
}

func newComm(rank, world int) (*Comm, error) {
	if world < 1 {
		return nil, fmt.Errorf("world size %d must be at least 1", world)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Comm{
		Rank:  rank,
		World: world,
		conns: make([]net.Conn, world),
		enc:   enc,
		dec:   dec,
	}, nil
}

// Root reports whether this rank is rank 0.
func (c *Comm) Root() bool { return c.Rank == 0 }

// Close tears down the process-group connections. Any collective in flight
// on another goroutine fails afterwards; there is no partial-failure
// recovery by design.
func (c *Comm) Close() error {
	for _, conn := range c.conns {
		if conn != nil {
			conn.Close()
		}
	}
	c.enc.Close()
	c.dec.Close()
	return nil
}

// sendFrame writes one length-prefixed zstd-compressed frame.
func (c *Comm) sendFrame(conn net.Conn, payload []byte) error {
	compressed := c.enc.EncodeAll(payload, c.scratch[:0])
	c.scratch = compressed
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(compressed)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(compressed)
	return err
}

// recvFrame reads one frame and decompresses it into dst, which must have
// exactly the expected payload length.
func (c *Comm) recvFrame(conn net.Conn, dst []byte) error {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return err
	}
	n := int(binary.LittleEndian.Uint32(hdr[:]))
	if cap(c.scratch) < n {
		c.scratch = make([]byte, n)
	}
	buf := c.scratch[:n]
	if _, err := io.ReadFull(conn, buf); err != nil {
		return err
	}
	payload, err := c.dec.DecodeAll(buf, dst[:0])
	if err != nil {
		return fmt.Errorf("decompressing frame: %w", err)
	}
	if len(payload) != len(dst) {
		return fmt.Errorf("frame payload is %d bytes, expected %d", len(payload), len(dst))
	}
	return nil
}

// bcastBytes sends raw bytes from root to every rank, or receives them into
// buf on non-root ranks.
func (c *Comm) bcastBytes(buf []byte) error {
	if c.World == 1 {
		return nil
	}
	if c.Root() {
		for j := 1; j < c.World; j++ {
			if err := c.sendFrame(c.conns[j], buf); err != nil {
				return fmt.Errorf("broadcasting to rank %d: %w", j, err)
			}
		}
		return nil
	}
	if err := c.recvFrame(c.conns[0], buf); err != nil {
		return fmt.Errorf("receiving broadcast on rank %d: %w", c.Rank, err)
	}
	return nil
}

// BcastInt broadcasts a single integer from root and returns the value
// every rank agrees on.
func (c *Comm) BcastInt(v int) (int, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
	if err := c.bcastBytes(buf[:]); err != nil {
		return 0, err
	}
	return int(int64(binary.LittleEndian.Uint64(buf[:]))), nil
}

// BcastInt32s broadcasts an int32 slice from root into the same-sized
// slice on every rank.
func (c *Comm) BcastInt32s(vals []int32) error {
	buf := make([]byte, len(vals)*4)
	if c.Root() {
		for i, v := range vals {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		}
	}
	if err := c.bcastBytes(buf); err != nil {
		return err
	}
	if !c.Root() {
		for i := range vals {
			vals[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	}
	return nil
}

// BcastFloat32s broadcasts a float32 slice from root into the same-sized
// slice on every rank.
func (c *Comm) BcastFloat32s(vals []float32) error {
	buf := make([]byte, len(vals)*4)
	if c.Root() {
		for i, v := range vals {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
	}
	if err := c.bcastBytes(buf); err != nil {
		return err
	}
	if !c.Root() {
		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	}
	return nil
}

// BcastFloat64s broadcasts a float64 slice from root; used for the
// residual vector.
func (c *Comm) BcastFloat64s(vals []float64) error {
	buf := make([]byte, len(vals)*8)
	if c.Root() {
		for i, v := range vals {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
	}
	if err := c.bcastBytes(buf); err != nil {
		return err
	}
	if !c.Root() {
		for i := range vals {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		}
	}
	return nil
}

// GatherFloat32s collects each rank's segment of x into root's copy. The
// fenceposts slice splits x the way Offsets does, scaled by stride values
// per equation; rank j owns x[fence[j]*stride : fence[j+1]*stride]. On
// root the foreign segments are written in place; other ranks send their
// own segment and leave x untouched.
func (c *Comm) GatherFloat32s(x []float32, fence []int, stride int) error {
	if c.World == 1 {
		return nil
	}
	if c.Root() {
		for j := 1; j < c.World; j++ {
			seg := x[fence[j]*stride : fence[j+1]*stride]
			buf := make([]byte, len(seg)*4)
			if err := c.recvFrame(c.conns[j], buf); err != nil {
				return fmt.Errorf("gathering from rank %d: %w", j, err)
			}
			for i := range seg {
				seg[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
			}
		}
		return nil
	}
	seg := x[fence[c.Rank]*stride : fence[c.Rank+1]*stride]
	buf := make([]byte, len(seg)*4)
	for i, v := range seg {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	if err := c.sendFrame(c.conns[0], buf); err != nil {
		return fmt.Errorf("sending segment from rank %d: %w", c.Rank, err)
	}
	return nil
}

// Offsets computes the static partition fenceposts over equations [1, n]:
// rank j owns [fence[j], fence[j+1]), with sizes floor(n/world)+1 for the
// first n mod world ranks and floor(n/world) for the rest.
func Offsets(n, world int) []int {
	fence := make([]int, world+1)
	fence[0] = 1
	extra := n % world
	for j := 0; j < world; j++ {
		size := n / world
		if j < extra {
			size++
		}
		fence[j+1] = fence[j] + size
	}
	return fence
}
