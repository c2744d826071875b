package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/blend"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/cluster"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/config"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/opencl"
	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/pkg/solver"
)

func main() {
	// Parse command line arguments
	sourcePath := flag.String("source", "", "Source image to clone from")
	maskPath := flag.String("mask", "", "Mask image selecting the blended region")
	targetPath := flag.String("target", "", "Target image to clone into")
	outputPath := flag.String("output", "result.png", "Output image filename")
	configPath := flag.String("config", "fpie.yaml", "Configuration file (YAML)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration file and exit")

	backend := flag.String("backend", "", "Solver backend: sequential, parallel, opencl or cluster")
	method := flag.String("method", "", "Domain formulation: equ or grid")
	gradient := flag.String("gradient", "", "Gradient mixing policy: max, src or avg")
	iterations := flag.Int("n", 0, "Total number of Jacobi sweeps")
	report := flag.Int("report", 0, "Sweeps between residual reports")
	workers := flag.Int("workers", 0, "Worker goroutines for the parallel backend")
	blockSize := flag.Int("block-size", 0, "OpenCL work-group size for the equ backend")
	worldSize := flag.Int("world", 0, "Total rank count for the cluster backend")
	clusterAddr := flag.String("addr", "", "Root listen address for the cluster backend")
	minInterval := flag.Int("min-interval", 0, "Local sweeps between cluster state exchanges")

	resizeRows := flag.Int("resize-rows", 0, "Resize source and mask to this many rows on load (0 keeps native size)")
	resizeCols := flag.Int("resize-cols", 0, "Resize source and mask to this many columns on load (0 keeps native size)")

	srcRow := flag.Int("src-row", 0, "Row offset of the mask inside the source")
	srcCol := flag.Int("src-col", 0, "Column offset of the mask inside the source")
	tgtRow := flag.Int("tgt-row", 0, "Row offset of the mask inside the target")
	tgtCol := flag.Int("tgt-col", 0, "Column offset of the mask inside the target")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Explicit flags override the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Solver.Backend = *backend
		case "method":
			cfg.Solver.Method = *method
		case "gradient":
			cfg.Solver.Gradient = *gradient
		case "n":
			cfg.Solver.Iterations = *iterations
		case "report":
			cfg.Solver.ReportInterval = *report
		case "workers":
			cfg.Solver.NumWorkers = *workers
		case "block-size":
			cfg.Solver.BlockSize = *blockSize
		case "world":
			cfg.Cluster.WorldSize = *worldSize
		case "addr":
			cfg.Cluster.Addr = *clusterAddr
		case "min-interval":
			cfg.Cluster.MinInterval = *minInterval
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	policy, err := models.ParsePolicy(cfg.Solver.Gradient)
	if err != nil {
		log.Fatalf("Invalid gradient policy: %v", err)
	}

	// A cluster worker re-enters main with the process-group environment
	// set; it never touches images and only serves collectives.
	if comm, err := cluster.FromEnv(); err != nil {
		log.Fatalf("Failed to join process group: %v", err)
	} else if comm != nil {
		if err := runWorker(comm, cfg); err != nil {
			log.Fatalf("Worker rank %d failed: %v", comm.Rank, err)
		}
		return
	}

	if *sourcePath == "" || *maskPath == "" || *targetPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	params := &blend.Params{
		SourcePath: *sourcePath,
		MaskPath:   *maskPath,
		TargetPath: *targetPath,
		OutputPath: *outputPath,
		ResizeRows: *resizeRows,
		ResizeCols: *resizeCols,
		Placement: models.Placement{
			SrcRow: *srcRow, SrcCol: *srcCol,
			TgtRow: *tgtRow, TgtCol: *tgtCol,
		},
		Gradient:       policy,
		Iterations:     cfg.Solver.Iterations,
		ReportInterval: cfg.Solver.ReportInterval,
		SaveProgress:   cfg.Output.SaveProgress,
		ProgressDir:    cfg.Output.ProgressDir,
		Verbose:        cfg.Output.Verbose,
	}

	fmt.Println("================================")
	fmt.Println("POISSON IMAGE EDITING - SEAMLESS CLONING")
	fmt.Printf("backend=%s method=%s gradient=%s sweeps=%d\n",
		cfg.Solver.Backend, cfg.Solver.Method, cfg.Solver.Gradient, cfg.Solver.Iterations)
	fmt.Println("================================")

	processor, cleanup, err := buildProcessor(params, cfg)
	if err != nil {
		log.Fatalf("Failed to build solver: %v", err)
	}

	startTime := time.Now()
	if err := processor.Process(); err != nil {
		cleanup()
		log.Fatalf("Blending failed: %v", err)
	}
	cleanup()
	processingTime := time.Since(startTime)

	metrics := processor.Metrics()
	fmt.Printf("\nBlending completed in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output saved to: %s\n\n", *outputPath)
	fmt.Printf("Run summary:\n")
	fmt.Printf("============\n")
	fmt.Printf("Equations solved: %d\n", metrics.Equations)
	fmt.Printf("Total sweeps: %d\n", metrics.Sweeps)
	fmt.Printf("Final residual: [%.3f %.3f %.3f]\n",
		metrics.Residual[0], metrics.Residual[1], metrics.Residual[2])
	fmt.Printf("Per-batch time: %.4fs mean, %.4fs stddev\n",
		metrics.MeanBatchSeconds, metrics.StddevBatchSeconds)
}

// buildProcessor wires the configured backend into a pipeline. The
// returned cleanup releases solver resources and, for the cluster
// backend, waits for the worker processes.
func buildProcessor(params *blend.Params, cfg *config.Config) (*blend.Processor, func(), error) {
	noop := func() {}
	if cfg.Solver.Method == "grid" {
		var s solver.GridSolver
		switch cfg.Solver.Backend {
		case "sequential":
			s = solver.NewGridSequential()
		case "parallel":
			s = solver.NewGridParallel(cfg.Solver.TileRows, cfg.Solver.TileCols, cfg.Solver.NumWorkers)
		case "opencl":
			gpu, err := opencl.NewGridSolver(cfg.Solver.TileRows, cfg.Solver.TileCols)
			if err != nil {
				return nil, noop, err
			}
			fmt.Printf("OpenCL device: %s\n", gpu.DeviceName())
			s = gpu
		}
		return blend.NewGridProcessor(params, s), func() { s.Close() }, nil
	}

	var s solver.Solver
	switch cfg.Solver.Backend {
	case "sequential":
		s = solver.NewSequential()
	case "parallel":
		s = solver.NewParallel(cfg.Solver.NumWorkers)
	case "opencl":
		gpu, err := opencl.NewEquSolver(cfg.Solver.BlockSize)
		if err != nil {
			return nil, noop, err
		}
		fmt.Printf("OpenCL device: %s\n", gpu.DeviceName())
		s = gpu
	case "cluster":
		comm, workers, err := cluster.Launch(cfg.Cluster.Addr, cfg.Cluster.WorldSize)
		if err != nil {
			return nil, noop, err
		}
		fmt.Printf("Process group ready: %d ranks on %s\n", comm.World, cfg.Cluster.Addr)
		ds := cluster.NewEquSolver(comm, cfg.Cluster.MinInterval)
		cleanup := func() {
			ds.Close()
			for _, w := range workers {
				w.Wait()
			}
		}
		return blend.NewEquProcessor(params, ds), cleanup, nil
	}
	return blend.NewEquProcessor(params, s), func() { s.Close() }, nil
}

// runWorker mirrors the root's batching loop so every collective lines
// up: one Sync, then Step batches of the report interval until the sweep
// budget is spent.
func runWorker(comm *cluster.Comm, cfg *config.Config) error {
	s := cluster.NewEquSolver(comm, cfg.Cluster.MinInterval)
	defer s.Close()
	s.Reset(nil)
	if err := s.Sync(); err != nil {
		return err
	}
	for done := 0; done < cfg.Solver.Iterations; {
		batch := cfg.Solver.ReportInterval
		if rem := cfg.Solver.Iterations - done; rem < batch {
			batch = rem
		}
		if _, _, err := s.Step(batch); err != nil {
			return err
		}
		done += batch
	}
	return nil
}
