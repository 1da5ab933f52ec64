package raysort

import "github.com/gogpu/raysort/internal/parallel"

// SorterOption configures a Sorter during creation.
//
// Example:
//
//	// Default configuration
//	s, err := raysort.NewSorter()
//
//	// Debug keys, 8 workers, CPU only
//	cfg := raysort.DefaultKernelConfig()
//	cfg.Debug = true
//	s, err := raysort.NewSorter(
//	    raysort.WithKernelConfig(cfg),
//	    raysort.WithWorkers(8),
//	    raysort.WithCPUOnly(),
//	)
type SorterOption func(*sorterOptions)

// sorterOptions holds optional configuration for Sorter creation.
type sorterOptions struct {
	config  KernelConfig
	workers int
	cpuOnly bool
	pool    *parallel.WorkerPool
}

// defaultSorterOptions returns the default sorter options.
func defaultSorterOptions() sorterOptions {
	return sorterOptions{
		config:  DefaultKernelConfig(),
		workers: 0, // GOMAXPROCS
	}
}

// WithKernelConfig sets the kernel configuration. NewSorter validates it.
func WithKernelConfig(cfg KernelConfig) SorterOption {
	return func(o *sorterOptions) {
		o.config = cfg
	}
}

// WithWorkers sets the number of workers that run tile workgroups.
// Zero or negative selects GOMAXPROCS.
func WithWorkers(n int) SorterOption {
	return func(o *sorterOptions) {
		o.workers = n
	}
}

// WithCPUOnly disables the registered accelerator for this sorter.
func WithCPUOnly() SorterOption {
	return func(o *sorterOptions) {
		o.cpuOnly = true
	}
}

// WorkerPool is a work-stealing pool that runs tile workgroups. Several
// sorters may share one pool.
type WorkerPool = parallel.WorkerPool

// NewWorkerPool creates a pool with n workers. Zero or negative selects
// GOMAXPROCS. Close it when no sorter uses it any more.
func NewWorkerPool(n int) *WorkerPool {
	return parallel.NewWorkerPool(n)
}

// WithWorkerPool shares an existing worker pool. The sorter does not close
// a shared pool.
func WithWorkerPool(p *WorkerPool) SorterOption {
	return func(o *sorterOptions) {
		o.pool = p
	}
}
