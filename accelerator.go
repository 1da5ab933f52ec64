package raysort

import (
	"context"
	"errors"
	"sync"
)

// ErrFallbackToCPU indicates the accelerator cannot handle this sort.
// The sorter transparently falls back to the CPU reference.
var ErrFallbackToCPU = errors.New("raysort: falling back to CPU sort")

// GPUAccelerator is an optional GPU implementation of the sort kernel.
//
// When registered via RegisterAccelerator, a Sorter tries the accelerator
// first. If it returns ErrFallbackToCPU or any other error, the sorter runs
// the CPU reference instead.
//
// Implementations are provided by GPU backend packages and enabled with a
// blank import:
//
//	import _ "github.com/gogpu/raysort/gpu"
type GPUAccelerator interface {
	// Name returns the accelerator name.
	Name() string

	// Init prepares the accelerator. Called once during registration.
	Init() error

	// Close releases GPU resources.
	Close()

	// CanSort reports whether the accelerator supports cfg. This is a
	// fast check used to skip the GPU entirely.
	CanSort(cfg KernelConfig) bool

	// Sort sorts the active rectangle of rays into out and returns the
	// statistics of every tile in row-major tile order. The arguments have
	// already been validated by the sorter. Texels outside the active
	// rectangle must be left untouched.
	Sort(ctx context.Context, cfg KernelConfig, rays *RayBuffer, params DispatchParams, out *SortOutput) ([]TileStats, error)
}

// DeviceProviderAware is an optional interface for accelerators that can
// share a GPU device with the host application instead of creating one.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	accelMu sync.RWMutex
	accel   GPUAccelerator
)

// RegisterAccelerator registers a GPU accelerator.
//
// Only one accelerator can be registered; a later call replaces and closes
// the previous one. Init is called during registration, and if it fails
// the accelerator is not registered.
func RegisterAccelerator(a GPUAccelerator) error {
	if a == nil {
		return errors.New("raysort: accelerator must not be nil")
	}
	if err := a.Init(); err != nil {
		return err
	}
	propagateLogger(a, Logger())

	accelMu.Lock()
	old := accel
	accel = a
	accelMu.Unlock()
	if old != nil && old != a {
		old.Close()
	}
	return nil
}

// UnregisterAccelerator removes and closes the registered accelerator.
func UnregisterAccelerator() {
	accelMu.Lock()
	old := accel
	accel = nil
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Accelerator returns the registered accelerator, or nil if none.
func Accelerator() GPUAccelerator {
	accelMu.RLock()
	a := accel
	accelMu.RUnlock()
	return a
}

// SetAcceleratorDeviceProvider passes a device provider to the registered
// accelerator so that it shares the host's GPU device. It is a no-op when
// no accelerator is registered or the accelerator cannot share devices.
//
// The provider is usually a DeviceHandle that also implements
// HalDevice() any and HalQueue() any returning wgpu/hal types.
func SetAcceleratorDeviceProvider(provider any) error {
	a := Accelerator()
	if a == nil {
		return nil
	}
	if dpa, ok := a.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
