//go:build !nogpu

// Package gpu registers the compute-shader ray sort accelerator.
//
// Import this package to run the sort kernel on the GPU through wgpu/hal.
// The device is created lazily on the first sort, or shared with the host
// application through SetDeviceProvider.
//
// If the GPU cannot sort a frame (no Vulkan device, a kernel the driver
// rejects, a configuration that does not fit the device), the sorter falls
// back to the CPU reference.
//
// Usage:
//
//	import _ "github.com/gogpu/raysort/gpu" // enable GPU sorting
package gpu

import (
	"github.com/gogpu/raysort"
	gpuimpl "github.com/gogpu/raysort/internal/gpu"
)

func init() {
	accel := &gpuimpl.SortAccelerator{}
	if err := raysort.RegisterAccelerator(accel); err != nil {
		raysort.Logger().Warn("GPU accelerator not available", "err", err)
	}
}

// SetDeviceProvider configures the GPU accelerator to use a shared GPU
// device from an external provider (e.g., gogpu) instead of creating its
// own Vulkan device.
//
// The provider should be a gpucontext.DeviceProvider that also implements
// gpucontext.HalProvider for direct HAL access.
func SetDeviceProvider(provider any) error {
	return raysort.SetAcceleratorDeviceProvider(provider)
}
