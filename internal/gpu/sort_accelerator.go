// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/raysort"
	"github.com/gogpu/raysort/internal/cache"
	"github.com/gogpu/raysort/internal/groupshared"
	"github.com/gogpu/raysort/internal/parallel"
	"github.com/gogpu/raysort/internal/sortkernel"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

const (
	// acceleratorName identifies the compute accelerator in sort statistics.
	acceleratorName = "raysort-compute"

	// maxPipelines bounds the number of kernel configurations kept compiled.
	maxPipelines = 8
)

// SortAccelerator runs the ray sort kernel as a WGSL compute shader. It
// implements raysort.GPUAccelerator and raysort.DeviceProviderAware.
//
// The kernel constants are baked into the shader, so the accelerator keeps
// one SortDispatcher per kernel configuration, closing the least recently
// used one beyond maxPipelines.
type SortAccelerator struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	limits   gputypes.Limits
	features gputypes.Features

	dispatchers *cache.Cache[sortkernel.Config, *SortDispatcher]
	rejected    map[sortkernel.Config]error // pipeline creation failed on this device

	gpuReady       bool
	initErr        error // standalone device creation failed; not retried
	externalDevice bool  // true when using shared device (don't destroy on Close)
}

// Interface compliance checks.
var _ raysort.GPUAccelerator = (*SortAccelerator)(nil)
var _ raysort.DeviceProviderAware = (*SortAccelerator)(nil)

// Name returns the accelerator identifier.
func (a *SortAccelerator) Name() string { return acceleratorName }

// Init registers the accelerator. Device creation is deferred until the
// first sort or until SetDeviceProvider is called, so that a host
// application can hand over its own device before a standalone Vulkan
// device is ever created.
func (a *SortAccelerator) Init() error {
	return nil
}

// Close releases all GPU resources held by the accelerator.
func (a *SortAccelerator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closeDispatchers()
	if !a.externalDevice {
		if a.device != nil {
			a.device.Destroy()
		}
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.device = nil
	a.instance = nil
	a.queue = nil
	a.gpuReady = false
	a.initErr = nil
	a.externalDevice = false
}

// closeDispatchers releases every cached pipeline. Caller holds a.mu.
func (a *SortAccelerator) closeDispatchers() {
	if a.dispatchers != nil {
		a.dispatchers.Clear()
	}
	clear(a.rejected)
}

// SetLogger sets the logger for the accelerator and the dispatchers.
// Called by raysort.SetLogger to propagate logging configuration.
func (a *SortAccelerator) SetLogger(l *slog.Logger) {
	setLogger(l)
}

// CanSort reports whether the kernel fits the device: the device must
// offer subgroups and the full workgroup scratch, the lane count must fit
// one workgroup, and the scratch layout must hold the smallest subgroup
// size the shader supports. Before the device exists it checks against
// what the standalone device will be opened with.
func (a *SortAccelerator) CanSort(cfg raysort.KernelConfig) bool {
	a.mu.Lock()
	features, limits := a.features, a.limits
	ready := a.gpuReady
	a.mu.Unlock()
	if !ready {
		features, limits = kernelRequirements()
	}

	if checkDevice(features, limits) != nil {
		return false
	}
	if cfg.Lanes > int(limits.MaxComputeWorkgroupSizeX) ||
		cfg.Lanes > int(limits.MaxComputeInvocationsPerWorkgroup) {
		return false
	}
	_, err := kernelLayout(cfg)
	return err == nil
}

// kernelRequirements returns the features and limits the kernel needs: the
// subgroup operations and a workgroup storage that holds the scratch.
func kernelRequirements() (gputypes.Features, gputypes.Limits) {
	var features gputypes.Features
	features.Insert(gputypes.FeatureSubgroupOperations)
	limits := gputypes.DefaultLimits()
	limits.MaxComputeWorkgroupStorageSize = max(limits.MaxComputeWorkgroupStorageSize, groupshared.SizeBytes)
	return features, limits
}

// checkDevice reports why a device with the given features and limits
// cannot run the kernel.
func checkDevice(features gputypes.Features, limits gputypes.Limits) error {
	if !features.Contains(gputypes.FeatureSubgroupOperations) {
		return fmt.Errorf("subgroup operations not supported")
	}
	if limits.MaxComputeWorkgroupStorageSize < groupshared.SizeBytes {
		return fmt.Errorf("workgroup storage %d bytes, need %d",
			limits.MaxComputeWorkgroupStorageSize, groupshared.SizeBytes)
	}
	return nil
}

// selectAdapter picks the first adapter able to run the kernel, preferring
// discrete and integrated GPUs.
func selectAdapter(adapters []hal.ExposedAdapter) (*hal.ExposedAdapter, error) {
	var selected *hal.ExposedAdapter
	var lastErr error
	for i := range adapters {
		if err := checkDevice(adapters[i].Features, adapters[i].Capabilities.Limits); err != nil {
			lastErr = fmt.Errorf("%s: %w", adapters[i].Info.Name, err)
			continue
		}
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i], nil
		}
		if selected == nil {
			selected = &adapters[i]
		}
	}
	if selected == nil {
		if lastErr == nil {
			return nil, fmt.Errorf("no GPU adapters found")
		}
		return nil, fmt.Errorf("no suitable GPU adapter: %w", lastErr)
	}
	return selected, nil
}

// SetDeviceProvider switches the accelerator to a shared GPU device from
// an external provider. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
func (a *SortAccelerator) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("%s: provider does not expose HAL types", acceleratorName)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("%s: provider HalDevice is not hal.Device", acceleratorName)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("%s: provider HalQueue is not hal.Queue", acceleratorName)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Pipelines belong to the old device.
	a.closeDispatchers()
	if !a.externalDevice && a.device != nil {
		a.device.Destroy()
	}
	if a.instance != nil {
		a.instance.Destroy()
		a.instance = nil
	}

	// The host device cannot be queried; assume it was opened with the
	// kernel requirements. A driver that disagrees rejects the pipeline.
	a.device = device
	a.queue = queue
	a.features, a.limits = kernelRequirements()
	a.externalDevice = true
	a.gpuReady = true
	a.initErr = nil

	slogger().Debug("raysort-compute: switched to shared GPU device")
	return nil
}

// Sort dispatches the kernel and copies the active rectangle of the
// read-back maps into out. Any failure is wrapped in
// raysort.ErrFallbackToCPU.
func (a *SortAccelerator) Sort(ctx context.Context, cfg raysort.KernelConfig, rays *raysort.RayBuffer, params raysort.DispatchParams, out *raysort.SortOutput) ([]raysort.TileStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.dispatcherFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", raysort.ErrFallbackToCPU, err)
	}
	if size := uint64(len(rays.Texels)) * 4; size > a.limits.MaxBufferSize {
		return nil, fmt.Errorf("%w: %d byte ray buffer exceeds device limit", raysort.ErrFallbackToCPU, size)
	}

	res, err := d.Dispatch(SortRequest{
		Width:  rays.Width,
		Height: rays.Height,
		Params: params,
		Rays:   rays.Texels,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", raysort.ErrFallbackToCPU, err)
	}
	if len(res.Tiles) == 0 {
		return nil, nil
	}

	copyActive(out.SortedToSource, res.SortedToSource, params)
	if cfg.Inverse {
		copyActive(out.SourceToSorted, res.SourceToSorted, params)
	}
	if cfg.Debug {
		copyActive(out.Debug, res.Debug, params)
	}
	return tileStats(cfg, params, res), nil
}

// dispatcherFor returns the cached dispatcher for cfg, creating the device
// and the pipeline as needed. Caller holds a.mu.
func (a *SortAccelerator) dispatcherFor(cfg sortkernel.Config) (*SortDispatcher, error) {
	if !a.gpuReady {
		if a.initErr != nil {
			return nil, a.initErr
		}
		if err := a.initGPU(); err != nil {
			a.initErr = err
			slogger().Warn("raysort-compute: GPU unavailable, sorting on CPU", "error", err)
			return nil, err
		}
	}

	if err, ok := a.rejected[cfg]; ok {
		return nil, err
	}
	if a.dispatchers == nil {
		a.dispatchers = cache.New(maxPipelines, func(_ sortkernel.Config, d *SortDispatcher) {
			d.Close()
		})
	}
	d, err := a.dispatchers.GetOrCreate(cfg, func() (*SortDispatcher, error) {
		d := NewSortDispatcher(a.device, a.queue, cfg)
		if err := d.Init(); err != nil {
			return nil, err
		}
		return d, nil
	})
	if err != nil {
		if a.rejected == nil {
			a.rejected = make(map[sortkernel.Config]error)
		}
		a.rejected[cfg] = err
		slogger().Warn("raysort-compute: pipeline unavailable, sorting on CPU", "error", err)
		return nil, err
	}
	return d, nil
}

// initGPU creates a standalone Vulkan device for compute-only use. This is
// the path taken when no external device is provided via SetDeviceProvider.
func (a *SortAccelerator) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}

	selected, err := selectAdapter(instance.EnumerateAdapters(nil))
	if err != nil {
		instance.Destroy()
		return err
	}

	features, limits := kernelRequirements()
	openDev, err := selected.Adapter.Open(features, limits)
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("open device: %w", err)
	}

	a.instance = instance
	a.device = openDev.Device
	a.queue = openDev.Queue
	a.features = features
	a.limits = limits
	a.gpuReady = true
	slogger().Info("raysort-compute: GPU initialized (standalone)", "adapter", selected.Info.Name)
	return nil
}

// copyActive copies the active rectangle of a read-back map into dst,
// leaving the rest of dst untouched.
func copyActive(dst *raysort.IndexBuffer, src []uint32, params raysort.DispatchParams) {
	w := dst.Width
	for y := range params.ActiveHeight {
		row := y * w
		copy(dst.Texels[row:row+params.ActiveWidth], src[row:row+params.ActiveWidth])
	}
}

// tileStats converts the kernel's statistics blocks, deriving each tile's
// in-bounds extent from its position in the grid.
func tileStats(cfg sortkernel.Config, params raysort.DispatchParams, res *SortResult) []raysort.TileStats {
	grid := parallel.NewTileGrid(params.ActiveWidth, params.ActiveHeight, cfg.TileWidth, cfg.TileHeight)
	tiles := make([]raysort.TileStats, len(res.Tiles))
	for i, t := range res.Tiles {
		n := grid.Tile(i).Rays()
		tiles[i] = raysort.TileStats{
			Rays:            n,
			Active:          t.Active,
			Disabled:        n - t.Active,
			OccupiedBuckets: t.OccupiedBuckets,
			LargestBucket:   t.LargestBucket,
			Range:           t.Range,
		}
	}
	return tiles
}
