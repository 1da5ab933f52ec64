// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// sort_dispatcher.go drives the WGSL ray sort kernel: pipeline creation,
// buffer allocation, one dispatch per frame with one workgroup per tile, and
// readback of the index maps and per-tile statistics.

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/raysort/internal/parallel"
	"github.com/gogpu/raysort/internal/sortkernel"
)

const (
	// sortTimeout is the maximum time to wait for a sort to complete.
	sortTimeout = 5 * time.Second

	// sortPollInterval is the sleep between submission completion polls.
	sortPollInterval = 100 * time.Microsecond

	// sortParamsSize is the byte size of the Params uniform: 8 u32 fields.
	sortParamsSize = 8 * 4

	// tileStatsWords is the number of u32 words the kernel writes per tile:
	// active count, occupied buckets, largest bucket, packed depth range.
	tileStatsWords = 4
)

// Dispatcher errors.
var (
	// ErrNotInitialized is returned by Dispatch before a successful Init.
	ErrNotInitialized = errors.New("gpu: sort dispatcher not initialized")

	// ErrInvalidRequest is returned for mismatched buffers or an active
	// rectangle outside the buffer.
	ErrInvalidRequest = errors.New("gpu: invalid sort request")
)

// SortParams mirrors the Params uniform of the kernel.
type SortParams struct {
	ActiveWidth  uint32
	ActiveHeight uint32
	BufferWidth  uint32
	TilesX       uint32
	Encoding     uint32
	MinBinSize   float32
}

// toBytes serializes SortParams in little-endian order, padded to 32 bytes.
func (p SortParams) toBytes() []byte {
	buf := make([]byte, sortParamsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.ActiveWidth)
	le.PutUint32(buf[4:8], p.ActiveHeight)
	le.PutUint32(buf[8:12], p.BufferWidth)
	le.PutUint32(buf[12:16], p.TilesX)
	le.PutUint32(buf[16:20], p.Encoding)
	le.PutUint32(buf[20:24], math.Float32bits(p.MinBinSize))
	return buf
}

// SortRequest is one frame of rays to sort.
type SortRequest struct {
	// Width and Height are the ray buffer dimensions.
	Width  int
	Height int

	Params sortkernel.Params
	Rays   []uint32
}

// TileResult is the statistics block the kernel writes for one tile.
type TileResult struct {
	Active          int
	OccupiedBuckets int
	LargestBucket   int
	Range           sortkernel.DepthRange
}

// SortResult holds the read-back outputs of one dispatch. Texels outside
// the active rectangle are unspecified. SourceToSorted and Debug are nil
// when the kernel was built without them.
type SortResult struct {
	SortedToSource []uint32
	SourceToSorted []uint32
	Debug          []uint32

	TilesX, TilesY int
	Tiles          []TileResult
}

// sortBuffers are the per-dispatch GPU buffers.
type sortBuffers struct {
	params  hal.Buffer
	rays    hal.Buffer
	sorted  hal.Buffer
	inverse hal.Buffer
	debug   hal.Buffer
	stats   hal.Buffer
	staging hal.Buffer
}

// SortDispatcher owns the compute pipeline of one kernel configuration.
// The kernel constants are baked into the shader, so each configuration
// needs its own dispatcher.
type SortDispatcher struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue

	cfg    sortkernel.Config
	layout sortkernel.Layout

	module         hal.ShaderModule
	bgLayout       hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	pipeline       hal.ComputePipeline

	initialized bool
}

// NewSortDispatcher creates a dispatcher for cfg on the given device and
// queue. Init must be called before Dispatch.
func NewSortDispatcher(device hal.Device, queue hal.Queue, cfg sortkernel.Config) *SortDispatcher {
	return &SortDispatcher{device: device, queue: queue, cfg: cfg}
}

// Config returns the kernel configuration.
func (d *SortDispatcher) Config() sortkernel.Config { return d.cfg }

// sortBindGroupLayoutEntries matches the @group(0) bindings of raysort.wgsl.
func sortBindGroupLayoutEntries() []gputypes.BindGroupLayoutEntry {
	entry := func(binding uint32, typ gputypes.BufferBindingType) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		}
	}
	return []gputypes.BindGroupLayoutEntry{
		entry(0, gputypes.BufferBindingTypeUniform),         // params
		entry(1, gputypes.BufferBindingTypeReadOnlyStorage), // rays
		entry(2, gputypes.BufferBindingTypeStorage),         // sorted_to_source
		entry(3, gputypes.BufferBindingTypeStorage),         // source_to_sorted
		entry(4, gputypes.BufferBindingTypeStorage),         // debug_keys
		entry(5, gputypes.BufferBindingTypeStorage),         // tile_stats
	}
}

// Init specialises and compiles the kernel and creates the compute pipeline.
// Calling Init again after success is a no-op.
func (d *SortDispatcher) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	layout, err := kernelLayout(d.cfg)
	if err != nil {
		return fmt.Errorf("raysort gpu: %w", err)
	}
	d.layout = layout

	src, err := ShaderSource(d.cfg)
	if err != nil {
		return fmt.Errorf("raysort gpu: %w", err)
	}
	spirv, err := compileShaderToSPIRV(src)
	if err != nil {
		return fmt.Errorf("raysort gpu: %w", err)
	}

	d.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "raysort",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("raysort gpu: create shader module: %w", err)
	}

	entries := sortBindGroupLayoutEntries()
	d.bgLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "raysort_bgl",
		Entries: entries,
	})
	if err != nil {
		d.destroyPipeline()
		return fmt.Errorf("raysort gpu: create bind group layout: %w", err)
	}

	d.pipelineLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "raysort_pl",
		BindGroupLayouts: []hal.BindGroupLayout{d.bgLayout},
	})
	if err != nil {
		d.destroyPipeline()
		return fmt.Errorf("raysort gpu: create pipeline layout: %w", err)
	}

	d.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "raysort",
		Layout: d.pipelineLayout,
		Compute: hal.ComputeState{
			Module:     d.module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		d.destroyPipeline()
		return fmt.Errorf("raysort gpu: create compute pipeline: %w", err)
	}

	slogger().Debug("raysort gpu: pipeline created",
		"tile", fmt.Sprintf("%dx%d", d.cfg.TileWidth, d.cfg.TileHeight),
		"lanes", d.cfg.Lanes,
		"keys", d.layout.Keys,
		"bindings", len(entries),
		"spirv_words", len(spirv))

	d.initialized = true
	return nil
}

// destroyPipeline releases whatever pipeline objects exist.
func (d *SortDispatcher) destroyPipeline() {
	if d.pipeline != nil {
		d.device.DestroyComputePipeline(d.pipeline)
		d.pipeline = nil
	}
	if d.pipelineLayout != nil {
		d.device.DestroyPipelineLayout(d.pipelineLayout)
		d.pipelineLayout = nil
	}
	if d.bgLayout != nil {
		d.device.DestroyBindGroupLayout(d.bgLayout)
		d.bgLayout = nil
	}
	if d.module != nil {
		d.device.DestroyShaderModule(d.module)
		d.module = nil
	}
}

// Close releases the pipeline. The dispatcher must be re-initialized
// before further use.
func (d *SortDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.destroyPipeline()
	d.initialized = false
}

// TileCounts returns the dispatch grid covering an active rectangle.
func (d *SortDispatcher) TileCounts(activeWidth, activeHeight int) (x, y int) {
	grid := parallel.NewTileGrid(activeWidth, activeHeight, d.cfg.TileWidth, d.cfg.TileHeight)
	return grid.TilesX(), grid.TilesY()
}

// sortBufSizes holds the byte sizes of one dispatch's buffers.
type sortBufSizes struct {
	rays    uint64
	inverse uint64
	debug   uint64
	stats   uint64
}

func (s sortBufSizes) staging() uint64 {
	return s.rays + s.inverse + s.debug + s.stats
}

func (d *SortDispatcher) bufferSizes(texels, tiles int) sortBufSizes {
	sz := sortBufSizes{
		rays:  uint64(texels) * 4,
		stats: uint64(tiles) * tileStatsWords * 4,
	}
	if d.cfg.Inverse {
		sz.inverse = sz.rays
	}
	if d.cfg.Debug {
		sz.debug = sz.rays
	}
	return sz
}

// createSortBuffer creates a buffer of at least 4 bytes.
func (d *SortDispatcher) createSortBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	const minBufSize = 4
	if size < minBufSize {
		size = minBufSize
	}
	return d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
}

func (d *SortDispatcher) allocateBuffers(sz sortBufSizes) (*sortBuffers, error) {
	storageOut := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc
	storageCPU := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	uniformCPU := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	readback := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst

	bufs := &sortBuffers{}
	specs := []struct {
		target *hal.Buffer
		label  string
		size   uint64
		usage  gputypes.BufferUsage
	}{
		{&bufs.params, "raysort_params", sortParamsSize, uniformCPU},
		{&bufs.rays, "raysort_rays", sz.rays, storageCPU},
		{&bufs.sorted, "raysort_sorted_to_source", sz.rays, storageOut},
		{&bufs.inverse, "raysort_source_to_sorted", sz.inverse, storageOut},
		{&bufs.debug, "raysort_debug", sz.debug, storageOut},
		{&bufs.stats, "raysort_tile_stats", sz.stats, storageOut | gputypes.BufferUsageCopyDst},
		{&bufs.staging, "raysort_staging", sz.staging(), readback},
	}
	for _, s := range specs {
		buf, err := d.createSortBuffer(s.label, s.size, s.usage)
		if err != nil {
			d.destroyBuffers(bufs)
			return nil, fmt.Errorf("raysort gpu: create %s buffer: %w", s.label, err)
		}
		*s.target = buf
	}
	return bufs, nil
}

func (d *SortDispatcher) destroyBuffers(bufs *sortBuffers) {
	for _, b := range []hal.Buffer{bufs.params, bufs.rays, bufs.sorted, bufs.inverse, bufs.debug, bufs.stats, bufs.staging} {
		if b != nil {
			d.device.DestroyBuffer(b)
		}
	}
	*bufs = sortBuffers{}
}

// sortResources tracks per-dispatch objects for cleanup.
type sortResources struct {
	device    hal.Device
	bindGroup hal.BindGroup
	cmdBuf    hal.CommandBuffer
}

func (r *sortResources) cleanup() {
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	if r.bindGroup != nil {
		r.device.DestroyBindGroup(r.bindGroup)
	}
}

// Dispatch sorts one frame and reads the results back.
func (d *SortDispatcher) Dispatch(req SortRequest) (*SortResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, ErrNotInitialized
	}
	if err := d.checkRequest(req); err != nil {
		return nil, err
	}

	tilesX, tilesY := d.TileCounts(req.Params.ActiveWidth, req.Params.ActiveHeight)
	res := &SortResult{TilesX: tilesX, TilesY: tilesY}
	if tilesX == 0 || tilesY == 0 {
		return res, nil
	}

	sz := d.bufferSizes(len(req.Rays), tilesX*tilesY)
	bufs, err := d.allocateBuffers(sz)
	if err != nil {
		return nil, err
	}
	defer d.destroyBuffers(bufs)

	params := SortParams{
		ActiveWidth:  uint32(req.Params.ActiveWidth),
		ActiveHeight: uint32(req.Params.ActiveHeight),
		BufferWidth:  uint32(req.Width),
		TilesX:       uint32(tilesX),
		Encoding:     uint32(req.Params.Encoding),
		MinBinSize:   req.Params.MinBinSize,
	}
	uploads := []struct {
		buf  hal.Buffer
		data []byte
	}{
		{bufs.params, params.toBytes()},
		{bufs.rays, wordsToBytes(req.Rays)},
		{bufs.stats, make([]byte, sz.stats)},
	}
	for _, u := range uploads {
		if err := d.queue.WriteBuffer(u.buf, 0, u.data); err != nil {
			return nil, fmt.Errorf("raysort gpu: upload: %w", err)
		}
	}

	r := &sortResources{device: d.device}
	defer r.cleanup()

	if err := d.encode(r, bufs, sz, uint32(tilesX), uint32(tilesY)); err != nil {
		return nil, err
	}
	if err := d.submitAndWait(r); err != nil {
		return nil, err
	}

	data, err := d.readback(bufs.staging, sz.staging())
	if err != nil {
		return nil, err
	}

	off := uint64(0)
	take := func(n uint64) []uint32 {
		words := bytesToWords(data[off : off+n])
		off += n
		return words
	}
	res.SortedToSource = take(sz.rays)
	if d.cfg.Inverse {
		res.SourceToSorted = take(sz.inverse)
	}
	if d.cfg.Debug {
		res.Debug = take(sz.debug)
	}
	res.Tiles = decodeTileStats(take(sz.stats))

	slogger().Debug("raysort gpu: dispatched",
		"buffer", fmt.Sprintf("%dx%d", req.Width, req.Height),
		"tiles", fmt.Sprintf("%dx%d", tilesX, tilesY),
		"readback_bytes", sz.staging())
	return res, nil
}

func (d *SortDispatcher) checkRequest(req SortRequest) error {
	p := req.Params
	switch {
	case req.Width <= 0 || req.Height <= 0 || len(req.Rays) != req.Width*req.Height:
		return fmt.Errorf("%w: %d texels for %dx%d", ErrInvalidRequest, len(req.Rays), req.Width, req.Height)
	case p.ActiveWidth < 0 || p.ActiveHeight < 0 || p.ActiveWidth > req.Width || p.ActiveHeight > req.Height:
		return fmt.Errorf("%w: active %dx%d in %dx%d", ErrInvalidRequest, p.ActiveWidth, p.ActiveHeight, req.Width, req.Height)
	}
	return nil
}

// encode records the sort pass and the readback copies.
func (d *SortDispatcher) encode(r *sortResources, bufs *sortBuffers, sz sortBufSizes, tilesX, tilesY uint32) error {
	entry := func(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding: binding,
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "raysort_bg",
		Layout: d.bgLayout,
		Entries: []gputypes.BindGroupEntry{
			entry(0, bufs.params),
			entry(1, bufs.rays),
			entry(2, bufs.sorted),
			entry(3, bufs.inverse),
			entry(4, bufs.debug),
			entry(5, bufs.stats),
		},
	})
	if err != nil {
		return fmt.Errorf("raysort gpu: create bind group: %w", err)
	}
	r.bindGroup = bg

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "raysort",
	})
	if err != nil {
		return fmt.Errorf("raysort gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("raysort"); err != nil {
		return fmt.Errorf("raysort gpu: begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "raysort"})
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(tilesX, tilesY, 1)
	pass.End()

	var copies uint64
	copyOut := func(src hal.Buffer, size uint64) {
		if size == 0 {
			return
		}
		encoder.CopyBufferToBuffer(src, bufs.staging, []hal.BufferCopy{{
			SrcOffset: 0,
			DstOffset: copies,
			Size:      size,
		}})
		copies += size
	}
	copyOut(bufs.sorted, sz.rays)
	copyOut(bufs.inverse, sz.inverse)
	copyOut(bufs.debug, sz.debug)
	copyOut(bufs.stats, sz.stats)

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("raysort gpu: end encoding: %w", err)
	}
	r.cmdBuf = cmdBuf
	return nil
}

// submitAndWait submits the sort and polls until the queue reports it
// complete.
func (d *SortDispatcher) submitAndWait(r *sortResources) error {
	idx, err := d.queue.Submit([]hal.CommandBuffer{r.cmdBuf})
	if err != nil {
		return fmt.Errorf("raysort gpu: submit: %w", err)
	}

	deadline := time.Now().Add(sortTimeout)
	for d.queue.PollCompleted() < idx {
		if time.Now().After(deadline) {
			// The buffers are destroyed on return; the GPU must not be
			// using them.
			_ = d.device.WaitIdle()
			return fmt.Errorf("raysort gpu: GPU timeout after %v", sortTimeout)
		}
		time.Sleep(sortPollInterval)
	}
	return nil
}

// readback copies the first size bytes of a MapRead buffer.
func (d *SortDispatcher) readback(buf hal.Buffer, size uint64) ([]byte, error) {
	m, err := d.device.MapBuffer(buf, 0, size)
	if err != nil {
		return nil, fmt.Errorf("raysort gpu: map readback: %w", err)
	}
	data := make([]byte, size)
	copy(data, unsafe.Slice((*byte)(m.Ptr), size))
	if err := d.device.UnmapBuffer(buf); err != nil {
		return nil, fmt.Errorf("raysort gpu: unmap readback: %w", err)
	}
	return data, nil
}

// decodeTileStats unpacks the per-tile statistics blocks.
func decodeTileStats(words []uint32) []TileResult {
	tiles := make([]TileResult, len(words)/tileStatsWords)
	for i := range tiles {
		w := words[i*tileStatsWords:]
		tiles[i] = TileResult{
			Active:          int(w[0]),
			OccupiedBuckets: int(w[1]),
			LargestBucket:   int(w[2]),
			Range:           sortkernel.DepthRange{MinBits: w[3] & 0xFFFF, MaxBits: w[3] >> 16},
		}
	}
	return tiles
}

func wordsToBytes(words []uint32) []byte {
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

func bytesToWords(buf []byte) []uint32 {
	words := make([]uint32, len(buf)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return words
}
