package vkfractal

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/celer/vkfractal/frame"
	"github.com/celer/vkfractal/params"
)

// DefaultMaxFramesInFlight bounds how many submitted frames may be pending.
const DefaultMaxFramesInFlight = 4

type PresenterConfig struct {
	Device   *Device
	Queue    *Queue
	Surface  vk.Surface
	Pipeline *ComputePipeline
	Target   *TargetImage
	// MaxFramesInFlight defaults to DefaultMaxFramesInFlight.
	MaxFramesInFlight int
}

// inFlightFrame is everything one submitted frame holds until its fence
// signals.
type inFlightFrame struct {
	fence  *Fence
	cmd    *CommandBuffer
	set    *DescriptorSet
	params *Allocation
	// chain is signaled on completion, for the next frame to wait on.
	chain vk.Semaphore
	// release is destroyed once the fence signals.
	release  []vk.Semaphore
	released bool
}

func (f *inFlightFrame) finished() bool {
	return f.released || f.fence.Signaled()
}

func (f *inFlightFrame) wait() error {
	if f.released {
		return nil
	}
	return f.fence.Wait()
}

// Presenter drives the fractal program on a Vulkan queue and presents the
// result. It implements frame.Backend and is not safe for concurrent use.
//
// Every frame dispatches the compute pipeline into the target image, then
// blits the target onto the acquired swapchain image.
type Presenter struct {
	device   *Device
	queue    *Queue
	surface  vk.Surface
	pipeline *ComputePipeline
	target   *TargetImage

	commands    *CommandPool
	descriptors *DescriptorPool
	params      *ParameterPool
	maxInFlight int

	current    *Swapchain
	generation uint64

	// inFlight is ordered oldest first.
	inFlight    []*inFlightFrame
	freeFences  []*Fence
	freeBuffers []*CommandBuffer
	semaphores  semaphoreLedger[vk.Semaphore]
	// acquired holds images acquired but not yet submitted.
	acquired []*acquireFuture
}

var _ frame.Backend = (*Presenter)(nil)

// NewPresenter creates the command, descriptor and parameter pools. The
// pipeline and target image remain owned by the caller.
func NewPresenter(cfg PresenterConfig) (*Presenter, error) {
	switch {
	case cfg.Device == nil:
		return nil, errors.New("presenter: nil device")
	case cfg.Queue == nil:
		return nil, errors.New("presenter: nil queue")
	case cfg.Surface == vk.NullSurface:
		return nil, errors.New("presenter: nil surface")
	case cfg.Pipeline == nil:
		return nil, errors.New("presenter: nil pipeline")
	case cfg.Target == nil:
		return nil, errors.New("presenter: nil target image")
	}
	if cfg.MaxFramesInFlight <= 0 {
		cfg.MaxFramesInFlight = DefaultMaxFramesInFlight
	}

	p := &Presenter{
		device:      cfg.Device,
		queue:       cfg.Queue,
		surface:     cfg.Surface,
		pipeline:    cfg.Pipeline,
		target:      cfg.Target,
		maxInFlight: cfg.MaxFramesInFlight,
	}

	var err error
	if p.commands, err = p.device.CreateCommandPool(); err != nil {
		return nil, fmt.Errorf("failed to create command pool: %w", err)
	}
	if p.descriptors, err = p.device.CreateDescriptorPool(p.pipeline.SetLayout, p.maxInFlight); err != nil {
		p.Destroy()
		return nil, fmt.Errorf("failed to create descriptor pool: %w", err)
	}
	if p.params, err = p.device.CreateParameterPool(p.maxInFlight, params.Size); err != nil {
		p.Destroy()
		return nil, err
	}
	Logger().Debug("presenter created",
		zap.Stringer("queue", p.queue),
		zap.Int("frames_in_flight", p.maxInFlight))
	return p, nil
}

func (p *Presenter) CreateSwapchain(size frame.Extent, old frame.Swapchain) (frame.Swapchain, error) {
	var prev *Swapchain
	if old != nil {
		var ok bool
		if prev, ok = old.(*Swapchain); !ok {
			return nil, fmt.Errorf("%w: foreign swapchain %T", frame.ErrSwapchainCreation, old)
		}
	}

	p.generation++
	sc, err := p.device.CreateSwapchain(SwapchainOptions{
		Surface:    p.surface,
		Size:       size,
		Old:        prev,
		Generation: p.generation,
	})
	if err != nil {
		return nil, err
	}
	p.current = sc

	Logger().Debug("swapchain created",
		zap.Stringer("extent", sc.Extent()),
		zap.Int("images", sc.ImageCount()),
		zap.Uint64("generation", sc.Generation()))
	return sc, nil
}

// DestroySwapchain waits for the device to go idle before releasing sc.
func (p *Presenter) DestroySwapchain(fsc frame.Swapchain) {
	sc, ok := fsc.(*Swapchain)
	if !ok || sc == nil {
		return
	}
	if err := p.device.WaitIdle(); err != nil {
		Logger().Warn("wait idle before destroying swapchain", zap.Error(err))
	}
	p.Reclaim()
	p.destroyOrphans()

	kept := p.acquired[:0]
	for _, af := range p.acquired {
		if af.swapchain == sc {
			p.device.VKDestroySemaphore(af.semaphore)
			continue
		}
		kept = append(kept, af)
	}
	p.acquired = kept

	sc.Destroy()
	if p.current == sc {
		p.current = nil
	}
}

func (p *Presenter) Acquire(fsc frame.Swapchain) (frame.AcquiredImage, error) {
	sc, ok := fsc.(*Swapchain)
	if !ok || sc == nil {
		return frame.AcquiredImage{}, fmt.Errorf("acquire: foreign swapchain %T", fsc)
	}

	sem, err := p.device.VKCreateSemaphore()
	if err != nil {
		return frame.AcquiredImage{}, fmt.Errorf("acquire: %w", err)
	}

	var index uint32
	res := vk.AcquireNextImage(p.device.VKDevice, sc.VKSwapchain, vk.MaxUint64, sem, vk.NullFence, &index)
	suboptimal := false
	switch res {
	case vk.Success:
	case vk.Suboptimal:
		suboptimal = true
	case vk.ErrorOutOfDate:
		p.device.VKDestroySemaphore(sem)
		return frame.AcquiredImage{}, frame.ErrOutOfDate
	default:
		p.device.VKDestroySemaphore(sem)
		return frame.AcquiredImage{}, vk.Error(res)
	}

	af := &acquireFuture{p: p, swapchain: sc, semaphore: sem}
	p.acquired = append(p.acquired, af)
	return frame.AcquiredImage{
		Index:      index,
		Generation: sc.Generation(),
		Suboptimal: suboptimal,
		Ready:      af,
	}, nil
}

// Submit records the dispatch and blit for img and submits them. The batch
// waits on the acquire and, when after is a frame of this presenter, on that
// frame's completion.
func (p *Presenter) Submit(after frame.Future, img frame.AcquiredImage, fp params.Frame) (frame.Future, error) {
	sc := p.current
	if sc == nil || img.Generation != sc.Generation() {
		return nil, fmt.Errorf("submit: image of generation %d does not belong to the current swapchain", img.Generation)
	}
	if int(img.Index) >= sc.ImageCount() {
		return nil, fmt.Errorf("submit: image index %d out of range", img.Index)
	}
	af, ok := img.Ready.(*acquireFuture)
	if !ok || af.consumer != nil {
		return nil, errors.New("submit: image was not acquired from this presenter")
	}

	if err := p.throttle(); err != nil {
		p.orphanAcquire(af)
		return nil, err
	}

	f, err := p.prepare(fp)
	if err != nil {
		p.orphanAcquire(af)
		return nil, err
	}
	if err := p.record(f, sc, img.Index); err != nil {
		p.discard(f)
		p.orphanAcquire(af)
		return nil, fmt.Errorf("record frame: %w", err)
	}

	var prev vk.Semaphore
	if pf, ok := after.(*frameFuture); ok && pf.p == p {
		prev = pf.f.chain
	}
	b := p.semaphores.plan(af.semaphore, sc.renderDone[img.Index], f.chain, prev)
	waits := make([]Wait, len(b.Waits))
	for i, w := range b.Waits {
		waits[i] = Wait(w)
	}

	err = p.queue.Submit(Submission{
		Buffers: []*CommandBuffer{f.cmd},
		Waits:   waits,
		Signals: b.Signals,
		Fence:   f.fence,
	})
	p.dropAcquired(af)
	if err != nil {
		p.semaphores.abort(b)
		p.discard(f)
		return nil, fmt.Errorf("queue submit: %w", err)
	}

	af.consumer = f
	f.release = p.semaphores.commit(b)
	p.inFlight = append(p.inFlight, f)
	return &frameFuture{p: p, f: f}, nil
}

// Present queues img once submitted completes on the GPU. The returned
// future is submitted itself.
func (p *Presenter) Present(submitted frame.Future, img frame.AcquiredImage) (frame.Future, error) {
	sc := p.current
	if sc == nil || img.Generation != sc.Generation() {
		return nil, frame.ErrOutOfDate
	}
	_, res := p.queue.Present(sc, img.Index, sc.renderDone[img.Index])
	switch res {
	case vk.Success:
		return submitted, nil
	case vk.ErrorOutOfDate:
		return nil, frame.ErrOutOfDate
	default:
		return nil, fmt.Errorf("present: %w", vk.Error(res))
	}
}

// Reclaim releases the resources of every frame whose fence has signaled.
func (p *Presenter) Reclaim() {
	kept := p.inFlight[:0]
	for _, f := range p.inFlight {
		if f.fence.Signaled() {
			p.release(f)
			continue
		}
		kept = append(kept, f)
	}
	for i := len(kept); i < len(p.inFlight); i++ {
		p.inFlight[i] = nil
	}
	p.inFlight = kept
}

func (p *Presenter) WaitIdle() error {
	return p.device.WaitIdle()
}

// Destroy waits for the device and releases everything the presenter
// created. The current swapchain is left to DestroySwapchain.
func (p *Presenter) Destroy() {
	if err := p.device.WaitIdle(); err != nil {
		Logger().Warn("wait idle before destroying presenter", zap.Error(err))
	}
	p.Reclaim()
	p.destroyOrphans()
	for _, sem := range p.semaphores.drainPending() {
		p.device.VKDestroySemaphore(sem)
	}
	for _, af := range p.acquired {
		p.device.VKDestroySemaphore(af.semaphore)
	}
	p.acquired = nil
	for _, fence := range p.freeFences {
		fence.Destroy()
	}
	p.freeFences = nil
	if p.params != nil {
		p.params.Destroy()
		p.params = nil
	}
	if p.descriptors != nil {
		p.descriptors.Destroy()
		p.descriptors = nil
	}
	if p.commands != nil {
		// Frees the pooled command buffers too.
		p.commands.Destroy()
		p.commands = nil
		p.freeBuffers = nil
	}
}

func (p *Presenter) throttle() error {
	return throttle(
		func() int { return len(p.inFlight) },
		p.maxInFlight,
		func() error { return p.inFlight[0].wait() },
		p.Reclaim)
}

// prepare gathers the per-frame resources and writes the parameters.
func (p *Presenter) prepare(fp params.Frame) (*inFlightFrame, error) {
	f := &inFlightFrame{}
	var err error

	if n := len(p.freeFences); n > 0 {
		f.fence, p.freeFences = p.freeFences[n-1], p.freeFences[:n-1]
	} else if f.fence, err = p.device.CreateFence(); err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}

	if n := len(p.freeBuffers); n > 0 {
		f.cmd, p.freeBuffers = p.freeBuffers[n-1], p.freeBuffers[:n-1]
	} else if f.cmd, err = p.commands.AllocateBuffer(); err != nil {
		p.discard(f)
		return nil, fmt.Errorf("allocate command buffer: %w", err)
	}

	if f.chain, err = p.device.VKCreateSemaphore(); err != nil {
		p.discard(f)
		return nil, fmt.Errorf("create semaphore: %w", err)
	}

	if f.params, err = p.params.Write(fp.Bytes()); err != nil {
		p.discard(f)
		return nil, fmt.Errorf("write frame parameters: %w", err)
	}

	if f.set, err = p.descriptors.Allocate(p.pipeline.SetLayout); err != nil {
		p.discard(f)
		return nil, fmt.Errorf("allocate descriptor set: %w", err)
	}
	f.set.AddStorageImage(p.pipeline.TargetBinding, vk.ImageLayoutGeneral, p.target.View.VKImageView)
	f.set.AddBuffer(p.pipeline.ParamsBinding, p.pipeline.ParamsType, p.params.Buffer, f.params.Offset, params.Size)
	f.set.Write()
	return f, nil
}

// record fills the frame's command buffer.
func (p *Presenter) record(f *inFlightFrame, sc *Swapchain, index uint32) error {
	cmd := f.cmd
	if err := cmd.BeginOneTime(); err != nil {
		return err
	}

	// The previous contents are discarded; the source stage orders the write
	// after earlier blits reading the target.
	cmd.CmdImageBarrier(ImageTransition{
		Image:     p.target.VKImage,
		OldLayout: vk.ImageLayoutUndefined,
		NewLayout: vk.ImageLayoutGeneral,
		DstAccess: vk.AccessShaderWriteBit,
		SrcStage:  vk.PipelineStageTransferBit,
		DstStage:  vk.PipelineStageComputeShaderBit,
	})

	cmd.CmdBindComputePipeline(p.pipeline)
	cmd.CmdBindDescriptorSets(vk.PipelineBindPointCompute, p.pipeline.Layout, 0, f.set)
	cmd.CmdDispatch(GroupCount(p.target.Size(), p.pipeline.LocalSize))

	cmd.CmdImageBarrier(ImageTransition{
		Image:     p.target.VKImage,
		OldLayout: vk.ImageLayoutGeneral,
		NewLayout: vk.ImageLayoutTransferSrcOptimal,
		SrcAccess: vk.AccessShaderWriteBit,
		DstAccess: vk.AccessTransferReadBit,
		SrcStage:  vk.PipelineStageComputeShaderBit,
		DstStage:  vk.PipelineStageTransferBit,
	})

	image := sc.Images[index]
	cmd.CmdImageBarrier(ImageTransition{
		Image:     image,
		OldLayout: vk.ImageLayoutUndefined,
		NewLayout: vk.ImageLayoutTransferDstOptimal,
		DstAccess: vk.AccessTransferWriteBit,
		SrcStage:  vk.PipelineStageTransferBit,
		DstStage:  vk.PipelineStageTransferBit,
	})

	cmd.CmdBlitImage(p.target.VKImage, p.target.Image.Extent, image, sc.VKExtent())

	cmd.CmdImageBarrier(ImageTransition{
		Image:     image,
		OldLayout: vk.ImageLayoutTransferDstOptimal,
		NewLayout: vk.ImageLayoutPresentSrc,
		SrcAccess: vk.AccessTransferWriteBit,
		SrcStage:  vk.PipelineStageTransferBit,
		DstStage:  vk.PipelineStageBottomOfPipeBit,
	})

	return cmd.End()
}

// release returns the resources of a completed frame to the pools.
func (p *Presenter) release(f *inFlightFrame) {
	if f.released {
		return
	}
	f.released = true
	p.params.Free(f.params)
	f.params = nil
	if f.set != nil {
		if err := p.descriptors.Free(f.set); err != nil {
			Logger().Warn("free descriptor set", zap.Error(err))
		}
		f.set = nil
	}
	if f.cmd != nil {
		if err := f.cmd.Reset(); err != nil {
			Logger().Warn("reset command buffer", zap.Error(err))
			p.commands.FreeBuffer(f.cmd)
		} else {
			p.freeBuffers = append(p.freeBuffers, f.cmd)
		}
		f.cmd = nil
	}
	if err := f.fence.Reset(); err != nil {
		Logger().Warn("reset fence", zap.Error(err))
		f.fence.Destroy()
	} else {
		p.freeFences = append(p.freeFences, f.fence)
	}
	for _, sem := range f.release {
		p.device.VKDestroySemaphore(sem)
	}
	f.release = nil
}

// discard undoes prepare for a frame that was never submitted.
func (p *Presenter) discard(f *inFlightFrame) {
	if f.chain != nil {
		p.device.VKDestroySemaphore(f.chain)
	}
	f.chain = nil
	if f.fence == nil {
		f.released = true
		return
	}
	p.release(f)
}

// orphanAcquire parks the semaphore of an image that will not be submitted.
func (p *Presenter) orphanAcquire(af *acquireFuture) {
	p.dropAcquired(af)
	p.semaphores.orphan(af.semaphore)
}

func (p *Presenter) dropAcquired(af *acquireFuture) {
	for i, a := range p.acquired {
		if a == af {
			p.acquired = append(p.acquired[:i], p.acquired[i+1:]...)
			return
		}
	}
}

// destroyOrphans must only run while the device is idle.
func (p *Presenter) destroyOrphans() {
	for _, sem := range p.semaphores.drainOrphans() {
		p.device.VKDestroySemaphore(sem)
	}
}
