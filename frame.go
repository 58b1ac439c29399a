package lava

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// FrameState is the position of the scheduler in the frame protocol.
type FrameState int

const (
	StateIdle FrameState = iota
	StateFrameBegun
	StateCommandsRecorded
	StateSubmitted
	StatePresented
	StateSwapchainStale
)

func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFrameBegun:
		return "frame-begun"
	case StateCommandsRecorded:
		return "commands-recorded"
	case StateSubmitted:
		return "submitted"
	case StatePresented:
		return "presented"
	case StateSwapchainStale:
		return "swapchain-stale"
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}

// FrameStats counts what the scheduler did since it was created.
type FrameStats struct {
	Presented int
	// Skipped counts frames abandoned because the swapchain was out of date
	// or the surface had no size.
	Skipped   int
	Recreates int
}

type SchedulerOptions struct {
	// FramesInFlight is clamped to the swapchain image count.
	FramesInFlight int
	// FenceTimeout bounds the wait for a frame slot. Expiry is a lost device.
	FenceTimeout time.Duration
	// Continuous requests a redraw after every present.
	Continuous bool
}

// FrameHooks connect the scheduler to the code that owns it.
type FrameHooks struct {
	// Record is called after the command buffer of a frame has been begun.
	// It must record the frame and call FrameReady.
	Record func() error
	// ReleaseSwapchain and InitSwapchain bracket every swapchain recreation.
	ReleaseSwapchain func()
	InitSwapchain    func() error
	// RequestRedraw asks the host for another BeginFrame on a later tick.
	RequestRedraw func()
	// Extent returns the current surface size.
	Extent func() Extent2D
}

type frameSlot struct {
	cmd      CommandBuffer
	fence    Fence
	acquired Semaphore
	rendered Semaphore
}

// FrameScheduler drives acquire, record, submit and present for a swapchain.
// Each frame in flight has its own command buffer, fence and semaphores; the
// fence of a slot is waited on before the slot is reused, which is the only
// point where the CPU is throttled to the GPU.
//
// A FrameScheduler is not safe for concurrent use. All calls must come from
// the thread that runs the event loop.
type FrameScheduler struct {
	drv   Driver
	ctx   *DeviceContext
	sc    *SwapchainManager
	opts  SchedulerOptions
	hooks FrameHooks

	pool  CommandPool
	slots []frameSlot

	frame      int
	imageIndex uint32
	state      FrameState

	swapchainResources bool
	failed             error

	grabRequested bool
	grabbing      bool
	grab          *FrameGrab
	grabErr       error
	readbackSem   Semaphore

	stats FrameStats
}

func NewFrameScheduler(drv Driver, ctx *DeviceContext, sc *SwapchainManager, opts SchedulerOptions, hooks FrameHooks) (*FrameScheduler, error) {
	if opts.FramesInFlight < 1 {
		opts.FramesInFlight = 1
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = DefaultFenceTimeout
	}
	s := &FrameScheduler{
		drv:   drv,
		ctx:   ctx,
		sc:    sc,
		opts:  opts,
		hooks: hooks,
	}

	var err error
	s.pool, err = drv.CreateCommandPool(ctx.Device, ctx.GraphicsFamily)
	if err != nil {
		return nil, errors.Wrap(err, "create graphics command pool")
	}
	s.readbackSem, err = drv.CreateSemaphore(ctx.Device)
	if err != nil {
		s.Destroy()
		return nil, errors.Wrap(err, "create readback semaphore")
	}
	if err := s.createSlots(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *FrameScheduler) slotCount() int {
	n := s.opts.FramesInFlight
	if c := s.sc.ImageCount(); c > 0 && c < n {
		n = c
	}
	return n
}

func (s *FrameScheduler) createSlots() error {
	dev := s.ctx.Device
	n := s.slotCount()

	cmds, err := s.drv.AllocateCommandBuffers(dev, s.pool, n)
	if err != nil {
		return errors.Wrap(err, "allocate frame command buffers")
	}
	s.slots = make([]frameSlot, n)
	for i := range s.slots {
		slot := &s.slots[i]
		slot.cmd = cmds[i]
		// Signalled, so the first wait on every slot returns at once.
		if slot.fence, err = s.drv.CreateFence(dev, true); err != nil {
			return errors.Wrap(err, "create frame fence")
		}
		if slot.acquired, err = s.drv.CreateSemaphore(dev); err != nil {
			return errors.Wrap(err, "create image acquired semaphore")
		}
		if slot.rendered, err = s.drv.CreateSemaphore(dev); err != nil {
			return errors.Wrap(err, "create render complete semaphore")
		}
	}
	s.frame = 0
	return nil
}

func (s *FrameScheduler) destroySlots() {
	dev := s.ctx.Device
	cmds := make([]CommandBuffer, 0, len(s.slots))
	for _, slot := range s.slots {
		if !slot.cmd.IsNull() {
			cmds = append(cmds, slot.cmd)
		}
		if !slot.fence.IsNull() {
			s.drv.DestroyFence(dev, slot.fence)
		}
		if !slot.acquired.IsNull() {
			s.drv.DestroySemaphore(dev, slot.acquired)
		}
		if !slot.rendered.IsNull() {
			s.drv.DestroySemaphore(dev, slot.rendered)
		}
	}
	if len(cmds) > 0 {
		s.drv.FreeCommandBuffers(dev, s.pool, cmds)
	}
	s.slots = nil
}

// Destroy waits for the device to go idle and releases the per frame
// resources and the command pool.
func (s *FrameScheduler) Destroy() {
	dev := s.ctx.Device
	s.drv.DeviceWaitIdle(dev)
	s.destroySlots()
	if !s.readbackSem.IsNull() {
		s.drv.DestroySemaphore(dev, s.readbackSem)
		s.readbackSem = Semaphore(NullHandle)
	}
	if !s.pool.IsNull() {
		s.drv.DestroyCommandPool(dev, s.pool)
		s.pool = CommandPool(NullHandle)
	}
}

func (s *FrameScheduler) fail(err error) error {
	s.failed = err
	Logger().Error("frame scheduler stopped", slog.Any("err", err))
	return err
}

// BeginFrame starts a frame: it waits for the next frame slot, acquires a
// swapchain image, begins the slot's command buffer and hands over to the
// Record hook. It does nothing while a frame is pending, before the
// swapchain exists or while the surface has no size. An out of date
// swapchain is recreated and the frame is skipped with a redraw requested.
func (s *FrameScheduler) BeginFrame() error {
	if s.failed != nil {
		return s.failed
	}
	if s.state != StateIdle {
		Logger().Debug("begin frame ignored, frame pending", slog.String("state", s.state.String()))
		return nil
	}
	if s.sc.Handle().IsNull() && !s.sc.NeedsRecreate() {
		return nil
	}
	if s.hooks.Extent != nil && s.hooks.Extent().IsZero() {
		s.stats.Skipped++
		return nil
	}
	if s.sc.NeedsRecreate() {
		if err := s.recreate(); err != nil {
			return err
		}
		if s.sc.Handle().IsNull() {
			return nil
		}
		if s.sc.NeedsRecreate() {
			// Deferred: the renderer's swapchain resources are released.
			s.stats.Skipped++
			return nil
		}
	}

	if s.grabRequested {
		s.grabRequested = false
		s.grabbing = true
	}

	slot := &s.slots[s.frame]
	dev := s.ctx.Device

	res, err := s.drv.WaitForFence(dev, slot.fence, s.opts.FenceTimeout)
	if err != nil {
		return s.fail(errors.Wrapf(err, "wait for frame slot %d", s.frame))
	}
	if res == Timeout {
		return s.fail(errors.Wrapf(ErrDeviceLost, "frame slot %d fence not signalled after %s", s.frame, s.opts.FenceTimeout))
	}

	idx, res, err := s.sc.AcquireNextImage(slot.acquired)
	if err != nil {
		return s.fail(err)
	}
	if res == OutOfDate {
		s.state = StateSwapchainStale
		s.stats.Skipped++
		s.grabbing = false
		Logger().Debug("acquire out of date, recreating swapchain")
		err := s.recreate()
		s.state = StateIdle
		if err != nil {
			return err
		}
		s.requestRedraw()
		return nil
	}

	if err := s.drv.ResetFence(dev, slot.fence); err != nil {
		return s.fail(errors.Wrap(err, "reset frame fence"))
	}
	if err := s.drv.ResetCommandBuffer(slot.cmd); err != nil {
		return s.fail(errors.Wrap(err, "reset frame command buffer"))
	}
	if err := s.drv.BeginCommandBuffer(slot.cmd, true); err != nil {
		return s.fail(errors.Wrap(err, "begin frame command buffer"))
	}

	s.imageIndex = idx
	s.state = StateFrameBegun
	Logger().Debug("frame begun", slog.Int("frame", s.frame), slog.Int("image", int(idx)))

	if s.hooks.Record == nil {
		return s.fail(protocolViolation("no frame recorder installed"))
	}
	err = s.hooks.Record()
	if s.state == StateFrameBegun {
		// The fence of this slot was reset and will never be signalled.
		if err == nil {
			err = protocolViolation("frame %d recorded without FrameReady", s.frame)
		}
		return s.fail(err)
	}
	if err != nil {
		return s.fail(err)
	}
	return nil
}

// FrameReady ends the current frame: it closes the command buffer, submits
// it and presents the image. signal is the semaphore the submission signals
// and the present waits on; null selects the slot's own. It fails with
// ErrProtocolViolation unless a frame has been begun and not yet ended.
func (s *FrameScheduler) FrameReady(signal Semaphore) error {
	if s.state != StateFrameBegun {
		return protocolViolation("FrameReady called in state %s", s.state)
	}
	slot := &s.slots[s.frame]

	if s.ctx.OwnershipTransfer() {
		s.drv.CmdImageBarrier(slot.cmd, s.presentBarrier())
	}
	if err := s.drv.EndCommandBuffer(slot.cmd); err != nil {
		return s.fail(errors.Wrap(err, "end frame command buffer"))
	}
	s.state = StateCommandsRecorded

	if signal.IsNull() {
		signal = slot.rendered
	}
	err := s.drv.QueueSubmit(s.ctx.GraphicsQueue, SubmitInfo{
		Wait:           []Semaphore{slot.acquired},
		WaitStages:     []PipelineStage{PipelineStageColorAttachmentOutput},
		CommandBuffers: []CommandBuffer{slot.cmd},
		Signal:         []Semaphore{signal},
	}, slot.fence)
	if err != nil {
		return s.fail(errors.Wrap(err, "submit frame"))
	}
	s.state = StateSubmitted

	wait := signal
	if s.grabbing {
		s.grabbing = false
		var submitted bool
		s.grab, submitted, s.grabErr = s.readback(signal)
		if submitted {
			// The readback consumed signal.
			wait = s.readbackSem
		}
		if errors.Is(s.grabErr, ErrDeviceLost) {
			return s.fail(s.grabErr)
		}
	}

	res, err := s.drv.QueuePresent(s.ctx.PresentQueue, PresentInfo{
		Swapchain:  s.sc.Handle(),
		ImageIndex: s.imageIndex,
		Wait:       []Semaphore{wait},
	})
	if err != nil {
		return s.fail(errors.Wrap(err, "present"))
	}
	s.frame = (s.frame + 1) % len(s.slots)

	switch res {
	case Success:
		s.state = StatePresented
		s.stats.Presented++
	case Suboptimal:
		s.state = StatePresented
		s.stats.Presented++
		s.sc.MarkStale()
	case OutOfDate:
		s.state = StateSwapchainStale
		s.stats.Skipped++
		s.sc.MarkStale()
	}
	Logger().Debug("frame presented", slog.Int("image", int(s.imageIndex)), slog.String("result", res.String()))

	if s.sc.NeedsRecreate() {
		if err := s.recreate(); err != nil {
			s.state = StateIdle
			return err
		}
	}
	s.state = StateIdle

	if s.opts.Continuous {
		s.requestRedraw()
	}
	return nil
}

// presentBarrier makes the colour writes of the frame available to the
// present queue. The swapchain uses concurrent sharing when the graphics
// and present families differ, so no ownership transfer is encoded.
func (s *FrameScheduler) presentBarrier() ImageBarrier {
	return ImageBarrier{
		Image:          s.sc.Images()[s.imageIndex],
		Aspect:         ImageAspectColor,
		OldLayout:      ImageLayoutPresentSrc,
		NewLayout:      ImageLayoutPresentSrc,
		SrcAccess:      AccessColorAttachmentWrite,
		DstAccess:      AccessMemoryRead,
		SrcStage:       PipelineStageColorAttachmentOutput,
		DstStage:       PipelineStageBottomOfPipe,
		SrcQueueFamily: QueueFamilyIgnored,
		DstQueueFamily: QueueFamilyIgnored,
	}
}

// recreate rebuilds the swapchain and the per frame resources. A surface
// without size defers the work until the next frame.
func (s *FrameScheduler) recreate() error {
	if s.swapchainResources {
		// Renderer resources may still be referenced by frames in flight.
		if err := s.drv.DeviceWaitIdle(s.ctx.Device); err != nil {
			return s.fail(errors.Wrap(err, "wait idle before releasing swapchain resources"))
		}
	}
	s.releaseSwapchainResources()

	extent := Extent2D{}
	if s.hooks.Extent != nil {
		extent = s.hooks.Extent()
	}
	err := s.sc.Recreate(extent)
	if errors.Is(err, ErrZeroExtent) {
		s.sc.MarkStale()
		return nil
	}
	if err != nil {
		return s.fail(err)
	}

	// The device is idle after Recreate, so every slot can go.
	s.destroySlots()
	if err := s.createSlots(); err != nil {
		return s.fail(err)
	}
	s.stats.Recreates++

	if err := s.initSwapchainResources(); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *FrameScheduler) initSwapchainResources() error {
	if s.hooks.InitSwapchain != nil {
		if err := s.hooks.InitSwapchain(); err != nil {
			return errors.Wrap(err, "init swapchain resources")
		}
	}
	s.swapchainResources = true
	return nil
}

func (s *FrameScheduler) releaseSwapchainResources() {
	if s.swapchainResources && s.hooks.ReleaseSwapchain != nil {
		s.hooks.ReleaseSwapchain()
	}
	s.swapchainResources = false
}

func (s *FrameScheduler) requestRedraw() {
	if s.hooks.RequestRedraw != nil {
		s.hooks.RequestRedraw()
	}
}

// RequestGrab asks for the next frame to be read back.
func (s *FrameScheduler) RequestGrab() {
	s.grabRequested = true
	s.grab, s.grabErr = nil, nil
}

// TakeGrab returns the last capture, if any, and clears it along with a
// request no frame has served.
func (s *FrameScheduler) TakeGrab() (*FrameGrab, error) {
	g, err := s.grab, s.grabErr
	s.grab, s.grabErr = nil, nil
	s.grabRequested = false
	return g, err
}

func (s *FrameScheduler) State() FrameState        { return s.state }
func (s *FrameScheduler) Stats() FrameStats        { return s.stats }
func (s *FrameScheduler) CurrentFrame() int        { return s.frame }
func (s *FrameScheduler) FramesInFlight() int      { return len(s.slots) }
func (s *FrameScheduler) CommandPool() CommandPool { return s.pool }

// Err returns the error that stopped the scheduler, nil while it is usable.
func (s *FrameScheduler) Err() error { return s.failed }

// CurrentImageIndex is the swapchain image of the pending frame.
func (s *FrameScheduler) CurrentImageIndex() uint32 { return s.imageIndex }

// CurrentCommandBuffer is the command buffer of the pending frame, null
// outside a frame.
func (s *FrameScheduler) CurrentCommandBuffer() CommandBuffer {
	if s.state != StateFrameBegun {
		return CommandBuffer(NullHandle)
	}
	return s.slots[s.frame].cmd
}
