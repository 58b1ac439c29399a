package lava

import (
	"log/slog"

	"github.com/pkg/errors"
)

// WindowHost is the windowing toolkit side of a Window.
type WindowHost interface {
	// CurrentSurfaceExtent returns the drawable size in pixels, zero while
	// minimised.
	CurrentSurfaceExtent() Extent2D
	CreateSurface(instance Instance) (Surface, error)
	// SetRedrawCallback registers the function the host calls on every
	// redraw tick.
	SetRedrawCallback(fn func())
	// RequestRedraw schedules a redraw tick. It must not call the redraw
	// callback synchronously.
	RequestRedraw()
}

// maxGrabAttempts bounds how many skipped frames Grab tolerates.
const maxGrabAttempts = 4

// Window ties a host window to a device, a swapchain and a frame scheduler,
// and drives a Renderer through them. Without a Renderer every frame clears
// to Config.ClearColor.
//
// All methods must be called from the thread that runs the host's event
// loop.
type Window struct {
	cfg      Config
	drv      Driver
	host     WindowHost
	renderer Renderer

	surface   Surface
	device    *DeviceContext
	swapchain *SwapchainManager
	frames    *FrameScheduler

	initialized bool
	err         error
}

func NewWindow(drv Driver, host WindowHost, cfg Config) *Window {
	return &Window{
		cfg:  cfg,
		drv:  drv,
		host: host,
	}
}

// SetRenderer installs r. It must be called before Init.
func (w *Window) SetRenderer(r Renderer) error {
	if w.initialized {
		return errors.New("renderer must be set prior to initialization")
	}
	w.renderer = r
	return nil
}

// Init creates the surface, selects the device, builds the swapchain and the
// frame scheduler and initializes the renderer. A minimised window defers the
// swapchain to the first frame with a size.
func (w *Window) Init() error {
	if w.initialized {
		return nil
	}
	if err := w.cfg.Validate(); err != nil {
		return err
	}

	var err error
	w.surface, err = w.host.CreateSurface(w.drv.Instance())
	if err != nil {
		return errors.Wrap(err, "create surface")
	}

	w.device, err = SelectDevice(w.drv, w.surface, w.cfg.DeviceOptions())
	if err != nil {
		w.drv.DestroySurface(w.surface)
		return err
	}

	w.swapchain = NewSwapchainManager(w.drv, w.device, w.surface, w.cfg.SwapchainOptions())
	err = w.swapchain.Create(w.host.CurrentSurfaceExtent(), Swapchain(NullHandle))
	switch {
	case errors.Is(err, ErrZeroExtent):
		w.swapchain.MarkStale()
	case err != nil:
		// Create may fail after the swapchain or some views exist.
		w.swapchain.Destroy()
		w.teardownDevice()
		return err
	}

	w.frames, err = NewFrameScheduler(w.drv, w.device, w.swapchain, SchedulerOptions{
		FramesInFlight: w.cfg.FramesInFlight,
		FenceTimeout:   w.cfg.FenceTimeout.Duration(),
		Continuous:     w.cfg.Continuous,
	}, FrameHooks{
		Record:           w.record,
		ReleaseSwapchain: w.releaseSwapchainResources,
		InitSwapchain:    w.initSwapchainResources,
		RequestRedraw:    w.host.RequestRedraw,
		Extent:           w.host.CurrentSurfaceExtent,
	})
	if err != nil {
		w.swapchain.Destroy()
		w.teardownDevice()
		return err
	}
	w.initialized = true

	if w.renderer != nil {
		if err := w.renderer.InitResources(w); err != nil {
			w.Destroy()
			return errors.Wrap(err, "init renderer resources")
		}
	}
	if !w.swapchain.Handle().IsNull() {
		if err := w.frames.initSwapchainResources(); err != nil {
			w.Destroy()
			return err
		}
	}

	w.host.SetRedrawCallback(w.onRedraw)
	w.host.RequestRedraw()
	return nil
}

func (w *Window) teardownDevice() {
	w.device.Destroy()
	w.drv.DestroySurface(w.surface)
}

func (w *Window) initSwapchainResources() error {
	if w.renderer == nil {
		return nil
	}
	return w.renderer.InitSwapchainResources(w)
}

func (w *Window) releaseSwapchainResources() {
	if w.renderer != nil {
		w.renderer.ReleaseSwapchainResources(w)
	}
}

func (w *Window) record() error {
	if w.renderer != nil {
		return w.renderer.NextFrame(w)
	}
	w.BeginRenderPass(w.cfg.ClearColor)
	w.EndRenderPass()
	return w.FrameReady(Semaphore(NullHandle))
}

func (w *Window) onRedraw() {
	if err := w.RenderFrame(); err != nil && w.err == nil {
		w.err = err
		Logger().Error("render frame", slog.Any("err", err))
	}
}

// RenderFrame runs one redraw tick.
func (w *Window) RenderFrame() error {
	if !w.initialized {
		return ErrNotInitialized
	}
	return w.frames.BeginFrame()
}

// FrameReady ends the current frame and presents it. Renderers call it
// exactly once from NextFrame. signal, when not null, replaces the
// semaphore the frame's submission signals.
func (w *Window) FrameReady(signal Semaphore) error {
	if !w.initialized {
		return ErrNotInitialized
	}
	return w.frames.FrameReady(signal)
}

// Grab renders one frame synchronously and returns a copy of it.
func (w *Window) Grab() (*FrameGrab, error) {
	if !w.initialized {
		return nil, ErrNotInitialized
	}
	if w.frames.State() != StateIdle {
		return nil, protocolViolation("Grab called inside a frame")
	}
	for i := 0; i < maxGrabAttempts; i++ {
		if !w.swapchain.Handle().IsNull() && !w.swapchain.SupportsReadback() {
			return nil, ErrReadbackUnsupported
		}
		w.frames.RequestGrab()
		if err := w.frames.BeginFrame(); err != nil {
			return nil, err
		}
		grab, err := w.frames.TakeGrab()
		if grab != nil || err != nil {
			return grab, err
		}
	}
	return nil, errors.Errorf("no frame presented after %d attempts", maxGrabAttempts)
}

// BeginRenderPass begins the default render pass on the current command
// buffer, clearing colour to clear and depth to 1.
func (w *Window) BeginRenderPass(clear [4]float32) {
	values := []ClearValue{ClearColor(clear[0], clear[1], clear[2], clear[3]), ClearDepthStencil(1, 0)}
	if w.swapchain.Samples() > SampleCount1 {
		values = append(values, ClearColor(clear[0], clear[1], clear[2], clear[3]))
	}
	w.drv.CmdBeginRenderPass(w.CurrentCommandBuffer(), RenderPassBeginInfo{
		RenderPass:  w.swapchain.RenderPass(),
		Framebuffer: w.Framebuffer(),
		Extent:      w.swapchain.Extent(),
		ClearValues: values,
	})
}

func (w *Window) EndRenderPass() {
	w.drv.CmdEndRenderPass(w.CurrentCommandBuffer())
}

// LoadShader reads a SPIR-V file and creates a shader module from it. The
// caller destroys it with DestroyShader.
func (w *Window) LoadShader(path string) (ShaderModule, error) {
	if !w.initialized {
		return ShaderModule(NullHandle), ErrNotInitialized
	}
	code, err := ReadSPIRV(path)
	if err != nil {
		return ShaderModule(NullHandle), err
	}
	m, err := w.drv.CreateShaderModule(w.device.Device, code)
	if err != nil {
		return ShaderModule(NullHandle), errors.Wrapf(err, "create shader module %s", path)
	}
	return m, nil
}

func (w *Window) DestroyShader(m ShaderModule) {
	w.drv.DestroyShaderModule(w.device.Device, m)
}

// NewSemaphoreRing creates one semaphore per frame in flight. Renderers
// create it in InitSwapchainResources since the frame count follows the
// swapchain.
func (w *Window) NewSemaphoreRing() (*SemaphoreRing, error) {
	return NewSemaphoreRing(w.drv, w.device.Device, w.frames.FramesInFlight())
}

// Destroy tears the window down: device idle, renderer swapchain resources,
// renderer resources, frame resources, swapchain, device and surface.
func (w *Window) Destroy() {
	if !w.initialized {
		return
	}
	w.initialized = false

	w.drv.DeviceWaitIdle(w.device.Device)
	w.frames.releaseSwapchainResources()
	if w.renderer != nil {
		w.renderer.ReleaseResources(w)
	}
	w.frames.Destroy()
	w.swapchain.Destroy()
	w.teardownDevice()
	w.host.SetRedrawCallback(nil)
}

// Err returns the first error a host triggered redraw ran into.
func (w *Window) Err() error { return w.err }

func (w *Window) Config() Config                   { return w.cfg }
func (w *Window) Driver() Driver                   { return w.drv }
func (w *Window) DeviceContext() *DeviceContext    { return w.device }
func (w *Window) Swapchain() *SwapchainManager     { return w.swapchain }
func (w *Window) Scheduler() *FrameScheduler       { return w.frames }
func (w *Window) Surface() Surface                 { return w.surface }
func (w *Window) SwapchainImageSize() Extent2D     { return w.swapchain.Extent() }
func (w *Window) PhysicalDevice() PhysicalDevice   { return w.device.PhysicalDevice }
func (w *Window) Device() Device                   { return w.device.Device }
func (w *Window) GraphicsQueue() Queue             { return w.device.GraphicsQueue }
func (w *Window) GraphicsCommandPool() CommandPool { return w.frames.CommandPool() }
func (w *Window) RenderPass() RenderPass           { return w.swapchain.RenderPass() }
func (w *Window) Framebuffers() []Framebuffer      { return w.swapchain.Framebuffers() }
func (w *Window) ColorFormat() Format              { return w.device.ColorFormat }
func (w *Window) DepthStencilFormat() Format       { return w.device.DepthFormat }
func (w *Window) CurrentFrame() int                { return w.frames.CurrentFrame() }
func (w *Window) CurrentImageIndex() uint32        { return w.frames.CurrentImageIndex() }
func (w *Window) FramesInFlight() int              { return w.frames.FramesInFlight() }
func (w *Window) Stats() FrameStats                { return w.frames.Stats() }

// CurrentCommandBuffer is the command buffer NextFrame records into.
func (w *Window) CurrentCommandBuffer() CommandBuffer {
	return w.frames.CurrentCommandBuffer()
}

// Framebuffer is the framebuffer of the image being rendered.
func (w *Window) Framebuffer() Framebuffer {
	return w.swapchain.Framebuffer(int(w.frames.CurrentImageIndex()))
}
