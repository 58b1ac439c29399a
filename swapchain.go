package lava

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

type SwapchainOptions struct {
	// VSync restricts the present mode to fifo.
	VSync bool
	// Samples above 1 add a transient multisampled colour attachment that
	// resolves into the swapchain image.
	Samples SampleCount
	// KeepDepth stores the depth attachment at the end of the render pass
	// instead of discarding it.
	KeepDepth bool
	// AcquireTimeout bounds AcquireNextImage, DefaultFenceTimeout when zero.
	AcquireTimeout time.Duration
}

// SwapchainManager owns a swapchain together with everything derived from it:
// image views, the shared depth attachment, the optional multisampled colour
// attachment, the render pass and one framebuffer per image. The set is
// rebuilt as a unit by Recreate.
type SwapchainManager struct {
	drv     Driver
	ctx     *DeviceContext
	surface Surface
	opts    SwapchainOptions

	swapchain      Swapchain
	extent         Extent2D
	presentMode    PresentMode
	compositeAlpha CompositeAlpha
	usage          ImageUsage

	images       []Image
	views        []ImageView
	depthImage   Image
	depthView    ImageView
	msaaImage    Image
	msaaView     ImageView
	renderPass   RenderPass
	framebuffers []Framebuffer

	needsRecreate bool
	recreates     int
}

func NewSwapchainManager(drv Driver, ctx *DeviceContext, surface Surface, opts SwapchainOptions) *SwapchainManager {
	if opts.Samples == 0 {
		opts.Samples = SampleCount1
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultFenceTimeout
	}
	return &SwapchainManager{
		drv:     drv,
		ctx:     ctx,
		surface: surface,
		opts:    opts,
	}
}

// chooseExtent returns the surface's current extent, unless the surface
// reports the undefined sentinel, in which case requested is clamped to the
// supported range.
func chooseExtent(caps SurfaceCapabilities, requested Extent2D) Extent2D {
	if caps.CurrentExtent.Width != UndefinedExtent {
		return caps.CurrentExtent
	}
	return Extent2D{
		Width:  clampUint32(requested.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clampUint32(requested.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clampUint32(v, lo, hi uint32) uint32 {
	if v < lo {
		v = lo
	}
	if hi != 0 && v > hi {
		v = hi
	}
	return v
}

// chooseImageCount asks for one image more than the minimum, within the
// maximum. A maximum of zero means no limit.
func chooseImageCount(caps SurfaceCapabilities) uint32 {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

func choosePresentMode(modes []PresentMode, vsync bool) PresentMode {
	if vsync {
		return PresentModeFifo
	}
	for _, want := range []PresentMode{PresentModeMailbox, PresentModeImmediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return PresentModeFifo
}

func chooseCompositeAlpha(supported CompositeAlpha) CompositeAlpha {
	for _, a := range []CompositeAlpha{
		CompositeAlphaOpaque,
		CompositeAlphaPreMultiplied,
		CompositeAlphaPostMultiplied,
		CompositeAlphaInherit,
	} {
		if supported&a != 0 {
			return a
		}
	}
	return CompositeAlphaOpaque
}

// Create builds the swapchain and its dependent resources for extent. When
// old is not null it is handed to the driver for reuse; the caller still
// owns it. ErrZeroExtent is returned for a zero sized surface.
func (m *SwapchainManager) Create(extent Extent2D, old Swapchain) error {
	if !m.swapchain.IsNull() && m.swapchain != old {
		return errors.New("swapchain already created, use Recreate")
	}

	caps, err := m.drv.SurfaceCapabilities(m.ctx.PhysicalDevice, m.surface)
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}
	extent = chooseExtent(caps, extent)
	if extent.IsZero() {
		return ErrZeroExtent
	}

	modes, err := m.drv.SurfacePresentModes(m.ctx.PhysicalDevice, m.surface)
	if err != nil {
		return errors.Wrap(err, "query present modes")
	}

	usage := ImageUsageColorAttachment
	if caps.SupportedUsage&ImageUsageTransferSrc != 0 {
		usage |= ImageUsageTransferSrc
	}

	info := SwapchainCreateInfo{
		Surface:        m.surface,
		MinImageCount:  chooseImageCount(caps),
		Format:         m.ctx.ColorFormat,
		ColorSpace:     m.ctx.ColorSpace,
		Extent:         extent,
		Usage:          usage,
		Sharing:        SharingModeExclusive,
		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: chooseCompositeAlpha(caps.SupportedCompositeAlpha),
		PresentMode:    choosePresentMode(modes, m.opts.VSync),
		OldSwapchain:   old,
	}
	if m.ctx.OwnershipTransfer() {
		info.Sharing = SharingModeConcurrent
		info.QueueFamilies = []uint32{uint32(m.ctx.GraphicsFamily), uint32(m.ctx.PresentFamily)}
	}

	sc, err := m.drv.CreateSwapchain(m.ctx.Device, info)
	if err != nil {
		return errors.Wrapf(ErrSwapchainCreation, "%s: %v", extent, err)
	}
	images, err := m.drv.SwapchainImages(m.ctx.Device, sc)
	if err != nil {
		m.drv.DestroySwapchain(m.ctx.Device, sc)
		return errors.Wrapf(ErrSwapchainCreation, "get images: %v", err)
	}

	m.swapchain = sc
	m.extent = extent
	m.presentMode = info.PresentMode
	m.compositeAlpha = info.CompositeAlpha
	m.usage = usage
	m.images = images
	m.needsRecreate = false

	if err := m.createDependents(); err != nil {
		return err
	}

	Logger().Info("swapchain created",
		slog.String("extent", extent.String()),
		slog.Int("images", len(images)),
		slog.String("format", m.ctx.ColorFormat.String()),
		slog.String("presentMode", info.PresentMode.String()),
		slog.Int("samples", int(m.opts.Samples)),
		slog.Bool("readback", m.SupportsReadback()))
	return nil
}

func (m *SwapchainManager) createDependents() error {
	dev := m.ctx.Device

	m.views = make([]ImageView, len(m.images))
	for i, img := range m.images {
		view, err := m.drv.CreateImageView(dev, ImageViewCreateInfo{
			Image:  img,
			Format: m.ctx.ColorFormat,
			Aspect: ImageAspectColor,
		})
		if err != nil {
			return errors.Wrapf(err, "create view for swapchain image %d", i)
		}
		m.views[i] = view
	}

	var err error
	m.depthImage, err = m.drv.CreateImage(dev, ImageCreateInfo{
		Extent:  m.extent,
		Format:  m.ctx.DepthFormat,
		Tiling:  ImageTilingOptimal,
		Usage:   ImageUsageDepthStencilAttachment,
		Samples: m.opts.Samples,
		Memory:  MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return errors.Wrap(err, "create depth image")
	}
	m.depthView, err = m.drv.CreateImageView(dev, ImageViewCreateInfo{
		Image:  m.depthImage,
		Format: m.ctx.DepthFormat,
		Aspect: m.ctx.DepthFormat.Aspect(),
	})
	if err != nil {
		return errors.Wrap(err, "create depth view")
	}

	if m.multisampled() {
		m.msaaImage, err = m.drv.CreateImage(dev, ImageCreateInfo{
			Extent:  m.extent,
			Format:  m.ctx.ColorFormat,
			Tiling:  ImageTilingOptimal,
			Usage:   ImageUsageColorAttachment | ImageUsageTransientAttachment,
			Samples: m.opts.Samples,
			Memory:  MemoryPropertyDeviceLocal,
		})
		if err != nil {
			return errors.Wrap(err, "create multisampled colour image")
		}
		m.msaaView, err = m.drv.CreateImageView(dev, ImageViewCreateInfo{
			Image:  m.msaaImage,
			Format: m.ctx.ColorFormat,
			Aspect: ImageAspectColor,
		})
		if err != nil {
			return errors.Wrap(err, "create multisampled colour view")
		}
	}

	if m.renderPass.IsNull() {
		m.renderPass, err = m.drv.CreateRenderPass(dev, m.renderPassInfo())
		if err != nil {
			return errors.Wrap(err, "create render pass")
		}
	}

	m.framebuffers = make([]Framebuffer, len(m.views))
	for i, view := range m.views {
		attachments := []ImageView{view, m.depthView}
		if m.multisampled() {
			attachments = []ImageView{m.msaaView, m.depthView, view}
		}
		fb, err := m.drv.CreateFramebuffer(dev, FramebufferCreateInfo{
			RenderPass:  m.renderPass,
			Attachments: attachments,
			Extent:      m.extent,
		})
		if err != nil {
			return errors.Wrapf(err, "create framebuffer %d", i)
		}
		m.framebuffers[i] = fb
	}
	return nil
}

func (m *SwapchainManager) multisampled() bool {
	return m.opts.Samples > SampleCount1
}

// renderPassInfo describes the default render pass: colour cleared and
// stored for presentation, depth cleared and stored or discarded. With
// multisampling the colour attachment is transient and resolved into the
// swapchain image.
func (m *SwapchainManager) renderPassInfo() RenderPassCreateInfo {
	depthStore := StoreOpDontCare
	if m.opts.KeepDepth {
		depthStore = StoreOpStore
	}
	depthStencilStore := StoreOpDontCare
	if m.opts.KeepDepth && m.ctx.DepthFormat.HasStencil() {
		depthStencilStore = StoreOpStore
	}
	depthStencilLoad := LoadOpDontCare
	if m.ctx.DepthFormat.HasStencil() {
		depthStencilLoad = LoadOpClear
	}
	depth := AttachmentDescription{
		Format:         m.ctx.DepthFormat,
		Samples:        m.opts.Samples,
		LoadOp:         LoadOpClear,
		StoreOp:        depthStore,
		StencilLoadOp:  depthStencilLoad,
		StencilStoreOp: depthStencilStore,
		InitialLayout:  ImageLayoutUndefined,
		FinalLayout:    ImageLayoutDepthStencilAttachmentOptimal,
	}

	if !m.multisampled() {
		return RenderPassCreateInfo{
			Attachments: []AttachmentDescription{{
				Format:         m.ctx.ColorFormat,
				Samples:        SampleCount1,
				LoadOp:         LoadOpClear,
				StoreOp:        StoreOpStore,
				StencilLoadOp:  LoadOpDontCare,
				StencilStoreOp: StoreOpDontCare,
				InitialLayout:  ImageLayoutUndefined,
				FinalLayout:    ImageLayoutPresentSrc,
			}, depth},
			ColorAttachment:   0,
			DepthAttachment:   1,
			ResolveAttachment: NoAttachment,
		}
	}

	return RenderPassCreateInfo{
		Attachments: []AttachmentDescription{{
			Format:         m.ctx.ColorFormat,
			Samples:        m.opts.Samples,
			LoadOp:         LoadOpClear,
			StoreOp:        StoreOpDontCare,
			StencilLoadOp:  LoadOpDontCare,
			StencilStoreOp: StoreOpDontCare,
			InitialLayout:  ImageLayoutUndefined,
			FinalLayout:    ImageLayoutColorAttachmentOptimal,
		}, depth, {
			Format:         m.ctx.ColorFormat,
			Samples:        SampleCount1,
			LoadOp:         LoadOpDontCare,
			StoreOp:        StoreOpStore,
			StencilLoadOp:  LoadOpDontCare,
			StencilStoreOp: StoreOpDontCare,
			InitialLayout:  ImageLayoutUndefined,
			FinalLayout:    ImageLayoutPresentSrc,
		}},
		ColorAttachment:   0,
		DepthAttachment:   1,
		ResolveAttachment: 2,
	}
}

func (m *SwapchainManager) destroyDependents() {
	dev := m.ctx.Device
	for _, fb := range m.framebuffers {
		if !fb.IsNull() {
			m.drv.DestroyFramebuffer(dev, fb)
		}
	}
	m.framebuffers = nil

	if !m.msaaView.IsNull() {
		m.drv.DestroyImageView(dev, m.msaaView)
		m.msaaView = ImageView(NullHandle)
	}
	if !m.msaaImage.IsNull() {
		m.drv.DestroyImage(dev, m.msaaImage)
		m.msaaImage = Image(NullHandle)
	}
	if !m.depthView.IsNull() {
		m.drv.DestroyImageView(dev, m.depthView)
		m.depthView = ImageView(NullHandle)
	}
	if !m.depthImage.IsNull() {
		m.drv.DestroyImage(dev, m.depthImage)
		m.depthImage = Image(NullHandle)
	}

	// A failed create leaves null entries behind.
	for _, v := range m.views {
		if !v.IsNull() {
			m.drv.DestroyImageView(dev, v)
		}
	}
	m.views = nil
	// Swapchain images belong to the swapchain.
	m.images = nil
}

// Recreate rebuilds the swapchain for extent. The render pass is kept. The
// old swapchain is passed to the driver and destroyed once the new one is
// live. A zero sized surface leaves everything untouched and returns
// ErrZeroExtent.
func (m *SwapchainManager) Recreate(extent Extent2D) error {
	if m.swapchain.IsNull() {
		return m.Create(extent, Swapchain(NullHandle))
	}

	caps, err := m.drv.SurfaceCapabilities(m.ctx.PhysicalDevice, m.surface)
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}
	if chooseExtent(caps, extent).IsZero() {
		Logger().Debug("swapchain recreate deferred, surface has no size")
		return ErrZeroExtent
	}

	if err := m.drv.DeviceWaitIdle(m.ctx.Device); err != nil {
		return errors.Wrap(err, "wait idle before recreate")
	}
	m.destroyDependents()

	old := m.swapchain
	err = m.Create(extent, old)
	if m.swapchain != old {
		m.drv.DestroySwapchain(m.ctx.Device, old)
	}
	if err != nil {
		return err
	}
	m.recreates++
	return nil
}

// AcquireNextImage acquires the next presentable image, signalling signal
// when it is ready. Suboptimal is accepted and flags the swapchain for
// recreation before the next frame.
func (m *SwapchainManager) AcquireNextImage(signal Semaphore) (uint32, Result, error) {
	idx, res, err := m.drv.AcquireNextImage(m.ctx.Device, m.swapchain, m.opts.AcquireTimeout, signal)
	if err != nil {
		return 0, res, errors.Wrap(err, "acquire next image")
	}
	switch res {
	case OutOfDate:
		return 0, res, nil
	case Suboptimal:
		m.needsRecreate = true
	case Timeout, NotReady:
		return 0, res, errors.Wrapf(ErrDeviceLost, "no image acquired within %s", m.opts.AcquireTimeout)
	}
	if int(idx) >= len(m.images) {
		return 0, res, errors.Errorf("acquired image index %d out of range [0, %d)", idx, len(m.images))
	}
	return idx, res, nil
}

// NeedsRecreate reports whether a suboptimal acquire or present asked for a
// recreate that has not happened yet.
func (m *SwapchainManager) NeedsRecreate() bool {
	return m.needsRecreate
}

// MarkStale flags the swapchain for recreation before the next frame.
func (m *SwapchainManager) MarkStale() {
	m.needsRecreate = true
}

// Destroy releases the swapchain and everything derived from it, the render
// pass included.
func (m *SwapchainManager) Destroy() {
	if m.swapchain.IsNull() && m.renderPass.IsNull() {
		return
	}
	m.drv.DeviceWaitIdle(m.ctx.Device)
	m.destroyDependents()
	if !m.renderPass.IsNull() {
		m.drv.DestroyRenderPass(m.ctx.Device, m.renderPass)
		m.renderPass = RenderPass(NullHandle)
	}
	if !m.swapchain.IsNull() {
		m.drv.DestroySwapchain(m.ctx.Device, m.swapchain)
		m.swapchain = Swapchain(NullHandle)
	}
}

func (m *SwapchainManager) Handle() Swapchain           { return m.swapchain }
func (m *SwapchainManager) Extent() Extent2D            { return m.extent }
func (m *SwapchainManager) ImageCount() int             { return len(m.images) }
func (m *SwapchainManager) Images() []Image             { return m.images }
func (m *SwapchainManager) Views() []ImageView          { return m.views }
func (m *SwapchainManager) Framebuffers() []Framebuffer { return m.framebuffers }
func (m *SwapchainManager) RenderPass() RenderPass      { return m.renderPass }
func (m *SwapchainManager) ColorFormat() Format         { return m.ctx.ColorFormat }
func (m *SwapchainManager) DepthFormat() Format         { return m.ctx.DepthFormat }
func (m *SwapchainManager) PresentMode() PresentMode    { return m.presentMode }
func (m *SwapchainManager) Samples() SampleCount        { return m.opts.Samples }
func (m *SwapchainManager) Recreates() int              { return m.recreates }

// Framebuffer returns the framebuffer for swapchain image i.
func (m *SwapchainManager) Framebuffer(i int) Framebuffer {
	if i < 0 || i >= len(m.framebuffers) {
		return Framebuffer(NullHandle)
	}
	return m.framebuffers[i]
}

// SupportsReadback reports whether the swapchain images can be a transfer
// source.
func (m *SwapchainManager) SupportsReadback() bool {
	return m.usage&ImageUsageTransferSrc != 0
}
