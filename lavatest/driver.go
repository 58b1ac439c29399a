// Package lavatest provides an in-memory lava.Driver and lava.WindowHost, so
// frame lifecycles can be exercised without a GPU.
//
// The Driver executes command buffers at submission and models the GPU as
// finishing work only when a fence is waited on or a queue or device is
// waited idle. Misuse of fences, semaphores and command buffers that a
// validation layer would report is collected in Violations rather than
// failing the call.
package lavatest

import (
	"fmt"
	"time"

	"github.com/celer/lava"
	"github.com/pkg/errors"
)

// PhysicalDevice describes a fake GPU.
type PhysicalDevice struct {
	Name     string
	Type     lava.DeviceType
	Families []lava.QueueFamilyInfo
	// PresentFamilies lists the families able to present to any surface.
	PresentFamilies []int
	SurfaceFormats  []lava.SurfaceFormat
	// Formats overrides DefaultFormatProperties per format.
	Formats      map[lava.Format]lava.FormatProperties
	Extensions   []string
	Caps         lava.SurfaceCapabilities
	PresentModes []lava.PresentMode
}

// DefaultPhysicalDevice is a discrete GPU with one graphics family able to
// present, a BGRA sRGB surface format and fifo plus mailbox present modes.
func DefaultPhysicalDevice() *PhysicalDevice {
	return &PhysicalDevice{
		Name: "lavatest GPU",
		Type: lava.DeviceTypeDiscrete,
		Families: []lava.QueueFamilyInfo{
			{Index: 0, Flags: lava.QueueGraphics | lava.QueueCompute | lava.QueueTransfer, Count: 1},
		},
		PresentFamilies: []int{0},
		SurfaceFormats: []lava.SurfaceFormat{
			{Format: lava.FormatB8G8R8A8Srgb, ColorSpace: lava.ColorSpaceSrgbNonlinear},
			{Format: lava.FormatB8G8R8A8Unorm, ColorSpace: lava.ColorSpaceSrgbNonlinear},
		},
		Extensions: []string{lava.SwapchainExtension},
		Caps: lava.SurfaceCapabilities{
			MinImageCount:           2,
			MaxImageCount:           8,
			MinImageExtent:          lava.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:          lava.Extent2D{Width: 16384, Height: 16384},
			SupportedUsage:          lava.ImageUsageColorAttachment | lava.ImageUsageTransferSrc | lava.ImageUsageTransferDst,
			SupportedCompositeAlpha: lava.CompositeAlphaOpaque,
		},
		PresentModes: []lava.PresentMode{lava.PresentModeFifo, lava.PresentModeMailbox},
	}
}

// DefaultFormatProperties gives depth formats optimal depth attachment
// support and colour formats blit and copy support in both tilings.
func DefaultFormatProperties(f lava.Format) lava.FormatProperties {
	switch {
	case f.IsDepth():
		return lava.FormatProperties{Optimal: lava.FormatFeatureDepthStencilAttachment}
	case f.BytesPerPixel() == 4:
		all := lava.FormatFeatureColorAttachment | lava.FormatFeatureBlitSrc | lava.FormatFeatureBlitDst |
			lava.FormatFeatureTransferSrc | lava.FormatFeatureTransferDst | lava.FormatFeatureSampledImage
		return lava.FormatProperties{Linear: all, Optimal: all}
	}
	return lava.FormatProperties{}
}

type device struct {
	pd     *PhysicalDevice
	queues map[int]lava.Queue
}

type commandBuffer struct {
	recording bool
	busy      bool
	ops       []func()
}

type fence struct {
	signaled bool
}

type semaphore struct {
	signaled bool
}

type submission struct {
	cmds  []*commandBuffer
	fence *fence
}

type swapchain struct {
	info     lava.SwapchainCreateInfo
	images   []lava.Image
	acquired []bool
	next     int
}

type image struct {
	info      lava.ImageCreateInfo
	swapchain bool
	color     [4]float32
	mapped    bool
}

// Driver is an in-memory lava.Driver. It is not safe for concurrent use.
type Driver struct {
	Physical []*PhysicalDevice
	// SurfaceExtent is the current extent every surface reports.
	SurfaceExtent lava.Extent2D
	// UndefinedExtent makes surfaces report the undefined extent sentinel,
	// leaving the size to the swapchain.
	UndefinedExtent bool
	// RowPadding is added to the row pitch of linear images.
	RowPadding int

	// AcquireResults and PresentResults script the outcome of the next
	// calls. Once drained, a swapchain whose extent no longer matches the
	// surface is out of date and everything else succeeds.
	AcquireResults []lava.Result
	PresentResults []lava.Result
	// HangFences keeps submitted work from ever completing.
	HangFences bool
	// CreateSwapchainErr fails every CreateSwapchain while set.
	CreateSwapchainErr error
	// CreateImageErr fails every CreateImage while set.
	CreateImageErr error
	// MapImageErr fails every MapImage while set.
	MapImageErr error

	Submits          []lava.SubmitInfo
	Presents         []lava.PresentInfo
	RenderPassBegins []lava.RenderPassBeginInfo
	Barriers         []lava.ImageBarrier
	SwapchainInfos   []lava.SwapchainCreateInfo
	DeviceInfos      []lava.DeviceCreateInfo
	FenceWaits       int
	Violations       []string

	instance  lava.Instance
	instances lava.Arena[struct{}]
	surfaces  lava.Arena[struct{}]

	physical        lava.Arena[*PhysicalDevice]
	physicalHandles map[*PhysicalDevice]lava.PhysicalDevice

	devices      lava.Arena[*device]
	queues       lava.Arena[int]
	pools        lava.Arena[int]
	cmds         lava.Arena[*commandBuffer]
	fences       lava.Arena[*fence]
	semaphores   lava.Arena[*semaphore]
	swapchains   lava.Arena[*swapchain]
	images       lava.Arena[*image]
	views        lava.Arena[lava.Image]
	renderPasses lava.Arena[lava.RenderPassCreateInfo]
	framebuffers lava.Arena[lava.FramebufferCreateInfo]
	shaders      lava.Arena[[]byte]

	pending []submission
}

var _ lava.Driver = (*Driver)(nil)

// NewDriver returns a driver with DefaultPhysicalDevice and an 800x600
// surface.
func NewDriver() *Driver {
	d := &Driver{
		Physical:        []*PhysicalDevice{DefaultPhysicalDevice()},
		SurfaceExtent:   lava.Extent2D{Width: 800, Height: 600},
		RowPadding:      16,
		physicalHandles: make(map[*PhysicalDevice]lava.PhysicalDevice),
	}
	d.instance = lava.Instance(d.instances.Insert(struct{}{}))
	return d
}

func (d *Driver) violation(format string, args ...interface{}) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

func stale(kind string, h lava.Handle) error {
	return errors.Errorf("lavatest: null or stale %s handle %s", kind, h)
}

func (d *Driver) device(h lava.Device) (*device, error) {
	dev, ok := d.devices.Get(lava.Handle(h))
	if !ok {
		return nil, stale("device", lava.Handle(h))
	}
	return dev, nil
}

// checkDevice records a violation for void calls made with a bad device.
func (d *Driver) checkDevice(h lava.Device, call string) bool {
	if _, ok := d.devices.Get(lava.Handle(h)); !ok {
		d.violation("%s on null or stale device %s", call, lava.Handle(h))
		return false
	}
	return true
}

func (d *Driver) physicalDevice(h lava.PhysicalDevice) (*PhysicalDevice, error) {
	pd, ok := d.physical.Get(lava.Handle(h))
	if !ok {
		return nil, stale("physical device", lava.Handle(h))
	}
	return pd, nil
}

// Live returns the number of objects that have not been destroyed, the
// instance excluded.
func (d *Driver) Live() map[string]int {
	ret := map[string]int{
		"surface":       d.surfaces.Len(),
		"device":        d.devices.Len(),
		"commandPool":   d.pools.Len(),
		"commandBuffer": d.cmds.Len(),
		"fence":         d.fences.Len(),
		"semaphore":     d.semaphores.Len(),
		"swapchain":     d.swapchains.Len(),
		"image":         d.images.Len(),
		"imageView":     d.views.Len(),
		"renderPass":    d.renderPasses.Len(),
		"framebuffer":   d.framebuffers.Len(),
		"shaderModule":  d.shaders.Len(),
	}
	for k, v := range ret {
		if v == 0 {
			delete(ret, k)
		}
	}
	return ret
}

// InFlight returns the number of submissions the fake GPU has not finished.
func (d *Driver) InFlight() int {
	return len(d.pending)
}

func (d *Driver) Instance() lava.Instance {
	return d.instance
}

// CreateSurface creates a surface against instance.
func (d *Driver) CreateSurface(instance lava.Instance) (lava.Surface, error) {
	if _, ok := d.instances.Get(lava.Handle(instance)); !ok {
		return lava.Surface(lava.NullHandle), stale("instance", lava.Handle(instance))
	}
	return lava.Surface(d.surfaces.Insert(struct{}{})), nil
}

func (d *Driver) DestroySurface(s lava.Surface) {
	if _, ok := d.surfaces.Remove(lava.Handle(s)); !ok {
		d.violation("destroy of null or stale surface %s", lava.Handle(s))
	}
}

func (d *Driver) PhysicalDevices() ([]lava.PhysicalDeviceInfo, error) {
	ret := make([]lava.PhysicalDeviceInfo, 0, len(d.Physical))
	for _, pd := range d.Physical {
		h, ok := d.physicalHandles[pd]
		if !ok {
			h = lava.PhysicalDevice(d.physical.Insert(pd))
			d.physicalHandles[pd] = h
		}
		ret = append(ret, lava.PhysicalDeviceInfo{Handle: h, Name: pd.Name, Type: pd.Type})
	}
	return ret, nil
}

func (d *Driver) QueueFamilies(h lava.PhysicalDevice) ([]lava.QueueFamilyInfo, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return nil, err
	}
	return append([]lava.QueueFamilyInfo(nil), pd.Families...), nil
}

func (d *Driver) SurfaceSupport(h lava.PhysicalDevice, family int, surface lava.Surface) (bool, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return false, err
	}
	if _, ok := d.surfaces.Get(lava.Handle(surface)); !ok {
		return false, stale("surface", lava.Handle(surface))
	}
	for _, f := range pd.PresentFamilies {
		if f == family {
			return true, nil
		}
	}
	return false, nil
}

func (d *Driver) SurfaceFormats(h lava.PhysicalDevice, surface lava.Surface) ([]lava.SurfaceFormat, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return nil, err
	}
	return append([]lava.SurfaceFormat(nil), pd.SurfaceFormats...), nil
}

func (d *Driver) FormatProperties(h lava.PhysicalDevice, format lava.Format) lava.FormatProperties {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return lava.FormatProperties{}
	}
	if p, ok := pd.Formats[format]; ok {
		return p
	}
	return DefaultFormatProperties(format)
}

func (d *Driver) DeviceExtensions(h lava.PhysicalDevice) ([]string, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), pd.Extensions...), nil
}

func (d *Driver) CreateDevice(h lava.PhysicalDevice, info lava.DeviceCreateInfo) (lava.Device, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return lava.Device(lava.NullHandle), err
	}
	d.DeviceInfos = append(d.DeviceInfos, info)
	dev := &device{pd: pd, queues: make(map[int]lava.Queue)}
	for _, family := range info.QueueFamilies {
		if family < 0 || family >= len(pd.Families) {
			return lava.Device(lava.NullHandle), errors.Errorf("lavatest: no queue family %d", family)
		}
		if _, ok := dev.queues[family]; !ok {
			dev.queues[family] = lava.Queue(d.queues.Insert(family))
		}
	}
	return lava.Device(d.devices.Insert(dev)), nil
}

func (d *Driver) DeviceQueue(h lava.Device, family int) lava.Queue {
	dev, err := d.device(h)
	if err != nil {
		return lava.Queue(lava.NullHandle)
	}
	return dev.queues[family]
}

func (d *Driver) DestroyDevice(h lava.Device) {
	dev, ok := d.devices.Remove(lava.Handle(h))
	if !ok {
		d.violation("destroy of null or stale device %s", lava.Handle(h))
		return
	}
	if len(d.pending) > 0 {
		d.violation("device destroyed with %d submissions in flight", len(d.pending))
	}
	for _, q := range dev.queues {
		d.queues.Remove(lava.Handle(q))
	}
	if d.devices.Len() == 0 {
		for kind, n := range d.Live() {
			if kind != "surface" {
				d.violation("device destroyed with %d live %s objects", n, kind)
			}
		}
	}
}

func (d *Driver) DeviceWaitIdle(h lava.Device) error {
	if _, err := d.device(h); err != nil {
		return err
	}
	d.idle()
	return nil
}

// idle finishes every pending submission unless the GPU hangs.
func (d *Driver) idle() {
	if d.HangFences {
		return
	}
	for _, s := range d.pending {
		complete(s)
	}
	d.pending = nil
}

func complete(s submission) {
	for _, cb := range s.cmds {
		cb.busy = false
	}
	if s.fence != nil {
		s.fence.signaled = true
	}
}

func (d *Driver) SurfaceCapabilities(h lava.PhysicalDevice, surface lava.Surface) (lava.SurfaceCapabilities, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return lava.SurfaceCapabilities{}, err
	}
	if _, ok := d.surfaces.Get(lava.Handle(surface)); !ok {
		return lava.SurfaceCapabilities{}, stale("surface", lava.Handle(surface))
	}
	caps := pd.Caps
	caps.CurrentExtent = d.SurfaceExtent
	if d.UndefinedExtent {
		caps.CurrentExtent = lava.Extent2D{Width: lava.UndefinedExtent, Height: lava.UndefinedExtent}
	}
	return caps, nil
}

func (d *Driver) SurfacePresentModes(h lava.PhysicalDevice, surface lava.Surface) ([]lava.PresentMode, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return nil, err
	}
	return append([]lava.PresentMode(nil), pd.PresentModes...), nil
}

func (d *Driver) CreateSwapchain(h lava.Device, info lava.SwapchainCreateInfo) (lava.Swapchain, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.Swapchain(lava.NullHandle), err
	}
	if d.CreateSwapchainErr != nil {
		return lava.Swapchain(lava.NullHandle), d.CreateSwapchainErr
	}
	if _, ok := d.surfaces.Get(lava.Handle(info.Surface)); !ok {
		return lava.Swapchain(lava.NullHandle), stale("surface", lava.Handle(info.Surface))
	}
	if info.Extent.IsZero() {
		d.violation("swapchain created with zero extent")
	}
	caps := dev.pd.Caps
	if info.MinImageCount < caps.MinImageCount || (caps.MaxImageCount > 0 && info.MinImageCount > caps.MaxImageCount) {
		d.violation("swapchain image count %d outside [%d, %d]", info.MinImageCount, caps.MinImageCount, caps.MaxImageCount)
	}
	if info.Usage&^caps.SupportedUsage != 0 {
		d.violation("swapchain usage %#x not supported", info.Usage)
	}
	if !info.OldSwapchain.IsNull() {
		if _, ok := d.swapchains.Get(lava.Handle(info.OldSwapchain)); !ok {
			d.violation("old swapchain %s is stale", lava.Handle(info.OldSwapchain))
		}
	}
	d.SwapchainInfos = append(d.SwapchainInfos, info)

	sc := &swapchain{info: info}
	for i := uint32(0); i < info.MinImageCount; i++ {
		sc.images = append(sc.images, lava.Image(d.images.Insert(&image{
			info: lava.ImageCreateInfo{
				Extent:  info.Extent,
				Format:  info.Format,
				Tiling:  lava.ImageTilingOptimal,
				Usage:   info.Usage,
				Samples: lava.SampleCount1,
			},
			swapchain: true,
		})))
	}
	sc.acquired = make([]bool, len(sc.images))
	return lava.Swapchain(d.swapchains.Insert(sc)), nil
}

func (d *Driver) SwapchainImages(h lava.Device, sc lava.Swapchain) ([]lava.Image, error) {
	if _, err := d.device(h); err != nil {
		return nil, err
	}
	s, ok := d.swapchains.Get(lava.Handle(sc))
	if !ok {
		return nil, stale("swapchain", lava.Handle(sc))
	}
	return append([]lava.Image(nil), s.images...), nil
}

func (d *Driver) DestroySwapchain(h lava.Device, sc lava.Swapchain) {
	if !d.checkDevice(h, "DestroySwapchain") {
		return
	}
	s, ok := d.swapchains.Remove(lava.Handle(sc))
	if !ok {
		d.violation("destroy of null or stale swapchain %s", lava.Handle(sc))
		return
	}
	for _, img := range s.images {
		d.images.Remove(lava.Handle(img))
	}
}

func (d *Driver) outOfDate(s *swapchain) bool {
	return !d.UndefinedExtent && s.info.Extent != d.SurfaceExtent
}

func (d *Driver) AcquireNextImage(h lava.Device, sc lava.Swapchain, timeout time.Duration, signal lava.Semaphore) (uint32, lava.Result, error) {
	if _, err := d.device(h); err != nil {
		return 0, lava.Success, err
	}
	s, ok := d.swapchains.Get(lava.Handle(sc))
	if !ok {
		return 0, lava.Success, stale("swapchain", lava.Handle(sc))
	}

	res := lava.Success
	if len(d.AcquireResults) > 0 {
		res, d.AcquireResults = d.AcquireResults[0], d.AcquireResults[1:]
	} else if d.outOfDate(s) {
		res = lava.OutOfDate
	}
	if res != lava.Success && res != lava.Suboptimal {
		return 0, res, nil
	}

	idx := -1
	for i := 0; i < len(s.images); i++ {
		n := (s.next + i) % len(s.images)
		if !s.acquired[n] {
			idx = n
			break
		}
	}
	if idx < 0 {
		d.violation("acquire with every swapchain image already acquired")
		return 0, lava.Timeout, nil
	}
	s.next = (idx + 1) % len(s.images)
	s.acquired[idx] = true

	if sem, ok := d.semaphores.Get(lava.Handle(signal)); ok {
		if sem.signaled {
			d.violation("acquire signals semaphore %s that is already signalled", lava.Handle(signal))
		}
		sem.signaled = true
	} else {
		d.violation("acquire with null or stale semaphore %s", lava.Handle(signal))
	}
	return uint32(idx), res, nil
}

// wait consumes a signalled semaphore.
func (d *Driver) wait(h lava.Semaphore, call string) {
	sem, ok := d.semaphores.Get(lava.Handle(h))
	if !ok {
		d.violation("%s waits on null or stale semaphore %s", call, lava.Handle(h))
		return
	}
	if !sem.signaled {
		d.violation("%s waits on semaphore %s that nothing signals", call, lava.Handle(h))
	}
	sem.signaled = false
}

func (d *Driver) signal(h lava.Semaphore, call string) {
	sem, ok := d.semaphores.Get(lava.Handle(h))
	if !ok {
		d.violation("%s signals null or stale semaphore %s", call, lava.Handle(h))
		return
	}
	if sem.signaled {
		d.violation("%s signals semaphore %s that is already signalled", call, lava.Handle(h))
	}
	sem.signaled = true
}

func (d *Driver) QueuePresent(queue lava.Queue, info lava.PresentInfo) (lava.Result, error) {
	if _, ok := d.queues.Get(lava.Handle(queue)); !ok {
		return lava.Success, stale("queue", lava.Handle(queue))
	}
	s, ok := d.swapchains.Get(lava.Handle(info.Swapchain))
	if !ok {
		return lava.Success, stale("swapchain", lava.Handle(info.Swapchain))
	}
	if int(info.ImageIndex) >= len(s.images) || !s.acquired[info.ImageIndex] {
		d.violation("present of image %d that is not acquired", info.ImageIndex)
	} else {
		s.acquired[info.ImageIndex] = false
	}
	for _, w := range info.Wait {
		d.wait(w, "present")
	}
	d.Presents = append(d.Presents, info)

	if len(d.PresentResults) > 0 {
		var res lava.Result
		res, d.PresentResults = d.PresentResults[0], d.PresentResults[1:]
		return res, nil
	}
	if d.outOfDate(s) {
		return lava.OutOfDate, nil
	}
	return lava.Success, nil
}

func (d *Driver) CreateImage(h lava.Device, info lava.ImageCreateInfo) (lava.Image, error) {
	if _, err := d.device(h); err != nil {
		return lava.Image(lava.NullHandle), err
	}
	if d.CreateImageErr != nil {
		return lava.Image(lava.NullHandle), d.CreateImageErr
	}
	if info.Extent.IsZero() {
		return lava.Image(lava.NullHandle), errors.New("lavatest: image with zero extent")
	}
	if info.Format == lava.FormatUndefined {
		return lava.Image(lava.NullHandle), errors.New("lavatest: image with undefined format")
	}
	return lava.Image(d.images.Insert(&image{info: info})), nil
}

func (d *Driver) DestroyImage(h lava.Device, img lava.Image) {
	if !d.checkDevice(h, "DestroyImage") {
		return
	}
	i, ok := d.images.Get(lava.Handle(img))
	switch {
	case !ok:
		d.violation("destroy of null or stale image %s", lava.Handle(img))
		return
	case i.swapchain:
		d.violation("destroy of swapchain image %s", lava.Handle(img))
		return
	case i.mapped:
		d.violation("destroy of mapped image %s", lava.Handle(img))
	}
	d.images.Remove(lava.Handle(img))
}

func (d *Driver) CreateImageView(h lava.Device, info lava.ImageViewCreateInfo) (lava.ImageView, error) {
	if _, err := d.device(h); err != nil {
		return lava.ImageView(lava.NullHandle), err
	}
	if _, ok := d.images.Get(lava.Handle(info.Image)); !ok {
		return lava.ImageView(lava.NullHandle), stale("image", lava.Handle(info.Image))
	}
	return lava.ImageView(d.views.Insert(info.Image)), nil
}

func (d *Driver) DestroyImageView(h lava.Device, view lava.ImageView) {
	if !d.checkDevice(h, "DestroyImageView") {
		return
	}
	if _, ok := d.views.Remove(lava.Handle(view)); !ok {
		d.violation("destroy of null or stale image view %s", lava.Handle(view))
	}
}

func (d *Driver) CreateRenderPass(h lava.Device, info lava.RenderPassCreateInfo) (lava.RenderPass, error) {
	if _, err := d.device(h); err != nil {
		return lava.RenderPass(lava.NullHandle), err
	}
	return lava.RenderPass(d.renderPasses.Insert(info)), nil
}

func (d *Driver) DestroyRenderPass(h lava.Device, rp lava.RenderPass) {
	if !d.checkDevice(h, "DestroyRenderPass") {
		return
	}
	if _, ok := d.renderPasses.Remove(lava.Handle(rp)); !ok {
		d.violation("destroy of null or stale render pass %s", lava.Handle(rp))
	}
}

// RenderPassInfo returns the description rp was created with.
func (d *Driver) RenderPassInfo(rp lava.RenderPass) (lava.RenderPassCreateInfo, bool) {
	return d.renderPasses.Get(lava.Handle(rp))
}

func (d *Driver) CreateFramebuffer(h lava.Device, info lava.FramebufferCreateInfo) (lava.Framebuffer, error) {
	if _, err := d.device(h); err != nil {
		return lava.Framebuffer(lava.NullHandle), err
	}
	rp, ok := d.renderPasses.Get(lava.Handle(info.RenderPass))
	if !ok {
		return lava.Framebuffer(lava.NullHandle), stale("render pass", lava.Handle(info.RenderPass))
	}
	if len(info.Attachments) != len(rp.Attachments) {
		return lava.Framebuffer(lava.NullHandle), errors.Errorf("lavatest: framebuffer has %d attachments, render pass %d",
			len(info.Attachments), len(rp.Attachments))
	}
	for _, a := range info.Attachments {
		img, ok := d.views.Get(lava.Handle(a))
		if !ok {
			return lava.Framebuffer(lava.NullHandle), stale("image view", lava.Handle(a))
		}
		if i, ok := d.images.Get(lava.Handle(img)); ok && i.info.Extent != info.Extent {
			d.violation("framebuffer attachment %s is %s, framebuffer %s", lava.Handle(a), i.info.Extent, info.Extent)
		}
	}
	return lava.Framebuffer(d.framebuffers.Insert(info)), nil
}

func (d *Driver) DestroyFramebuffer(h lava.Device, fb lava.Framebuffer) {
	if !d.checkDevice(h, "DestroyFramebuffer") {
		return
	}
	if _, ok := d.framebuffers.Remove(lava.Handle(fb)); !ok {
		d.violation("destroy of null or stale framebuffer %s", lava.Handle(fb))
	}
}

func (d *Driver) rowPitch(i *image) int {
	pitch := int(i.info.Extent.Width) * i.info.Format.BytesPerPixel()
	if i.info.Tiling == lava.ImageTilingLinear {
		pitch += d.RowPadding
	}
	return pitch
}

func (d *Driver) ImageSubresourceLayout(h lava.Device, img lava.Image) lava.SubresourceLayout {
	i, ok := d.images.Get(lava.Handle(img))
	if !ok {
		d.violation("layout of null or stale image %s", lava.Handle(img))
		return lava.SubresourceLayout{}
	}
	pitch := d.rowPitch(i)
	return lava.SubresourceLayout{
		Size:     uint64(pitch) * uint64(i.info.Extent.Height),
		RowPitch: uint64(pitch),
	}
}

func toByte(c float32) byte {
	switch {
	case c <= 0:
		return 0
	case c >= 1:
		return 255
	}
	return byte(c*255 + 0.5)
}

// MapImage returns the image filled with its current colour. Padding bytes
// at the end of each row are 0xEE.
func (d *Driver) MapImage(h lava.Device, img lava.Image) ([]byte, error) {
	if _, err := d.device(h); err != nil {
		return nil, err
	}
	i, ok := d.images.Get(lava.Handle(img))
	if !ok {
		return nil, stale("image", lava.Handle(img))
	}
	if d.MapImageErr != nil {
		return nil, d.MapImageErr
	}
	if i.info.Memory&lava.MemoryPropertyHostVisible == 0 {
		return nil, errors.New("lavatest: image memory is not host visible")
	}
	if i.info.Format.BytesPerPixel() != 4 {
		return nil, errors.Errorf("lavatest: cannot map %s", i.info.Format)
	}
	if len(d.pending) > 0 {
		d.violation("image %s mapped while GPU work is in flight", lava.Handle(img))
	}

	pitch := d.rowPitch(i)
	w, hgt := int(i.info.Extent.Width), int(i.info.Extent.Height)
	px := [4]byte{toByte(i.color[0]), toByte(i.color[1]), toByte(i.color[2]), toByte(i.color[3])}
	if i.info.Format.IsBGR() {
		px[0], px[2] = px[2], px[0]
	}
	data := make([]byte, pitch*hgt)
	for y := 0; y < hgt; y++ {
		row := data[y*pitch : (y+1)*pitch]
		for x := 0; x < w; x++ {
			copy(row[x*4:], px[:])
		}
		for p := w * 4; p < pitch; p++ {
			row[p] = 0xEE
		}
	}
	i.mapped = true
	return data, nil
}

func (d *Driver) UnmapImage(h lava.Device, img lava.Image) {
	i, ok := d.images.Get(lava.Handle(img))
	if !ok || !i.mapped {
		d.violation("unmap of image %s that is not mapped", lava.Handle(img))
		return
	}
	i.mapped = false
}

func (d *Driver) CreateShaderModule(h lava.Device, code []byte) (lava.ShaderModule, error) {
	if _, err := d.device(h); err != nil {
		return lava.ShaderModule(lava.NullHandle), err
	}
	if err := lava.ValidateSPIRV(code); err != nil {
		return lava.ShaderModule(lava.NullHandle), err
	}
	return lava.ShaderModule(d.shaders.Insert(append([]byte(nil), code...))), nil
}

func (d *Driver) DestroyShaderModule(h lava.Device, module lava.ShaderModule) {
	if !d.checkDevice(h, "DestroyShaderModule") {
		return
	}
	if _, ok := d.shaders.Remove(lava.Handle(module)); !ok {
		d.violation("destroy of null or stale shader module %s", lava.Handle(module))
	}
}

func (d *Driver) CreateFence(h lava.Device, signaled bool) (lava.Fence, error) {
	if _, err := d.device(h); err != nil {
		return lava.Fence(lava.NullHandle), err
	}
	return lava.Fence(d.fences.Insert(&fence{signaled: signaled})), nil
}

func (d *Driver) fenceInFlight(f *fence) bool {
	for _, s := range d.pending {
		if s.fence == f {
			return true
		}
	}
	return false
}

func (d *Driver) DestroyFence(h lava.Device, f lava.Fence) {
	if !d.checkDevice(h, "DestroyFence") {
		return
	}
	fc, ok := d.fences.Remove(lava.Handle(f))
	if !ok {
		d.violation("destroy of null or stale fence %s", lava.Handle(f))
		return
	}
	if d.fenceInFlight(fc) {
		d.violation("fence %s destroyed while in flight", lava.Handle(f))
	}
}

// WaitForFence finishes the submissions the fence guards. A fence nothing
// will signal times out, as does every wait while HangFences is set.
func (d *Driver) WaitForFence(h lava.Device, f lava.Fence, timeout time.Duration) (lava.Result, error) {
	if _, err := d.device(h); err != nil {
		return lava.Success, err
	}
	fc, ok := d.fences.Get(lava.Handle(f))
	if !ok {
		return lava.Success, stale("fence", lava.Handle(f))
	}
	d.FenceWaits++
	if fc.signaled {
		return lava.Success, nil
	}
	if d.HangFences || !d.fenceInFlight(fc) {
		return lava.Timeout, nil
	}
	// Submissions complete in order.
	for len(d.pending) > 0 {
		s := d.pending[0]
		d.pending = d.pending[1:]
		complete(s)
		if s.fence == fc {
			break
		}
	}
	return lava.Success, nil
}

func (d *Driver) ResetFence(h lava.Device, f lava.Fence) error {
	if _, err := d.device(h); err != nil {
		return err
	}
	fc, ok := d.fences.Get(lava.Handle(f))
	if !ok {
		return stale("fence", lava.Handle(f))
	}
	if d.fenceInFlight(fc) {
		d.violation("fence %s reset while in flight", lava.Handle(f))
	}
	fc.signaled = false
	return nil
}

func (d *Driver) CreateSemaphore(h lava.Device) (lava.Semaphore, error) {
	if _, err := d.device(h); err != nil {
		return lava.Semaphore(lava.NullHandle), err
	}
	return lava.Semaphore(d.semaphores.Insert(&semaphore{})), nil
}

func (d *Driver) DestroySemaphore(h lava.Device, s lava.Semaphore) {
	if !d.checkDevice(h, "DestroySemaphore") {
		return
	}
	if _, ok := d.semaphores.Remove(lava.Handle(s)); !ok {
		d.violation("destroy of null or stale semaphore %s", lava.Handle(s))
	}
}

// SemaphoreSignaled reports whether s is signalled and not yet waited on.
func (d *Driver) SemaphoreSignaled(s lava.Semaphore) bool {
	sem, ok := d.semaphores.Get(lava.Handle(s))
	return ok && sem.signaled
}

func (d *Driver) CreateCommandPool(h lava.Device, family int) (lava.CommandPool, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.CommandPool(lava.NullHandle), err
	}
	if _, ok := dev.queues[family]; !ok {
		return lava.CommandPool(lava.NullHandle), errors.Errorf("lavatest: device has no queue of family %d", family)
	}
	return lava.CommandPool(d.pools.Insert(family)), nil
}

func (d *Driver) DestroyCommandPool(h lava.Device, pool lava.CommandPool) {
	if !d.checkDevice(h, "DestroyCommandPool") {
		return
	}
	if _, ok := d.pools.Remove(lava.Handle(pool)); !ok {
		d.violation("destroy of null or stale command pool %s", lava.Handle(pool))
	}
}

func (d *Driver) AllocateCommandBuffers(h lava.Device, pool lava.CommandPool, count int) ([]lava.CommandBuffer, error) {
	if _, err := d.device(h); err != nil {
		return nil, err
	}
	if _, ok := d.pools.Get(lava.Handle(pool)); !ok {
		return nil, stale("command pool", lava.Handle(pool))
	}
	ret := make([]lava.CommandBuffer, count)
	for i := range ret {
		ret[i] = lava.CommandBuffer(d.cmds.Insert(&commandBuffer{}))
	}
	return ret, nil
}

func (d *Driver) FreeCommandBuffers(h lava.Device, pool lava.CommandPool, cbs []lava.CommandBuffer) {
	if !d.checkDevice(h, "FreeCommandBuffers") {
		return
	}
	for _, cb := range cbs {
		c, ok := d.cmds.Remove(lava.Handle(cb))
		if !ok {
			d.violation("free of null or stale command buffer %s", lava.Handle(cb))
			continue
		}
		if c.busy {
			d.violation("command buffer %s freed while in flight", lava.Handle(cb))
		}
	}
}

func (d *Driver) cmd(cb lava.CommandBuffer, call string) *commandBuffer {
	c, ok := d.cmds.Get(lava.Handle(cb))
	if !ok {
		d.violation("%s on null or stale command buffer %s", call, lava.Handle(cb))
		return nil
	}
	return c
}

// recording returns the command buffer if it is being recorded.
func (d *Driver) recording(cb lava.CommandBuffer, call string) *commandBuffer {
	c := d.cmd(cb, call)
	if c == nil {
		return nil
	}
	if !c.recording {
		d.violation("%s on command buffer %s that is not recording", call, lava.Handle(cb))
		return nil
	}
	return c
}

func (d *Driver) ResetCommandBuffer(cb lava.CommandBuffer) error {
	c, ok := d.cmds.Get(lava.Handle(cb))
	if !ok {
		return stale("command buffer", lava.Handle(cb))
	}
	if c.busy {
		d.violation("command buffer %s reset while in flight", lava.Handle(cb))
	}
	c.recording = false
	c.ops = nil
	return nil
}

func (d *Driver) BeginCommandBuffer(cb lava.CommandBuffer, oneTime bool) error {
	c, ok := d.cmds.Get(lava.Handle(cb))
	if !ok {
		return stale("command buffer", lava.Handle(cb))
	}
	if c.busy {
		d.violation("command buffer %s begun while in flight", lava.Handle(cb))
	}
	if c.recording {
		d.violation("command buffer %s begun twice", lava.Handle(cb))
	}
	c.recording = true
	c.ops = nil
	return nil
}

func (d *Driver) EndCommandBuffer(cb lava.CommandBuffer) error {
	c, ok := d.cmds.Get(lava.Handle(cb))
	if !ok {
		return stale("command buffer", lava.Handle(cb))
	}
	if !c.recording {
		return errors.Errorf("lavatest: command buffer %s is not recording", lava.Handle(cb))
	}
	c.recording = false
	return nil
}

// colorTarget returns the image a render pass writes its final colour to.
func (d *Driver) colorTarget(info lava.RenderPassBeginInfo) (*image, int) {
	fb, ok := d.framebuffers.Get(lava.Handle(info.Framebuffer))
	if !ok {
		return nil, 0
	}
	rp, ok := d.renderPasses.Get(lava.Handle(fb.RenderPass))
	if !ok {
		return nil, 0
	}
	target := rp.ColorAttachment
	if rp.ResolveAttachment != lava.NoAttachment {
		target = rp.ResolveAttachment
	}
	if target < 0 || target >= len(fb.Attachments) {
		return nil, 0
	}
	img, ok := d.views.Get(lava.Handle(fb.Attachments[target]))
	if !ok {
		return nil, 0
	}
	i, ok := d.images.Get(lava.Handle(img))
	if !ok {
		return nil, 0
	}
	return i, rp.ColorAttachment
}

func (d *Driver) CmdBeginRenderPass(cb lava.CommandBuffer, info lava.RenderPassBeginInfo) {
	c := d.recording(cb, "CmdBeginRenderPass")
	if c == nil {
		return
	}
	d.RenderPassBegins = append(d.RenderPassBegins, info)
	if !info.RenderPass.IsNull() {
		if fb, ok := d.framebuffers.Get(lava.Handle(info.Framebuffer)); ok && fb.RenderPass != info.RenderPass {
			d.violation("framebuffer %s was created for another render pass", lava.Handle(info.Framebuffer))
		}
	}
	target, colorIndex := d.colorTarget(info)
	if target == nil {
		d.violation("render pass begun on null or stale framebuffer %s", lava.Handle(info.Framebuffer))
		return
	}
	if colorIndex >= len(info.ClearValues) {
		d.violation("render pass begun without a colour clear value")
		return
	}
	clear := info.ClearValues[colorIndex].Color
	c.ops = append(c.ops, func() { target.color = clear })
}

func (d *Driver) CmdEndRenderPass(cb lava.CommandBuffer) {
	d.recording(cb, "CmdEndRenderPass")
}

func (d *Driver) CmdImageBarrier(cb lava.CommandBuffer, barrier lava.ImageBarrier) {
	if d.recording(cb, "CmdImageBarrier") == nil {
		return
	}
	if _, ok := d.images.Get(lava.Handle(barrier.Image)); !ok {
		d.violation("barrier on null or stale image %s", lava.Handle(barrier.Image))
	}
	d.Barriers = append(d.Barriers, barrier)
}

func (d *Driver) transfer(cb lava.CommandBuffer, call string, src, dst lava.Image, sameFormat bool) {
	c := d.recording(cb, call)
	if c == nil {
		return
	}
	s, ok := d.images.Get(lava.Handle(src))
	if !ok {
		d.violation("%s from null or stale image %s", call, lava.Handle(src))
		return
	}
	t, ok := d.images.Get(lava.Handle(dst))
	if !ok {
		d.violation("%s to null or stale image %s", call, lava.Handle(dst))
		return
	}
	if s.info.Usage&lava.ImageUsageTransferSrc == 0 {
		d.violation("%s from image %s without transfer source usage", call, lava.Handle(src))
	}
	if sameFormat && s.info.Format != t.info.Format {
		d.violation("%s between %s and %s", call, s.info.Format, t.info.Format)
	}
	c.ops = append(c.ops, func() { t.color = s.color })
}

func (d *Driver) CmdBlitImage(cb lava.CommandBuffer, blit lava.ImageBlit) {
	d.transfer(cb, "CmdBlitImage", blit.Src, blit.Dst, false)
}

func (d *Driver) CmdCopyImage(cb lava.CommandBuffer, cp lava.ImageCopy) {
	d.transfer(cb, "CmdCopyImage", cp.Src, cp.Dst, true)
}

// QueueSubmit runs the recorded commands and leaves the submission pending
// until its fence is waited on or the queue goes idle.
func (d *Driver) QueueSubmit(queue lava.Queue, info lava.SubmitInfo, f lava.Fence) error {
	if _, ok := d.queues.Get(lava.Handle(queue)); !ok {
		return stale("queue", lava.Handle(queue))
	}
	sub := submission{}
	if !f.IsNull() {
		fc, ok := d.fences.Get(lava.Handle(f))
		if !ok {
			return stale("fence", lava.Handle(f))
		}
		if fc.signaled || d.fenceInFlight(fc) {
			d.violation("submit with fence %s that is not reset", lava.Handle(f))
		}
		sub.fence = fc
	}
	for _, cb := range info.CommandBuffers {
		c, ok := d.cmds.Get(lava.Handle(cb))
		if !ok {
			return stale("command buffer", lava.Handle(cb))
		}
		if c.recording {
			d.violation("submit of command buffer %s that is still recording", lava.Handle(cb))
		}
		if c.busy {
			d.violation("submit of command buffer %s that is in flight", lava.Handle(cb))
		}
		sub.cmds = append(sub.cmds, c)
	}

	for _, w := range info.Wait {
		d.wait(w, "submit")
	}
	for _, c := range sub.cmds {
		for _, op := range c.ops {
			op()
		}
		c.busy = true
	}
	for _, s := range info.Signal {
		d.signal(s, "submit")
	}
	d.Submits = append(d.Submits, info)
	d.pending = append(d.pending, sub)
	return nil
}

func (d *Driver) QueueWaitIdle(queue lava.Queue) error {
	if _, ok := d.queues.Get(lava.Handle(queue)); !ok {
		return stale("queue", lava.Handle(queue))
	}
	d.idle()
	return nil
}

// ImageColor returns the colour last written to img.
func (d *Driver) ImageColor(img lava.Image) ([4]float32, bool) {
	i, ok := d.images.Get(lava.Handle(img))
	if !ok {
		return [4]float32{}, false
	}
	return i.color, true
}
