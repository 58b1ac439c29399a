package lava

import (
	"log/slog"
	"sort"

	"github.com/pkg/errors"
)

// SwapchainExtension is always enabled on the logical device.
const SwapchainExtension = "VK_KHR_swapchain"

// DefaultColorFormats is the colour format preference used when none is given.
var DefaultColorFormats = []Format{
	FormatB8G8R8A8Srgb,
	FormatR8G8B8A8Srgb,
	FormatB8G8R8A8Unorm,
	FormatR8G8B8A8Unorm,
}

// DepthFormatCandidates are tried in order until one supports depth/stencil
// attachments in either tiling mode.
var DepthFormatCandidates = []Format{
	FormatD32SfloatS8Uint,
	FormatD24UnormS8Uint,
	FormatD16UnormS8Uint,
	FormatD32Sfloat,
	FormatD16Unorm,
}

type DeviceOptions struct {
	// ColorFormats is the surface format preference, most preferred first.
	ColorFormats []Format
	// Extensions are enabled when the device supports them and skipped
	// with a warning otherwise.
	Extensions []string
	Layers     []string
	// PreferDiscrete tries discrete GPUs before the others.
	PreferDiscrete bool
}

// DeviceContext is the logical device and queues the rest of the frame
// lifecycle shares. It is created once and destroyed at shutdown.
type DeviceContext struct {
	PhysicalDevice     PhysicalDevice
	PhysicalDeviceName string
	Device             Device
	GraphicsQueue      Queue
	PresentQueue       Queue
	GraphicsFamily     int
	PresentFamily      int
	ColorFormat        Format
	ColorSpace         ColorSpace
	DepthFormat        Format
	Extensions         []string

	driver Driver
}

// OwnershipTransfer reports whether swapchain images must change queue family
// ownership between rendering and presentation.
func (c *DeviceContext) OwnershipTransfer() bool {
	return c.GraphicsFamily != c.PresentFamily
}

// FormatProperties queries the physical device behind c.
func (c *DeviceContext) FormatProperties(f Format) FormatProperties {
	return c.driver.FormatProperties(c.PhysicalDevice, f)
}

// Destroy waits for the device to go idle and destroys it.
func (c *DeviceContext) Destroy() {
	if c.Device.IsNull() {
		return
	}
	c.driver.DeviceWaitIdle(c.Device)
	c.driver.DestroyDevice(c.Device)
	c.Device = Device(NullHandle)
}

type queueChoice struct {
	graphics int
	present  int
}

// chooseQueueFamilies prefers a single family that does both graphics and
// presentation and falls back to the first of each.
func chooseQueueFamilies(families []QueueFamilyInfo, presents func(family int) bool) (queueChoice, bool) {
	graphics, present := -1, -1
	for _, f := range families {
		if f.Count == 0 {
			continue
		}
		p := presents(f.Index)
		if f.IsGraphics() && p {
			return queueChoice{graphics: f.Index, present: f.Index}, true
		}
		if f.IsGraphics() && graphics == -1 {
			graphics = f.Index
		}
		if p && present == -1 {
			present = f.Index
		}
	}
	if graphics == -1 || present == -1 {
		return queueChoice{}, false
	}
	return queueChoice{graphics: graphics, present: present}, true
}

// chooseSurfaceFormat picks the first candidate the surface supports. A lone
// UNDEFINED entry means the surface takes anything. When nothing matches the
// first reported format is used and fallback is true.
func chooseSurfaceFormat(formats []SurfaceFormat, candidates []Format) (chosen SurfaceFormat, fallback bool, err error) {
	if len(formats) == 0 {
		return SurfaceFormat{}, false, errors.New("surface reports no formats")
	}
	if len(candidates) == 0 {
		candidates = DefaultColorFormats
	}
	if len(formats) == 1 && formats[0].Format == FormatUndefined {
		return SurfaceFormat{Format: candidates[0], ColorSpace: formats[0].ColorSpace}, false, nil
	}
	for _, c := range candidates {
		for _, f := range formats {
			if f.Format == c {
				return f, false, nil
			}
		}
	}
	return formats[0], true, nil
}

// chooseDepthFormat returns the first candidate usable as a depth/stencil
// attachment with optimal or linear tiling.
func chooseDepthFormat(props func(Format) FormatProperties) (Format, error) {
	for _, f := range DepthFormatCandidates {
		p := props(f)
		if p.Optimal&FormatFeatureDepthStencilAttachment != 0 || p.Linear&FormatFeatureDepthStencilAttachment != 0 {
			return f, nil
		}
	}
	return FormatUndefined, ErrNoSupportedDepthFormat
}

// SelectDevice picks a physical device able to present to surface, opens a
// logical device on it with the swapchain extension enabled and resolves the
// colour and depth formats. A device that fails to open is skipped; the last
// such error is returned when no device opens.
func SelectDevice(drv Driver, surface Surface, opts DeviceOptions) (*DeviceContext, error) {
	log := Logger()

	devices, err := drv.PhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}
	if opts.PreferDiscrete {
		sort.SliceStable(devices, func(i, j int) bool {
			return devices[i].Type == DeviceTypeDiscrete && devices[j].Type != DeviceTypeDiscrete
		})
	}

	var lastErr error
	for _, pd := range devices {
		families, err := drv.QueueFamilies(pd.Handle)
		if err != nil {
			log.Warn("skipping device: queue families", slog.String("device", pd.Name), slog.Any("err", err))
			continue
		}
		choice, ok := chooseQueueFamilies(families, func(family int) bool {
			supported, err := drv.SurfaceSupport(pd.Handle, family, surface)
			return err == nil && supported
		})
		if !ok {
			log.Debug("skipping device: no presentable queue family", slog.String("device", pd.Name))
			continue
		}
		ctx, err := openDevice(drv, pd, choice, surface, opts)
		if err != nil {
			log.Warn("skipping device", slog.String("device", pd.Name), slog.Any("err", err))
			lastErr = err
			continue
		}
		log.Info("device selected",
			slog.String("device", pd.Name),
			slog.String("type", pd.Type.String()),
			slog.Int("graphicsFamily", ctx.GraphicsFamily),
			slog.Int("presentFamily", ctx.PresentFamily),
			slog.String("colorFormat", ctx.ColorFormat.String()),
			slog.String("depthFormat", ctx.DepthFormat.String()))
		return ctx, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoSuitableDevice
}

func openDevice(drv Driver, pd PhysicalDeviceInfo, choice queueChoice, surface Surface, opts DeviceOptions) (*DeviceContext, error) {
	log := Logger()

	formats, err := drv.SurfaceFormats(pd.Handle, surface)
	if err != nil {
		return nil, errors.Wrap(err, "query surface formats")
	}
	format, fallback, err := chooseSurfaceFormat(formats, opts.ColorFormats)
	if err != nil {
		return nil, err
	}
	if fallback {
		log.Warn("no preferred surface format available, using the first reported one",
			slog.String("format", format.Format.String()))
	}

	depth, err := chooseDepthFormat(func(f Format) FormatProperties {
		return drv.FormatProperties(pd.Handle, f)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "device %s", pd.Name)
	}

	extensions, err := enabledExtensions(drv, pd.Handle, opts.Extensions)
	if err != nil {
		return nil, err
	}

	families := []int{choice.graphics}
	if choice.present != choice.graphics {
		families = append(families, choice.present)
	}
	dev, err := drv.CreateDevice(pd.Handle, DeviceCreateInfo{
		QueueFamilies: families,
		Extensions:    extensions,
		Layers:        opts.Layers,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create device on %s", pd.Name)
	}

	gq := drv.DeviceQueue(dev, choice.graphics)
	pq := gq
	if choice.present != choice.graphics {
		pq = drv.DeviceQueue(dev, choice.present)
	}

	return &DeviceContext{
		PhysicalDevice:     pd.Handle,
		PhysicalDeviceName: pd.Name,
		Device:             dev,
		GraphicsQueue:      gq,
		PresentQueue:       pq,
		GraphicsFamily:     choice.graphics,
		PresentFamily:      choice.present,
		ColorFormat:        format.Format,
		ColorSpace:         format.ColorSpace,
		DepthFormat:        depth,
		Extensions:         extensions,
		driver:             drv,
	}, nil
}

func enabledExtensions(drv Driver, pd PhysicalDevice, requested []string) ([]string, error) {
	supported, err := drv.DeviceExtensions(pd)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate device extensions")
	}
	has := make(map[string]bool, len(supported))
	for _, e := range supported {
		has[e] = true
	}
	ret := []string{SwapchainExtension}
	for _, e := range requested {
		if e == SwapchainExtension {
			continue
		}
		if !has[e] {
			Logger().Warn("device extension not supported, ignoring", slog.String("extension", e))
			continue
		}
		ret = append(ret, e)
	}
	return ret, nil
}
