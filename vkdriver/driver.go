package vkdriver

import (
	"github.com/celer/lava"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

type device struct {
	vk     vk.Device
	pd     vk.PhysicalDevice
	memory vk.PhysicalDeviceMemoryProperties
	queues map[int]lava.Queue
}

// image is either a swapchain image, owned by its swapchain, or an image
// created with its own memory allocation.
type image struct {
	vk     vk.Image
	format vk.Format
	memory vk.DeviceMemory
	size   vk.DeviceSize
	owned  bool
}

type swapchain struct {
	vk     vk.Swapchain
	format vk.Format
	images []lava.Image
}

// Driver implements lava.Driver on Vulkan. Native objects live in arenas
// and are handed out as generation counted handles; a handle used after its
// object was destroyed is rejected rather than passed to Vulkan.
//
// A Driver is not safe for concurrent use.
type Driver struct {
	instance       vk.Instance
	instanceHandle lava.Instance
	debugCallback  vk.DebugReportCallback

	instances    lava.Arena[vk.Instance]
	surfaces     lava.Arena[vk.Surface]
	physical     lava.Arena[vk.PhysicalDevice]
	devices      lava.Arena[*device]
	queues       lava.Arena[vk.Queue]
	pools        lava.Arena[vk.CommandPool]
	cmds         lava.Arena[vk.CommandBuffer]
	fences       lava.Arena[vk.Fence]
	semaphores   lava.Arena[vk.Semaphore]
	swapchains   lava.Arena[*swapchain]
	images       lava.Arena[*image]
	views        lava.Arena[vk.ImageView]
	renderPasses lava.Arena[vk.RenderPass]
	framebuffers lava.Arena[vk.Framebuffer]
	shaders      lava.Arena[vk.ShaderModule]

	physicalByVK map[vk.PhysicalDevice]lava.PhysicalDevice
}

var _ lava.Driver = (*Driver)(nil)

func stale(kind string, h lava.Handle) error {
	return errors.Errorf("vkdriver: null or stale %s handle %s", kind, h)
}

func (d *Driver) device(h lava.Device) (*device, error) {
	dev, ok := d.devices.Get(lava.Handle(h))
	if !ok {
		return nil, stale("device", lava.Handle(h))
	}
	return dev, nil
}

func (d *Driver) physicalDevice(h lava.PhysicalDevice) (vk.PhysicalDevice, error) {
	pd, ok := d.physical.Get(lava.Handle(h))
	if !ok {
		return nil, stale("physical device", lava.Handle(h))
	}
	return pd, nil
}

func (d *Driver) surface(h lava.Surface) (vk.Surface, error) {
	s, ok := d.surfaces.Get(lava.Handle(h))
	if !ok {
		return vk.NullSurface, stale("surface", lava.Handle(h))
	}
	return s, nil
}

func (d *Driver) semaphore(h lava.Semaphore) vk.Semaphore {
	s, ok := d.semaphores.Get(lava.Handle(h))
	if !ok {
		return vk.NullSemaphore
	}
	return s
}

func (d *Driver) semaphoreList(hs []lava.Semaphore) []vk.Semaphore {
	ret := make([]vk.Semaphore, 0, len(hs))
	for _, h := range hs {
		if s := d.semaphore(h); s != vk.NullSemaphore {
			ret = append(ret, s)
		}
	}
	return ret
}

func (d *Driver) fence(h lava.Fence) vk.Fence {
	f, ok := d.fences.Get(lava.Handle(h))
	if !ok {
		return vk.NullFence
	}
	return f
}

func (d *Driver) image(h lava.Image) (*image, error) {
	img, ok := d.images.Get(lava.Handle(h))
	if !ok {
		return nil, stale("image", lava.Handle(h))
	}
	return img, nil
}

// Instance returns the handle of the Vulkan instance surfaces are created
// against.
func (d *Driver) Instance() lava.Instance {
	return d.instanceHandle
}

// NativeInstance returns the Vulkan instance, for windowing toolkits that
// create surfaces themselves.
func (d *Driver) NativeInstance(h lava.Instance) (vk.Instance, error) {
	inst, ok := d.instances.Get(lava.Handle(h))
	if !ok {
		return nil, stale("instance", lava.Handle(h))
	}
	return inst, nil
}

// AdoptSurface takes ownership of a surface created outside the driver.
func (d *Driver) AdoptSurface(s vk.Surface) lava.Surface {
	return lava.Surface(d.surfaces.Insert(s))
}

func (d *Driver) DestroySurface(h lava.Surface) {
	s, ok := d.surfaces.Remove(lava.Handle(h))
	if !ok {
		return
	}
	vk.DestroySurface(d.instance, s, nil)
}

// Destroy destroys the instance. Every device and surface must have been
// destroyed before.
func (d *Driver) Destroy() {
	if d.instance == nil {
		return
	}
	if d.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debugCallback, nil)
	}
	vk.DestroyInstance(d.instance, nil)
	d.instances.Remove(lava.Handle(d.instanceHandle))
	d.instance = nil
}
