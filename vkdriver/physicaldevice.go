package vkdriver

import (
	"github.com/celer/lava"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// PhysicalDevices enumerates the devices of the instance. Handles are stable
// across calls.
func (d *Driver) PhysicalDevices() ([]lava.PhysicalDeviceInfo, error) {
	var count uint32
	if err := vkError(vk.EnumeratePhysicalDevices(d.instance, &count, nil), "enumerate physical devices"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	pds := make([]vk.PhysicalDevice, count)
	if err := vkError(vk.EnumeratePhysicalDevices(d.instance, &count, pds), "enumerate physical devices"); err != nil {
		return nil, err
	}

	ret := make([]lava.PhysicalDeviceInfo, 0, count)
	for _, pd := range pds[:count] {
		h, ok := d.physicalByVK[pd]
		if !ok {
			h = lava.PhysicalDevice(d.physical.Insert(pd))
			d.physicalByVK[pd] = h
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()
		ret = append(ret, lava.PhysicalDeviceInfo{
			Handle: h,
			Name:   vk.ToString(props.DeviceName[:]),
			Type:   lava.DeviceType(props.DeviceType),
		})
	}
	return ret, nil
}

func (d *Driver) QueueFamilies(h lava.PhysicalDevice) ([]lava.QueueFamilyInfo, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return nil, err
	}
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	if count == 0 {
		return nil, nil
	}
	queues := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, queues)

	ret := make([]lava.QueueFamilyInfo, count)
	for i := range queues {
		queues[i].Deref()
		ret[i] = lava.QueueFamilyInfo{
			Index: i,
			Flags: lava.QueueFlags(queues[i].QueueFlags),
			Count: int(queues[i].QueueCount),
		}
	}
	return ret, nil
}

func (d *Driver) SurfaceSupport(h lava.PhysicalDevice, family int, surface lava.Surface) (bool, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return false, err
	}
	s, err := d.surface(surface)
	if err != nil {
		return false, err
	}
	var supported vk.Bool32
	if err := vkError(vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(family), s, &supported), "surface support"); err != nil {
		return false, err
	}
	return supported == vk.True, nil
}

func (d *Driver) SurfaceFormats(h lava.PhysicalDevice, surface lava.Surface) ([]lava.SurfaceFormat, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return nil, err
	}
	s, err := d.surface(surface)
	if err != nil {
		return nil, err
	}
	var count uint32
	if err := vkError(vk.GetPhysicalDeviceSurfaceFormats(pd, s, &count, nil), "surface formats"); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := vkError(vk.GetPhysicalDeviceSurfaceFormats(pd, s, &count, formats), "surface formats"); err != nil {
		return nil, err
	}
	ret := make([]lava.SurfaceFormat, count)
	for i := range formats {
		formats[i].Deref()
		ret[i] = lava.SurfaceFormat{
			Format:     lava.Format(formats[i].Format),
			ColorSpace: lava.ColorSpace(formats[i].ColorSpace),
		}
	}
	return ret, nil
}

// FormatProperties returns no features for an unknown device.
func (d *Driver) FormatProperties(h lava.PhysicalDevice, format lava.Format) lava.FormatProperties {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return lava.FormatProperties{}
	}
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(pd, vk.Format(format), &props)
	props.Deref()
	return lava.FormatProperties{
		Linear:  lava.FormatFeature(props.LinearTilingFeatures),
		Optimal: lava.FormatFeature(props.OptimalTilingFeatures),
	}
}

func (d *Driver) DeviceExtensions(h lava.PhysicalDevice) ([]string, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return nil, err
	}
	var count uint32
	if err := vkError(vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil), "enumerate device extensions"); err != nil {
		return nil, err
	}
	ext := make([]vk.ExtensionProperties, count)
	if err := vkError(vk.EnumerateDeviceExtensionProperties(pd, "", &count, ext), "enumerate device extensions"); err != nil {
		return nil, err
	}
	ret := make([]string, 0, count)
	for _, e := range ext {
		e.Deref()
		ret = append(ret, vk.ToString(e.ExtensionName[:]))
	}
	return ret, nil
}

func (d *Driver) SurfaceCapabilities(h lava.PhysicalDevice, surface lava.Surface) (lava.SurfaceCapabilities, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return lava.SurfaceCapabilities{}, err
	}
	s, err := d.surface(surface)
	if err != nil {
		return lava.SurfaceCapabilities{}, err
	}
	var caps vk.SurfaceCapabilities
	if err := vkError(vk.GetPhysicalDeviceSurfaceCapabilities(pd, s, &caps), "surface capabilities"); err != nil {
		return lava.SurfaceCapabilities{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return lava.SurfaceCapabilities{
		MinImageCount:           caps.MinImageCount,
		MaxImageCount:           caps.MaxImageCount,
		CurrentExtent:           extent2D(caps.CurrentExtent),
		MinImageExtent:          extent2D(caps.MinImageExtent),
		MaxImageExtent:          extent2D(caps.MaxImageExtent),
		SupportedUsage:          lava.ImageUsage(caps.SupportedUsageFlags),
		SupportedCompositeAlpha: lava.CompositeAlpha(caps.SupportedCompositeAlpha),
		CurrentTransform:        uint32(caps.CurrentTransform),
	}, nil
}

func (d *Driver) SurfacePresentModes(h lava.PhysicalDevice, surface lava.Surface) ([]lava.PresentMode, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return nil, err
	}
	s, err := d.surface(surface)
	if err != nil {
		return nil, err
	}
	var count uint32
	if err := vkError(vk.GetPhysicalDeviceSurfacePresentModes(pd, s, &count, nil), "surface present modes"); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	if err := vkError(vk.GetPhysicalDeviceSurfacePresentModes(pd, s, &count, modes), "surface present modes"); err != nil {
		return nil, err
	}
	ret := make([]lava.PresentMode, count)
	for i, m := range modes {
		ret[i] = lava.PresentMode(m)
	}
	return ret, nil
}

// findMemoryType returns the first memory type allowed by typeBits that has
// all of properties.
func findMemoryType(mp vk.PhysicalDeviceMemoryProperties, typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		if typeBits&(1<<i) != 0 && mt.PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, errors.Errorf("no memory type matches bits %#x with properties %#x", typeBits, properties)
}

func extent2D(e vk.Extent2D) lava.Extent2D {
	return lava.Extent2D{Width: e.Width, Height: e.Height}
}

// MemoryHeap is one heap of a physical device.
type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

// MemoryHeaps lists the memory heaps of a physical device.
func (d *Driver) MemoryHeaps(h lava.PhysicalDevice) ([]MemoryHeap, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return nil, err
	}
	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &mp)
	mp.Deref()

	ret := make([]MemoryHeap, 0, mp.MemoryHeapCount)
	for i := uint32(0); i < mp.MemoryHeapCount; i++ {
		heap := mp.MemoryHeaps[i]
		heap.Deref()
		ret = append(ret, MemoryHeap{
			Size:        uint64(heap.Size),
			DeviceLocal: heap.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0,
		})
	}
	return ret, nil
}

// APIVersion returns the Vulkan version a physical device supports.
func (d *Driver) APIVersion(h lava.PhysicalDevice) (Version, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return Version{}, err
	}
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	v := props.ApiVersion
	return Version{Major: int(v >> 22), Minor: int(v >> 12 & 0x3ff), Patch: int(v & 0xfff)}, nil
}
