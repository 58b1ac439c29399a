package vkdriver

import (
	"time"

	"github.com/celer/lava"
	vk "github.com/vulkan-go/vulkan"
)

func (d *Driver) CreateSwapchain(h lava.Device, info lava.SwapchainCreateInfo) (lava.Swapchain, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.Swapchain(lava.NullHandle), err
	}
	surface, err := d.surface(info.Surface)
	if err != nil {
		return lava.Swapchain(lava.NullHandle), err
	}

	createInfo := &vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   info.MinImageCount,
		ImageFormat:     vk.Format(info.Format),
		ImageColorSpace: vk.ColorSpace(info.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		PresentMode:      vk.PresentMode(info.PresentMode),
		ImageUsage:       vk.ImageUsageFlags(info.Usage),
		ImageArrayLayers: 1,
		Clipped:          vk.True,
		PreTransform:     vk.SurfaceTransformFlagBits(info.PreTransform),
		CompositeAlpha:   vk.CompositeAlphaFlagBits(info.CompositeAlpha),
		ImageSharingMode: vk.SharingMode(info.Sharing),
		OldSwapchain:     vk.NullSwapchain,
	}
	if info.Sharing == lava.SharingModeConcurrent {
		createInfo.QueueFamilyIndexCount = uint32(len(info.QueueFamilies))
		createInfo.PQueueFamilyIndices = info.QueueFamilies
	}
	if old, ok := d.swapchains.Get(lava.Handle(info.OldSwapchain)); ok {
		createInfo.OldSwapchain = old.vk
	}

	var sc vk.Swapchain
	if err := vkError(vk.CreateSwapchain(dev.vk, createInfo, nil, &sc), "create swapchain"); err != nil {
		return lava.Swapchain(lava.NullHandle), err
	}

	var count uint32
	if err := vkError(vk.GetSwapchainImages(dev.vk, sc, &count, nil), "get swapchain images"); err != nil {
		vk.DestroySwapchain(dev.vk, sc, nil)
		return lava.Swapchain(lava.NullHandle), err
	}
	vkImages := make([]vk.Image, count)
	if err := vkError(vk.GetSwapchainImages(dev.vk, sc, &count, vkImages), "get swapchain images"); err != nil {
		vk.DestroySwapchain(dev.vk, sc, nil)
		return lava.Swapchain(lava.NullHandle), err
	}

	s := &swapchain{vk: sc, format: vk.Format(info.Format)}
	for _, img := range vkImages[:count] {
		s.images = append(s.images, lava.Image(d.images.Insert(&image{vk: img, format: s.format})))
	}
	return lava.Swapchain(d.swapchains.Insert(s)), nil
}

func (d *Driver) SwapchainImages(h lava.Device, sc lava.Swapchain) ([]lava.Image, error) {
	s, ok := d.swapchains.Get(lava.Handle(sc))
	if !ok {
		return nil, stale("swapchain", lava.Handle(sc))
	}
	return append([]lava.Image(nil), s.images...), nil
}

// DestroySwapchain also invalidates the swapchain's image handles.
func (d *Driver) DestroySwapchain(h lava.Device, sc lava.Swapchain) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	s, ok := d.swapchains.Remove(lava.Handle(sc))
	if !ok {
		return
	}
	for _, img := range s.images {
		d.images.Remove(lava.Handle(img))
	}
	vk.DestroySwapchain(dev.vk, s.vk, nil)
}

func (d *Driver) AcquireNextImage(h lava.Device, sc lava.Swapchain, timeout time.Duration, signal lava.Semaphore) (uint32, lava.Result, error) {
	dev, err := d.device(h)
	if err != nil {
		return 0, lava.Success, err
	}
	s, ok := d.swapchains.Get(lava.Handle(sc))
	if !ok {
		return 0, lava.Success, stale("swapchain", lava.Handle(sc))
	}
	var index uint32
	res := vk.AcquireNextImage(dev.vk, s.vk, uint64(timeout.Nanoseconds()), d.semaphore(signal), vk.NullFence, &index)
	if res == vk.Timeout || res == vk.NotReady {
		return 0, lava.Timeout, nil
	}
	result, err := presentResult(res, "acquire next image")
	return index, result, err
}

func (d *Driver) QueuePresent(queue lava.Queue, info lava.PresentInfo) (lava.Result, error) {
	q, ok := d.queues.Get(lava.Handle(queue))
	if !ok {
		return lava.Success, stale("queue", lava.Handle(queue))
	}
	s, ok := d.swapchains.Get(lava.Handle(info.Swapchain))
	if !ok {
		return lava.Success, stale("swapchain", lava.Handle(info.Swapchain))
	}
	wait := d.semaphoreList(info.Wait)
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.vk},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	return presentResult(vk.QueuePresent(q, &presentInfo), "queue present")
}
