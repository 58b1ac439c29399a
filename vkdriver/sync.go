package vkdriver

import (
	"time"

	"github.com/celer/lava"
	vk "github.com/vulkan-go/vulkan"
)

func (d *Driver) CreateFence(h lava.Device, signaled bool) (lava.Fence, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.Fence(lava.NullHandle), err
	}
	var fenceCreateInfo = vk.FenceCreateInfo{}
	fenceCreateInfo.SType = vk.StructureTypeFenceCreateInfo
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := vkError(vk.CreateFence(dev.vk, &fenceCreateInfo, nil, &fence), "create fence"); err != nil {
		return lava.Fence(lava.NullHandle), err
	}
	return lava.Fence(d.fences.Insert(fence)), nil
}

func (d *Driver) DestroyFence(h lava.Device, f lava.Fence) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if fence, ok := d.fences.Remove(lava.Handle(f)); ok {
		vk.DestroyFence(dev.vk, fence, nil)
	}
}

func (d *Driver) WaitForFence(h lava.Device, f lava.Fence, timeout time.Duration) (lava.Result, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.Success, err
	}
	fence := d.fence(f)
	if fence == vk.NullFence {
		return lava.Success, stale("fence", lava.Handle(f))
	}
	res := vk.WaitForFences(dev.vk, 1, []vk.Fence{fence}, vk.True, uint64(timeout.Nanoseconds()))
	if res == vk.Timeout {
		return lava.Timeout, nil
	}
	return lava.Success, vkError(res, "wait for fence")
}

func (d *Driver) ResetFence(h lava.Device, f lava.Fence) error {
	dev, err := d.device(h)
	if err != nil {
		return err
	}
	fence := d.fence(f)
	if fence == vk.NullFence {
		return stale("fence", lava.Handle(f))
	}
	return vkError(vk.ResetFences(dev.vk, 1, []vk.Fence{fence}), "reset fence")
}

func (d *Driver) CreateSemaphore(h lava.Device) (lava.Semaphore, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.Semaphore(lava.NullHandle), err
	}
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sema vk.Semaphore
	if err := vkError(vk.CreateSemaphore(dev.vk, &semaphoreCreateInfo, nil, &sema), "create semaphore"); err != nil {
		return lava.Semaphore(lava.NullHandle), err
	}
	return lava.Semaphore(d.semaphores.Insert(sema)), nil
}

func (d *Driver) DestroySemaphore(h lava.Device, s lava.Semaphore) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if sema, ok := d.semaphores.Remove(lava.Handle(s)); ok {
		vk.DestroySemaphore(dev.vk, sema, nil)
	}
}
