package vkdriver

import (
	"github.com/celer/lava"
	vk "github.com/vulkan-go/vulkan"
)

// CreateDevice opens a logical device with one queue per requested family.
func (d *Driver) CreateDevice(h lava.PhysicalDevice, info lava.DeviceCreateInfo) (lava.Device, error) {
	pd, err := d.physicalDevice(h)
	if err != nil {
		return lava.Device(lava.NullHandle), err
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, 0, len(info.QueueFamilies))
	seen := make(map[int]bool)
	for _, family := range info.QueueFamilies {
		if seen[family] {
			continue
		}
		seen[family] = true
		queueCreateInfos = append(queueCreateInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(family),
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &features)

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(info.Extensions)),
		PpEnabledExtensionNames: safeStrings(info.Extensions),
		EnabledLayerCount:       uint32(len(info.Layers)),
		PpEnabledLayerNames:     safeStrings(info.Layers),
	}

	var ldevice vk.Device
	if err := vkError(vk.CreateDevice(pd, &createInfo, nil, &ldevice), "create device"); err != nil {
		return lava.Device(lava.NullHandle), err
	}

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
	memory.Deref()

	dev := &device{vk: ldevice, pd: pd, memory: memory, queues: make(map[int]lava.Queue)}
	for family := range seen {
		var q vk.Queue
		vk.GetDeviceQueue(ldevice, uint32(family), 0, &q)
		dev.queues[family] = lava.Queue(d.queues.Insert(q))
	}
	return lava.Device(d.devices.Insert(dev)), nil
}

// DeviceQueue returns the queue created for family, or a null handle when the
// device was not opened with it.
func (d *Driver) DeviceQueue(h lava.Device, family int) lava.Queue {
	dev, err := d.device(h)
	if err != nil {
		return lava.Queue(lava.NullHandle)
	}
	q, ok := dev.queues[family]
	if !ok {
		return lava.Queue(lava.NullHandle)
	}
	return q
}

func (d *Driver) DestroyDevice(h lava.Device) {
	dev, ok := d.devices.Remove(lava.Handle(h))
	if !ok {
		return
	}
	for _, q := range dev.queues {
		d.queues.Remove(lava.Handle(q))
	}
	vk.DestroyDevice(dev.vk, nil)
}

func (d *Driver) DeviceWaitIdle(h lava.Device) error {
	dev, err := d.device(h)
	if err != nil {
		return err
	}
	return vkError(vk.DeviceWaitIdle(dev.vk), "device wait idle")
}
