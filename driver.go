package lava

import "time"

// InstanceDriver exposes the instance surfaces are created against.
type InstanceDriver interface {
	Instance() Instance
	DestroySurface(surface Surface)
}

// DeviceProber finds and opens physical devices.
type DeviceProber interface {
	PhysicalDevices() ([]PhysicalDeviceInfo, error)
	QueueFamilies(pd PhysicalDevice) ([]QueueFamilyInfo, error)
	SurfaceSupport(pd PhysicalDevice, family int, surface Surface) (bool, error)
	SurfaceFormats(pd PhysicalDevice, surface Surface) ([]SurfaceFormat, error)
	FormatProperties(pd PhysicalDevice, format Format) FormatProperties
	DeviceExtensions(pd PhysicalDevice) ([]string, error)
	CreateDevice(pd PhysicalDevice, info DeviceCreateInfo) (Device, error)
	DeviceQueue(dev Device, family int) Queue
	DestroyDevice(dev Device)
	DeviceWaitIdle(dev Device) error
}

// SwapchainDriver talks to the presentation engine.
type SwapchainDriver interface {
	SurfaceCapabilities(pd PhysicalDevice, surface Surface) (SurfaceCapabilities, error)
	SurfacePresentModes(pd PhysicalDevice, surface Surface) ([]PresentMode, error)
	CreateSwapchain(dev Device, info SwapchainCreateInfo) (Swapchain, error)
	SwapchainImages(dev Device, sc Swapchain) ([]Image, error)
	DestroySwapchain(dev Device, sc Swapchain)
	// AcquireNextImage returns Success, Suboptimal or OutOfDate; any other
	// outcome is an error.
	AcquireNextImage(dev Device, sc Swapchain, timeout time.Duration, signal Semaphore) (uint32, Result, error)
	QueuePresent(queue Queue, info PresentInfo) (Result, error)
}

// ResourceDriver creates the images and attachment objects a swapchain needs.
type ResourceDriver interface {
	// CreateImage creates an image with its own memory allocation bound.
	CreateImage(dev Device, info ImageCreateInfo) (Image, error)
	DestroyImage(dev Device, img Image)
	CreateImageView(dev Device, info ImageViewCreateInfo) (ImageView, error)
	DestroyImageView(dev Device, view ImageView)
	CreateRenderPass(dev Device, info RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(dev Device, rp RenderPass)
	CreateFramebuffer(dev Device, info FramebufferCreateInfo) (Framebuffer, error)
	DestroyFramebuffer(dev Device, fb Framebuffer)
	ImageSubresourceLayout(dev Device, img Image) SubresourceLayout
	// MapImage maps the whole allocation of a host visible image.
	MapImage(dev Device, img Image) ([]byte, error)
	UnmapImage(dev Device, img Image)
	CreateShaderModule(dev Device, code []byte) (ShaderModule, error)
	DestroyShaderModule(dev Device, module ShaderModule)
}

// SyncDriver manages fences and semaphores.
type SyncDriver interface {
	CreateFence(dev Device, signaled bool) (Fence, error)
	DestroyFence(dev Device, f Fence)
	// WaitForFence returns Success, or Timeout when the fence stayed
	// unsignaled for the whole timeout.
	WaitForFence(dev Device, f Fence, timeout time.Duration) (Result, error)
	ResetFence(dev Device, f Fence) error
	CreateSemaphore(dev Device) (Semaphore, error)
	DestroySemaphore(dev Device, s Semaphore)
}

// CommandDriver records and submits command buffers.
type CommandDriver interface {
	CreateCommandPool(dev Device, family int) (CommandPool, error)
	DestroyCommandPool(dev Device, pool CommandPool)
	AllocateCommandBuffers(dev Device, pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(dev Device, pool CommandPool, cbs []CommandBuffer)
	ResetCommandBuffer(cb CommandBuffer) error
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error
	CmdBeginRenderPass(cb CommandBuffer, info RenderPassBeginInfo)
	CmdEndRenderPass(cb CommandBuffer)
	CmdImageBarrier(cb CommandBuffer, barrier ImageBarrier)
	CmdBlitImage(cb CommandBuffer, blit ImageBlit)
	CmdCopyImage(cb CommandBuffer, cp ImageCopy)
	QueueSubmit(queue Queue, info SubmitInfo, fence Fence) error
	QueueWaitIdle(queue Queue) error
}

// Driver is the GPU backend the frame lifecycle runs on. vkdriver provides the
// Vulkan implementation, lavatest an in-memory one.
type Driver interface {
	InstanceDriver
	DeviceProber
	SwapchainDriver
	ResourceDriver
	SyncDriver
	CommandDriver
}
