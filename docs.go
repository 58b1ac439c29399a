/*
Package lava manages the part of a Vulkan application that every demo ends up writing again:
picking a device that can present to a window, keeping a swapchain and its framebuffers alive
across resizes, and running frames through acquire, record, submit and present without the CPU
racing ahead of the GPU.

Overview of the frame lifecycle

A window surface is backed by a swapchain, a small ring of images the presentation engine hands
out one at a time. Drawing a frame means asking for the next image, recording commands which
render into it, submitting those commands to a queue and handing the image back for display.
None of these steps happen on the CPU timeline: submission returns immediately and the GPU works
in the background. Fences and semaphores keep the two sides in order:

	image acquired semaphore	signalled when the presentation engine releases the image
	render complete semaphore	signalled when the submitted commands finish, waited on by present
	frame fence			signalled when the GPU is done with a command buffer

The fence is what stops the CPU from re-recording a command buffer the GPU is still reading.
With two frames in flight the CPU may record frame K+1 while the GPU executes frame K, but frame
K+2 waits for frame K to finish.

Swapchains cannot be resized. When the window changes size the presentation engine reports the
swapchain as out of date (or suboptimal) and the whole set, images, views, depth buffer and
framebuffers, is created again. The render pass only depends on formats and is kept.

About this package

The package is written against the Driver interface rather than against Vulkan directly.
vkdriver implements it on github.com/vulkan-go/vulkan; lavatest implements it in memory so the
frame protocol can be tested without a GPU. GPU objects are referred to by generation counted
handles, so using a destroyed object is detected instead of silently aliasing a new one.

The pieces, in the order they are set up:

SelectDevice:
	picks a physical device and queue families able to present, the colour and depth formats,
	and opens the logical device
SwapchainManager:
	the swapchain, its views, the shared depth attachment, the render pass and framebuffers
FrameScheduler:
	the per frame state machine and the frames in flight
Window:
	glues a WindowHost (glfwhost for GLFW) to the above and drives a Renderer

A minimal application:

	drv, _ := vkdriver.New(vkdriver.Options{
		AppName:    "demo",
		Extensions: glfwhost.RequiredExtensions(glfwWindow),
		ProcAddr:   glfwhost.ProcAddr(),
	})
	host := glfwhost.New(glfwWindow, drv)
	w := lava.NewWindow(drv, host, lava.DefaultConfig())
	w.SetRenderer(myRenderer)
	if err := w.Init(); err != nil {
		log.Fatal(err)
	}
	defer w.Destroy()
	host.Run(w)

A Renderer records into Window.CurrentCommandBuffer from NextFrame and finishes with
Window.FrameReady. Without one, every frame clears to Config.ClearColor.
*/
package lava
