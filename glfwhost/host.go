// Package glfwhost runs a lava.Window inside a GLFW window.
package glfwhost

import (
	"log/slog"
	"unsafe"

	"github.com/celer/lava"
	"github.com/celer/lava/vkdriver"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Init initializes GLFW for a Vulkan window. It must be called from the main
// thread, before any window is created.
func Init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "init glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw: vulkan loader not found")
	}
	return nil
}

// Terminate shuts GLFW down, after every window was destroyed.
func Terminate() {
	glfw.Terminate()
}

// CreateWindow creates a window without a client API, ready for a Vulkan
// surface.
func CreateWindow(width, height int, title string) (*glfw.Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create window")
	}
	return window, nil
}

// RequiredExtensions returns the instance extensions the window's surfaces
// need.
func RequiredExtensions(window *glfw.Window) []string {
	return window.GetRequiredInstanceExtensions()
}

// ProcAddr returns the vkGetInstanceProcAddr GLFW loaded, for
// vkdriver.Options.ProcAddr.
func ProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// Host implements lava.WindowHost on a GLFW window. Redraw requests are
// coalesced and served from Run.
type Host struct {
	window *glfw.Window
	drv    *vkdriver.Driver

	redraw  func()
	pending bool
	target  *lava.Window
}

var _ lava.WindowHost = (*Host)(nil)

func New(window *glfw.Window, drv *vkdriver.Driver) *Host {
	h := &Host{window: window, drv: drv}
	window.SetFramebufferSizeCallback(h.onFramebufferSize)
	window.SetRefreshCallback(func(*glfw.Window) { h.RequestRedraw() })
	return h
}

func (h *Host) Window() *glfw.Window { return h.window }

func (h *Host) CurrentSurfaceExtent() lava.Extent2D {
	width, height := h.window.GetFramebufferSize()
	if width < 0 || height < 0 {
		return lava.Extent2D{}
	}
	return lava.Extent2D{Width: uint32(width), Height: uint32(height)}
}

func (h *Host) CreateSurface(instance lava.Instance) (lava.Surface, error) {
	inst, err := h.drv.NativeInstance(instance)
	if err != nil {
		return lava.Surface(lava.NullHandle), err
	}
	surfPtr, err := h.window.CreateWindowSurface(inst, nil)
	if err != nil {
		return lava.Surface(lava.NullHandle), errors.Wrap(err, "create window surface")
	}
	return h.drv.AdoptSurface(vk.SurfaceFromPointer(surfPtr)), nil
}

func (h *Host) SetRedrawCallback(fn func()) {
	h.redraw = fn
}

func (h *Host) RequestRedraw() {
	if h.pending {
		return
	}
	h.pending = true
	glfw.PostEmptyEvent()
}

func (h *Host) onFramebufferSize(_ *glfw.Window, width, height int) {
	lava.Logger().Debug("framebuffer resized", slog.Int("width", width), slog.Int("height", height))
	if h.target != nil && h.target.Swapchain() != nil {
		h.target.Swapchain().MarkStale()
	}
	h.RequestRedraw()
}

// Run processes window events and serves redraw requests until the window
// is closed or a frame fails. It must be called from the main thread.
func (h *Host) Run(w *lava.Window) error {
	h.target = w
	defer func() { h.target = nil }()

	for !h.window.ShouldClose() {
		if h.pending {
			glfw.PollEvents()
		} else {
			glfw.WaitEvents()
		}
		if h.pending {
			h.pending = false
			if h.redraw != nil {
				h.redraw()
			}
		}
		if err := w.Err(); err != nil {
			return err
		}
	}
	return nil
}
