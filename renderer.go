package lava

import "github.com/pkg/errors"

// Renderer records the commands of each frame. The Window calls it on the
// thread that drives the event loop:
//
//	InitResources                once, after the device exists
//	InitSwapchainResources       after every swapchain (re)creation
//	NextFrame                    once per frame, must end with Window.FrameReady
//	ReleaseSwapchainResources    before every swapchain recreation and at shutdown
//	ReleaseResources             once, before the device is destroyed
//
// Anything sized from the swapchain extent or image count belongs in the
// swapchain resource pair, not in InitResources.
type Renderer interface {
	InitResources(w *Window) error
	InitSwapchainResources(w *Window) error
	ReleaseSwapchainResources(w *Window)
	NextFrame(w *Window) error
	ReleaseResources(w *Window)
}

// NopRenderer provides empty lifecycle methods. Embed it and implement
// NextFrame.
type NopRenderer struct{}

func (NopRenderer) InitResources(*Window) error          { return nil }
func (NopRenderer) InitSwapchainResources(*Window) error { return nil }
func (NopRenderer) ReleaseSwapchainResources(*Window)    {}
func (NopRenderer) ReleaseResources(*Window)             {}

// SemaphoreRing holds one semaphore per frame in flight, for renderers that
// pass their own completion semaphore to FrameReady. Indexing by frame slot
// keeps a semaphore from being signalled again while a previous frame still
// waits on it.
type SemaphoreRing struct {
	drv  Driver
	dev  Device
	sems []Semaphore
}

// NewSemaphoreRing creates n semaphores on dev.
func NewSemaphoreRing(drv Driver, dev Device, n int) (*SemaphoreRing, error) {
	r := &SemaphoreRing{drv: drv, dev: dev}
	for i := 0; i < n; i++ {
		s, err := drv.CreateSemaphore(dev)
		if err != nil {
			r.Destroy()
			return nil, errors.Wrap(err, "create ring semaphore")
		}
		r.sems = append(r.sems, s)
	}
	return r, nil
}

// Get returns the semaphore for frame slot frame.
func (r *SemaphoreRing) Get(frame int) Semaphore {
	return r.sems[frame%len(r.sems)]
}

func (r *SemaphoreRing) Len() int {
	return len(r.sems)
}

func (r *SemaphoreRing) Destroy() {
	for _, s := range r.sems {
		r.drv.DestroySemaphore(r.dev, s)
	}
	r.sems = nil
}
