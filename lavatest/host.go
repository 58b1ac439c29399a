package lavatest

import (
	"github.com/celer/lava"
)

// Host is a lava.WindowHost whose event loop is driven by the test through
// Tick.
type Host struct {
	Driver *Driver
	Extent lava.Extent2D
	// SurfaceErr fails CreateSurface while set.
	SurfaceErr error
	// Redraws counts RequestRedraw calls, coalesced or not.
	Redraws int

	pending bool
	redraw  func()
}

var _ lava.WindowHost = (*Host)(nil)

// NewHost returns a host whose surface is as large as d's.
func NewHost(d *Driver) *Host {
	return &Host{Driver: d, Extent: d.SurfaceExtent}
}

func (h *Host) CurrentSurfaceExtent() lava.Extent2D {
	return h.Extent
}

func (h *Host) CreateSurface(instance lava.Instance) (lava.Surface, error) {
	if h.SurfaceErr != nil {
		return lava.Surface(lava.NullHandle), h.SurfaceErr
	}
	return h.Driver.CreateSurface(instance)
}

func (h *Host) SetRedrawCallback(fn func()) {
	h.redraw = fn
}

func (h *Host) RequestRedraw() {
	h.Redraws++
	h.pending = true
}

// Pending reports whether a redraw was requested and not yet served.
func (h *Host) Pending() bool {
	return h.pending
}

// Tick serves a pending redraw and reports whether it did.
func (h *Host) Tick() bool {
	if !h.pending || h.redraw == nil {
		return false
	}
	h.pending = false
	h.redraw()
	return true
}

// Resize changes the window and surface size together, as a window system
// does when the user drags the window border.
func (h *Host) Resize(width, height uint32) {
	h.Extent = lava.Extent2D{Width: width, Height: height}
	h.Driver.SurfaceExtent = h.Extent
}
