package lava

import "fmt"

// Handle is an opaque, generation counted reference to a GPU object owned by a
// Driver. The low 32 bits hold the arena slot (plus one, so that the zero
// Handle is null) and the high 32 bits hold the slot generation.
type Handle uint64

// NullHandle refers to nothing.
const NullHandle Handle = 0

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

// IsNull reports whether h refers to nothing.
func (h Handle) IsNull() bool {
	return h == NullHandle
}

func (h Handle) slot() uint32 {
	return uint32(h) - 1
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

func (h Handle) String() string {
	if h.IsNull() {
		return "null"
	}
	return fmt.Sprintf("#%d.%d", h.slot(), h.generation())
}

// Typed handles, so a fence can never be passed where a semaphore is expected.
type (
	Instance       Handle
	Surface        Handle
	PhysicalDevice Handle
	Device         Handle
	Queue          Handle
	CommandPool    Handle
	CommandBuffer  Handle
	Fence          Handle
	Semaphore      Handle
	Swapchain      Handle
	Image          Handle
	ImageView      Handle
	RenderPass     Handle
	Framebuffer    Handle
	ShaderModule   Handle
)

type arenaSlot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Arena stores values addressed by generation counted handles. Removing a
// value bumps the generation of its slot, so a stale handle that outlived its
// object is rejected instead of silently aliasing whatever reuses the slot.
//
// An Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	count int
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, arenaSlot[T]{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.value = v
	s.live = true
	a.count++
	return makeHandle(idx, s.gen)
}

// Get returns the value for h, or false when h is null or stale.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	s := a.lookup(h)
	if s == nil {
		return zero, false
	}
	return s.value, true
}

// Remove deletes the value for h and returns it.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	s := a.lookup(h)
	if s == nil {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.live = false
	s.gen++
	a.free = append(a.free, h.slot())
	a.count--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	return a.count
}

// Each calls fn for every live value in slot order.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			fn(makeHandle(uint32(i), s.gen), s.value)
		}
	}
}

func (a *Arena[T]) lookup(h Handle) *arenaSlot[T] {
	if h.IsNull() {
		return nil
	}
	idx := h.slot()
	if int(idx) >= len(a.slots) {
		return nil
	}
	s := &a.slots[idx]
	if !s.live || s.gen != h.generation() {
		return nil
	}
	return s
}

func (h Surface) IsNull() bool       { return Handle(h).IsNull() }
func (h Device) IsNull() bool        { return Handle(h).IsNull() }
func (h CommandPool) IsNull() bool   { return Handle(h).IsNull() }
func (h CommandBuffer) IsNull() bool { return Handle(h).IsNull() }
func (h Fence) IsNull() bool         { return Handle(h).IsNull() }
func (h Semaphore) IsNull() bool     { return Handle(h).IsNull() }
func (h Swapchain) IsNull() bool     { return Handle(h).IsNull() }
func (h Image) IsNull() bool         { return Handle(h).IsNull() }
func (h ImageView) IsNull() bool     { return Handle(h).IsNull() }
func (h RenderPass) IsNull() bool    { return Handle(h).IsNull() }
func (h Framebuffer) IsNull() bool   { return Handle(h).IsNull() }
func (h ShaderModule) IsNull() bool  { return Handle(h).IsNull() }
