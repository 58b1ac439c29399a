package lava

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChooseExtent(t *testing.T) {
	caps := SurfaceCapabilities{
		CurrentExtent:  Extent2D{Width: 800, Height: 600},
		MinImageExtent: Extent2D{Width: 16, Height: 16},
		MaxImageExtent: Extent2D{Width: 4096, Height: 4096},
	}
	assert.Equal(t, Extent2D{Width: 800, Height: 600}, chooseExtent(caps, Extent2D{Width: 1, Height: 1}),
		"a defined current extent wins over the request")

	caps.CurrentExtent = Extent2D{Width: UndefinedExtent, Height: UndefinedExtent}
	assert.Equal(t, Extent2D{Width: 1024, Height: 768}, chooseExtent(caps, Extent2D{Width: 1024, Height: 768}))
	assert.Equal(t, Extent2D{Width: 16, Height: 4096}, chooseExtent(caps, Extent2D{Width: 2, Height: 9000}))

	caps.MaxImageExtent = Extent2D{}
	assert.Equal(t, Extent2D{Width: 9000, Height: 9000}, chooseExtent(caps, Extent2D{Width: 9000, Height: 9000}),
		"a zero maximum does not clamp")
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), chooseImageCount(SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.Equal(t, uint32(2), chooseImageCount(SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
	assert.Equal(t, uint32(4), chooseImageCount(SurfaceCapabilities{MinImageCount: 3}))
}

func TestChoosePresentMode(t *testing.T) {
	all := []PresentMode{PresentModeFifo, PresentModeImmediate, PresentModeMailbox}
	assert.Equal(t, PresentModeFifo, choosePresentMode(all, true))
	assert.Equal(t, PresentModeMailbox, choosePresentMode(all, false))
	assert.Equal(t, PresentModeImmediate, choosePresentMode([]PresentMode{PresentModeFifo, PresentModeImmediate}, false))
	assert.Equal(t, PresentModeFifo, choosePresentMode([]PresentMode{PresentModeFifoRelaxed}, false))
}

func TestChooseCompositeAlpha(t *testing.T) {
	assert.Equal(t, CompositeAlphaOpaque, chooseCompositeAlpha(CompositeAlphaOpaque|CompositeAlphaInherit))
	assert.Equal(t, CompositeAlphaInherit, chooseCompositeAlpha(CompositeAlphaInherit))
	assert.Equal(t, CompositeAlphaOpaque, chooseCompositeAlpha(0))
}

func TestRenderPassInfo(t *testing.T) {
	ctx := &DeviceContext{ColorFormat: FormatB8G8R8A8Srgb, DepthFormat: FormatD32Sfloat}

	m := NewSwapchainManager(nil, ctx, Surface(NullHandle), SwapchainOptions{})
	info := m.renderPassInfo()
	assert.Len(t, info.Attachments, 2)
	assert.Equal(t, NoAttachment, info.ResolveAttachment)
	assert.Equal(t, ImageLayoutPresentSrc, info.Attachments[info.ColorAttachment].FinalLayout)
	assert.Equal(t, StoreOpDontCare, info.Attachments[info.DepthAttachment].StoreOp)
	assert.Equal(t, LoadOpDontCare, info.Attachments[info.DepthAttachment].StencilLoadOp)

	ctx.DepthFormat = FormatD24UnormS8Uint
	m = NewSwapchainManager(nil, ctx, Surface(NullHandle), SwapchainOptions{Samples: SampleCount4, KeepDepth: true})
	info = m.renderPassInfo()
	assert.Len(t, info.Attachments, 3)
	color := info.Attachments[info.ColorAttachment]
	resolve := info.Attachments[info.ResolveAttachment]
	assert.Equal(t, SampleCount4, color.Samples)
	assert.Equal(t, StoreOpDontCare, color.StoreOp)
	assert.Equal(t, SampleCount1, resolve.Samples)
	assert.Equal(t, ImageLayoutPresentSrc, resolve.FinalLayout)
	depth := info.Attachments[info.DepthAttachment]
	assert.Equal(t, SampleCount4, depth.Samples)
	assert.Equal(t, StoreOpStore, depth.StoreOp)
	assert.Equal(t, StoreOpStore, depth.StencilStoreOp)
	assert.Equal(t, LoadOpClear, depth.StencilLoadOp)
}
