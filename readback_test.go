package lava

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadbackPlan(t *testing.T) {
	blittable := FormatProperties{Optimal: FormatFeatureBlitSrc}
	rgba := FormatProperties{Linear: FormatFeatureBlitDst}

	f, blit := readbackPlan(FormatB8G8R8A8Srgb, blittable, rgba)
	assert.True(t, blit)
	assert.Equal(t, FormatR8G8B8A8Unorm, f)

	f, blit = readbackPlan(FormatB8G8R8A8Srgb, FormatProperties{}, rgba)
	assert.False(t, blit)
	assert.Equal(t, FormatB8G8R8A8Srgb, f)

	f, blit = readbackPlan(FormatB8G8R8A8Srgb, blittable, FormatProperties{Optimal: FormatFeatureBlitDst})
	assert.False(t, blit, "the staging image is linear")
	assert.Equal(t, FormatB8G8R8A8Srgb, f)
}

// paddedRows builds a w x h image with pitch bytes per row. Pixel x, y holds
// x, y, 7, 255 and padding bytes hold 0xEE.
func paddedRows(offset, pitch, w, h int) []byte {
	data := make([]byte, offset+pitch*h)
	for i := range data {
		data[i] = 0xEE
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := offset + y*pitch + x*4
			copy(data[p:], []byte{byte(x), byte(y), 7, 255})
		}
	}
	return data
}

func TestCopyGrabStripsPadding(t *testing.T) {
	const w, h, pitch, offset = 3, 2, 20, 8
	data := paddedRows(offset, pitch, w, h)

	g, err := copyGrab(data, SubresourceLayout{Offset: offset, RowPitch: pitch}, Extent2D{Width: w, Height: h}, FormatR8G8B8A8Unorm)
	require.NoError(t, err)
	assert.Equal(t, pitch, g.RowPitch)
	assert.Equal(t, []byte{0, 1, 7, 255, 1, 1, 7, 255, 2, 1, 7, 255}, g.Row(1))
	assert.Equal(t, color.RGBA{R: 2, G: 0, B: 7, A: 255}, g.At(2, 0))

	img := g.RGBA()
	assert.Equal(t, w*4, img.Stride)
	assert.Equal(t, color.RGBA{R: 1, G: 1, B: 7, A: 255}, img.RGBAAt(1, 1))
}

func TestCopyGrabSwizzlesBGR(t *testing.T) {
	data := paddedRows(0, 8, 2, 1)
	g, err := copyGrab(data, SubresourceLayout{RowPitch: 8}, Extent2D{Width: 2, Height: 1}, FormatB8G8R8A8Unorm)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 7, G: 0, B: 1, A: 255}, g.At(1, 0))
	assert.Equal(t, color.RGBA{R: 7, G: 0, B: 1, A: 255}, g.RGBA().RGBAAt(1, 0))
	// The raw bytes keep the swapchain order.
	assert.Equal(t, byte(1), g.Row(0)[4])
}

func TestCopyGrabErrors(t *testing.T) {
	extent := Extent2D{Width: 4, Height: 4}

	_, err := copyGrab(make([]byte, 64), SubresourceLayout{RowPitch: 12}, extent, FormatR8G8B8A8Unorm)
	assert.Error(t, err, "pitch smaller than a row")

	_, err = copyGrab(make([]byte, 63), SubresourceLayout{RowPitch: 16}, extent, FormatR8G8B8A8Unorm)
	assert.Error(t, err, "mapping too short")

	// The last row needs no padding after it.
	_, err = copyGrab(make([]byte, 3*20+16), SubresourceLayout{RowPitch: 20}, extent, FormatR8G8B8A8Unorm)
	assert.NoError(t, err)
}
