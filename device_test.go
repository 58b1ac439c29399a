package lava

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func presentsOn(families ...int) func(int) bool {
	return func(f int) bool {
		for _, p := range families {
			if p == f {
				return true
			}
		}
		return false
	}
}

func TestChooseQueueFamilies(t *testing.T) {
	graphics := QueueFamilyInfo{Index: 0, Flags: QueueGraphics | QueueCompute, Count: 1}
	transfer := QueueFamilyInfo{Index: 1, Flags: QueueTransfer, Count: 1}
	graphics2 := QueueFamilyInfo{Index: 2, Flags: QueueGraphics, Count: 1}

	tests := []struct {
		name     string
		families []QueueFamilyInfo
		presents func(int) bool
		want     queueChoice
		ok       bool
	}{
		{"shared", []QueueFamilyInfo{graphics}, presentsOn(0), queueChoice{0, 0}, true},
		{"separate", []QueueFamilyInfo{graphics, transfer}, presentsOn(1), queueChoice{0, 1}, true},
		{"prefers shared", []QueueFamilyInfo{graphics, transfer, graphics2}, presentsOn(1, 2), queueChoice{2, 2}, true},
		{"no present", []QueueFamilyInfo{graphics}, presentsOn(), queueChoice{}, false},
		{"no graphics", []QueueFamilyInfo{transfer}, presentsOn(1), queueChoice{}, false},
		{"empty family", []QueueFamilyInfo{{Index: 0, Flags: QueueGraphics}}, presentsOn(0), queueChoice{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := chooseQueueFamilies(tt.families, tt.presents)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := SurfaceFormat{Format: FormatB8G8R8A8Srgb}
	unorm := SurfaceFormat{Format: FormatR8G8B8A8Unorm}

	got, fallback, err := chooseSurfaceFormat([]SurfaceFormat{unorm, srgb}, nil)
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, srgb, got, "default preference puts BGRA sRGB first")

	got, fallback, err = chooseSurfaceFormat([]SurfaceFormat{unorm, srgb}, []Format{FormatR8G8B8A8Unorm})
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, unorm, got)

	got, fallback, err = chooseSurfaceFormat([]SurfaceFormat{{Format: FormatUndefined}}, []Format{FormatR8G8B8A8Srgb})
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, FormatR8G8B8A8Srgb, got.Format)

	got, fallback, err = chooseSurfaceFormat([]SurfaceFormat{{Format: FormatD16Unorm}}, nil)
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, FormatD16Unorm, got.Format)

	_, _, err = chooseSurfaceFormat(nil, nil)
	assert.Error(t, err)
}

func TestChooseDepthFormat(t *testing.T) {
	only := func(supported Format, linear bool) func(Format) FormatProperties {
		return func(f Format) FormatProperties {
			if f != supported {
				return FormatProperties{}
			}
			if linear {
				return FormatProperties{Linear: FormatFeatureDepthStencilAttachment}
			}
			return FormatProperties{Optimal: FormatFeatureDepthStencilAttachment}
		}
	}

	f, err := chooseDepthFormat(only(FormatD24UnormS8Uint, false))
	require.NoError(t, err)
	assert.Equal(t, FormatD24UnormS8Uint, f)

	f, err = chooseDepthFormat(only(FormatD16Unorm, true))
	require.NoError(t, err)
	assert.Equal(t, FormatD16Unorm, f)

	_, err = chooseDepthFormat(func(Format) FormatProperties { return FormatProperties{} })
	assert.ErrorIs(t, err, ErrNoSupportedDepthFormat)
}

func TestFormatAspect(t *testing.T) {
	assert.Equal(t, ImageAspectColor, FormatB8G8R8A8Srgb.Aspect())
	assert.Equal(t, ImageAspectDepth, FormatD32Sfloat.Aspect())
	assert.Equal(t, ImageAspectDepth|ImageAspectStencil, FormatD24UnormS8Uint.Aspect())
	assert.True(t, FormatB8G8R8A8Unorm.IsBGR())
	assert.False(t, FormatR8G8B8A8Srgb.IsBGR())
}
