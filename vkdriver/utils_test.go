package vkdriver

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/celer/lava"
	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"
)

func TestSafeString(t *testing.T) {
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, "VK_KHR_swapchain\x00", safeString("VK_KHR_swapchain"))
	assert.Equal(t, "done\x00", safeString("done\x00"))
}

func TestSafeStringsCopies(t *testing.T) {
	in := []string{"a", "b\x00"}
	out := safeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0], "the input is left alone")
	assert.Empty(t, safeStrings(nil))
}

func TestSliceUint32(t *testing.T) {
	assert.Nil(t, sliceUint32(nil))

	code := make([]byte, 8)
	binary.LittleEndian.PutUint32(code, lava.SPIRVMagic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010000)
	words := sliceUint32(code)
	assert.Len(t, words, 2)
	assert.Equal(t, uint32(lava.SPIRVMagic), words[0])
}

func TestToBytes(t *testing.T) {
	v := [4]byte{1, 2, 3, 4}
	b := ToBytes(unsafe.Pointer(&v[0]), 4)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)
	b[0] = 9
	assert.Equal(t, byte(9), v[0], "ToBytes aliases the memory")
}

func TestVKError(t *testing.T) {
	assert.NoError(t, vkError(vk.Success, "op"))
	assert.ErrorIs(t, vkError(vk.ErrorDeviceLost, "submit"), lava.ErrDeviceLost)

	err := vkError(vk.ErrorOutOfHostMemory, "create image")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "create image")
}

func TestPresentResult(t *testing.T) {
	for res, want := range map[vk.Result]lava.Result{
		vk.Success:        lava.Success,
		vk.Suboptimal:     lava.Suboptimal,
		vk.ErrorOutOfDate: lava.OutOfDate,
	} {
		got, err := presentResult(res, "present")
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := presentResult(vk.ErrorDeviceLost, "present")
	assert.ErrorIs(t, err, lava.ErrDeviceLost)
	_, err = presentResult(vk.ErrorSurfaceLost, "present")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	assert.Equal(t, vk.MakeVersion(1, 2, 3), Version{Major: 1, Minor: 2, Patch: 3}.VKVersion())
}
