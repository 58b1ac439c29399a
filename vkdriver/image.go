package vkdriver

import (
	"unsafe"

	"github.com/celer/lava"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// CreateImage creates a 2D image and binds it to a fresh allocation with
// the requested memory properties.
func (d *Driver) CreateImage(h lava.Device, info lava.ImageCreateInfo) (lava.Image, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.Image(lava.NullHandle), err
	}

	samples := info.Samples
	if samples == 0 {
		samples = lava.SampleCount1
	}
	var imageInfo = vk.ImageCreateInfo{}
	imageInfo.SType = vk.StructureTypeImageCreateInfo
	imageInfo.ImageType = vk.ImageType2d
	imageInfo.Extent.Width = info.Extent.Width
	imageInfo.Extent.Height = info.Extent.Height
	imageInfo.Extent.Depth = 1
	imageInfo.MipLevels = 1
	imageInfo.ArrayLayers = 1
	imageInfo.Format = vk.Format(info.Format)
	imageInfo.Tiling = vk.ImageTiling(info.Tiling)
	imageInfo.InitialLayout = vk.ImageLayoutUndefined
	imageInfo.Usage = vk.ImageUsageFlags(info.Usage)
	imageInfo.Samples = vk.SampleCountFlagBits(samples)
	imageInfo.SharingMode = vk.SharingModeExclusive

	var img vk.Image
	if err := vkError(vk.CreateImage(dev.vk, &imageInfo, nil, &img), "create image"); err != nil {
		return lava.Image(lava.NullHandle), err
	}

	var mr vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev.vk, img, &mr)
	mr.Deref()

	typeIndex, err := findMemoryType(dev.memory, mr.MemoryTypeBits, vk.MemoryPropertyFlags(info.Memory))
	if err != nil && info.Memory&lava.MemoryPropertyLazilyAllocated != 0 {
		// lazily allocated memory is optional; fall back to plain device memory
		typeIndex, err = findMemoryType(dev.memory, mr.MemoryTypeBits,
			vk.MemoryPropertyFlags(info.Memory&^lava.MemoryPropertyLazilyAllocated))
	}
	if err != nil {
		vk.DestroyImage(dev.vk, img, nil)
		return lava.Image(lava.NullHandle), err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  mr.Size,
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if err := vkError(vk.AllocateMemory(dev.vk, &allocateInfo, nil, &mem), "allocate image memory"); err != nil {
		vk.DestroyImage(dev.vk, img, nil)
		return lava.Image(lava.NullHandle), err
	}
	if err := vkError(vk.BindImageMemory(dev.vk, img, mem, 0), "bind image memory"); err != nil {
		vk.FreeMemory(dev.vk, mem, nil)
		vk.DestroyImage(dev.vk, img, nil)
		return lava.Image(lava.NullHandle), err
	}

	return lava.Image(d.images.Insert(&image{
		vk:     img,
		format: vk.Format(info.Format),
		memory: mem,
		size:   mr.Size,
		owned:  true,
	})), nil
}

// DestroyImage ignores swapchain images, which go with their swapchain.
func (d *Driver) DestroyImage(h lava.Device, img lava.Image) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	i, ok := d.images.Get(lava.Handle(img))
	if !ok || !i.owned {
		return
	}
	d.images.Remove(lava.Handle(img))
	vk.DestroyImage(dev.vk, i.vk, nil)
	vk.FreeMemory(dev.vk, i.memory, nil)
}

func (d *Driver) CreateImageView(h lava.Device, info lava.ImageViewCreateInfo) (lava.ImageView, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.ImageView(lava.NullHandle), err
	}
	img, err := d.image(info.Image)
	if err != nil {
		return lava.ImageView(lava.NullHandle), err
	}
	createImage := &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.vk,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(info.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	if err := vkError(vk.CreateImageView(dev.vk, createImage, nil, &view), "create image view"); err != nil {
		return lava.ImageView(lava.NullHandle), err
	}
	return lava.ImageView(d.views.Insert(view)), nil
}

func (d *Driver) DestroyImageView(h lava.Device, view lava.ImageView) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if v, ok := d.views.Remove(lava.Handle(view)); ok {
		vk.DestroyImageView(dev.vk, v, nil)
	}
}

func (d *Driver) ImageSubresourceLayout(h lava.Device, img lava.Image) lava.SubresourceLayout {
	dev, err := d.device(h)
	if err != nil {
		return lava.SubresourceLayout{}
	}
	i, err := d.image(img)
	if err != nil {
		return lava.SubresourceLayout{}
	}
	var layout vk.SubresourceLayout
	vk.GetImageSubresourceLayout(dev.vk, i.vk, &vk.ImageSubresource{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	}, &layout)
	layout.Deref()
	return lava.SubresourceLayout{
		Offset:   uint64(layout.Offset),
		Size:     uint64(layout.Size),
		RowPitch: uint64(layout.RowPitch),
	}
}

func (d *Driver) MapImage(h lava.Device, img lava.Image) ([]byte, error) {
	dev, err := d.device(h)
	if err != nil {
		return nil, err
	}
	i, err := d.image(img)
	if err != nil {
		return nil, err
	}
	if !i.owned {
		return nil, errors.New("vkdriver: swapchain images cannot be mapped")
	}
	var ptr unsafe.Pointer
	if err := vkError(vk.MapMemory(dev.vk, i.memory, 0, i.size, 0, &ptr), "map image memory"); err != nil {
		return nil, err
	}
	return ToBytes(ptr, int(i.size)), nil
}

func (d *Driver) UnmapImage(h lava.Device, img lava.Image) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if i, err := d.image(img); err == nil && i.owned {
		vk.UnmapMemory(dev.vk, i.memory)
	}
}

func (d *Driver) CreateShaderModule(h lava.Device, code []byte) (lava.ShaderModule, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.ShaderModule(lava.NullHandle), err
	}
	if err := lava.ValidateSPIRV(code); err != nil {
		return lava.ShaderModule(lava.NullHandle), err
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if err := vkError(vk.CreateShaderModule(dev.vk, &info, nil, &module), "create shader module"); err != nil {
		return lava.ShaderModule(lava.NullHandle), err
	}
	return lava.ShaderModule(d.shaders.Insert(module)), nil
}

func (d *Driver) DestroyShaderModule(h lava.Device, module lava.ShaderModule) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if m, ok := d.shaders.Remove(lava.Handle(module)); ok {
		vk.DestroyShaderModule(dev.vk, m, nil)
	}
}
