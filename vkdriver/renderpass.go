package vkdriver

import (
	"github.com/celer/lava"
	vk "github.com/vulkan-go/vulkan"
)

func attachmentReference(index int, layout vk.ImageLayout) *vk.AttachmentReference {
	if index == lava.NoAttachment {
		return nil
	}
	return &vk.AttachmentReference{Attachment: uint32(index), Layout: layout}
}

// CreateRenderPass creates a single subpass render pass with an external
// dependency that orders colour and depth writes after the previous frame.
func (d *Driver) CreateRenderPass(h lava.Device, info lava.RenderPassCreateInfo) (lava.RenderPass, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.RenderPass(lava.NullHandle), err
	}

	attachmentDescriptions := make([]vk.AttachmentDescription, len(info.Attachments))
	for i, a := range info.Attachments {
		attachmentDescriptions[i] = vk.AttachmentDescription{
			Format:         vk.Format(a.Format),
			Samples:        vk.SampleCountFlagBits(a.Samples),
			LoadOp:         vk.AttachmentLoadOp(a.LoadOp),
			StoreOp:        vk.AttachmentStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOp(a.StencilLoadOp),
			StencilStoreOp: vk.AttachmentStoreOp(a.StencilStoreOp),
			InitialLayout:  vk.ImageLayout(a.InitialLayout),
			FinalLayout:    vk.ImageLayout(a.FinalLayout),
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{*attachmentReference(info.ColorAttachment, vk.ImageLayoutColorAttachmentOptimal)},
	}
	if ref := attachmentReference(info.DepthAttachment, vk.ImageLayoutDepthStencilAttachmentOptimal); ref != nil {
		subpass.PDepthStencilAttachment = ref
	}
	if ref := attachmentReference(info.ResolveAttachment, vk.ImageLayoutColorAttachmentOptimal); ref != nil {
		subpass.PResolveAttachments = []vk.AttachmentReference{*ref}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageLateFragmentTestsBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderPassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if err := vkError(vk.CreateRenderPass(dev.vk, &renderPassCreateInfo, nil, &renderPass), "create render pass"); err != nil {
		return lava.RenderPass(lava.NullHandle), err
	}
	return lava.RenderPass(d.renderPasses.Insert(renderPass)), nil
}

func (d *Driver) DestroyRenderPass(h lava.Device, rp lava.RenderPass) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if r, ok := d.renderPasses.Remove(lava.Handle(rp)); ok {
		vk.DestroyRenderPass(dev.vk, r, nil)
	}
}

func (d *Driver) CreateFramebuffer(h lava.Device, info lava.FramebufferCreateInfo) (lava.Framebuffer, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.Framebuffer(lava.NullHandle), err
	}
	rp, ok := d.renderPasses.Get(lava.Handle(info.RenderPass))
	if !ok {
		return lava.Framebuffer(lava.NullHandle), stale("render pass", lava.Handle(info.RenderPass))
	}
	attachments := make([]vk.ImageView, len(info.Attachments))
	for i, a := range info.Attachments {
		v, ok := d.views.Get(lava.Handle(a))
		if !ok {
			return lava.Framebuffer(lava.NullHandle), stale("image view", lava.Handle(a))
		}
		attachments[i] = v
	}
	fbCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		Layers:          1,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
	}
	var fb vk.Framebuffer
	if err := vkError(vk.CreateFramebuffer(dev.vk, &fbCreateInfo, nil, &fb), "create framebuffer"); err != nil {
		return lava.Framebuffer(lava.NullHandle), err
	}
	return lava.Framebuffer(d.framebuffers.Insert(fb)), nil
}

func (d *Driver) DestroyFramebuffer(h lava.Device, fb lava.Framebuffer) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if f, ok := d.framebuffers.Remove(lava.Handle(fb)); ok {
		vk.DestroyFramebuffer(dev.vk, f, nil)
	}
}
