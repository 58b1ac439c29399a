package vkdriver

import (
	"github.com/celer/lava"
	vk "github.com/vulkan-go/vulkan"
)

func (d *Driver) CreateCommandPool(h lava.Device, family int) (lava.CommandPool, error) {
	dev, err := d.device(h)
	if err != nil {
		return lava.CommandPool(lava.NullHandle), err
	}
	var commandPoolCreateInfo = vk.CommandPoolCreateInfo{}
	commandPoolCreateInfo.SType = vk.StructureTypeCommandPoolCreateInfo
	commandPoolCreateInfo.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	commandPoolCreateInfo.QueueFamilyIndex = uint32(family)

	var commandPool vk.CommandPool
	if err := vkError(vk.CreateCommandPool(dev.vk, &commandPoolCreateInfo, nil, &commandPool), "create command pool"); err != nil {
		return lava.CommandPool(lava.NullHandle), err
	}
	return lava.CommandPool(d.pools.Insert(commandPool)), nil
}

func (d *Driver) DestroyCommandPool(h lava.Device, pool lava.CommandPool) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if p, ok := d.pools.Remove(lava.Handle(pool)); ok {
		vk.DestroyCommandPool(dev.vk, p, nil)
	}
}

func (d *Driver) AllocateCommandBuffers(h lava.Device, pool lava.CommandPool, count int) ([]lava.CommandBuffer, error) {
	dev, err := d.device(h)
	if err != nil {
		return nil, err
	}
	p, ok := d.pools.Get(lava.Handle(pool))
	if !ok {
		return nil, stale("command pool", lava.Handle(pool))
	}

	var commandBufferAllocateInfo = vk.CommandBufferAllocateInfo{}
	commandBufferAllocateInfo.SType = vk.StructureTypeCommandBufferAllocateInfo
	commandBufferAllocateInfo.CommandPool = p
	commandBufferAllocateInfo.Level = vk.CommandBufferLevelPrimary
	commandBufferAllocateInfo.CommandBufferCount = uint32(count)

	cmdBuffers := make([]vk.CommandBuffer, count)
	if err := vkError(vk.AllocateCommandBuffers(dev.vk, &commandBufferAllocateInfo, cmdBuffers), "allocate command buffers"); err != nil {
		return nil, err
	}
	ret := make([]lava.CommandBuffer, count)
	for i := range cmdBuffers {
		ret[i] = lava.CommandBuffer(d.cmds.Insert(cmdBuffers[i]))
	}
	return ret, nil
}

func (d *Driver) FreeCommandBuffers(h lava.Device, pool lava.CommandPool, cbs []lava.CommandBuffer) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	p, ok := d.pools.Get(lava.Handle(pool))
	if !ok {
		return
	}
	b := make([]vk.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		if c, ok := d.cmds.Remove(lava.Handle(cb)); ok {
			b = append(b, c)
		}
	}
	if len(b) > 0 {
		vk.FreeCommandBuffers(dev.vk, p, uint32(len(b)), b)
	}
}

func (d *Driver) cmd(cb lava.CommandBuffer) (vk.CommandBuffer, error) {
	c, ok := d.cmds.Get(lava.Handle(cb))
	if !ok {
		return nil, stale("command buffer", lava.Handle(cb))
	}
	return c, nil
}

func (d *Driver) ResetCommandBuffer(cb lava.CommandBuffer) error {
	c, err := d.cmd(cb)
	if err != nil {
		return err
	}
	return vkError(vk.ResetCommandBuffer(c, 0), "reset command buffer")
}

func (d *Driver) BeginCommandBuffer(cb lava.CommandBuffer, oneTime bool) error {
	c, err := d.cmd(cb)
	if err != nil {
		return err
	}
	var beginInfo = vk.CommandBufferBeginInfo{}
	beginInfo.SType = vk.StructureTypeCommandBufferBeginInfo
	if oneTime {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return vkError(vk.BeginCommandBuffer(c, &beginInfo), "begin command buffer")
}

func (d *Driver) EndCommandBuffer(cb lava.CommandBuffer) error {
	c, err := d.cmd(cb)
	if err != nil {
		return err
	}
	return vkError(vk.EndCommandBuffer(c), "end command buffer")
}

func (d *Driver) CmdBeginRenderPass(cb lava.CommandBuffer, info lava.RenderPassBeginInfo) {
	c, err := d.cmd(cb)
	if err != nil {
		return
	}
	rp, _ := d.renderPasses.Get(lava.Handle(info.RenderPass))
	fb, _ := d.framebuffers.Get(lava.Handle(info.Framebuffer))

	clearValues := make([]vk.ClearValue, len(info.ClearValues))
	for i, cv := range info.ClearValues {
		if cv.DepthStencil {
			clearValues[i].SetDepthStencil(cv.Depth, cv.Stencil)
		} else {
			clearValues[i].SetColor(cv.Color[:])
		}
	}

	renderPassBeginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c, &renderPassBeginInfo, vk.SubpassContentsInline)
}

func (d *Driver) CmdEndRenderPass(cb lava.CommandBuffer) {
	if c, err := d.cmd(cb); err == nil {
		vk.CmdEndRenderPass(c)
	}
}

func (d *Driver) CmdImageBarrier(cb lava.CommandBuffer, b lava.ImageBarrier) {
	c, err := d.cmd(cb)
	if err != nil {
		return
	}
	img, err := d.image(b.Image)
	if err != nil {
		return
	}
	var barrier = vk.ImageMemoryBarrier{}
	barrier.SType = vk.StructureTypeImageMemoryBarrier
	barrier.OldLayout = vk.ImageLayout(b.OldLayout)
	barrier.NewLayout = vk.ImageLayout(b.NewLayout)
	barrier.SrcQueueFamilyIndex = b.SrcQueueFamily
	barrier.DstQueueFamilyIndex = b.DstQueueFamily
	barrier.Image = img.vk
	barrier.SubresourceRange.AspectMask = vk.ImageAspectFlags(b.Aspect)
	barrier.SubresourceRange.LevelCount = 1
	barrier.SubresourceRange.LayerCount = 1
	barrier.SrcAccessMask = vk.AccessFlags(b.SrcAccess)
	barrier.DstAccessMask = vk.AccessFlags(b.DstAccess)

	vk.CmdPipelineBarrier(c, vk.PipelineStageFlags(b.SrcStage), vk.PipelineStageFlags(b.DstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func colorLayers() vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
}

func (d *Driver) CmdBlitImage(cb lava.CommandBuffer, blit lava.ImageBlit) {
	c, err := d.cmd(cb)
	if err != nil {
		return
	}
	src, err := d.image(blit.Src)
	if err != nil {
		return
	}
	dst, err := d.image(blit.Dst)
	if err != nil {
		return
	}
	corner := vk.Offset3D{X: int32(blit.Extent.Width), Y: int32(blit.Extent.Height), Z: 1}
	region := vk.ImageBlit{
		SrcSubresource: colorLayers(),
		SrcOffsets:     [2]vk.Offset3D{{}, corner},
		DstSubresource: colorLayers(),
		DstOffsets:     [2]vk.Offset3D{{}, corner},
	}
	vk.CmdBlitImage(c, src.vk, vk.ImageLayoutTransferSrcOptimal, dst.vk, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterNearest)
}

func (d *Driver) CmdCopyImage(cb lava.CommandBuffer, cp lava.ImageCopy) {
	c, err := d.cmd(cb)
	if err != nil {
		return
	}
	src, err := d.image(cp.Src)
	if err != nil {
		return
	}
	dst, err := d.image(cp.Dst)
	if err != nil {
		return
	}
	region := vk.ImageCopy{
		SrcSubresource: colorLayers(),
		DstSubresource: colorLayers(),
		Extent:         vk.Extent3D{Width: cp.Extent.Width, Height: cp.Extent.Height, Depth: 1},
	}
	vk.CmdCopyImage(c, src.vk, vk.ImageLayoutTransferSrcOptimal, dst.vk, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{region})
}

func (d *Driver) QueueSubmit(queue lava.Queue, info lava.SubmitInfo, fence lava.Fence) error {
	q, ok := d.queues.Get(lava.Handle(queue))
	if !ok {
		return stale("queue", lava.Handle(queue))
	}

	b := make([]vk.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		c, err := d.cmd(cb)
		if err != nil {
			return err
		}
		b = append(b, c)
	}

	var wait []vk.Semaphore
	var stages []vk.PipelineStageFlags
	for i, s := range info.Wait {
		sema := d.semaphore(s)
		if sema == vk.NullSemaphore {
			continue
		}
		wait = append(wait, sema)
		stage := lava.PipelineStageTopOfPipe
		if i < len(info.WaitStages) {
			stage = info.WaitStages[i]
		}
		stages = append(stages, vk.PipelineStageFlags(stage))
	}
	signal := d.semaphoreList(info.Signal)

	var submitInfo = vk.SubmitInfo{}
	submitInfo.SType = vk.StructureTypeSubmitInfo
	submitInfo.WaitSemaphoreCount = uint32(len(wait))
	submitInfo.PWaitSemaphores = wait
	submitInfo.PWaitDstStageMask = stages
	submitInfo.CommandBufferCount = uint32(len(b))
	submitInfo.PCommandBuffers = b
	submitInfo.SignalSemaphoreCount = uint32(len(signal))
	submitInfo.PSignalSemaphores = signal

	return vkError(vk.QueueSubmit(q, 1, []vk.SubmitInfo{submitInfo}, d.fence(fence)), "queue submit")
}

func (d *Driver) QueueWaitIdle(queue lava.Queue) error {
	q, ok := d.queues.Get(lava.Handle(queue))
	if !ok {
		return stale("queue", lava.Handle(queue))
	}
	return vkError(vk.QueueWaitIdle(q), "queue wait idle")
}
