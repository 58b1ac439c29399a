package lava

import (
	"image"
	"image/color"
	"log/slog"

	"github.com/pkg/errors"
)

// FrameGrab is a copy of a presented swapchain image. Pix keeps the row
// layout of the staging image: row y starts at y*RowPitch, and RowPitch may
// exceed Width*4.
type FrameGrab struct {
	Width    int
	Height   int
	Format   Format
	RowPitch int
	Pix      []byte
}

// Row returns the pixels of row y without padding.
func (g *FrameGrab) Row(y int) []byte {
	off := y * g.RowPitch
	return g.Pix[off : off+g.Width*4]
}

// At returns the pixel at x, y in RGBA order.
func (g *FrameGrab) At(x, y int) color.RGBA {
	p := g.Row(y)[x*4 : x*4+4]
	if g.Format.IsBGR() {
		return color.RGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
	}
	return color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// RGBA converts the grab to a tightly packed RGBA image.
func (g *FrameGrab) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		dst := img.Pix[y*img.Stride : y*img.Stride+g.Width*4]
		copy(dst, g.Row(y))
		if g.Format.IsBGR() {
			for i := 0; i < len(dst); i += 4 {
				dst[i], dst[i+2] = dst[i+2], dst[i]
			}
		}
	}
	return img
}

// readbackPlan decides how the swapchain image reaches the staging image.
// A format converting blit to RGBA is used when both formats allow it,
// otherwise a plain copy keeps the swapchain format.
func readbackPlan(src Format, srcProps, rgbaProps FormatProperties) (dst Format, blit bool) {
	if srcProps.Optimal&FormatFeatureBlitSrc != 0 && rgbaProps.Linear&FormatFeatureBlitDst != 0 {
		return FormatR8G8B8A8Unorm, true
	}
	return src, false
}

// readback copies the acquired image into host memory after the frame's
// submission. The copy waits on wait and signals the readback semaphore,
// which the present then waits on. It blocks until the graphics queue is
// idle. submitted reports whether the readback semaphore will be signalled,
// even when the grab itself failed afterwards.
func (s *FrameScheduler) readback(wait Semaphore) (grab *FrameGrab, submitted bool, err error) {
	if !s.sc.SupportsReadback() {
		return nil, false, ErrReadbackUnsupported
	}
	dev := s.ctx.Device
	extent := s.sc.Extent()
	src := s.sc.Images()[s.imageIndex]
	srcFormat := s.sc.ColorFormat()

	dstFormat, blit := readbackPlan(srcFormat,
		s.ctx.FormatProperties(srcFormat),
		s.ctx.FormatProperties(FormatR8G8B8A8Unorm))

	staging, err := s.drv.CreateImage(dev, ImageCreateInfo{
		Extent:  extent,
		Format:  dstFormat,
		Tiling:  ImageTilingLinear,
		Usage:   ImageUsageTransferDst,
		Samples: SampleCount1,
		Memory:  MemoryPropertyHostVisible | MemoryPropertyHostCoherent,
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "create readback image")
	}
	defer s.drv.DestroyImage(dev, staging)

	cmds, err := s.drv.AllocateCommandBuffers(dev, s.pool, 1)
	if err != nil {
		return nil, false, errors.Wrap(err, "allocate readback command buffer")
	}
	defer s.drv.FreeCommandBuffers(dev, s.pool, cmds)
	cb := cmds[0]

	if err := s.drv.BeginCommandBuffer(cb, true); err != nil {
		return nil, false, errors.Wrap(err, "begin readback")
	}
	s.drv.CmdImageBarrier(cb, ImageBarrier{
		Image:          src,
		Aspect:         ImageAspectColor,
		OldLayout:      ImageLayoutPresentSrc,
		NewLayout:      ImageLayoutTransferSrcOptimal,
		SrcAccess:      AccessMemoryRead,
		DstAccess:      AccessTransferRead,
		SrcStage:       PipelineStageTransfer,
		DstStage:       PipelineStageTransfer,
		SrcQueueFamily: QueueFamilyIgnored,
		DstQueueFamily: QueueFamilyIgnored,
	})
	s.drv.CmdImageBarrier(cb, ImageBarrier{
		Image:          staging,
		Aspect:         ImageAspectColor,
		OldLayout:      ImageLayoutUndefined,
		NewLayout:      ImageLayoutTransferDstOptimal,
		DstAccess:      AccessTransferWrite,
		SrcStage:       PipelineStageTransfer,
		DstStage:       PipelineStageTransfer,
		SrcQueueFamily: QueueFamilyIgnored,
		DstQueueFamily: QueueFamilyIgnored,
	})
	if blit {
		s.drv.CmdBlitImage(cb, ImageBlit{Src: src, Dst: staging, Extent: extent})
	} else {
		s.drv.CmdCopyImage(cb, ImageCopy{Src: src, Dst: staging, Extent: extent})
	}
	s.drv.CmdImageBarrier(cb, ImageBarrier{
		Image:          src,
		Aspect:         ImageAspectColor,
		OldLayout:      ImageLayoutTransferSrcOptimal,
		NewLayout:      ImageLayoutPresentSrc,
		SrcAccess:      AccessTransferRead,
		DstAccess:      AccessMemoryRead,
		SrcStage:       PipelineStageTransfer,
		DstStage:       PipelineStageBottomOfPipe,
		SrcQueueFamily: QueueFamilyIgnored,
		DstQueueFamily: QueueFamilyIgnored,
	})
	s.drv.CmdImageBarrier(cb, ImageBarrier{
		Image:          staging,
		Aspect:         ImageAspectColor,
		OldLayout:      ImageLayoutTransferDstOptimal,
		NewLayout:      ImageLayoutGeneral,
		SrcAccess:      AccessTransferWrite,
		DstAccess:      AccessHostRead,
		SrcStage:       PipelineStageTransfer,
		DstStage:       PipelineStageHost,
		SrcQueueFamily: QueueFamilyIgnored,
		DstQueueFamily: QueueFamilyIgnored,
	})
	if err := s.drv.EndCommandBuffer(cb); err != nil {
		return nil, false, errors.Wrap(err, "end readback")
	}

	err = s.drv.QueueSubmit(s.ctx.GraphicsQueue, SubmitInfo{
		Wait:           []Semaphore{wait},
		WaitStages:     []PipelineStage{PipelineStageTransfer},
		CommandBuffers: []CommandBuffer{cb},
		Signal:         []Semaphore{s.readbackSem},
	}, Fence(NullHandle))
	if err != nil {
		return nil, false, errors.Wrap(err, "submit readback")
	}
	if err := s.drv.QueueWaitIdle(s.ctx.GraphicsQueue); err != nil {
		return nil, true, errors.Wrap(err, "wait for readback")
	}

	layout := s.drv.ImageSubresourceLayout(dev, staging)
	data, err := s.drv.MapImage(dev, staging)
	if err != nil {
		return nil, true, errors.Wrap(err, "map readback image")
	}
	defer s.drv.UnmapImage(dev, staging)

	grab, err = copyGrab(data, layout, extent, dstFormat)
	if err != nil {
		return nil, true, err
	}
	Logger().Debug("frame read back",
		slog.String("extent", extent.String()),
		slog.String("format", dstFormat.String()),
		slog.Bool("blit", blit),
		slog.Int("rowPitch", grab.RowPitch))
	return grab, true, nil
}

// copyGrab copies the mapped staging memory described by layout before it
// is unmapped.
func copyGrab(data []byte, layout SubresourceLayout, extent Extent2D, format Format) (*FrameGrab, error) {
	w, h := int(extent.Width), int(extent.Height)
	pitch := int(layout.RowPitch)
	if pitch < w*4 {
		return nil, errors.Errorf("row pitch %d is smaller than a row of %d pixels", pitch, w)
	}
	need := int(layout.Offset) + pitch*(h-1) + w*4
	if need > len(data) {
		return nil, errors.Errorf("mapped %d bytes, readback needs %d", len(data), need)
	}
	pix := make([]byte, pitch*h)
	copy(pix, data[layout.Offset:need])
	return &FrameGrab{
		Width:    w,
		Height:   h,
		Format:   format,
		RowPitch: pitch,
		Pix:      pix,
	}, nil
}
