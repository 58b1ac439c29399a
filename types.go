package lava

import "fmt"

// The enumerations below carry the numeric values of their Vulkan
// counterparts, so a Vulkan backend converts them with a plain cast.

// Format is a pixel format.
type Format uint32

const (
	FormatUndefined       Format = 0
	FormatR8G8B8A8Unorm   Format = 37
	FormatR8G8B8A8Srgb    Format = 43
	FormatB8G8R8A8Unorm   Format = 44
	FormatB8G8R8A8Srgb    Format = 50
	FormatD16Unorm        Format = 124
	FormatD32Sfloat       Format = 126
	FormatD16UnormS8Uint  Format = 128
	FormatD24UnormS8Uint  Format = 129
	FormatD32SfloatS8Uint Format = 130
)

var formatNames = map[Format]string{
	FormatUndefined:       "UNDEFINED",
	FormatR8G8B8A8Unorm:   "R8G8B8A8_UNORM",
	FormatR8G8B8A8Srgb:    "R8G8B8A8_SRGB",
	FormatB8G8R8A8Unorm:   "B8G8R8A8_UNORM",
	FormatB8G8R8A8Srgb:    "B8G8R8A8_SRGB",
	FormatD16Unorm:        "D16_UNORM",
	FormatD32Sfloat:       "D32_SFLOAT",
	FormatD16UnormS8Uint:  "D16_UNORM_S8_UINT",
	FormatD24UnormS8Uint:  "D24_UNORM_S8_UINT",
	FormatD32SfloatS8Uint: "D32_SFLOAT_S8_UINT",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

// IsBGR reports whether the red and blue channels are stored swapped.
func (f Format) IsBGR() bool {
	return f == FormatB8G8R8A8Unorm || f == FormatB8G8R8A8Srgb
}

// IsDepth reports whether f has a depth component.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat, FormatD16UnormS8Uint, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether f has a stencil component.
func (f Format) HasStencil() bool {
	switch f {
	case FormatD16UnormS8Uint, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// BytesPerPixel returns the texel size of the 8-bit colour formats, 0 otherwise.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb:
		return 4
	}
	return 0
}

// Aspect returns the image aspects a view of this format covers.
func (f Format) Aspect() ImageAspect {
	switch {
	case f.HasStencil():
		return ImageAspectDepth | ImageAspectStencil
	case f.IsDepth():
		return ImageAspectDepth
	}
	return ImageAspectColor
}

type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", uint32(p))
}

type CompositeAlpha uint32

const (
	CompositeAlphaOpaque         CompositeAlpha = 0x1
	CompositeAlphaPreMultiplied  CompositeAlpha = 0x2
	CompositeAlphaPostMultiplied CompositeAlpha = 0x4
	CompositeAlphaInherit        CompositeAlpha = 0x8
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x1
	ImageUsageTransferDst            ImageUsage = 0x2
	ImageUsageSampled                ImageUsage = 0x4
	ImageUsageStorage                ImageUsage = 0x8
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
	ImageUsageTransientAttachment    ImageUsage = 0x40
	ImageUsageInputAttachment        ImageUsage = 0x80
)

type FormatFeature uint32

const (
	FormatFeatureSampledImage           FormatFeature = 0x1
	FormatFeatureColorAttachment        FormatFeature = 0x80
	FormatFeatureDepthStencilAttachment FormatFeature = 0x200
	FormatFeatureBlitSrc                FormatFeature = 0x400
	FormatFeatureBlitDst                FormatFeature = 0x800
	FormatFeatureTransferSrc            FormatFeature = 0x4000
	FormatFeatureTransferDst            FormatFeature = 0x8000
)

// FormatProperties lists the features of a format per tiling mode.
type FormatProperties struct {
	Linear  FormatFeature
	Optimal FormatFeature
}

type ImageLayout uint32

const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutGeneral                       ImageLayout = 1
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutTransferSrcOptimal            ImageLayout = 6
	ImageLayoutTransferDstOptimal            ImageLayout = 7
	ImageLayoutPresentSrc                    ImageLayout = 1000001002
)

type ImageAspect uint32

const (
	ImageAspectColor   ImageAspect = 0x1
	ImageAspectDepth   ImageAspect = 0x2
	ImageAspectStencil ImageAspect = 0x4
)

type ImageTiling uint32

const (
	ImageTilingOptimal ImageTiling = 0
	ImageTilingLinear  ImageTiling = 1
)

type SampleCount uint32

const (
	SampleCount1 SampleCount = 1
	SampleCount2 SampleCount = 2
	SampleCount4 SampleCount = 4
	SampleCount8 SampleCount = 8
)

type LoadOp uint32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)

type StoreOp uint32

const (
	StoreOpStore    StoreOp = 0
	StoreOpDontCare StoreOp = 1
)

type SharingMode uint32

const (
	SharingModeExclusive  SharingMode = 0
	SharingModeConcurrent SharingMode = 1
)

type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 0x1
	QueueCompute  QueueFlags = 0x2
	QueueTransfer QueueFlags = 0x4
)

type DeviceType uint32

const (
	DeviceTypeOther      DeviceType = 0
	DeviceTypeIntegrated DeviceType = 1
	DeviceTypeDiscrete   DeviceType = 2
	DeviceTypeVirtual    DeviceType = 3
	DeviceTypeCPU        DeviceType = 4
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeIntegrated:
		return "integrated"
	case DeviceTypeDiscrete:
		return "discrete"
	case DeviceTypeVirtual:
		return "virtual"
	case DeviceTypeCPU:
		return "cpu"
	}
	return "other"
}

type PipelineStage uint32

const (
	PipelineStageTopOfPipe             PipelineStage = 0x1
	PipelineStageEarlyFragmentTests    PipelineStage = 0x100
	PipelineStageLateFragmentTests     PipelineStage = 0x200
	PipelineStageColorAttachmentOutput PipelineStage = 0x400
	PipelineStageTransfer              PipelineStage = 0x1000
	PipelineStageBottomOfPipe          PipelineStage = 0x2000
	PipelineStageHost                  PipelineStage = 0x4000
)

type Access uint32

const (
	AccessColorAttachmentRead         Access = 0x80
	AccessColorAttachmentWrite        Access = 0x100
	AccessDepthStencilAttachmentRead  Access = 0x200
	AccessDepthStencilAttachmentWrite Access = 0x400
	AccessTransferRead                Access = 0x800
	AccessTransferWrite               Access = 0x1000
	AccessHostRead                    Access = 0x2000
	AccessMemoryRead                  Access = 0x8000
)

type MemoryProperty uint32

const (
	MemoryPropertyDeviceLocal     MemoryProperty = 0x1
	MemoryPropertyHostVisible     MemoryProperty = 0x2
	MemoryPropertyHostCoherent    MemoryProperty = 0x4
	MemoryPropertyLazilyAllocated MemoryProperty = 0x10
)

// QueueFamilyIgnored marks a barrier that does not transfer queue ownership.
const QueueFamilyIgnored = ^uint32(0)

// Result is the non-error outcome of a presentation engine or wait call.
type Result int

const (
	Success Result = iota
	Suboptimal
	OutOfDate
	Timeout
	NotReady
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Suboptimal:
		return "suboptimal"
	case OutOfDate:
		return "out-of-date"
	case Timeout:
		return "timeout"
	case NotReady:
		return "not-ready"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero, as for a minimised window.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// UndefinedExtent is the currentExtent sentinel a surface reports when the
// swapchain decides the size.
const UndefinedExtent = ^uint32(0)

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount           uint32
	MaxImageCount           uint32 // 0 means no limit
	CurrentExtent           Extent2D
	MinImageExtent          Extent2D
	MaxImageExtent          Extent2D
	SupportedUsage          ImageUsage
	SupportedCompositeAlpha CompositeAlpha
	CurrentTransform        uint32
}

type PhysicalDeviceInfo struct {
	Handle PhysicalDevice
	Name   string
	Type   DeviceType
}

type QueueFamilyInfo struct {
	Index int
	Flags QueueFlags
	Count int
}

// IsGraphics reports whether the family accepts graphics work.
func (q QueueFamilyInfo) IsGraphics() bool {
	return q.Flags&QueueGraphics == QueueGraphics
}

type DeviceCreateInfo struct {
	QueueFamilies []int
	Extensions    []string
	Layers        []string
}

type SwapchainCreateInfo struct {
	Surface        Surface
	MinImageCount  uint32
	Format         Format
	ColorSpace     ColorSpace
	Extent         Extent2D
	Usage          ImageUsage
	Sharing        SharingMode
	QueueFamilies  []uint32
	PreTransform   uint32
	CompositeAlpha CompositeAlpha
	PresentMode    PresentMode
	OldSwapchain   Swapchain
}

type PresentInfo struct {
	Swapchain  Swapchain
	ImageIndex uint32
	Wait       []Semaphore
}

type ImageCreateInfo struct {
	Extent  Extent2D
	Format  Format
	Tiling  ImageTiling
	Usage   ImageUsage
	Samples SampleCount
	Memory  MemoryProperty
}

type ImageViewCreateInfo struct {
	Image  Image
	Format Format
	Aspect ImageAspect
}

type AttachmentDescription struct {
	Format         Format
	Samples        SampleCount
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

// NoAttachment marks an unused attachment slot in a RenderPassCreateInfo.
const NoAttachment = -1

// RenderPassCreateInfo describes a single subpass render pass.
type RenderPassCreateInfo struct {
	Attachments       []AttachmentDescription
	ColorAttachment   int
	DepthAttachment   int
	ResolveAttachment int
}

type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

// ClearValue is either a colour or a depth/stencil clear.
type ClearValue struct {
	Color        [4]float32
	Depth        float32
	Stencil      uint32
	DepthStencil bool
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepthStencil(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil, DepthStencil: true}
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	ClearValues []ClearValue
}

type ImageBarrier struct {
	Image          Image
	Aspect         ImageAspect
	OldLayout      ImageLayout
	NewLayout      ImageLayout
	SrcAccess      Access
	DstAccess      Access
	SrcStage       PipelineStage
	DstStage       PipelineStage
	SrcQueueFamily uint32
	DstQueueFamily uint32
}

// ImageBlit and ImageCopy move a full colour image from TransferSrcOptimal
// to TransferDstOptimal.
type ImageBlit struct {
	Src    Image
	Dst    Image
	Extent Extent2D
}

type ImageCopy struct {
	Src    Image
	Dst    Image
	Extent Extent2D
}

type SubmitInfo struct {
	Wait           []Semaphore
	WaitStages     []PipelineStage
	CommandBuffers []CommandBuffer
	Signal         []Semaphore
}

type SubresourceLayout struct {
	Offset   uint64
	Size     uint64
	RowPitch uint64
}
