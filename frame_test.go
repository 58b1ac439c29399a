package lava_test

import (
	"testing"
	"time"

	"github.com/celer/lava"
	"github.com/celer/lava/lavatest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameClearsSwapchainImage(t *testing.T) {
	d := lavatest.NewDriver()
	w, host := newWindow(t, d, lava.DefaultConfig(), nil)

	require.True(t, host.Tick())
	require.NoError(t, w.Err())

	require.Len(t, d.Presents, 1)
	img := w.Swapchain().Images()[d.Presents[0].ImageIndex]
	c, ok := d.ImageColor(img)
	require.True(t, ok)
	assert.Equal(t, [4]float32{0.2, 0.3, 0.3, 1}, c)

	require.Len(t, d.RenderPassBegins, 1)
	begin := d.RenderPassBegins[0]
	assert.Equal(t, w.RenderPass(), begin.RenderPass)
	assert.Equal(t, lava.Extent2D{Width: 800, Height: 600}, begin.Extent)
	require.Len(t, begin.ClearValues, 2)
	assert.True(t, begin.ClearValues[1].DepthStencil)
	assert.Equal(t, float32(1), begin.ClearValues[1].Depth)

	require.Len(t, d.Submits, 1)
	assert.Equal(t, []lava.PipelineStage{lava.PipelineStageColorAttachmentOutput}, d.Submits[0].WaitStages)
	assert.Equal(t, d.Submits[0].Signal, d.Presents[0].Wait)

	assert.Equal(t, lava.StateIdle, w.Scheduler().State())
	assert.True(t, w.Scheduler().CurrentCommandBuffer().IsNull(), "no command buffer outside a frame")
	assert.False(t, host.Pending(), "no redraw without continuous mode")
	assert.Equal(t, lava.FrameStats{Presented: 1}, w.Stats())

	destroyClean(t, d, w)
}

func TestFrameFenceDiscipline(t *testing.T) {
	d := lavatest.NewDriver()
	w, _ := newWindow(t, d, lava.DefaultConfig(), nil)

	images := map[uint32]bool{}
	for i := 0; i < 10; i++ {
		assert.Equal(t, i%2, w.CurrentFrame())
		require.NoError(t, w.RenderFrame())
		assert.LessOrEqual(t, d.InFlight(), w.FramesInFlight())
		images[d.Presents[i].ImageIndex] = true
	}
	assert.Len(t, images, 3, "every swapchain image is used")
	assert.Equal(t, 10, d.FenceWaits)
	assert.Equal(t, 10, w.Stats().Presented)

	destroyClean(t, d, w)
}

func TestFrameSingleSlot(t *testing.T) {
	d := lavatest.NewDriver()
	cfg := lava.DefaultConfig()
	cfg.FramesInFlight = 1
	w, _ := newWindow(t, d, cfg, nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, w.RenderFrame())
		assert.Equal(t, 0, w.CurrentFrame())
		assert.LessOrEqual(t, d.InFlight(), 1)
	}
	destroyClean(t, d, w)
}

func TestFrameResizeStorm(t *testing.T) {
	d := lavatest.NewDriver()
	r := &countingRenderer{}
	w, host := newWindow(t, d, lava.DefaultConfig(), r)
	renderPass := w.RenderPass()

	d.AcquireResults = []lava.Result{lava.OutOfDate, lava.OutOfDate, lava.OutOfDate}
	for i := 0; i < 3; i++ {
		host.Tick()
		require.NoError(t, w.Err())
		assert.True(t, host.Pending(), "a skipped frame asks for another")
	}
	assert.Empty(t, d.Presents)
	assert.Equal(t, 0, r.frames)

	require.True(t, host.Tick())
	require.NoError(t, w.Err())
	assert.Len(t, d.Presents, 1)

	stats := w.Stats()
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 3, stats.Recreates)
	assert.Equal(t, 1, stats.Presented)
	assert.Equal(t, 3, w.Swapchain().Recreates())

	require.Len(t, d.SwapchainInfos, 4)
	for _, info := range d.SwapchainInfos[1:] {
		assert.False(t, info.OldSwapchain.IsNull(), "recreation hands over the old swapchain")
	}
	assert.Equal(t, renderPass, w.RenderPass(), "the render pass survives recreation")
	assert.Len(t, w.Framebuffers(), w.Swapchain().ImageCount())
	assert.Equal(t, 4, r.initSwapchain)
	assert.Equal(t, 3, r.releaseSwapchain)

	destroyClean(t, d, w)
}

func TestFrameWindowResize(t *testing.T) {
	d := lavatest.NewDriver()
	w, host := newWindow(t, d, lava.DefaultConfig(), nil)
	require.NoError(t, w.RenderFrame())

	host.Resize(1024, 768)
	require.NoError(t, w.RenderFrame())
	assert.Equal(t, lava.Extent2D{Width: 1024, Height: 768}, w.SwapchainImageSize())
	assert.Len(t, d.Presents, 1, "the out of date frame is skipped")
	assert.True(t, host.Pending())

	require.True(t, host.Tick())
	require.NoError(t, w.Err())
	assert.Len(t, d.Presents, 2)
	assert.Equal(t, lava.Extent2D{Width: 1024, Height: 768}, d.RenderPassBegins[1].Extent)

	destroyClean(t, d, w)
}

func TestFrameMarkStale(t *testing.T) {
	d := lavatest.NewDriver()
	w, _ := newWindow(t, d, lava.DefaultConfig(), nil)

	w.Swapchain().MarkStale()
	require.NoError(t, w.RenderFrame())
	assert.Equal(t, 1, w.Stats().Recreates)
	assert.Equal(t, 1, w.Stats().Presented, "the frame goes on with the new swapchain")
	assert.False(t, w.Swapchain().NeedsRecreate())

	destroyClean(t, d, w)
}

func TestFrameSuboptimal(t *testing.T) {
	t.Run("acquire", func(t *testing.T) {
		d := lavatest.NewDriver()
		w, _ := newWindow(t, d, lava.DefaultConfig(), nil)

		d.AcquireResults = []lava.Result{lava.Suboptimal}
		require.NoError(t, w.RenderFrame())
		assert.Equal(t, 1, w.Stats().Presented, "suboptimal images are still presented")
		assert.Equal(t, 1, w.Stats().Recreates)
		assert.False(t, w.Swapchain().NeedsRecreate())
		destroyClean(t, d, w)
	})

	t.Run("present", func(t *testing.T) {
		d := lavatest.NewDriver()
		w, _ := newWindow(t, d, lava.DefaultConfig(), nil)

		d.PresentResults = []lava.Result{lava.Suboptimal}
		require.NoError(t, w.RenderFrame())
		assert.Equal(t, 1, w.Stats().Presented)
		assert.Equal(t, 1, w.Stats().Recreates)
		destroyClean(t, d, w)
	})
}

func TestFramePresentOutOfDate(t *testing.T) {
	d := lavatest.NewDriver()
	w, _ := newWindow(t, d, lava.DefaultConfig(), nil)

	d.PresentResults = []lava.Result{lava.OutOfDate}
	require.NoError(t, w.RenderFrame())
	assert.Equal(t, lava.FrameStats{Skipped: 1, Recreates: 1}, w.Stats())

	require.NoError(t, w.RenderFrame())
	assert.Equal(t, 1, w.Stats().Presented)
	destroyClean(t, d, w)
}

func TestFrameZeroExtent(t *testing.T) {
	d := lavatest.NewDriver()
	r := &countingRenderer{}
	w, host := newWindow(t, d, lava.DefaultConfig(), r)
	require.NoError(t, w.RenderFrame())

	host.Resize(0, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.RenderFrame())
	}
	assert.Len(t, d.Presents, 1, "nothing is rendered while minimised")
	assert.Len(t, d.SwapchainInfos, 1, "no swapchain is created for a zero extent")
	assert.Equal(t, 3, w.Stats().Skipped)

	host.Resize(320, 200)
	require.NoError(t, w.RenderFrame())
	require.NoError(t, w.RenderFrame())
	assert.Len(t, d.Presents, 2)
	assert.Equal(t, lava.Extent2D{Width: 320, Height: 200}, w.SwapchainImageSize())
	assert.Equal(t, 2, r.frames)

	destroyClean(t, d, w)
}

func TestFrameZeroExtentDuringRecreate(t *testing.T) {
	d := lavatest.NewDriver()
	w, host := newWindow(t, d, lava.DefaultConfig(), nil)

	// The host still reports a size but the surface is already gone.
	d.SurfaceExtent = lava.Extent2D{}
	require.NoError(t, w.RenderFrame())
	assert.True(t, w.Swapchain().NeedsRecreate(), "recreation is deferred")
	assert.Len(t, d.SwapchainInfos, 1)

	host.Resize(640, 480)
	require.NoError(t, w.RenderFrame())
	assert.Len(t, d.Presents, 1)
	assert.Equal(t, lava.Extent2D{Width: 640, Height: 480}, w.SwapchainImageSize())

	destroyClean(t, d, w)
}

func TestFrameDeferredRecreateSkipsRenderer(t *testing.T) {
	d := lavatest.NewDriver()
	r := &countingRenderer{}
	w, _ := newWindow(t, d, lava.DefaultConfig(), r)

	// The surface loses its size while the host still reports one.
	d.SurfaceExtent = lava.Extent2D{}
	d.AcquireResults = []lava.Result{lava.Success, lava.Success}
	d.PresentResults = []lava.Result{lava.Suboptimal}
	require.NoError(t, w.RenderFrame())
	assert.Equal(t, 1, r.frames)
	assert.Equal(t, 1, r.releaseSwapchain)
	assert.True(t, w.Swapchain().NeedsRecreate())

	require.NoError(t, w.RenderFrame())
	assert.Equal(t, 1, r.frames, "no frame runs while swapchain resources are released")
	assert.Len(t, d.AcquireResults, 1, "no image is acquired")
	assert.Equal(t, 1, w.Stats().Skipped)
	assert.Equal(t, 1, r.initSwapchain)

	d.SurfaceExtent = lava.Extent2D{Width: 800, Height: 600}
	d.AcquireResults = nil
	require.NoError(t, w.RenderFrame())
	assert.Equal(t, 2, r.frames)
	assert.Equal(t, 2, r.initSwapchain)
	assert.Equal(t, 1, w.Stats().Recreates)
	assert.False(t, w.Swapchain().NeedsRecreate())

	destroyClean(t, d, w)
}

func TestFrameRecreateSameExtent(t *testing.T) {
	d := lavatest.NewDriver()
	w, _ := newWindow(t, d, lava.DefaultConfig(), nil)
	images := w.Swapchain().ImageCount()

	for i := 0; i < 2; i++ {
		w.Swapchain().MarkStale()
		require.NoError(t, w.RenderFrame())
		assert.Equal(t, images, w.Swapchain().ImageCount())
		assert.Len(t, w.Framebuffers(), images)
	}

	require.Len(t, d.SwapchainInfos, 3)
	first, second := d.SwapchainInfos[1], d.SwapchainInfos[2]
	assert.Equal(t, d.SwapchainInfos[0].Extent, first.Extent)
	assert.Equal(t, first.Extent, second.Extent)
	assert.Equal(t, first.MinImageCount, second.MinImageCount)
	assert.Equal(t, first.Format, second.Format)
	assert.Equal(t, first.ColorSpace, second.ColorSpace)
	assert.Equal(t, first.PresentMode, second.PresentMode)
	assert.Equal(t, 2, w.Stats().Presented)

	destroyClean(t, d, w)
}

func TestFrameImageCountChanges(t *testing.T) {
	d := lavatest.NewDriver()
	cfg := lava.DefaultConfig()
	cfg.FramesInFlight = 4
	w, host := newWindow(t, d, cfg, nil)
	require.NoError(t, w.RenderFrame())
	assert.Equal(t, 3, w.Swapchain().ImageCount())
	assert.Equal(t, 3, w.FramesInFlight())

	for i, tc := range []struct {
		minImages uint32
		images    int
		slots     int
	}{
		{minImages: 5, images: 6, slots: 4},
		{minImages: 1, images: 2, slots: 2},
	} {
		d.Physical[0].Caps.MinImageCount = tc.minImages
		host.Resize(uint32(640+i*10), 480)
		require.NoError(t, w.RenderFrame())
		require.NoError(t, w.RenderFrame())

		sc := w.Swapchain()
		assert.Equal(t, tc.images, sc.ImageCount())
		assert.Len(t, sc.Images(), tc.images)
		assert.Len(t, sc.Views(), tc.images)
		assert.Len(t, w.Framebuffers(), sc.ImageCount())
		assert.Equal(t, tc.slots, w.FramesInFlight())
		assert.Empty(t, d.Violations)
	}
	assert.Equal(t, 3, w.Stats().Presented)

	destroyClean(t, d, w)
}

func TestFrameContinuous(t *testing.T) {
	d := lavatest.NewDriver()
	cfg := lava.DefaultConfig()
	cfg.Continuous = true
	w, host := newWindow(t, d, cfg, nil)

	for i := 0; i < 5; i++ {
		require.True(t, host.Tick(), "tick %d", i)
	}
	require.NoError(t, w.Err())
	assert.Len(t, d.Presents, 5)
	assert.True(t, host.Pending())

	destroyClean(t, d, w)
	assert.False(t, host.Tick(), "Destroy removes the redraw callback")
}

func TestFrameReadyOutsideFrame(t *testing.T) {
	d := lavatest.NewDriver()
	w, _ := newWindow(t, d, lava.DefaultConfig(), nil)

	err := w.FrameReady(lava.Semaphore(lava.NullHandle))
	assert.ErrorIs(t, err, lava.ErrProtocolViolation)
	assert.NoError(t, w.Scheduler().Err(), "a stray FrameReady does not stop the scheduler")
	assert.Empty(t, d.Submits)

	require.NoError(t, w.RenderFrame())
	assert.Len(t, d.Presents, 1)
	destroyClean(t, d, w)
}

type forgetfulRenderer struct {
	lava.NopRenderer
}

func (forgetfulRenderer) NextFrame(w *lava.Window) error {
	w.BeginRenderPass([4]float32{})
	w.EndRenderPass()
	return nil
}

func TestFrameWithoutFrameReady(t *testing.T) {
	d := lavatest.NewDriver()
	w, host := newWindow(t, d, lava.DefaultConfig(), forgetfulRenderer{})

	host.Tick()
	err := w.Err()
	assert.ErrorIs(t, err, lava.ErrProtocolViolation)
	assert.True(t, lava.IsFatal(err))
	assert.Equal(t, err, w.Scheduler().Err())
	assert.Empty(t, d.Submits)

	assert.ErrorIs(t, w.RenderFrame(), lava.ErrProtocolViolation, "the scheduler stays stopped")
	destroyClean(t, d, w)
}

type doubleReadyRenderer struct {
	lava.NopRenderer
}

func (doubleReadyRenderer) NextFrame(w *lava.Window) error {
	w.BeginRenderPass([4]float32{})
	w.EndRenderPass()
	if err := w.FrameReady(lava.Semaphore(lava.NullHandle)); err != nil {
		return err
	}
	return w.FrameReady(lava.Semaphore(lava.NullHandle))
}

func TestFrameReadyTwice(t *testing.T) {
	d := lavatest.NewDriver()
	w, _ := newWindow(t, d, lava.DefaultConfig(), doubleReadyRenderer{})

	err := w.RenderFrame()
	assert.ErrorIs(t, err, lava.ErrProtocolViolation)
	assert.Len(t, d.Presents, 1, "the first FrameReady presented")
	assert.Len(t, d.Submits, 1)
	destroyClean(t, d, w)
}

type failingRenderer struct {
	lava.NopRenderer
}

func (failingRenderer) NextFrame(*lava.Window) error {
	return errors.New("out of vertices")
}

func TestFrameRendererError(t *testing.T) {
	d := lavatest.NewDriver()
	w, _ := newWindow(t, d, lava.DefaultConfig(), failingRenderer{})

	err := w.RenderFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of vertices")
	assert.Error(t, w.Scheduler().Err())
	destroyClean(t, d, w)
}

func TestFrameBeginIgnoredInsideFrame(t *testing.T) {
	d := lavatest.NewDriver()
	var nested error
	r := &nestedRenderer{nested: &nested}
	w, _ := newWindow(t, d, lava.DefaultConfig(), r)

	require.NoError(t, w.RenderFrame())
	assert.NoError(t, nested)
	assert.Len(t, d.Submits, 1, "the nested call did not start a frame")
	destroyClean(t, d, w)
}

type nestedRenderer struct {
	lava.NopRenderer
	nested *error
}

func (r *nestedRenderer) NextFrame(w *lava.Window) error {
	*r.nested = w.RenderFrame()
	w.BeginRenderPass([4]float32{})
	w.EndRenderPass()
	return w.FrameReady(lava.Semaphore(lava.NullHandle))
}

func TestFrameFenceTimeout(t *testing.T) {
	d := lavatest.NewDriver()
	cfg := lava.DefaultConfig()
	cfg.FenceTimeout = lava.Duration(50 * time.Millisecond)
	w, _ := newWindow(t, d, cfg, nil)

	require.NoError(t, w.RenderFrame())
	require.NoError(t, w.RenderFrame())

	d.HangFences = true
	err := w.RenderFrame()
	assert.ErrorIs(t, err, lava.ErrDeviceLost)
	assert.True(t, lava.IsFatal(err))
	assert.Len(t, d.Presents, 2)

	d.HangFences = false
	destroyClean(t, d, w)
}

func TestFrameAcquireTimeout(t *testing.T) {
	d := lavatest.NewDriver()
	w, _ := newWindow(t, d, lava.DefaultConfig(), nil)

	d.AcquireResults = []lava.Result{lava.Timeout}
	assert.ErrorIs(t, w.RenderFrame(), lava.ErrDeviceLost)
	destroyClean(t, d, w)
}

// ringRenderer signals its own semaphore per frame slot.
type ringRenderer struct {
	lava.NopRenderer
	ring *lava.SemaphoreRing
	used []lava.Semaphore
}

func (r *ringRenderer) InitSwapchainResources(w *lava.Window) error {
	var err error
	r.ring, err = w.NewSemaphoreRing()
	return err
}

func (r *ringRenderer) ReleaseSwapchainResources(*lava.Window) {
	r.ring.Destroy()
	r.ring = nil
}

func (r *ringRenderer) NextFrame(w *lava.Window) error {
	w.BeginRenderPass([4]float32{0, 0, 1, 1})
	w.EndRenderPass()
	s := r.ring.Get(w.CurrentFrame())
	r.used = append(r.used, s)
	return w.FrameReady(s)
}

func TestFrameRendererSemaphore(t *testing.T) {
	d := lavatest.NewDriver()
	r := &ringRenderer{}
	w, host := newWindow(t, d, lava.DefaultConfig(), r)
	assert.Equal(t, w.FramesInFlight(), r.ring.Len())

	for i := 0; i < 4; i++ {
		require.NoError(t, w.RenderFrame())
	}
	host.Resize(400, 300)
	require.NoError(t, w.RenderFrame())
	for i := 0; i < 4; i++ {
		require.NoError(t, w.RenderFrame())
	}

	require.Len(t, d.Presents, 8)
	for i, p := range d.Presents {
		assert.Equal(t, []lava.Semaphore{r.used[i]}, p.Wait)
		assert.Equal(t, []lava.Semaphore{r.used[i]}, d.Submits[i].Signal)
	}
	assert.NotEqual(t, r.used[0], r.used[1], "consecutive frames use different semaphores")

	destroyClean(t, d, w)
}
