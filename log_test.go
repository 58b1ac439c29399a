package lava

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError), "silent by default")

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	Logger().Info("swapchain created", slog.String("extent", Extent2D{Width: 2, Height: 3}.String()))
	assert.Contains(t, buf.String(), "extent=2x3")

	SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(ErrZeroExtent))
	assert.True(t, IsFatal(ErrDeviceLost))
	assert.True(t, IsFatal(protocolViolation("FrameReady called in state %s", StateIdle)))
}
