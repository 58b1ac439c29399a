package lava

import (
	"github.com/pkg/errors"
)

// Fatal conditions. Callers test for them with errors.Is; the returned errors
// carry additional context.
var (
	ErrNoSuitableDevice       = errors.New("no physical device can present to the surface")
	ErrNoSupportedDepthFormat = errors.New("no supported depth/stencil format")
	ErrSwapchainCreation      = errors.New("swapchain creation failed")
	ErrDeviceLost             = errors.New("device lost")
	ErrProtocolViolation      = errors.New("frame protocol violation")
	ErrReadbackUnsupported    = errors.New("swapchain images cannot be read back")
	ErrInvalidSPIRV           = errors.New("invalid SPIR-V binary")
	ErrNotInitialized         = errors.New("window not initialized")
)

// ErrZeroExtent is returned when a swapchain is requested for a zero sized
// surface, typically a minimised window. It is recoverable: retry once the
// surface has a size again.
var ErrZeroExtent = errors.New("surface extent is zero")

func protocolViolation(format string, args ...interface{}) error {
	return errors.Wrapf(ErrProtocolViolation, format, args...)
}

// IsFatal reports whether err requires tearing the window down.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrZeroExtent):
		return false
	}
	return true
}
