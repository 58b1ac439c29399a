package vkdriver

import (
	"github.com/celer/lava"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// vkError turns a failed result into an error annotated with op. A lost
// device wraps lava.ErrDeviceLost.
func vkError(res vk.Result, op string) error {
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorDeviceLost:
		return errors.Wrap(lava.ErrDeviceLost, op)
	}
	err := vk.Error(res)
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "%s (%d)", op, res)
}

// presentResult maps the outcome of an acquire or present.
func presentResult(res vk.Result, op string) (lava.Result, error) {
	switch res {
	case vk.Success:
		return lava.Success, nil
	case vk.Suboptimal:
		return lava.Suboptimal, nil
	case vk.ErrorOutOfDate:
		return lava.OutOfDate, nil
	}
	return lava.Success, vkError(res, op)
}
