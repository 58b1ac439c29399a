package lava

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// ReadSPIRV reads a precompiled SPIR-V module from disk.
func ReadSPIRV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read shader")
	}
	if err := ValidateSPIRV(data); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return data, nil
}

// ValidateSPIRV checks that code is a non empty sequence of 32-bit words
// starting with the SPIR-V magic number, in either byte order.
func ValidateSPIRV(code []byte) error {
	switch {
	case len(code) == 0:
		return errors.Wrap(ErrInvalidSPIRV, "empty")
	case len(code)%4 != 0:
		return errors.Wrapf(ErrInvalidSPIRV, "size %d is not a multiple of 4", len(code))
	}
	if binary.LittleEndian.Uint32(code) != SPIRVMagic && binary.BigEndian.Uint32(code) != SPIRVMagic {
		return errors.Wrapf(ErrInvalidSPIRV, "bad magic %#08x", binary.LittleEndian.Uint32(code))
	}
	return nil
}
