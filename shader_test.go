package lava

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spirvWords(order binary.ByteOrder, words ...uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		order.PutUint32(b[i*4:], w)
	}
	return b
}

func TestValidateSPIRV(t *testing.T) {
	assert.NoError(t, ValidateSPIRV(spirvWords(binary.LittleEndian, SPIRVMagic, 0x00010000)))
	assert.NoError(t, ValidateSPIRV(spirvWords(binary.BigEndian, SPIRVMagic, 0x00010000)))

	for name, code := range map[string][]byte{
		"empty":     nil,
		"truncated": spirvWords(binary.LittleEndian, SPIRVMagic)[:3],
		"unaligned": append(spirvWords(binary.LittleEndian, SPIRVMagic), 0),
		"magic":     spirvWords(binary.LittleEndian, 0xdeadbeef),
	} {
		assert.ErrorIs(t, ValidateSPIRV(code), ErrInvalidSPIRV, name)
	}
}

func TestReadSPIRV(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "shader.spv")
	code := spirvWords(binary.LittleEndian, SPIRVMagic, 0x00010300, 0, 1, 0)
	require.NoError(t, os.WriteFile(good, code, 0o644))

	got, err := ReadSPIRV(good)
	require.NoError(t, err)
	assert.Equal(t, code, got)

	bad := filepath.Join(dir, "shader.frag")
	require.NoError(t, os.WriteFile(bad, []byte("#version 450\n"), 0o644))
	_, err = ReadSPIRV(bad)
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	_, err = ReadSPIRV(filepath.Join(dir, "missing.spv"))
	assert.Error(t, err)
}
