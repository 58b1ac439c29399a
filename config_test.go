package lava

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2, cfg.FramesInFlight)
	assert.Equal(t, 1, cfg.Samples)
	assert.Equal(t, [4]float32{0.2, 0.3, 0.3, 1}, cfg.ClearColor)
	assert.Equal(t, DefaultFenceTimeout, cfg.FenceTimeout.Duration())

	opts := cfg.DeviceOptions()
	assert.Equal(t, DefaultColorFormats, opts.ColorFormats)
	assert.Equal(t, SampleCount1, cfg.SwapchainOptions().Samples)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
app_name = "demo"
frames_in_flight = 3
vsync = true
samples = 4
clear_color = [0.0, 0.5, 1.0, 1.0]
fence_timeout = "250ms"
color_formats = ["r8g8b8a8_unorm", "VK_FORMAT_B8G8R8A8_UNORM"]
device_extensions = ["VK_KHR_maintenance1"]
`))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.AppName)
	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.True(t, cfg.VSync)
	assert.Equal(t, [4]float32{0, 0.5, 1, 1}, cfg.ClearColor)
	assert.Equal(t, 250*time.Millisecond, cfg.FenceTimeout.Duration())
	assert.Equal(t, []Format{FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm}, cfg.DeviceOptions().ColorFormats)
	assert.Equal(t, []string{"VK_KHR_maintenance1"}, cfg.DeviceOptions().Extensions)

	sc := cfg.SwapchainOptions()
	assert.True(t, sc.VSync)
	assert.Equal(t, SampleCount4, sc.Samples)
}

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`continuous = true`))
	require.NoError(t, err)
	assert.True(t, cfg.Continuous)
	assert.Equal(t, DefaultConfig().FramesInFlight, cfg.FramesInFlight)
	assert.Equal(t, DefaultConfig().ClearColor, cfg.ClearColor)
}

func TestParseConfigErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"syntax":         `frames_in_flight = `,
		"frames":         `frames_in_flight = 0`,
		"samples":        `samples = 3`,
		"format":         `color_formats = ["RGB565"]`,
		"fence duration": `fence_timeout = "soon"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestValidateNormalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Samples = 0
	cfg.FenceTimeout = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Samples)
	assert.Equal(t, DefaultFenceTimeout, cfg.FenceTimeout.Duration())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lava.toml")
	require.NoError(t, os.WriteFile(path, []byte("app_name = \"file\"\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.AppName)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"B8G8R8A8_SRGB":            FormatB8G8R8A8Srgb,
		"b8g8r8a8_srgb":            FormatB8G8R8A8Srgb,
		"VK_FORMAT_R8G8B8A8_UNORM": FormatR8G8B8A8Unorm,
		" D32_SFLOAT ":             FormatD32Sfloat,
	} {
		got, err := ParseFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseFormat("R5G6B5")
	assert.Error(t, err)
}
