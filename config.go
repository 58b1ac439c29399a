package lava

import (
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Duration is a time.Duration that reads from TOML strings such as "10s".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config tunes device selection, the swapchain and the frame loop.
type Config struct {
	AppName string `toml:"app_name"`

	// FramesInFlight is the depth of the CPU/GPU pipeline, clamped to the
	// swapchain image count.
	FramesInFlight int `toml:"frames_in_flight"`
	// VSync restricts the present mode to fifo.
	VSync bool `toml:"vsync"`
	// Continuous requests a new frame as soon as one is presented.
	Continuous bool `toml:"continuous"`
	// Samples above 1 add a transient multisampled colour attachment that is
	// resolved into the swapchain image.
	Samples   int  `toml:"samples"`
	KeepDepth bool `toml:"keep_depth"`

	// ClearColor is used by the built-in frame when no renderer is installed.
	ClearColor   [4]float32 `toml:"clear_color"`
	FenceTimeout Duration   `toml:"fence_timeout"`

	// ColorFormats is the surface format preference, by name (B8G8R8A8_SRGB).
	ColorFormats     []string `toml:"color_formats"`
	DeviceExtensions []string `toml:"device_extensions"`
	PreferDiscrete   bool     `toml:"prefer_discrete"`
	Debug            bool     `toml:"debug"`
}

// DefaultFenceTimeout bounds the per frame fence wait. Expiry is treated as a
// lost device.
const DefaultFenceTimeout = 10 * time.Second

func DefaultConfig() Config {
	return Config{
		AppName:        "lava",
		FramesInFlight: 2,
		Samples:        1,
		ClearColor:     [4]float32{0.2, 0.3, 0.3, 1.0},
		FenceTimeout:   Duration(DefaultFenceTimeout),
		ColorFormats: []string{
			FormatB8G8R8A8Srgb.String(),
			FormatR8G8B8A8Srgb.String(),
			FormatB8G8R8A8Unorm.String(),
			FormatR8G8B8A8Unorm.String(),
		},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML on top of DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.FramesInFlight < 1 {
		return errors.Errorf("frames_in_flight must be at least 1, got %d", c.FramesInFlight)
	}
	switch c.Samples {
	case 0:
		c.Samples = 1
	case 1, 2, 4, 8:
	default:
		return errors.Errorf("samples must be 1, 2, 4 or 8, got %d", c.Samples)
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = Duration(DefaultFenceTimeout)
	}
	if _, err := c.colorFormats(); err != nil {
		return err
	}
	return nil
}

func (c Config) colorFormats() ([]Format, error) {
	ret := make([]Format, 0, len(c.ColorFormats))
	for _, name := range c.ColorFormats {
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, f)
	}
	return ret, nil
}

// ParseFormat maps a format name such as "B8G8R8A8_SRGB" to its Format.
func ParseFormat(name string) (Format, error) {
	name = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(name), "VK_FORMAT_"))
	for f, s := range formatNames {
		if s == name {
			return f, nil
		}
	}
	return FormatUndefined, errors.Errorf("unknown format %q", name)
}

// DeviceOptions derives the device selection options from c.
func (c Config) DeviceOptions() DeviceOptions {
	formats, err := c.colorFormats()
	if err != nil {
		formats = nil
	}
	return DeviceOptions{
		ColorFormats:   formats,
		Extensions:     c.DeviceExtensions,
		PreferDiscrete: c.PreferDiscrete,
	}
}

// SwapchainOptions derives the swapchain options from c.
func (c Config) SwapchainOptions() SwapchainOptions {
	return SwapchainOptions{
		VSync:     c.VSync,
		Samples:   SampleCount(c.Samples),
		KeepDepth: c.KeepDepth,
	}
}
