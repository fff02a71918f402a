package vidscale

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/asticode/go-astiav"
	"gopkg.in/yaml.v3"

	"github.com/mediaforge/vidscale/pkg/pipeline"
	"github.com/mediaforge/vidscale/pkg/upscale"
)

var (
	ErrorUnknownFilterKind  = errors.New("unknown filter kind")
	ErrorUnknownPixelFormat = errors.New("unknown pixel format")
	ErrorBadScaleFactor     = errors.New("scale factor must be positive")
	ErrorBadDimensions      = errors.New("output dimensions must be positive")
)

// Config is the top-level processing configuration, typically loaded from a
// YAML file. Zero values fall back to defaults via setDefaults.
type Config struct {
	LogLevel       string        `yaml:"log_level"`
	HardwareDevice string        `yaml:"hardware_device"`
	Benchmark      bool          `yaml:"benchmark"`
	CopyStreams    *bool         `yaml:"copy_streams"`
	Encoder        EncoderConfig `yaml:"encoder"`
	Filter         FilterConfig  `yaml:"filter"`
}

// EncoderConfig carries the YAML encoder section. CRF is a pointer so an
// explicit "crf: 0" (lossless for x264) stays distinguishable from the key
// being absent.
type EncoderConfig struct {
	Codec       string `yaml:"codec"`
	BitRate     int64  `yaml:"bit_rate"`
	CRF         *int   `yaml:"crf"`
	Preset      string `yaml:"preset"`
	PixelFormat string `yaml:"pixel_format"`
}

// FilterConfig selects and parameterises the frame filter. Kind "scale"
// uses ScaleFactor or Width/Height; kind "graph" runs raw filtergraph
// content.
type FilterConfig struct {
	Kind        string  `yaml:"kind"`
	Content     string  `yaml:"content"`
	ScaleFactor float64 `yaml:"scale_factor"`
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	Window      int     `yaml:"window"`
}

const (
	FilterKindScale = "scale"
	FilterKindGraph = "graph"
)

// LoadConfig reads and validates a YAML config file. Unknown keys are
// rejected so a typo fails loudly instead of silently using a default.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file failed: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding config file failed: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a ready-to-use software configuration that doubles
// input dimensions.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Encoder.Codec == "" {
		c.Encoder.Codec = "libx264"
	}
	if c.Encoder.CRF == nil {
		crf := 23
		c.Encoder.CRF = &crf
	}
	if c.Encoder.Preset == "" {
		c.Encoder.Preset = "medium"
	}
	if c.Filter.Kind == "" {
		c.Filter.Kind = FilterKindScale
	}
	if c.Filter.Kind == FilterKindScale && c.Filter.ScaleFactor == 0 && c.Filter.Width == 0 && c.Filter.Height == 0 {
		c.Filter.ScaleFactor = 2
	}
	if c.CopyStreams == nil {
		copyStreams := true
		c.CopyStreams = &copyStreams
	}
}

func (c *Config) Validate() error {
	switch c.Filter.Kind {
	case FilterKindScale:
		if c.Filter.ScaleFactor != 0 {
			if c.Filter.ScaleFactor <= 0 {
				return ErrorBadScaleFactor
			}
		} else if c.Filter.Width <= 0 || c.Filter.Height <= 0 {
			return ErrorBadDimensions
		}
	case FilterKindGraph:
		if strings.TrimSpace(c.Filter.Content) == "" {
			return fmt.Errorf("filter kind %q requires content", c.Filter.Kind)
		}
	default:
		return fmt.Errorf("%w: %q", ErrorUnknownFilterKind, c.Filter.Kind)
	}

	if c.Filter.Window < 0 {
		return fmt.Errorf("filter window must not be negative, got %d", c.Filter.Window)
	}

	if c.Encoder.CRF != nil && *c.Encoder.CRF < 0 {
		return fmt.Errorf("encoder crf must not be negative, got %d", *c.Encoder.CRF)
	}

	if c.Encoder.PixelFormat != "" {
		if astiav.FindPixelFormatByName(c.Encoder.PixelFormat) == astiav.PixelFormatNone {
			return fmt.Errorf("%w: %q", ErrorUnknownPixelFormat, c.Encoder.PixelFormat)
		}
	}
	return nil
}

// outputDimensions computes the encoder frame size for a given input size.
// Odd results are rounded down to even values, which most encoders require.
func (c *FilterConfig) outputDimensions(inWidth, inHeight int) (int, int, error) {
	width, height := c.Width, c.Height
	if c.Kind == FilterKindScale && c.ScaleFactor != 0 {
		width = int(float64(inWidth) * c.ScaleFactor)
		height = int(float64(inHeight) * c.ScaleFactor)
	}
	if c.Kind == FilterKindGraph && width == 0 && height == 0 {
		// Raw graph content with no declared output size keeps the
		// input geometry; the encoder converts if the graph disagrees.
		width, height = inWidth, inHeight
	}
	if width <= 0 || height <= 0 {
		return 0, 0, ErrorBadDimensions
	}
	return width &^ 1, height &^ 1, nil
}

// buildFilter constructs the configured filter for the given output size.
// A positive window wraps the filter in a temporal hold-back buffer.
func (c *FilterConfig) buildFilter(outWidth, outHeight int) (pipeline.Filter, error) {
	var filter pipeline.Filter
	switch c.Kind {
	case FilterKindScale:
		var err error
		if filter, err = upscale.NewScaleFilter(outWidth, outHeight); err != nil {
			return nil, err
		}
	case FilterKindGraph:
		filter = upscale.NewGraphFilter(c.Content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrorUnknownFilterKind, c.Kind)
	}

	if c.Window > 0 {
		return upscale.NewTemporalBuffer(filter, c.Window), nil
	}
	return filter, nil
}

// toPipelineConfig maps the YAML encoder section onto the pipeline's
// encoder configuration for a concrete output geometry.
func (c *EncoderConfig) toPipelineConfig(width, height int, copyStreams bool) pipeline.EncoderConfig {
	pixelFormat := astiav.PixelFormatNone
	if c.PixelFormat != "" {
		pixelFormat = astiav.FindPixelFormatByName(c.PixelFormat)
	}
	crf := 23
	if c.CRF != nil {
		crf = *c.CRF
	}
	return pipeline.EncoderConfig{
		Codec:       c.Codec,
		Width:       width,
		Height:      height,
		BitRate:     c.BitRate,
		CRF:         crf,
		Preset:      c.Preset,
		PixelFormat: pixelFormat,
		CopyStreams: copyStreams,
	}
}
