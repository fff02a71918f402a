package pipeline

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// FormatConverter converts frames to a target pixel format at identical
// dimensions through the software scaler. The scale context is rebuilt
// lazily whenever the source geometry or format changes.
type FormatConverter struct {
	scaleContext *astiav.SoftwareScaleContext
	targetFormat astiav.PixelFormat
	srcWidth     int
	srcHeight    int
	srcFormat    astiav.PixelFormat
}

func NewFormatConverter(targetFormat astiav.PixelFormat) *FormatConverter {
	return &FormatConverter{targetFormat: targetFormat}
}

func (c *FormatConverter) ensure(src *astiav.Frame) error {
	w, h, pf := src.Width(), src.Height(), src.PixelFormat()
	if c.scaleContext != nil && w == c.srcWidth && h == c.srcHeight && pf == c.srcFormat {
		return nil
	}

	if c.scaleContext != nil {
		c.scaleContext.Free()
		c.scaleContext = nil
	}

	sc, err := astiav.CreateSoftwareScaleContext(w, h, pf, w, h, c.targetFormat, astiav.NewSoftwareScaleContextFlags())
	if err != nil {
		return fmt.Errorf("creating software scale context (%dx%d %s -> %s) failed: %w", w, h, pf, c.targetFormat, err)
	}

	c.scaleContext = sc
	c.srcWidth, c.srcHeight, c.srcFormat = w, h, pf
	return nil
}

// Convert returns a freshly allocated frame holding src converted to the
// target pixel format, with src's pts carried over. The caller owns the
// returned frame and must free it after use.
func (c *FormatConverter) Convert(src *astiav.Frame) (*astiav.Frame, error) {
	if err := c.ensure(src); err != nil {
		return nil, err
	}

	dst := astiav.AllocFrame()
	if dst == nil {
		return nil, ErrorAllocateFrame
	}
	dst.SetWidth(src.Width())
	dst.SetHeight(src.Height())
	dst.SetPixelFormat(c.targetFormat)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		return nil, fmt.Errorf("allocating converted frame buffer failed: %w", err)
	}

	if err := c.scaleContext.ScaleFrame(src, dst); err != nil {
		dst.Free()
		return nil, fmt.Errorf("scaling frame failed: %w", err)
	}

	dst.SetPts(src.Pts())
	return dst, nil
}

func (c *FormatConverter) Close() {
	if c.scaleContext != nil {
		c.scaleContext.Free()
		c.scaleContext = nil
	}
}
