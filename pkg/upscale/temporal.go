package upscale

import (
	"github.com/asticode/go-astiav"
)

// filterStage is the subset of the pipeline filter contract a decorator
// needs from the filter it wraps.
type filterStage interface {
	Init(decoderContext, encoderContext *astiav.CodecContext, hardwareContext *astiav.HardwareDeviceContext) error
	ProcessFrame(in *astiav.Frame) (*astiav.Frame, error)
	Flush() ([]*astiav.Frame, error)
}

// TemporalBuffer wraps a filter and holds back its last `window` output
// frames, giving filters that look across frame boundaries their temporal
// context. Held frames surface in order once the window overflows, and all
// of them at Flush.
type TemporalBuffer struct {
	inner   filterStage
	window  int
	held    []*astiav.Frame
	flushed bool
}

// NewTemporalBuffer decorates inner with a hold-back window of the given
// size. A window of zero passes frames straight through.
func NewTemporalBuffer(inner filterStage, window int) *TemporalBuffer {
	if window < 0 {
		window = 0
	}
	return &TemporalBuffer{inner: inner, window: window}
}

func (b *TemporalBuffer) Init(decoderContext, encoderContext *astiav.CodecContext, hardwareContext *astiav.HardwareDeviceContext) error {
	return b.inner.Init(decoderContext, encoderContext, hardwareContext)
}

func (b *TemporalBuffer) ProcessFrame(in *astiav.Frame) (*astiav.Frame, error) {
	out, err := b.inner.ProcessFrame(in)
	if err != nil {
		return nil, err
	}
	if out != nil {
		b.held = append(b.held, out)
	}
	if len(b.held) <= b.window {
		return nil, nil
	}

	next := b.held[0]
	b.held = b.held[1:]
	return next, nil
}

func (b *TemporalBuffer) Flush() ([]*astiav.Frame, error) {
	if b.flushed {
		return nil, nil
	}
	b.flushed = true

	tail, err := b.inner.Flush()
	if err != nil {
		for _, frame := range b.held {
			frame.Free()
		}
		b.held = nil
		return nil, err
	}

	out := append(b.held, tail...)
	b.held = nil
	return out, nil
}

func (b *TemporalBuffer) Close() {
	for _, frame := range b.held {
		frame.Free()
	}
	b.held = nil
	if closable, ok := b.inner.(interface{ Close() }); ok {
		closable.Close()
	}
}
