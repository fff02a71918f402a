package upscale

import (
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityFilter emits one fresh frame per input, carrying the input pts.
type identityFilter struct {
	flushCalls int
}

func (f *identityFilter) Init(decoderContext, encoderContext *astiav.CodecContext, hardwareContext *astiav.HardwareDeviceContext) error {
	return nil
}

func (f *identityFilter) ProcessFrame(in *astiav.Frame) (*astiav.Frame, error) {
	out := astiav.AllocFrame()
	out.SetPts(in.Pts())
	return out, nil
}

func (f *identityFilter) Flush() ([]*astiav.Frame, error) {
	f.flushCalls++
	return nil, nil
}

func feedFrame(t *testing.T, b *TemporalBuffer, pts int64) *astiav.Frame {
	t.Helper()
	in := astiav.AllocFrame()
	defer in.Free()
	in.SetPts(pts)

	out, err := b.ProcessFrame(in)
	require.NoError(t, err)
	return out
}

func TestTemporalBufferHoldsWindow(t *testing.T) {
	b := NewTemporalBuffer(&identityFilter{}, 2)
	defer b.Close()

	require.Nil(t, feedFrame(t, b, 1))
	require.Nil(t, feedFrame(t, b, 2))

	out := feedFrame(t, b, 3)
	require.NotNil(t, out, "window overflow must release the oldest frame")
	assert.Equal(t, int64(1), out.Pts())
	out.Free()

	flushed, err := b.Flush()
	require.NoError(t, err)
	require.Len(t, flushed, 2)
	assert.Equal(t, int64(2), flushed[0].Pts())
	assert.Equal(t, int64(3), flushed[1].Pts())
	for _, frame := range flushed {
		frame.Free()
	}
}

func TestTemporalBufferZeroWindowPassesThrough(t *testing.T) {
	b := NewTemporalBuffer(&identityFilter{}, 0)
	defer b.Close()

	out := feedFrame(t, b, 9)
	require.NotNil(t, out)
	assert.Equal(t, int64(9), out.Pts())
	out.Free()
}

func TestTemporalBufferFlushIsIdempotent(t *testing.T) {
	inner := &identityFilter{}
	b := NewTemporalBuffer(inner, 2)
	defer b.Close()

	require.Nil(t, feedFrame(t, b, 1))

	flushed, err := b.Flush()
	require.NoError(t, err)
	require.Len(t, flushed, 1)
	for _, frame := range flushed {
		frame.Free()
	}

	flushed, err = b.Flush()
	require.NoError(t, err)
	assert.Empty(t, flushed)
	assert.Equal(t, 1, inner.flushCalls)
}
