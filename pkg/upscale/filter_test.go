package upscale

import (
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDecoderContext(t *testing.T, width, height int) *astiav.CodecContext {
	t.Helper()
	codec := astiav.FindDecoder(astiav.CodecIDRawvideo)
	require.NotNil(t, codec)

	ctx := astiav.AllocCodecContext(codec)
	require.NotNil(t, ctx)
	t.Cleanup(ctx.Free)

	ctx.SetWidth(width)
	ctx.SetHeight(height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(astiav.NewRational(1, 25))
	return ctx
}

func newInputFrame(t *testing.T, width, height int, pts int64) *astiav.Frame {
	t.Helper()
	frame := astiav.AllocFrame()
	t.Cleanup(frame.Free)

	frame.SetWidth(width)
	frame.SetHeight(height)
	frame.SetPixelFormat(astiav.PixelFormatYuv420P)
	require.NoError(t, frame.AllocBuffer(1))
	frame.SetPts(pts)
	return frame
}

func TestNewScaleFilterValidation(t *testing.T) {
	_, err := NewScaleFilter(0, 96)
	assert.Error(t, err)
	_, err = NewScaleFilter(128, -1)
	assert.Error(t, err)

	f, err := NewScaleFilter(128, 96)
	require.NoError(t, err)
	assert.Equal(t, "scale=128:96:flags=lanczos", f.content)
}

func TestInitRequiresContent(t *testing.T) {
	f := NewGraphFilter("")
	assert.ErrorIs(t, f.Init(nil, nil, nil), ErrorNoFilterContent)
}

func TestInitRejectsBadContent(t *testing.T) {
	f := NewGraphFilter("nosuchfilter=1:2")
	defer f.Close()

	err := f.Init(newDecoderContext(t, 64, 48), nil, nil)
	assert.Error(t, err)
}

func TestGraphFilterScalesFrames(t *testing.T) {
	f, err := NewScaleFilter(128, 96)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Init(newDecoderContext(t, 64, 48), nil, nil))

	out, err := f.ProcessFrame(newInputFrame(t, 64, 48, 7))
	require.NoError(t, err)
	require.NotNil(t, out, "scale emits one frame per input")
	defer out.Free()

	assert.Equal(t, 128, out.Width())
	assert.Equal(t, 96, out.Height())
	assert.Equal(t, int64(7), out.Pts())
}

func TestGraphFilterFlushIsIdempotent(t *testing.T) {
	f, err := NewScaleFilter(128, 96)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Init(newDecoderContext(t, 64, 48), nil, nil))

	out, err := f.ProcessFrame(newInputFrame(t, 64, 48, 1))
	require.NoError(t, err)
	if out != nil {
		out.Free()
	}

	flushed, err := f.Flush()
	require.NoError(t, err)
	for _, frame := range flushed {
		frame.Free()
	}

	flushed, err = f.Flush()
	require.NoError(t, err)
	assert.Empty(t, flushed, "second flush must not surface frames")
}
