// Package upscale provides frame-transformation filters consumed by the
// pipeline through its Filter contract. The in-tree implementation runs an
// FFmpeg filtergraph; accelerator-backed upscalers plug in through the
// same contract.
package upscale

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

var (
	ErrorNoFilterName           = errors.New("no filter found with the given name")
	ErrorNoFilterContent        = errors.New("filter graph content must not be empty")
	ErrorAllocSrcContext        = errors.New("error allocating buffersrc filter context")
	ErrorAllocSinkContext       = errors.New("error allocating buffersink filter context")
	ErrorSrcContextSetParameter = errors.New("error setting buffersrc filter context parameters")
	ErrorSrcContextInitialise   = errors.New("error initialising buffersrc filter context")
	ErrorGraphParse             = errors.New("error parsing filter graph content")
	ErrorGraphConfigure         = errors.New("error configuring filter graph")
)

// GraphFilter applies an FFmpeg filtergraph to decoded frames. The graph
// may buffer frames internally; anything still held when the input ends
// surfaces through Flush, exactly once.
type GraphFilter struct {
	content          string
	graph            *astiav.FilterGraph
	input            *astiav.FilterInOut
	output           *astiav.FilterInOut
	srcContext       *astiav.BuffersrcFilterContext
	sinkContext      *astiav.BuffersinkFilterContext
	srcContextParams *astiav.BuffersrcFilterContextParameters // nil after Init

	pending []*astiav.Frame
	flushed bool
}

// NewGraphFilter creates a filter around raw filtergraph content, e.g.
// "scale=3840:2160:flags=lanczos". Init must be called before the first
// frame.
func NewGraphFilter(content string) *GraphFilter {
	return &GraphFilter{content: content}
}

// NewScaleFilter creates a Lanczos scaling filter to the given output
// dimensions.
func NewScaleFilter(width, height int) (*GraphFilter, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid scale target %dx%d", width, height)
	}
	return NewGraphFilter(fmt.Sprintf("scale=%d:%d:flags=lanczos", width, height)), nil
}

// Init builds and configures the graph from the decoder's frame
// parameters. The encoder context and hardware context are accepted for
// contract symmetry; the software graph needs neither.
func (f *GraphFilter) Init(decoderContext, encoderContext *astiav.CodecContext, hardwareContext *astiav.HardwareDeviceContext) (err error) {
	if f.content == "" {
		return ErrorNoFilterContent
	}

	f.graph = astiav.AllocFilterGraph()
	f.input = astiav.AllocFilterInOut()
	f.output = astiav.AllocFilterInOut()
	f.srcContextParams = astiav.AllocBuffersrcFilterContextParameters()
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	filterSrc := astiav.FindFilterByName("buffer")
	if filterSrc == nil {
		return ErrorNoFilterName
	}
	filterSink := astiav.FindFilterByName("buffersink")
	if filterSink == nil {
		return ErrorNoFilterName
	}

	if f.srcContext, err = f.graph.NewBuffersrcFilterContext(filterSrc, "in"); err != nil {
		return ErrorAllocSrcContext
	}
	if f.sinkContext, err = f.graph.NewBuffersinkFilterContext(filterSink, "out"); err != nil {
		return ErrorAllocSinkContext
	}

	f.srcContextParams.SetWidth(decoderContext.Width())
	f.srcContextParams.SetHeight(decoderContext.Height())
	f.srcContextParams.SetPixelFormat(decoderContext.PixelFormat())
	f.srcContextParams.SetTimeBase(decoderContext.TimeBase())
	f.srcContextParams.SetSampleAspectRatio(decoderContext.SampleAspectRatio())
	if fr := decoderContext.Framerate(); fr.Num() > 0 && fr.Den() > 0 {
		f.srcContextParams.SetFramerate(fr)
	}
	f.srcContextParams.SetColorSpace(decoderContext.ColorSpace())
	f.srcContextParams.SetColorRange(decoderContext.ColorRange())

	if err = f.srcContext.SetParameters(f.srcContextParams); err != nil {
		return ErrorSrcContextSetParameter
	}
	if err = f.srcContext.Initialize(astiav.NewDictionary()); err != nil {
		return ErrorSrcContextInitialise
	}

	f.output.SetName("in")
	f.output.SetFilterContext(f.srcContext.FilterContext())
	f.output.SetPadIdx(0)
	f.output.SetNext(nil)

	f.input.SetName("out")
	f.input.SetFilterContext(f.sinkContext.FilterContext())
	f.input.SetPadIdx(0)
	f.input.SetNext(nil)

	if err = f.graph.Parse(f.content, f.input, f.output); err != nil {
		return ErrorGraphParse
	}
	if err = f.graph.Configure(); err != nil {
		return ErrorGraphConfigure
	}

	f.srcContextParams.Free()
	f.srcContextParams = nil
	return nil
}

// ProcessFrame pushes one decoded frame into the graph and returns at most
// one transformed frame. (nil, nil) means the graph buffered the input.
// The input frame stays owned by the caller; returned frames are owned by
// the caller once handed back.
func (f *GraphFilter) ProcessFrame(in *astiav.Frame) (*astiav.Frame, error) {
	if err := f.srcContext.AddFrame(in, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		return nil, fmt.Errorf("adding frame to filter graph failed: %w", err)
	}
	if err := f.pull(); err != nil {
		return nil, err
	}
	return f.next(), nil
}

// Flush signals end-of-stream to the graph and returns every frame still
// buffered, in presentation order. A second call returns nothing.
func (f *GraphFilter) Flush() ([]*astiav.Frame, error) {
	if f.flushed {
		return nil, nil
	}
	f.flushed = true

	if err := f.srcContext.AddFrame(nil, astiav.NewBuffersrcFlags()); err != nil {
		return nil, fmt.Errorf("sending end-of-stream to filter graph failed: %w", err)
	}
	if err := f.pull(); err != nil {
		return nil, err
	}

	out := f.pending
	f.pending = nil
	return out, nil
}

// pull drains the sink into the pending queue until the graph has nothing
// ready.
func (f *GraphFilter) pull() error {
	for {
		frame := astiav.AllocFrame()
		if err := f.sinkContext.GetFrame(frame, astiav.NewBuffersinkFlags()); err != nil {
			frame.Free()
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("getting frame from filter graph failed: %w", err)
		}
		f.pending = append(f.pending, frame)
	}
}

func (f *GraphFilter) next() *astiav.Frame {
	if len(f.pending) == 0 {
		return nil
	}
	out := f.pending[0]
	f.pending = f.pending[1:]
	return out
}

func (f *GraphFilter) Close() {
	for _, frame := range f.pending {
		frame.Free()
	}
	f.pending = nil
	if f.srcContextParams != nil {
		f.srcContextParams.Free()
		f.srcContextParams = nil
	}
	if f.graph != nil {
		f.graph.Free()
		f.graph = nil
	}
	if f.input != nil {
		f.input.Free()
		f.input = nil
	}
	if f.output != nil {
		f.output.Free()
		f.output = nil
	}
}
