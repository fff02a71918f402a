package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/sirupsen/logrus"
)

const defaultPollInterval = 100 * time.Millisecond

type ProcessorOption = func(*Processor) error

// Processor is the transcoding control loop. A single goroutine drives the
// whole decode, filter, encode and mux chain; ownership of frames and
// packets moves stage to stage, never shared. Pause and abort are polled
// from the processing context at a bounded interval.
type Processor struct {
	input            CanReadPacket
	decoder          CanDecodeFrames
	filter           Filter
	encoder          *Encoder
	output           CanWritePacket
	streamMap        *StreamMap
	proc             *Context
	videoStreamIndex int
	videoStream      *astiav.Stream
	inputURL         string
	benchmark        bool
	pollInterval     time.Duration
}

func CreateProcessor(options ...ProcessorOption) (*Processor, error) {
	p := &Processor{pollInterval: defaultPollInterval}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	if p.input == nil {
		return nil, errors.New("processor requires an input")
	}
	if p.decoder == nil {
		return nil, errors.New("processor requires a decoder")
	}
	if p.filter == nil {
		return nil, errors.New("processor requires a filter")
	}
	if p.encoder == nil && !p.benchmark {
		return nil, errors.New("processor requires an encoder unless in benchmark mode")
	}
	if p.proc == nil {
		p.proc = NewContext()
	}
	return p, nil
}

// WithInput sets the packet source and the index of the stream designated
// as the video stream to transform.
func WithInput(input CanReadPacket, videoStreamIndex int) ProcessorOption {
	return func(p *Processor) error {
		p.input = input
		p.videoStreamIndex = videoStreamIndex
		return nil
	}
}

// WithInputStream enables the total-frame probe for progress reporting.
func WithInputStream(stream *astiav.Stream, url string) ProcessorOption {
	return func(p *Processor) error {
		p.videoStream = stream
		p.inputURL = url
		return nil
	}
}

func WithDecoder(decoder CanDecodeFrames) ProcessorOption {
	return func(p *Processor) error {
		p.decoder = decoder
		return nil
	}
}

func WithFilter(filter Filter) ProcessorOption {
	return func(p *Processor) error {
		p.filter = filter
		return nil
	}
}

func WithEncoder(encoder *Encoder) ProcessorOption {
	return func(p *Processor) error {
		p.encoder = encoder
		p.output = encoder.Output()
		p.streamMap = encoder.StreamMap()
		return nil
	}
}

func WithProcessingContext(proc *Context) ProcessorOption {
	return func(p *Processor) error {
		p.proc = proc
		return nil
	}
}

// WithBenchmarkMode skips encoding and muxing while still exercising the
// decode and filter stages; processed frames are counted all the same.
func WithBenchmarkMode() ProcessorOption {
	return func(p *Processor) error {
		p.benchmark = true
		return nil
	}
}

func WithPollInterval(interval time.Duration) ProcessorOption {
	return func(p *Processor) error {
		p.pollInterval = interval
		return nil
	}
}

func (p *Processor) Context() *Context {
	return p.proc
}

// Run reads the input to end-of-stream, routing each packet through
// decode -> filter -> encode, through passthrough, or to the floor, then
// performs the two-phase flush: filter first, encoder second. An abort
// observed at any polling point terminates immediately without draining
// and returns ErrorAborted.
func (p *Processor) Run() error {
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}

	if p.videoStream != nil && p.proc.TotalFrames() == 0 {
		p.proc.setTotal(estimateTotalFrames(p.videoStream, p.inputURL))
		if total := p.proc.TotalFrames(); total > 0 {
			logrus.WithField("total_frames", total).Debug("Probed total frame count")
		} else {
			logrus.Warn("Unable to determine total number of frames")
		}
	}
	p.proc.markStart()

	packet := astiav.AllocPacket()
	defer packet.Free()
	frame := astiav.AllocFrame()
	defer frame.Free()

	for {
		if p.proc.Aborted() {
			return ErrorAborted
		}

		if err := p.input.ReadFrame(packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return fmt.Errorf("reading packet failed: %w", err)
		}

		err := p.routePacket(packet, frame)
		packet.Unref()
		if err != nil {
			return err
		}
	}

	return p.drain()
}

func (p *Processor) routePacket(packet *astiav.Packet, frame *astiav.Frame) error {
	if packet.StreamIndex() == p.videoStreamIndex {
		return p.decodePacket(packet, frame)
	}

	if p.streamMap == nil {
		return nil
	}
	outIndex, ok := p.streamMap.OutputIndex(packet.StreamIndex())
	if !ok {
		return nil
	}

	packet.RescaleTs(p.streamMap.inputTimeBase(packet.StreamIndex()), p.streamMap.outputTimeBase(outIndex))
	packet.SetStreamIndex(outIndex)

	if err := p.output.WriteInterleavedFrame(packet); err != nil {
		return fmt.Errorf("muxing passthrough packet failed: %w", err)
	}
	return nil
}

func (p *Processor) decodePacket(packet *astiav.Packet, frame *astiav.Frame) error {
	if err := p.decoder.SendPacket(packet); err != nil {
		return fmt.Errorf("sending packet to decoder failed: %w", err)
	}

	for {
		if p.proc.Aborted() {
			return ErrorAborted
		}
		if err := p.waitWhilePaused(); err != nil {
			return err
		}

		if err := p.decoder.ReceiveFrame(frame); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receiving frame from decoder failed: %w", err)
		}

		// The decoder stamps its own picture type; the encoder must be
		// free to choose again.
		frame.SetPictureType(astiav.PictureTypeNone)

		err := p.transformFrame(frame)
		frame.Unref()
		if err != nil {
			return err
		}
	}
}

func (p *Processor) transformFrame(frame *astiav.Frame) error {
	out, err := p.filter.ProcessFrame(frame)
	if err != nil {
		return fmt.Errorf("filtering frame failed: %w", err)
	}
	if out == nil {
		// Buffered inside the filter; it will surface later or at flush.
		return nil
	}
	return p.submitFrame(out)
}

// submitFrame hands one transformed frame to the encode & mux stage and
// releases it. The monotonic sequence number doubles as the pts fallback.
func (p *Processor) submitFrame(frame *astiav.Frame) error {
	defer frame.Free()

	if !p.benchmark {
		if err := p.encoder.WriteFrame(frame, p.proc.ProcessedFrames()); err != nil {
			return err
		}
	}
	p.proc.incrementProcessed()

	logrus.WithFields(logrus.Fields{
		"processed": p.proc.ProcessedFrames(),
		"total":     p.proc.TotalFrames(),
	}).Trace("Processed frame")
	return nil
}

func (p *Processor) waitWhilePaused() error {
	for p.proc.Paused() {
		if p.proc.Aborted() {
			return ErrorAborted
		}
		time.Sleep(p.pollInterval)
	}
	return nil
}

// drain runs the two-phase end-of-stream protocol: flush the filter and
// submit every frame it still held, in order, then flush the encoder.
func (p *Processor) drain() error {
	flushed, err := p.filter.Flush()
	if err != nil {
		freeFrames(flushed)
		return fmt.Errorf("flushing filter failed: %w", err)
	}

	for i, frame := range flushed {
		if err := p.submitFrame(frame); err != nil {
			freeFrames(flushed[i+1:])
			return err
		}
	}

	if p.benchmark || p.encoder == nil {
		return nil
	}
	return p.encoder.Flush()
}

func freeFrames(frames []*astiav.Frame) {
	for _, f := range frames {
		if f != nil {
			f.Free()
		}
	}
}
