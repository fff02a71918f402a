package pipeline

import (
	"github.com/asticode/go-astiav"
)

type packetSpec struct {
	streamIndex int
	pts         int64
}

// fakeReader plays back a fixed packet sequence, then reports end of
// stream forever.
type fakeReader struct {
	packets []packetSpec
	pos     int
}

func (r *fakeReader) ReadFrame(p *astiav.Packet) error {
	if r.pos >= len(r.packets) {
		return astiav.ErrEof
	}
	next := r.packets[r.pos]
	r.pos++
	p.SetStreamIndex(next.streamIndex)
	p.SetPts(next.pts)
	p.SetDts(next.pts)
	return nil
}

// fakeDecoder emits exactly one frame per accepted packet, stamped with an
// increasing pts starting at firstPts.
type fakeDecoder struct {
	firstPts int64
	nextPts  int64
	pending  int
	started  bool
}

func (d *fakeDecoder) SendPacket(p *astiav.Packet) error {
	if !d.started {
		d.nextPts = d.firstPts
		d.started = true
	}
	d.pending++
	return nil
}

func (d *fakeDecoder) ReceiveFrame(f *astiav.Frame) error {
	if d.pending == 0 {
		return astiav.ErrEagain
	}
	d.pending--
	f.SetPts(d.nextPts)
	d.nextPts++
	return nil
}

// passFilter emits one output frame per input, carrying the input pts.
type passFilter struct {
	processed  int
	flushCalls int
}

func (f *passFilter) Init(decoderContext, encoderContext *astiav.CodecContext, hardwareContext *astiav.HardwareDeviceContext) error {
	return nil
}

func (f *passFilter) ProcessFrame(in *astiav.Frame) (*astiav.Frame, error) {
	f.processed++
	out := astiav.AllocFrame()
	out.SetPts(in.Pts())
	return out, nil
}

func (f *passFilter) Flush() ([]*astiav.Frame, error) {
	f.flushCalls++
	return nil, nil
}

// bufferFilter holds every input until Flush, mimicking a temporal filter
// that needs the full window before emitting.
type bufferFilter struct {
	held       []int64
	flushCalls int
}

func (f *bufferFilter) Init(decoderContext, encoderContext *astiav.CodecContext, hardwareContext *astiav.HardwareDeviceContext) error {
	return nil
}

func (f *bufferFilter) ProcessFrame(in *astiav.Frame) (*astiav.Frame, error) {
	f.held = append(f.held, in.Pts())
	return nil, nil
}

func (f *bufferFilter) Flush() ([]*astiav.Frame, error) {
	f.flushCalls++
	if f.flushCalls > 1 {
		return nil, nil
	}
	out := make([]*astiav.Frame, 0, len(f.held))
	for _, pts := range f.held {
		frame := astiav.AllocFrame()
		frame.SetPts(pts)
		out = append(out, frame)
	}
	f.held = nil
	return out, nil
}

// fakeEncoderContext records sent frames and serves queued packet pts on
// demand. Frames queued with emitPerFrame surface immediately;
// flushPending surfaces only after the end-of-stream frame.
type fakeEncoderContext struct {
	pixelFormat  astiav.PixelFormat
	timeBase     astiav.Rational
	emitPerFrame bool
	flushPending []int64

	sentPts  []int64
	nilCount int
	queue    []int64
}

func (e *fakeEncoderContext) SendFrame(f *astiav.Frame) error {
	if f == nil {
		e.nilCount++
		e.queue = append(e.queue, e.flushPending...)
		e.flushPending = nil
		return nil
	}
	e.sentPts = append(e.sentPts, f.Pts())
	if e.emitPerFrame {
		e.queue = append(e.queue, f.Pts())
	}
	return nil
}

func (e *fakeEncoderContext) ReceivePacket(p *astiav.Packet) error {
	if len(e.queue) == 0 {
		return astiav.ErrEagain
	}
	pts := e.queue[0]
	e.queue = e.queue[1:]
	p.SetPts(pts)
	p.SetDts(pts)
	return nil
}

func (e *fakeEncoderContext) TimeBase() astiav.Rational {
	return e.timeBase
}

func (e *fakeEncoderContext) PixelFormat() astiav.PixelFormat {
	return e.pixelFormat
}

// fakeStream is a container stream whose time base can change after
// construction, the way writing a header changes a real stream's.
type fakeStream struct {
	index    int
	timeBase astiav.Rational
}

func (s *fakeStream) Index() int {
	return s.index
}

func (s *fakeStream) TimeBase() astiav.Rational {
	return s.timeBase
}

type sinkRecord struct {
	streamIndex int
	pts         int64
}

// fakeSink records every muxed packet.
type fakeSink struct {
	records []sinkRecord
}

func (s *fakeSink) WriteInterleavedFrame(p *astiav.Packet) error {
	s.records = append(s.records, sinkRecord{streamIndex: p.StreamIndex(), pts: p.Pts()})
	return nil
}
