package pipeline

import (
	"github.com/asticode/go-astiav"
)

// CanReadPacket is the demuxing contract consumed by the control loop.
// *astiav.FormatContext satisfies it.
type CanReadPacket interface {
	ReadFrame(p *astiav.Packet) error
}

// CanDecodeFrames is the decoding contract consumed by the control loop.
// *astiav.CodecContext satisfies it.
type CanDecodeFrames interface {
	SendPacket(p *astiav.Packet) error
	ReceiveFrame(f *astiav.Frame) error
}

// CanEncodePackets is the encoding contract consumed by the encode & mux
// stage. *astiav.CodecContext satisfies it.
type CanEncodePackets interface {
	SendFrame(f *astiav.Frame) error
	ReceivePacket(p *astiav.Packet) error
	TimeBase() astiav.Rational
	PixelFormat() astiav.PixelFormat
}

// CanWritePacket is the interleaving muxer contract.
// *astiav.FormatContext satisfies it.
type CanWritePacket interface {
	WriteInterleavedFrame(p *astiav.Packet) error
}

// CanDescribeStream identifies a container stream for timestamp
// rescaling. TimeBase must be read at rescale time, never cached: writing
// the container header may replace the time base set at stream creation.
// *astiav.Stream satisfies it.
type CanDescribeStream interface {
	Index() int
	TimeBase() astiav.Rational
}

// Filter is the frame-transformation capability consumed by the control
// loop. ProcessFrame returns (nil, nil) when the filter buffered the input
// and has no output yet; that is not an error. Frames handed in stay owned
// by the caller; frames handed back are owned by the caller once returned
// and must be freed after encoding. Flush must be called exactly once,
// after the last input frame, and returns every frame still buffered
// inside the filter in presentation order.
type Filter interface {
	Init(decoderContext, encoderContext *astiav.CodecContext, hardwareContext *astiav.HardwareDeviceContext) error
	ProcessFrame(in *astiav.Frame) (*astiav.Frame, error)
	Flush() ([]*astiav.Frame, error)
}
