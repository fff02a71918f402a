package pipeline

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/sirupsen/logrus"
)

// EncoderConfig carries the knobs the encode & mux stage passes through to
// the video encoder. It is owned by the caller; the stage only reads it.
type EncoderConfig struct {
	Codec       string
	Width       int
	Height      int
	BitRate     int64
	CRF         int
	Preset      string
	PixelFormat astiav.PixelFormat // PixelFormatNone selects the encoder default
	CopyStreams bool
}

// Encoder is the encode & mux stage: it accepts transformed frames, feeds
// them to the video encoder, drains every packet the encoder is willing to
// emit, rescales timestamps into the output stream's time base and writes
// them through the interleaving muxer. It also owns the output container
// and the stream passthrough map.
type Encoder struct {
	encoderContext CanEncodePackets
	output         CanWritePacket
	outStream      CanDescribeStream
	converter      *FormatConverter
	packet         *astiav.Packet
	flushed        bool

	// Concrete handles, nil when the stage is driven through fakes.
	codecContext        *astiav.CodecContext
	outputFormatContext *astiav.FormatContext
	outputStream        *astiav.Stream
	streamMap           *StreamMap
	closer              *astikit.Closer
}

// CreateEncoder allocates the output container for outputPath, opens the
// configured video encoder with parameters reconciled against the decoder
// context, creates the output video stream and builds the stream
// passthrough map. Every resource acquired is released through the
// encoder's closer, on error paths included.
func CreateEncoder(outputPath string, cfg EncoderConfig, input *astiav.FormatContext, decoderContext *astiav.CodecContext, inVideoIndex int, hardwareContext *astiav.HardwareDeviceContext) (_ *Encoder, err error) {
	e := &Encoder{closer: astikit.NewCloser()}
	defer func() {
		if err != nil {
			e.closer.Close()
		}
	}()

	if e.outputFormatContext, err = astiav.AllocOutputFormatContext(nil, "", outputPath); err != nil {
		return nil, fmt.Errorf("allocating output format context failed: %w", err)
	}
	e.closer.Add(e.outputFormatContext.Free)

	codec := astiav.FindEncoderByName(cfg.Codec)
	if codec == nil {
		return nil, fmt.Errorf("finding encoder %q failed: %w", cfg.Codec, ErrorNoCodecFound)
	}

	if e.outputStream = e.outputFormatContext.NewStream(nil); e.outputStream == nil {
		return nil, fmt.Errorf("creating output video stream failed: %w", ErrorAllocateOutputStream)
	}
	e.outStream = e.outputStream

	if e.codecContext = astiav.AllocCodecContext(codec); e.codecContext == nil {
		return nil, ErrorAllocateCodecContext
	}
	e.closer.Add(e.codecContext.Free)

	if hardwareContext != nil {
		e.codecContext.SetHardwareDeviceContext(hardwareContext)
	}

	inputStream := input.Streams()[inVideoIndex]

	e.codecContext.SetWidth(cfg.Width)
	e.codecContext.SetHeight(cfg.Height)
	e.codecContext.SetSampleAspectRatio(decoderContext.SampleAspectRatio())
	if cfg.BitRate > 0 {
		e.codecContext.SetBitRate(cfg.BitRate)
	}
	pixelFormat := cfg.PixelFormat
	if pixelFormat == astiav.PixelFormatNone {
		if pixelFormat = defaultPixelFormat(codec, decoderContext.PixelFormat()); pixelFormat == astiav.PixelFormatNone {
			return nil, ErrorNoPixelFormat
		}
		logrus.WithField("pixel_format", pixelFormat.String()).Debug("Auto-selected encoder pixel format")
	}
	e.codecContext.SetPixelFormat(pixelFormat)

	// Once opened, time base and frame rate are fixed for the run.
	if tb := decoderContext.TimeBase(); tb.Num() > 0 && tb.Den() > 0 {
		e.codecContext.SetTimeBase(tb)
	} else {
		fr := input.GuessFrameRate(inputStream, nil)
		e.codecContext.SetTimeBase(astiav.NewRational(fr.Den(), fr.Num()))
	}
	if fr := decoderContext.Framerate(); fr.Num() > 0 && fr.Den() > 0 {
		e.codecContext.SetFramerate(fr)
	} else {
		e.codecContext.SetFramerate(input.GuessFrameRate(inputStream, nil))
	}

	if e.outputFormatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		e.codecContext.SetFlags(astiav.NewCodecContextFlags(astiav.CodecContextFlagGlobalHeader))
	}

	codecOptions := astiav.NewDictionary()
	defer codecOptions.Free()
	if err = codecOptions.Set("crf", strconv.Itoa(cfg.CRF), 0); err != nil {
		return nil, fmt.Errorf("setting crf failed: %w", err)
	}
	if cfg.Preset != "" {
		if err = codecOptions.Set("preset", cfg.Preset, 0); err != nil {
			return nil, fmt.Errorf("setting preset failed: %w", err)
		}
	}

	if err = e.codecContext.Open(codec, codecOptions); err != nil {
		return nil, fmt.Errorf("opening video encoder failed: %w", err)
	}

	if err = e.outputStream.CodecParameters().FromCodecContext(e.codecContext); err != nil {
		return nil, fmt.Errorf("copying encoder parameters to output stream failed: %w", err)
	}
	propagateColorMetadata(e.outputStream.CodecParameters(), decoderContext)
	e.outputStream.SetTimeBase(e.codecContext.TimeBase())
	e.outputStream.SetAvgFrameRate(e.codecContext.Framerate())
	e.outputStream.SetRFrameRate(e.codecContext.Framerate())

	if e.streamMap, err = buildStreamMap(input.Streams(), e.outputFormatContext, inVideoIndex, e.outputStream, cfg.CopyStreams); err != nil {
		return nil, err
	}

	if !e.outputFormatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		var ioContext *astiav.IOContext
		if ioContext, err = astiav.OpenIOContext(outputPath, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil); err != nil {
			return nil, fmt.Errorf("opening output io context failed: %w", err)
		}
		e.closer.AddWithError(ioContext.Close)
		e.outputFormatContext.SetPb(ioContext)
	}

	e.packet = astiav.AllocPacket()
	e.closer.Add(e.packet.Free)

	e.encoderContext = e.codecContext
	e.output = e.outputFormatContext
	return e, nil
}

// propagateColorMetadata carries the decoder's color description into the
// container. The binding only exposes these setters on codec parameters,
// so they land on the output stream rather than the encoder context.
func propagateColorMetadata(params *astiav.CodecParameters, decoderContext *astiav.CodecContext) {
	params.SetColorRange(decoderContext.ColorRange())
	params.SetColorSpace(decoderContext.ColorSpace())
}

func defaultPixelFormat(codec *astiav.Codec, decoderFormat astiav.PixelFormat) astiav.PixelFormat {
	formats := codec.PixelFormats()
	if len(formats) == 0 {
		return decoderFormat
	}
	for _, pf := range formats {
		if pf == decoderFormat {
			return pf
		}
	}
	return formats[0]
}

// WriteFrame submits one transformed frame. A frame without a usable pts
// gets frameIdx as its presentation order, keeping output timestamps
// strictly increasing even when the upstream filter does not propagate a
// pts. The frame stays owned by the caller.
func (e *Encoder) WriteFrame(frame *astiav.Frame, frameIdx int64) error {
	if frame == nil {
		return ErrorNilFrame
	}

	if frame.Pts() <= 0 {
		frame.SetPts(frameIdx)
	}

	send := frame
	if frame.PixelFormat() != e.encoderContext.PixelFormat() {
		if e.converter == nil {
			e.converter = NewFormatConverter(e.encoderContext.PixelFormat())
		}
		converted, err := e.converter.Convert(frame)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrorConvertFrame, err)
		}
		defer converted.Free()
		send = converted
	}

	if err := e.encoderContext.SendFrame(send); err != nil {
		return fmt.Errorf("sending frame to encoder failed: %w", err)
	}

	return e.drain()
}

// drain pulls packets until the encoder reports it has nothing ready,
// rescaling each into the output video stream's time base on the way out.
// The time base is read per packet: writing the header may have replaced
// the one set at construction with the muxer's own unit.
func (e *Encoder) drain() error {
	if e.packet == nil {
		e.packet = astiav.AllocPacket()
	}
	for {
		if err := e.encoderContext.ReceivePacket(e.packet); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receiving packet from encoder failed: %w", err)
		}

		e.packet.RescaleTs(e.encoderContext.TimeBase(), e.outStream.TimeBase())
		e.packet.SetStreamIndex(e.outStream.Index())

		if err := e.output.WriteInterleavedFrame(e.packet); err != nil {
			e.packet.Unref()
			return fmt.Errorf("muxing packet failed: %w", err)
		}
		e.packet.Unref()
	}
}

// Flush signals end-of-stream to the encoder and drains whatever is left
// in its reorder buffer. Calling it again is a no-op, so a second flush
// never produces trailing packets.
func (e *Encoder) Flush() error {
	if e.flushed {
		return nil
	}
	e.flushed = true

	if err := e.encoderContext.SendFrame(nil); err != nil {
		return fmt.Errorf("sending end-of-stream to encoder failed: %w", err)
	}

	return e.drain()
}

func (e *Encoder) WriteHeader() error {
	if err := e.outputFormatContext.WriteHeader(nil); err != nil {
		return fmt.Errorf("writing output header failed: %w", err)
	}
	return nil
}

func (e *Encoder) WriteTrailer() error {
	if err := e.outputFormatContext.WriteTrailer(); err != nil {
		return fmt.Errorf("writing output trailer failed: %w", err)
	}
	return nil
}

func (e *Encoder) StreamMap() *StreamMap {
	return e.streamMap
}

func (e *Encoder) CodecContext() *astiav.CodecContext {
	return e.codecContext
}

func (e *Encoder) Output() CanWritePacket {
	return e.output
}

func (e *Encoder) Close() error {
	if e.converter != nil {
		e.converter.Close()
	}
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}
