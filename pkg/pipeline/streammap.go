package pipeline

import (
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/sirupsen/logrus"
)

const streamDropped = -1

// StreamMap maps every input stream index to an output stream index, or
// marks it dropped. It is built once during encoder setup and never
// mutated afterwards; the control loop only reads it. Stream handles are
// kept rather than their time bases: passthrough rescaling must see the
// time base the muxer settled on when the header was written.
type StreamMap struct {
	entries []int
	inputs  []CanDescribeStream
	outputs map[int]CanDescribeStream
}

// buildStreamMap maps the designated input video stream to the already
// created output video stream, and, when copyStreams is set, creates one
// output stream per input audio/subtitle stream with its codec parameters
// copied verbatim. Other stream types are dropped with a diagnostic.
func buildStreamMap(inputStreams []*astiav.Stream, output *astiav.FormatContext, inVideoIndex int, outVideoStream *astiav.Stream, copyStreams bool) (*StreamMap, error) {
	m := &StreamMap{
		entries: make([]int, len(inputStreams)),
		inputs:  make([]CanDescribeStream, len(inputStreams)),
		outputs: make(map[int]CanDescribeStream),
	}
	m.outputs[outVideoStream.Index()] = outVideoStream

	for i, in := range inputStreams {
		m.inputs[i] = in

		if in.Index() == inVideoIndex {
			m.entries[i] = outVideoStream.Index()
			continue
		}

		if !copyStreams {
			m.entries[i] = streamDropped
			continue
		}

		mediaType := in.CodecParameters().MediaType()
		if mediaType != astiav.MediaTypeAudio && mediaType != astiav.MediaTypeSubtitle {
			m.entries[i] = streamDropped
			logrus.WithFields(logrus.Fields{
				"stream_index": i,
				"media_type":   mediaType.String(),
			}).Warn("Skipping unsupported stream type")
			continue
		}

		out := output.NewStream(nil)
		if out == nil {
			return nil, fmt.Errorf("mapping stream %d failed: %w", i, ErrorAllocateOutputStream)
		}

		if err := in.CodecParameters().Copy(out.CodecParameters()); err != nil {
			return nil, fmt.Errorf("copying codec parameters of stream %d failed: %w", i, err)
		}
		// A container-specific codec tag rarely survives the container
		// switch; zero it and let the muxer pick its own.
		out.CodecParameters().SetCodecTag(0)
		out.SetTimeBase(in.TimeBase())

		m.entries[i] = out.Index()
		m.outputs[out.Index()] = out

		logrus.WithFields(logrus.Fields{
			"in":  i,
			"out": out.Index(),
		}).Debug("Stream mapping entry added")
	}

	return m, nil
}

// OutputIndex returns the output stream index mapped to the given input
// stream index. ok is false when the stream is dropped or unknown.
func (m *StreamMap) OutputIndex(inputIndex int) (int, bool) {
	if inputIndex < 0 || inputIndex >= len(m.entries) {
		return streamDropped, false
	}
	if m.entries[inputIndex] == streamDropped {
		return streamDropped, false
	}
	return m.entries[inputIndex], true
}

func (m *StreamMap) inputTimeBase(inputIndex int) astiav.Rational {
	return m.inputs[inputIndex].TimeBase()
}

func (m *StreamMap) outputTimeBase(outputIndex int) astiav.Rational {
	return m.outputs[outputIndex].TimeBase()
}
