// Package vidscale assembles the decode, filter, encode and mux stages
// into a single video processing operation driven by a Config.
package vidscale

import (
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/sirupsen/logrus"

	"github.com/mediaforge/vidscale/pkg/pipeline"
)

var ErrorNoVideoStream = errors.New("no video stream found in input")

// ProcessVideo transcodes inputPath into outputPath, running every decoded
// video frame through the configured filter. proc carries pause and abort
// control plus progress counters and may be shared with other goroutines;
// pass nil when no external control is needed.
func ProcessVideo(inputPath, outputPath string, cfg *Config, proc *pipeline.Context) (err error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if proc == nil {
		proc = pipeline.NewContext()
	}

	closer := astikit.NewCloser()
	defer closer.Close()

	var hardwareContext *astiav.HardwareDeviceContext
	if cfg.HardwareDevice != "" {
		if hardwareContext, err = createHardwareDeviceContext(cfg.HardwareDevice); err != nil {
			return err
		}
		closer.Add(hardwareContext.Free)
	}

	input, videoStream, decoderContext, err := openInput(inputPath, closer)
	if err != nil {
		return err
	}

	outWidth, outHeight, err := cfg.Filter.outputDimensions(decoderContext.Width(), decoderContext.Height())
	if err != nil {
		return err
	}

	filter, err := cfg.Filter.buildFilter(outWidth, outHeight)
	if err != nil {
		return err
	}
	if closable, ok := filter.(interface{ Close() }); ok {
		closer.Add(closable.Close)
	}

	logrus.WithFields(logrus.Fields{
		"input":  inputPath,
		"output": outputPath,
		"in":     fmt.Sprintf("%dx%d", decoderContext.Width(), decoderContext.Height()),
		"out":    fmt.Sprintf("%dx%d", outWidth, outHeight),
		"filter": cfg.Filter.Kind,
	}).Info("Starting video processing")

	options := []pipeline.ProcessorOption{
		pipeline.WithInput(input, videoStream.Index()),
		pipeline.WithInputStream(videoStream, inputPath),
		pipeline.WithDecoder(decoderContext),
		pipeline.WithFilter(filter),
		pipeline.WithProcessingContext(proc),
	}

	var encoder *pipeline.Encoder
	if cfg.Benchmark {
		if err = filter.Init(decoderContext, nil, hardwareContext); err != nil {
			return fmt.Errorf("initialising filter failed: %w", err)
		}
		options = append(options, pipeline.WithBenchmarkMode())
	} else {
		encoderConfig := cfg.Encoder.toPipelineConfig(outWidth, outHeight, *cfg.CopyStreams)
		if encoder, err = pipeline.CreateEncoder(outputPath, encoderConfig, input, decoderContext, videoStream.Index(), hardwareContext); err != nil {
			return fmt.Errorf("creating encoder failed: %w", err)
		}
		closer.AddWithError(encoder.Close)

		if err = filter.Init(decoderContext, encoder.CodecContext(), hardwareContext); err != nil {
			return fmt.Errorf("initialising filter failed: %w", err)
		}
		if err = encoder.WriteHeader(); err != nil {
			return err
		}
		options = append(options, pipeline.WithEncoder(encoder))
	}

	processor, err := pipeline.CreateProcessor(options...)
	if err != nil {
		return err
	}

	if err = processor.Run(); err != nil {
		return err
	}

	if encoder != nil {
		if err = encoder.WriteTrailer(); err != nil {
			return err
		}
	}

	progress := proc.Progress()
	logrus.WithFields(logrus.Fields{
		"frames":  progress.ProcessedFrames,
		"elapsed": progress.Elapsed.Round(10 * time.Millisecond),
		"fps":     fmt.Sprintf("%.2f", progress.FPS),
	}).Info("Video processing finished")
	return nil
}

// openInput opens the container, locates the first video stream and opens
// a decoder for it. All acquired resources register with the closer.
func openInput(path string, closer *astikit.Closer) (*astiav.FormatContext, *astiav.Stream, *astiav.CodecContext, error) {
	input := astiav.AllocFormatContext()
	if input == nil {
		return nil, nil, nil, errors.New("allocating input format context failed")
	}
	closer.Add(input.Free)

	if err := input.OpenInput(path, nil, nil); err != nil {
		return nil, nil, nil, fmt.Errorf("opening input %q failed: %w", path, err)
	}
	closer.Add(input.CloseInput)

	if err := input.FindStreamInfo(nil); err != nil {
		return nil, nil, nil, fmt.Errorf("finding stream info failed: %w", err)
	}

	var videoStream *astiav.Stream
	for _, stream := range input.Streams() {
		if stream.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			videoStream = stream
			break
		}
	}
	if videoStream == nil {
		return nil, nil, nil, ErrorNoVideoStream
	}

	codec := astiav.FindDecoder(videoStream.CodecParameters().CodecID())
	if codec == nil {
		return nil, nil, nil, pipeline.ErrorNoCodecFound
	}

	decoderContext := astiav.AllocCodecContext(codec)
	if decoderContext == nil {
		return nil, nil, nil, pipeline.ErrorAllocateCodecContext
	}
	closer.Add(decoderContext.Free)

	if err := videoStream.CodecParameters().ToCodecContext(decoderContext); err != nil {
		return nil, nil, nil, fmt.Errorf("updating decoder context failed: %w", err)
	}
	decoderContext.SetFramerate(input.GuessFrameRate(videoStream, nil))

	if err := decoderContext.Open(codec, nil); err != nil {
		return nil, nil, nil, fmt.Errorf("opening decoder failed: %w", err)
	}
	decoderContext.SetTimeBase(videoStream.TimeBase())

	return input, videoStream, decoderContext, nil
}
