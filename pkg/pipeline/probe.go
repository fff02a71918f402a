package pipeline

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/sirupsen/logrus"
)

// estimateTotalFrames probes the number of video frames once, before
// processing starts. Best effort only: zero means unknown and is never an
// error. Order of preference: the container's frame count, then a
// duration-based estimate, then a packet-counting scan of the input.
func estimateTotalFrames(stream *astiav.Stream, url string) int64 {
	if n := stream.NbFrames(); n > 0 {
		return n
	}

	logrus.Debug("Container carries no frame count; estimating from duration and frame rate")
	if n := estimateFromDuration(stream.Duration(), stream.TimeBase(), stream.AvgFrameRate()); n > 0 {
		return n
	}

	if url == "" {
		return 0
	}

	logrus.Debug("Unable to estimate frame count; counting packets with a second demuxer")
	n, err := countFramesByScan(url, stream.Index())
	if err != nil {
		logrus.WithField("error", err.Error()).Warn("Frame-count scan failed")
		return 0
	}
	return n
}

// estimateFromDuration converts a stream duration expressed in timeBase
// units into a frame count at the given average frame rate.
func estimateFromDuration(duration int64, timeBase, frameRate astiav.Rational) int64 {
	if duration <= 0 || timeBase.Num() <= 0 || timeBase.Den() <= 0 || frameRate.Num() <= 0 || frameRate.Den() <= 0 {
		return 0
	}
	seconds := float64(duration) * float64(timeBase.Num()) / float64(timeBase.Den())
	return int64(seconds * float64(frameRate.Num()) / float64(frameRate.Den()))
}

// countFramesByScan opens the input a second time and counts the packets
// of the designated video stream without decoding them.
func countFramesByScan(url string, videoStreamIndex int) (int64, error) {
	formatContext := astiav.AllocFormatContext()
	if formatContext == nil {
		return 0, errors.New("allocating format context failed")
	}
	defer formatContext.Free()

	if err := formatContext.OpenInput(url, nil, nil); err != nil {
		return 0, fmt.Errorf("opening input failed: %w", err)
	}
	defer formatContext.CloseInput()

	packet := astiav.AllocPacket()
	defer packet.Free()

	var count int64
	for {
		if err := formatContext.ReadFrame(packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return 0, fmt.Errorf("reading packet failed: %w", err)
		}
		if packet.StreamIndex() == videoStreamIndex {
			count++
		}
		packet.Unref()
	}
	return count, nil
}
