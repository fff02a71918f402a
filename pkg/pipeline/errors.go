package pipeline

import "errors"

var (
	ErrorAborted              = errors.New("processing aborted by controller")
	ErrorNoCodecFound         = errors.New("no codec found for the requested codec")
	ErrorAllocateCodecContext = errors.New("error allocating astiav.CodecContext")
	ErrorAllocateOutputStream = errors.New("error allocating output stream")
	ErrorAllocateFrame        = errors.New("error allocating astiav.Frame")
	ErrorNoPixelFormat        = errors.New("no suitable encoder pixel format found")
	ErrorConvertFrame         = errors.New("error converting frame to the encoder pixel format")
	ErrorNilFrame             = errors.New("nil frame submitted to the encoder stage")
)
