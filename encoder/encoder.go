package encoder

import (
	"encoding/binary"
	"fmt"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
	WAVHeaderSize = 44

	FormatWAV  = "wav"
	FormatFLAC = "flac"

	bytesPerFrame = Channels * BitsPerSample / 8
)

// Encoder turns captured little-endian PCM16 mono audio into an upload payload.
// Write may be called with chunks of any length, in capture order.
type Encoder interface {
	Write(pcm []byte) error
	Close() error
	Bytes() []byte
	Filename() string
	TotalFrames() uint64
}

// New returns the encoder for format ("wav" or "flac").
func New(format string) (Encoder, error) {
	switch format {
	case "", FormatWAV:
		return NewWAV(), nil
	case FormatFLAC:
		return NewFlac()
	default:
		return nil, fmt.Errorf("unsupported audio format %q", format)
	}
}

// Duration of n frames at SampleRate, in seconds.
func Seconds(frames uint64) float64 {
	return float64(frames) / SampleRate
}

// samples decodes whole PCM16 samples from data and returns any trailing odd byte.
func samples(data []byte) ([]int16, []byte) {
	n := len(data) / bytesPerFrame
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out, data[n*bytesPerFrame:]
}
