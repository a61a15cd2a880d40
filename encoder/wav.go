package encoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
)

var ErrClosed = errors.New("encoder closed")

// WAVEncoder concatenates chunks and prefixes a canonical 44-byte header on Close.
type WAVEncoder struct {
	mu     sync.Mutex
	pcm    bytes.Buffer
	out    []byte
	closed bool
}

func NewWAV() *WAVEncoder { return &WAVEncoder{} }

func (e *WAVEncoder) Write(pcm []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.pcm.Write(pcm)
	return nil
}

func (e *WAVEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	data := e.pcm.Bytes()
	data = data[:len(data)-len(data)%bytesPerFrame]
	e.out = EncodeWAV(data)
	return nil
}

func (e *WAVEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

func (e *WAVEncoder) Filename() string { return "recording.wav" }

func (e *WAVEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(e.pcm.Len() / bytesPerFrame)
}

// EncodeWAV wraps raw PCM16 mono 16 kHz samples in a RIFF/WAVE container.
func EncodeWAV(pcm []byte) []byte {
	const byteRate = SampleRate * bytesPerFrame

	buf := make([]byte, WAVHeaderSize+len(pcm))
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+len(pcm)))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:], Channels)
	binary.LittleEndian.PutUint32(buf[24:], SampleRate)
	binary.LittleEndian.PutUint32(buf[28:], byteRate)
	binary.LittleEndian.PutUint16(buf[32:], bytesPerFrame)
	binary.LittleEndian.PutUint16(buf[34:], BitsPerSample)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(len(pcm)))
	copy(buf[WAVHeaderSize:], pcm)
	return buf
}

// PCM strips the header from a canonical WAV file. Short input is returned as is.
func PCM(wav []byte) []byte {
	if len(wav) > WAVHeaderSize && string(wav[0:4]) == "RIFF" {
		return wav[WAVHeaderSize:]
	}
	return wav
}
