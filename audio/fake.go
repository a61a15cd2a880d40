package audio

import (
	"os"
	"sync"
	"sync/atomic"

	"coach/encoder"
)

const fakeChunkFrames = 1024

// FakeContext hands out captures that replay fixed PCM chunks. It backs the
// -audio-file flag and the recorder tests.
type FakeContext struct {
	Chunks        [][]byte
	DeviceList    []DeviceInfo
	NewCaptureErr error
	StartErr      error

	mu       sync.Mutex
	captures []*FakeCapture
}

// NewFakeContext replays the PCM of a 16 kHz mono WAV file.
func NewFakeContext(wavPath string) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	return &FakeContext{Chunks: SplitPCM(encoder.PCM(data), fakeChunkFrames*2)}, nil
}

// SplitPCM cuts pcm into chunks of at most size bytes.
func SplitPCM(pcm []byte, size int) [][]byte {
	var chunks [][]byte
	for pos := 0; pos < len(pcm); pos += size {
		end := min(pos+size, len(pcm))
		chunks = append(chunks, pcm[pos:end])
	}
	return chunks
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.DeviceList, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(device *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.NewCaptureErr != nil {
		return nil, f.NewCaptureErr
	}
	c := &FakeCapture{chunks: f.Chunks, startErr: f.StartErr, device: device}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Captures returns every capture created so far.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

// FakeCapture delivers its chunks synchronously from Start; Emit pushes more.
type FakeCapture struct {
	chunks   [][]byte
	startErr error
	device   *DeviceInfo

	mu     sync.Mutex
	cb     DataCallback
	closed bool

	starts atomic.Int32
	stops  atomic.Int32
	closes atomic.Int32
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string {
	if f.device != nil {
		return f.device.Name
	}
	return "fake"
}

func (f *FakeCapture) Start() error {
	f.starts.Add(1)
	if f.startErr != nil {
		return f.startErr
	}
	for _, c := range f.chunks {
		f.Emit(c)
	}
	return nil
}

// Emit delivers one chunk through the callback, unless the capture is closed.
func (f *FakeCapture) Emit(data []byte) {
	f.mu.Lock()
	cb := f.cb
	closed := f.closed
	f.mu.Unlock()
	if cb == nil || closed {
		return
	}
	chunk := append([]byte(nil), data...)
	cb(chunk, uint32(len(chunk)/2))
}

func (f *FakeCapture) Stop() { f.stops.Add(1) }

func (f *FakeCapture) Close() {
	f.closes.Add(1)
	f.mu.Lock()
	f.closed = true
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) Starts() int { return int(f.starts.Load()) }
func (f *FakeCapture) Stops() int  { return int(f.stops.Load()) }
func (f *FakeCapture) Closes() int { return int(f.closes.Load()) }

func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
