//go:build linux

package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

var errCaptureClosed = errors.New("capture device closed")

// pulseContext talks to PulseAudio (or pipewire-pulse) over its native socket.
type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("coach"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: client}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, src := range sources {
		devices = append(devices, DeviceInfo{ID: src.ID(), Name: src.Name()})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	return &pulseCapture{client: p.client, device: device, config: config}, nil
}

func (p *pulseContext) Close() { p.client.Close() }

// pulseCapture opens its record stream lazily on the first Start and keeps
// it corked between Stop and the next Start. RecordStream is not safe for
// concurrent use, so every call on it holds mu.
type pulseCapture struct {
	client  *pulse.Client
	device  *DeviceInfo
	config  CaptureConfig
	deliver atomic.Pointer[DataCallback]

	mu     sync.Mutex
	stream *pulse.RecordStream
	closed bool
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errCaptureClosed
	}
	if c.stream == nil {
		stream, err := c.openStream()
		if err != nil {
			return err
		}
		c.stream = stream
	}
	c.stream.Start()
	return nil
}

func (c *pulseCapture) openStream() (*pulse.RecordStream, error) {
	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(0.05),
		pulse.RecordMediaName("presentation recording"),
	}
	if c.device != nil {
		src, err := c.client.SourceByID(c.device.ID)
		if err != nil {
			return nil, fmt.Errorf("pulse source %q: %w", c.device.Name, err)
		}
		opts = append(opts, pulse.RecordSource(src))
	}

	stream, err := c.client.NewRecord(pulse.Int16Writer(c.onSamples), opts...)
	if err != nil {
		return nil, fmt.Errorf("pulse record: %w", err)
	}
	if got := stream.SampleRate(); got != int(c.config.SampleRate) {
		stream.Close()
		return nil, fmt.Errorf("pulse record: server negotiated %d Hz, want %d", got, c.config.SampleRate)
	}
	return stream, nil
}

// onSamples runs on the pulse client's reader goroutine.
func (c *pulseCapture) onSamples(samples []int16) (int, error) {
	if cb := c.deliver.Load(); cb != nil && len(samples) > 0 {
		(*cb)(PCM16LE(samples), uint32(len(samples)))
	}
	return len(samples), nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.stream.Stop()
	}
}

func (c *pulseCapture) Close() {
	c.ClearCallback()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
		c.stream = nil
	}
}

func (c *pulseCapture) SetCallback(cb DataCallback) { c.deliver.Store(&cb) }

func (c *pulseCapture) ClearCallback() { c.deliver.Store(nil) }

func (c *pulseCapture) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return "system default"
}
