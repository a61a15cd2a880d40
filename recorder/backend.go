package recorder

import (
	"context"
	"fmt"

	"coach/audio"
	"coach/log"
	"coach/transcriber"
)

const (
	StrategyAuto = "auto"
	StrategyBlob = "blob"
	StrategyLive = "live"
)

// Backend acquires the capture resources for one session.
type Backend interface {
	Name() string
	// Transcribes reports whether sessions yield text instead of audio.
	Transcribes() bool
	Acquire(ctx context.Context, sink Sink) (Capture, error)
}

// Capture is an acquired session resource.
type Capture interface {
	// Finish stops the hardware stream and waits for pending results.
	Finish(ctx context.Context) error
	// Release frees the device and recognizer. The controller calls it once.
	Release()
}

// Detect picks the capture strategy once at startup. Auto prefers live
// transcription when a recognizer is configured.
func Detect(strategy string, actx audio.Context, device *audio.DeviceInfo, rec transcriber.Recognizer) (Backend, error) {
	if actx == nil {
		return nil, &CaptureUnavailableError{Err: audio.ErrNoDevice}
	}

	var b Backend
	switch strategy {
	case StrategyBlob:
		b = NewBlob(actx, device)
	case StrategyLive:
		if rec == nil {
			return nil, fmt.Errorf("live capture needs a speech recognizer")
		}
		b = NewLive(actx, device, rec)
	case StrategyAuto, "":
		if rec != nil {
			b = NewLive(actx, device, rec)
		} else {
			b = NewBlob(actx, device)
		}
	default:
		return nil, fmt.Errorf("unknown capture strategy %q", strategy)
	}

	log.Infof("capture strategy: %s", b.Name())
	if device != nil && audio.IsBluetooth(device.Name) {
		log.Warnf("capture device %q looks like a bluetooth headset; audio quality may suffer", device.Name)
	}
	return b, nil
}

type Blob struct {
	ctx    audio.Context
	device *audio.DeviceInfo
}

func NewBlob(actx audio.Context, device *audio.DeviceInfo) *Blob {
	return &Blob{ctx: actx, device: device}
}

func (b *Blob) Name() string      { return StrategyBlob }
func (b *Blob) Transcribes() bool { return false }

func (b *Blob) Acquire(_ context.Context, sink Sink) (Capture, error) {
	dev, err := openDevice(b.ctx, b.device, func(data []byte, _ uint32) { sink.Chunk(data) })
	if err != nil {
		return nil, err
	}
	return &deviceCapture{dev: dev}, nil
}

type Live struct {
	ctx    audio.Context
	device *audio.DeviceInfo
	rec    transcriber.Recognizer
}

func NewLive(actx audio.Context, device *audio.DeviceInfo, rec transcriber.Recognizer) *Live {
	return &Live{ctx: actx, device: device, rec: rec}
}

func (l *Live) Name() string      { return StrategyLive + "/" + l.rec.Name() }
func (l *Live) Transcribes() bool { return true }

func (l *Live) Acquire(ctx context.Context, sink Sink) (Capture, error) {
	stream, err := l.rec.Start(ctx,
		func(ev transcriber.Event) {
			if ev.Final {
				sink.Final(ev.Text)
			} else {
				sink.Partial(ev.Text)
			}
		},
		sink.Fail,
	)
	if err != nil {
		return nil, &CaptureUnavailableError{Err: err}
	}

	dev, err := openDevice(l.ctx, l.device, func(data []byte, _ uint32) { stream.Feed(data) })
	if err != nil {
		stream.Close()
		return nil, err
	}
	return &deviceCapture{dev: dev, stream: stream}, nil
}

func openDevice(actx audio.Context, device *audio.DeviceInfo, cb audio.DataCallback) (audio.CaptureDevice, error) {
	dev, err := actx.NewCapture(device, audio.DefaultConfig())
	if err != nil {
		return nil, &CaptureUnavailableError{Err: err}
	}
	dev.SetCallback(cb)
	if err := dev.Start(); err != nil {
		dev.Close()
		return nil, &CaptureUnavailableError{Err: err}
	}
	return dev, nil
}

type deviceCapture struct {
	dev    audio.CaptureDevice
	stream transcriber.Stream
}

func (c *deviceCapture) Finish(ctx context.Context) error {
	c.dev.Stop()
	c.dev.ClearCallback()
	if c.stream != nil {
		return c.stream.Finish(ctx)
	}
	return nil
}

func (c *deviceCapture) Release() {
	c.dev.Close()
	if c.stream != nil {
		c.stream.Close()
	}
}
