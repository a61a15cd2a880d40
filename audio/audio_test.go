package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"coach/encoder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDevice(t *testing.T) {
	ctx := &FakeContext{DeviceList: []DeviceInfo{
		{ID: "alsa_input.usb", Name: "Blue Yeti"},
		{ID: "alsa_input.pci", Name: "Built-in Audio Analog Stereo"},
	}}

	d, err := ResolveDevice(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ResolveDevice(ctx, "Blue Yeti")
	require.NoError(t, err)
	assert.Equal(t, "alsa_input.usb", d.ID)

	d, err = ResolveDevice(ctx, "built-in")
	require.NoError(t, err)
	assert.Equal(t, "alsa_input.pci", d.ID)

	_, err = ResolveDevice(ctx, "nope")
	assert.Error(t, err)

	_, err = ResolveDevice(&FakeContext{}, "any")
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestIsBluetooth(t *testing.T) {
	assert.True(t, IsBluetooth("AirPods Pro"))
	assert.True(t, IsBluetooth("Headset (BT)"))
	assert.True(t, IsBluetooth("Mic[BT]"))
	assert.True(t, IsBluetooth("Jabra Evolve2 65"))
	assert.False(t, IsBluetooth("Blue Yeti"))
	assert.False(t, IsBluetooth("Built-in Microphone"))
}

func TestPCM16LE(t *testing.T) {
	assert.Empty(t, PCM16LE(nil))
	assert.Equal(t, []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0xff, 0x7f},
		PCM16LE([]int16{1, -1, -32768, 32767}))
}

func TestFakeCaptureDelivery(t *testing.T) {
	ctx := &FakeContext{Chunks: [][]byte{{1, 0}, {2, 0}}}
	dev, err := ctx.NewCapture(nil, DefaultConfig())
	require.NoError(t, err)

	var got [][]byte
	dev.SetCallback(func(data []byte, _ uint32) { got = append(got, data) })
	require.NoError(t, dev.Start())
	dev.(*FakeCapture).Emit([]byte{3, 0})
	dev.Close()
	dev.(*FakeCapture).Emit([]byte{4, 0})

	assert.Equal(t, [][]byte{{1, 0}, {2, 0}, {3, 0}}, got)
	assert.Equal(t, 1, dev.(*FakeCapture).Closes())
	assert.Len(t, ctx.Captures(), 1)
}

func TestFakeCaptureStartErr(t *testing.T) {
	boom := errors.New("permission denied")
	ctx := &FakeContext{StartErr: boom}
	dev, err := ctx.NewCapture(nil, DefaultConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, dev.Start(), boom)
}

func TestNewFakeContextFromWAV(t *testing.T) {
	pcm := make([]byte, fakeChunkFrames*2*2+10)
	path := filepath.Join(t.TempDir(), "in.wav")
	require.NoError(t, os.WriteFile(path, encoder.EncodeWAV(pcm), 0644))

	ctx, err := NewFakeContext(path)
	require.NoError(t, err)
	require.Len(t, ctx.Chunks, 3)
	assert.Len(t, ctx.Chunks[2], 10)
}
