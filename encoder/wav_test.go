package encoder

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := sine(SampleRate * 3)
	wav := EncodeWAV(pcm)

	if len(wav) != WAVHeaderSize+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), WAVHeaderSize+len(pcm))
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"riff", string(wav[0:4]), "RIFF"},
		{"riff size", binary.LittleEndian.Uint32(wav[4:]), uint32(36 + len(pcm))},
		{"wave", string(wav[8:12]), "WAVE"},
		{"format", binary.LittleEndian.Uint16(wav[20:]), uint16(1)},
		{"channels", binary.LittleEndian.Uint16(wav[22:]), uint16(1)},
		{"rate", binary.LittleEndian.Uint32(wav[24:]), uint32(16000)},
		{"bits", binary.LittleEndian.Uint16(wav[34:]), uint16(16)},
		{"data", string(wav[36:40]), "data"},
		{"data size", binary.LittleEndian.Uint32(wav[40:]), uint32(len(pcm))},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if !bytes.Equal(PCM(wav), pcm) {
		t.Error("PCM did not round trip")
	}
}

func TestWAVEncoderPreservesChunkOrder(t *testing.T) {
	enc, err := New(FormatWAV)
	if err != nil {
		t.Fatal(err)
	}
	chunks := [][]byte{{1, 0, 2, 0}, {3, 0}, {4, 0, 5, 0, 6}}
	for _, c := range chunks {
		if err := enc.Write(c); err != nil {
			t.Fatal(err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	want := []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0}
	if got := PCM(enc.Bytes()); !bytes.Equal(got, want) {
		t.Errorf("pcm = %v, want %v", got, want)
	}
	if enc.TotalFrames() != 5 {
		t.Errorf("TotalFrames = %d, want 5", enc.TotalFrames())
	}
	if enc.Filename() != "recording.wav" {
		t.Errorf("Filename = %q", enc.Filename())
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := New("mp3"); err == nil {
		t.Error("expected error for mp3")
	}
}
