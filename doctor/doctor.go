package doctor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coach/analysis"
	"coach/audio"
	"coach/bridge"
	"coach/clipboard"
	"coach/encoder"
	"coach/log"
	"coach/transcriber"
)

const (
	defaultRecordFor = 3 * time.Second
	// Below this peak the microphone is probably muted.
	silentPeak = 0.02
)

type Options struct {
	Out        io.Writer
	Audio      audio.Context
	Device     *audio.DeviceInfo
	Format     string
	Client     *analysis.Client
	Recognizer transcriber.Recognizer // nil skips the live check
	Dialogs    bridge.Dialogs
	RecordFor  time.Duration
	// SkipClipboard disables the clipboard round trip (headless runs).
	SkipClipboard bool
}

type check struct {
	name string
	run  func(ctx context.Context, r *run) error
}

type run struct {
	opts Options
	pcm  []byte
}

func (r *run) printf(format string, args ...any) {
	fmt.Fprintf(r.opts.Out, format, args...)
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, opts Options) int {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.RecordFor <= 0 {
		opts.RecordFor = defaultRecordFor
	}
	r := &run{opts: opts}

	checks := []check{
		{"Log directory", checkLogDir},
		{"Microphone", checkMicrophone},
		{"Audio encoding", checkEncoding},
		{"Analysis service", checkAnalysis},
		{"Live transcription", checkRecognizer},
		{"Clipboard", checkClipboard},
		{"File dialogs", checkDialogs},
	}

	r.printf("coach doctor - system diagnostics\n")
	r.printf("=================================\n")

	allPass := true
	for i, c := range checks {
		r.printf("\n[%d/%d] %s\n", i+1, len(checks), c.name)
		err := c.run(ctx, r)
		var skipped *skipError
		switch {
		case err == nil:
		case errors.As(err, &skipped):
			r.printf("  SKIP: %s\n", skipped.reason)
		default:
			r.printf("  FAIL: %v\n", err)
			allPass = false
		}
	}

	r.printf("\n")
	if allPass {
		r.printf("All checks passed!\n")
		return 0
	}
	r.printf("Some checks failed. See details above.\n")
	return 1
}

// skipError marks a check that does not apply to this configuration.
type skipError struct{ reason string }

func (e *skipError) Error() string { return "skipped: " + e.reason }

func skip(reason string) error { return &skipError{reason} }

func checkLogDir(_ context.Context, r *run) error {
	dir := log.Dir()
	if dir == "" {
		return errors.New("log directory not resolved")
	}
	if err := log.EnsureDir(); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	r.printf("  PASS: %s\n", filepath.Clean(dir))
	return nil
}

func checkMicrophone(ctx context.Context, r *run) error {
	if r.opts.Audio == nil {
		return errors.New("no audio backend")
	}
	name := "system default"
	if r.opts.Device != nil {
		name = r.opts.Device.Name
	}
	r.printf("  Recording %.0fs from %s\n", r.opts.RecordFor.Seconds(), name)
	if r.opts.Device != nil && audio.IsBluetooth(r.opts.Device.Name) {
		r.printf("  Warning: bluetooth microphones switch to a low quality profile while recording\n")
	}

	pcm, err := recordAudio(ctx, r.opts.Audio, r.opts.Device, r.opts.RecordFor)
	if err != nil {
		return fmt.Errorf("recording error: %w", err)
	}
	if len(pcm) == 0 {
		return errors.New("no audio captured")
	}
	r.pcm = pcm

	peak := peakLevel(pcm)
	r.printf("  Captured %.1f KB, peak level %.2f\n", float64(len(pcm))/1024, peak)
	if peak < silentPeak {
		r.printf("  Warning: no voice detected, check the input volume\n")
	}
	r.printf("  PASS: microphone delivers audio\n")
	return nil
}

func checkEncoding(_ context.Context, r *run) error {
	if len(r.pcm) == 0 {
		return skip("no captured audio")
	}
	enc, err := encoder.New(r.opts.Format)
	if err != nil {
		return err
	}
	if err := enc.Write(r.pcm); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	r.printf("  PASS: %s, %.1f KB for %.1fs\n",
		enc.Filename(), float64(len(enc.Bytes()))/1024, encoder.Seconds(enc.TotalFrames()))
	return nil
}

func checkAnalysis(ctx context.Context, r *run) error {
	if r.opts.Client == nil {
		return skip("no analysis client")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	voices, err := r.opts.Client.Voices(ctx)
	if err != nil {
		return fmt.Errorf("%s: %s", r.opts.Client.BaseURL(), analysis.UserMessage(err))
	}
	r.printf("  PASS: %s answered in %dms, %d voices\n",
		r.opts.Client.BaseURL(), time.Since(start).Milliseconds(), len(voices))
	return nil
}

func checkRecognizer(ctx context.Context, r *run) error {
	if r.opts.Recognizer == nil {
		return skip("recognizer.url not set, recordings are uploaded as audio")
	}
	if len(r.pcm) == 0 {
		return skip("no captured audio")
	}

	var (
		mu     sync.Mutex
		acc    transcriber.Accumulator
		recErr error
	)
	stream, err := r.opts.Recognizer.Start(ctx,
		func(ev transcriber.Event) {
			mu.Lock()
			acc.Add(ev)
			mu.Unlock()
		},
		func(err error) {
			mu.Lock()
			recErr = err
			mu.Unlock()
		})
	if err != nil {
		return err
	}
	for _, chunk := range audio.SplitPCM(r.pcm, 6400) {
		stream.Feed(chunk)
	}
	finishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := stream.Finish(finishCtx); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if recErr != nil {
		return recErr
	}
	finals, interims := acc.Counts()
	text := acc.Text()
	if text == "" {
		text = "(no speech detected)"
	}
	r.printf("  Transcribed text: %s\n", text)
	r.printf("  PASS: %s, %d final and %d interim results\n", r.opts.Recognizer.Name(), finals, interims)
	return nil
}

func checkClipboard(_ context.Context, r *run) error {
	if r.opts.SkipClipboard {
		return skip("disabled")
	}
	prev, _ := clipboard.Read()
	const sentinel = "coach-doctor-test"
	if err := clipboard.Copy(sentinel); err != nil {
		return err
	}
	got, err := clipboard.Read()
	clipboard.Copy(prev)
	if err != nil {
		return err
	}
	if got != sentinel {
		return fmt.Errorf("clipboard read back %q, want %q", got, sentinel)
	}
	r.printf("  PASS: copy and read back\n")
	return nil
}

func checkDialogs(_ context.Context, r *run) error {
	if r.opts.Dialogs == nil {
		return skip("no dialog provider")
	}
	if _, ok := r.opts.Dialogs.(*bridge.TerminalDialogs); ok {
		r.printf("  PASS: terminal prompts (no desktop file picker found)\n")
		return nil
	}
	r.printf("  PASS: desktop file picker\n")
	return nil
}

func recordAudio(ctx context.Context, actx audio.Context, device *audio.DeviceInfo, d time.Duration) ([]byte, error) {
	var pcmBuf []byte
	var bufMu sync.Mutex
	var stopped bool

	captureDevice, err := actx.NewCapture(device, audio.DefaultConfig())
	if err != nil {
		return nil, err
	}
	defer captureDevice.Close()

	captureDevice.SetCallback(func(data []byte, frameCount uint32) {
		bufMu.Lock()
		defer bufMu.Unlock()
		if stopped {
			return
		}
		pcmBuf = append(pcmBuf, data...)
	})

	if err := captureDevice.Start(); err != nil {
		return nil, err
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	captureDevice.Stop()
	captureDevice.ClearCallback()

	bufMu.Lock()
	stopped = true
	raw := pcmBuf
	bufMu.Unlock()

	return raw, ctx.Err()
}

// peakLevel is the largest absolute sample, scaled to [0,1].
func peakLevel(pcm []byte) float64 {
	var peak float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := math.Abs(float64(int16(binary.LittleEndian.Uint16(pcm[i:]))))
		if s > peak {
			peak = s
		}
	}
	return peak / 32768
}
