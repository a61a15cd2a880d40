package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"coach/analysis"
	"coach/audio"
	"coach/bridge"
	"coach/config"
	"coach/doctor"
	"coach/feedback"
	"coach/log"
	"coach/recorder"
	"coach/script"
	"coach/shutdown"
	"coach/transcriber"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := flag.String("config", "", "config file (default: <user config dir>/coach/config.yaml)")
	analysisFlag := flag.String("analysis-url", "", "analysis service base URL (overrides analysis.url)")
	strategyFlag := flag.String("strategy", "", "capture strategy: auto, blob or live")
	formatFlag := flag.String("format", "", "audio upload format: wav or flac")
	deviceFlag := flag.String("device", "", "use named microphone device")
	audioFileFlag := flag.String("audio-file", "", "replay a 16 kHz mono WAV file instead of the microphone")
	devicesFlag := flag.Bool("devices", false, "list capture devices and exit")
	doctorFlag := flag.Bool("doctor", false, "run system diagnostics and exit")
	serveBridgeFlag := flag.Bool("serve-bridge", false, "run only the export bridge server")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("coach %s\n", version)
		return 0
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	overrides := map[*string]string{
		&cfg.AnalysisURL: *analysisFlag,
		&cfg.Strategy:    *strategyFlag,
		&cfg.Format:      *formatFlag,
		&cfg.Device:      *deviceFlag,
	}
	for dst, v := range overrides {
		if v != "" {
			*dst = v
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logFlag := *logPathFlag
	if logFlag == "" {
		logFlag = cfg.LogPath
	}
	logPath, err := log.ResolveDir(logFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	initCrashLog()

	if *serveBridgeFlag {
		return serveBridge(cfg)
	}

	actx, err := newAudioContext(*audioFileFlag)
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}
	defer actx.Close()

	if *devicesFlag {
		return listDevices(actx)
	}

	device, err := audio.ResolveDevice(actx, cfg.Device)
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: %v, using system default\n", err)
		device = nil
	}

	var rec transcriber.Recognizer
	if cfg.RecognizerURL != "" {
		rec = transcriber.NewWS(transcriber.StreamConfig{
			URL:      cfg.RecognizerURL,
			Key:      cfg.RecognizerKey,
			Language: cfg.RecognizerLanguage,
			Model:    cfg.RecognizerModel,
		})
	}
	client := analysis.NewClient(cfg.AnalysisURL)

	if *doctorFlag {
		ctx, stop := shutdown.Context(context.Background())
		defer stop()
		return doctor.Run(ctx, doctor.Options{
			Audio:      actx,
			Device:     device,
			Format:     cfg.Format,
			Client:     client,
			Recognizer: rec,
			Dialogs:    bridge.NativeDialogs(),
		})
	}

	backend, err := recorder.Detect(cfg.Strategy, actx, device, rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.SessionStart(backend.Name(), cfg.Format, cfg.AnalysisURL)

	scripts := script.NewStore()
	results := feedback.NewStore()
	ctrl := recorder.New(recorder.Options{
		Script:   scripts,
		Feedback: results,
		Client:   client,
		Backend:  backend,
		Format:   cfg.Format,
	})
	defer ctrl.Close()

	srv, err := bridge.Listen("127.0.0.1:0", bridge.New(suspendingDialogs{inner: bridge.NativeDialogs()}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting export bridge: %v\n", err)
		return 1
	}
	go func() {
		if err := srv.Serve(); err != nil {
			log.Errorf("export bridge: %v", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	deviceName := "system default"
	if device != nil {
		deviceName = device.Name
	}
	if *audioFileFlag != "" {
		deviceName = filepath.Base(*audioFileFlag)
	}

	p := NewTUIProgram(&tuiDeps{
		script:   scripts,
		feedback: results,
		ctrl:     ctrl,
		client:   client,
		exporter: bridge.NewClient(srv.URL(), srv.Token()),
		modeLine: fmt.Sprintf("[%s | %s | %s]", backend.Name(), cfg.Format, cfg.AnalysisURL),
		device:   deviceName,
	})
	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()

	ctrl.OnChange(func(s recorder.Snapshot) { p.Send(SnapshotMsg(s)) })

	sigCh := make(chan os.Signal, 1)
	shutdown.Notify(sigCh)
	go func() {
		<-sigCh
		p.Quit()
	}()

	final, err := p.Run()
	if err != nil {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if m, ok := final.(tuiModel); ok {
		log.SessionEnd(m.analyses)
	}
	return 0
}

func newAudioContext(wavPath string) (audio.Context, error) {
	if wavPath != "" {
		return audio.NewFakeContext(wavPath)
	}
	return audio.NewContext()
}

func listDevices(actx audio.Context) int {
	devices, err := actx.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, d := range devices {
		tag := ""
		if audio.IsBluetooth(d.Name) {
			tag = "  (bluetooth, lower quality)"
		}
		fmt.Printf("%s%s\n", d.Name, tag)
	}
	return 0
}

// serveBridge runs the export bridge alone for an external UI shell. The
// first stdout line carries the address and token as JSON.
func serveBridge(cfg *config.Config) int {
	srv, err := bridge.Listen(cfg.BridgeAddr, bridge.New(bridge.NativeDialogs()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	json.NewEncoder(os.Stdout).Encode(map[string]string{"url": srv.URL(), "token": srv.Token()})

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(); err != nil {
		log.Errorf("export bridge: %v", err)
		return 1
	}
	return 0
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// suspendingDialogs hands the terminal back from the TUI while a terminal
// prompt is open. Desktop pickers run alongside the TUI.
type suspendingDialogs struct {
	inner bridge.Dialogs
}

func (d suspendingDialogs) suspend() func() {
	if _, ok := d.inner.(*bridge.TerminalDialogs); !ok {
		return func() {}
	}
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p == nil {
		return func() {}
	}
	p.ReleaseTerminal()
	return func() { p.RestoreTerminal() }
}

func (d suspendingDialogs) OpenFile(ctx context.Context, title string, filters []bridge.Filter) (string, bool, error) {
	defer d.suspend()()
	return d.inner.OpenFile(ctx, title, filters)
}

func (d suspendingDialogs) SaveFile(ctx context.Context, title, defaultName string, filters []bridge.Filter) (string, bool, error) {
	defer d.suspend()()
	return d.inner.SaveFile(ctx, title, defaultName, filters)
}
