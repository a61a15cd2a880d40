package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coach/analysis"
	"coach/audio"
	"coach/encoder"
	"coach/feedback"
	"coach/script"
	"coach/transcriber"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScript = "Thank you for coming today."

// threeSeconds is 3s of 16 kHz mono PCM16 split into capture-sized chunks.
func threeSeconds() [][]byte {
	return audio.SplitPCM(make([]byte, encoder.SampleRate*2*3), 2048)
}

type harness struct {
	script   *script.Store
	feedback *feedback.Store
	actx     *audio.FakeContext
	ctrl     *Controller
}

func newHarness(t *testing.T, client analysis.Submitter, backend func(*audio.FakeContext) Backend, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		script:   script.NewStore(),
		feedback: feedback.NewStore(),
		actx:     &audio.FakeContext{Chunks: threeSeconds()},
	}
	if backend == nil {
		backend = func(a *audio.FakeContext) Backend { return NewBlob(a, nil) }
	}
	o := Options{
		Script:   h.script,
		Feedback: h.feedback,
		Client:   client,
		Backend:  backend(h.actx),
		Format:   encoder.FormatWAV,
	}
	for _, fn := range opts {
		fn(&o)
	}
	h.ctrl = New(o)
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) lock(t *testing.T) {
	t.Helper()
	require.NoError(t, h.script.SetText(testScript))
	require.NoError(t, h.script.Lock())
	h.await(t, LockedReady)
}

func (h *harness) await(t *testing.T, want State) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	snap, err := h.ctrl.Await(ctx, func(s Snapshot) bool { return s.State == want })
	require.NoError(t, err, "waiting for %s, last state %s", want, snap.State)
	return snap
}

func (h *harness) capture(t *testing.T, i int) *audio.FakeCapture {
	t.Helper()
	caps := h.actx.Captures()
	require.Greater(t, len(caps), i)
	return caps[i]
}

type fakeSubmitter struct {
	mu       sync.Mutex
	calls    int
	scripts  []string
	payloads []analysis.Payload
	result   *feedback.Result
	err      error
	release  chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, script string, p analysis.Payload) (*feedback.Result, error) {
	f.mu.Lock()
	f.calls++
	f.scripts = append(f.scripts, script)
	f.payloads = append(f.payloads, p)
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeSubmitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okResult() *feedback.Result {
	return &feedback.Result{Score: 7, PositiveFeedback: "Clear opening.", ImprovementPoints: "Vary your pace.", AudioURL: "https://cdn/x.mp3"}
}

func TestLockDrivesReadiness(t *testing.T) {
	h := newHarness(t, &fakeSubmitter{}, nil)
	assert.Equal(t, Idle, h.ctrl.Snapshot().State)

	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrNotLocked)

	h.lock(t)
	h.script.Unlock()
	h.await(t, Idle)
}

func TestEndToEndScore(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/v1/analyze", r.URL.Path)
		assert.Equal(t, testScript, r.FormValue("originalScript"))
		f, hdr, err := r.FormFile("audioFile")
		if assert.NoError(t, err) {
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "recording.wav", hdr.Filename)
			assert.Len(t, data, encoder.WAVHeaderSize+encoder.SampleRate*2*3)
		}
		w.Write([]byte(`{"score": 7, "positiveFeedback": "Clear opening.", "improvementPoints": "Vary your pace.", "audioUrl": "https://cdn/x.mp3"}`))
	}))
	defer srv.Close()

	h := newHarness(t, analysis.NewClient(srv.URL), nil)
	h.lock(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.await(t, Recording)
	require.NoError(t, h.ctrl.Stop(context.Background()))
	snap := h.await(t, Complete)

	res, ok := h.feedback.Result()
	require.True(t, ok)
	assert.Equal(t, okResult(), res)
	_, hasErr := h.feedback.Error()
	assert.False(t, hasErr)
	assert.Equal(t, "7/10", feedback.ScoreBadge(res.Score))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, len(threeSeconds()), snap.Chunks)
	assert.Equal(t, 1, h.capture(t, 0).Closes())
}

func TestServerErrorPopulatesFeedback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"TTS quota exceeded"}`))
	}))
	defer srv.Close()

	h := newHarness(t, analysis.NewClient(srv.URL), nil)
	h.lock(t)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Stop(context.Background()))
	snap := h.await(t, Error)

	msg, ok := h.feedback.Error()
	require.True(t, ok)
	assert.Equal(t, "TTS quota exceeded", msg)
	_, hasResult := h.feedback.Result()
	assert.False(t, hasResult)
	var se *analysis.ServerError
	assert.ErrorAs(t, snap.Err, &se)

	// Re-recording is allowed and clears the old error.
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.await(t, Recording)
	_, ok = h.feedback.Error()
	assert.False(t, ok)
}

func TestSecondStartRejected(t *testing.T) {
	h := newHarness(t, &fakeSubmitter{result: okResult()}, nil)
	h.lock(t)
	require.NoError(t, h.ctrl.Start(context.Background()))

	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrSessionActive)
	assert.Equal(t, Recording, h.ctrl.Snapshot().State)
	assert.Len(t, h.actx.Captures(), 1)
	assert.Equal(t, 0, h.capture(t, 0).Closes())
}

type failingEncoder struct {
	*encoder.WAVEncoder
}

func (failingEncoder) Close() error { return errors.New("disk full") }

func TestStopReleasesWhenFlushFails(t *testing.T) {
	sub := &fakeSubmitter{result: okResult()}
	h := newHarness(t, sub, nil, func(o *Options) {
		o.NewEncoder = func(string) (encoder.Encoder, error) { return failingEncoder{encoder.NewWAV()}, nil }
	})
	h.lock(t)
	require.NoError(t, h.ctrl.Start(context.Background()))

	err := h.ctrl.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	snap := h.await(t, Error)
	assert.Error(t, snap.Err)
	assert.Equal(t, 1, h.capture(t, 0).Closes())
	assert.True(t, h.capture(t, 0).Closed())
	assert.Equal(t, 0, sub.Calls())

	h.ctrl.Close()
	assert.Equal(t, 1, h.capture(t, 0).Closes())
}

func TestStopWithoutAudio(t *testing.T) {
	h := newHarness(t, &fakeSubmitter{}, nil)
	h.actx.Chunks = nil
	h.lock(t)
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.ErrorIs(t, h.ctrl.Stop(context.Background()), ErrNoAudio)
	assert.Equal(t, 1, h.capture(t, 0).Closes())
}

func TestStopWhenNotRecording(t *testing.T) {
	h := newHarness(t, &fakeSubmitter{}, nil)
	assert.ErrorIs(t, h.ctrl.Stop(context.Background()), ErrNotRecording)
}

func TestUnlockTearsDownCapture(t *testing.T) {
	sub := &fakeSubmitter{}
	h := newHarness(t, sub, nil)
	h.lock(t)
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.await(t, Recording)

	h.script.Unlock()
	h.await(t, Idle)

	assert.True(t, h.capture(t, 0).Closed())
	assert.Equal(t, 1, h.capture(t, 0).Closes())
	assert.ErrorIs(t, h.ctrl.Stop(context.Background()), ErrNotRecording)
	assert.Equal(t, 0, sub.Calls())
}

func TestCaptureUnavailable(t *testing.T) {
	h := newHarness(t, &fakeSubmitter{}, nil)
	h.actx.StartErr = errors.New("permission denied")
	h.lock(t)

	err := h.ctrl.Start(context.Background())
	var cu *CaptureUnavailableError
	require.ErrorAs(t, err, &cu)
	assert.Contains(t, err.Error(), "permission denied")

	snap := h.ctrl.Snapshot()
	assert.Equal(t, LockedReady, snap.State)
	assert.False(t, snap.Acquiring)
	assert.Equal(t, 1, h.capture(t, 0).Closes())

	h.actx.StartErr = nil
	require.NoError(t, h.ctrl.Start(context.Background()))
}

func TestStartRejectedWhileAnalysisPending(t *testing.T) {
	sub := &fakeSubmitter{result: okResult(), release: make(chan struct{})}
	h := newHarness(t, sub, nil)
	h.lock(t)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Stop(context.Background()))
	h.await(t, Submitting)

	err := h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.ErrorIs(t, err, analysis.ErrRequestInFlight)

	close(sub.release)
	h.await(t, Complete)
	assert.Equal(t, 1, sub.Calls())
	assert.Equal(t, testScript, sub.scripts[0])
	assert.True(t, sub.payloads[0].IsAudio())
}

func TestLiveTranscriptionSubmitsFinalText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello world ", body["spokenTranscript"])
		assert.Equal(t, testScript, body["originalScript"])
		w.Write([]byte(`{"score":8,"positiveFeedback":"a","improvementPoints":"b","audioUrl":"u"}`))
	}))
	defer srv.Close()

	rec := &transcriber.FakeRecognizer{Events: []transcriber.Event{
		{Text: "hello ", Final: false},
		{Text: "hello world ", Final: true},
		{Text: "foo", Final: false},
	}}
	h := newHarness(t, analysis.NewClient(srv.URL), func(a *audio.FakeContext) Backend { return NewLive(a, nil, rec) })
	h.lock(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	snap := h.await(t, Recording)
	assert.Equal(t, "hello world ", snap.Transcript)

	require.NoError(t, h.ctrl.Stop(context.Background()))
	h.await(t, Complete)

	stream := rec.Streams()[0]
	assert.True(t, stream.Finished())
	assert.True(t, stream.Closed())
	assert.Equal(t, encoder.SampleRate*2*3, stream.Fed())
	assert.Equal(t, 1, h.capture(t, 0).Closes())
}

func TestRecognitionErrorAbortsSession(t *testing.T) {
	sub := &fakeSubmitter{}
	rec := &transcriber.FakeRecognizer{}
	h := newHarness(t, sub, func(a *audio.FakeContext) Backend { return NewLive(a, nil, rec) })
	h.lock(t)
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.await(t, Recording)

	rec.Streams()[0].Fail(errors.New("connection reset"))
	snap := h.await(t, Error)

	var re *transcriber.RecognitionError
	assert.ErrorAs(t, snap.Err, &re)
	assert.Equal(t, 1, h.capture(t, 0).Closes())
	assert.True(t, rec.Streams()[0].Closed())
	_, hasErr := h.feedback.Error()
	assert.False(t, hasErr)
	assert.Equal(t, 0, sub.Calls())
	assert.True(t, h.script.Locked())

	// Retry-capable.
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.await(t, Recording)
}

func TestRecognizerFailsDuringStart(t *testing.T) {
	rec := &transcriber.FakeRecognizer{FailWith: errors.New("bad audio")}
	h := newHarness(t, &fakeSubmitter{}, func(a *audio.FakeContext) Backend { return NewLive(a, nil, rec) })
	h.lock(t)

	var re *transcriber.RecognitionError
	assert.ErrorAs(t, h.ctrl.Start(context.Background()), &re)
	h.await(t, Error)
	assert.Equal(t, 1, h.capture(t, 0).Closes())
}

func TestCloseReleasesActiveCapture(t *testing.T) {
	h := newHarness(t, &fakeSubmitter{}, nil)
	h.lock(t)
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.ctrl.Close()
	assert.Equal(t, 1, h.capture(t, 0).Closes())
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrClosed)
}

func TestOnChangeSeesTransitions(t *testing.T) {
	h := newHarness(t, &fakeSubmitter{result: okResult()}, nil)
	var mu sync.Mutex
	var seen []State
	h.ctrl.OnChange(func(s Snapshot) {
		mu.Lock()
		if len(seen) == 0 || seen[len(seen)-1] != s.State {
			seen = append(seen, s.State)
		}
		mu.Unlock()
	})

	h.lock(t)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Stop(context.Background()))
	h.await(t, Complete)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{LockedReady, Recording, Submitting, Complete}, seen)
}
