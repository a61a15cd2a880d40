package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"coach/analysis"
	"coach/encoder"
	"coach/feedback"
	"coach/log"
	"coach/script"
	"coach/transcriber"

	"github.com/google/uuid"
)

const (
	eventQueue    = 16
	finishTimeout = 5 * time.Second
)

type Options struct {
	Script   *script.Store
	Feedback *feedback.Store
	Client   analysis.Submitter
	Backend  Backend
	// Format is the blob payload encoding, "wav" or "flac".
	Format     string
	NewEncoder func(format string) (encoder.Encoder, error)
}

// Controller owns the capture lifecycle. All state lives on one goroutine;
// public methods post events to it.
type Controller struct {
	script     *script.Store
	feedback   *feedback.Store
	client     analysis.Submitter
	backend    Backend
	format     string
	newEncoder func(string) (encoder.Encoder, error)

	ctx    context.Context
	cancel context.CancelFunc
	events chan any
	quit   chan struct{}
	exited chan struct{}
	once   sync.Once

	// actor-owned
	state   State
	sess    *session
	pending *session
	lastErr error
	last    *session
	replies []func()

	mu       sync.Mutex
	snap     Snapshot
	changed  chan struct{}
	watchers []func(Snapshot)
}

type session struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	box       *mailbox
	capture   Capture
	acquiring bool
	startedAt time.Time
	stoppedAt time.Time
	chunks    [][]byte
	acc       transcriber.Accumulator
	partial   string
	err       error
	startErr  chan error
	release   func()
}

type (
	startRequested struct{ reply chan error }
	stopRequested  struct{ reply chan error }
	lockChanged    struct{ locked bool }
	deviceReady    struct {
		sess    *session
		capture Capture
		err     error
	}
	analysisDone struct {
		sess   *session
		result *feedback.Result
		err    error
	}
)

func New(opts Options) *Controller {
	if opts.NewEncoder == nil {
		opts.NewEncoder = encoder.New
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		script:     opts.Script,
		feedback:   opts.Feedback,
		client:     opts.Client,
		backend:    opts.Backend,
		format:     opts.Format,
		newEncoder: opts.NewEncoder,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan any, eventQueue),
		quit:       make(chan struct{}),
		exited:     make(chan struct{}),
		changed:    make(chan struct{}),
	}
	if c.script.Locked() {
		c.state = LockedReady
	}
	c.snap = Snapshot{State: c.state}

	c.script.Watch(func(locked bool) { c.post(lockChanged{locked: locked}) })
	go c.run()
	return c
}

// Start acquires the capture device and begins a session. It returns once
// the device is ready or acquisition failed.
func (c *Controller) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if !c.post(startRequested{reply: reply}) {
		return ErrClosed
	}
	return c.wait(ctx, reply)
}

// Stop ends the recording, releases the device and submits the payload.
// It returns before the analysis settles; use Await for that.
func (c *Controller) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	if !c.post(stopRequested{reply: reply}) {
		return ErrClosed
	}
	return c.wait(ctx, reply)
}

func (c *Controller) wait(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.exited:
		return ErrClosed
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Await blocks until pred holds for a published snapshot.
func (c *Controller) Await(ctx context.Context, pred func(Snapshot) bool) (Snapshot, error) {
	for {
		c.mu.Lock()
		snap, ch := c.snap, c.changed
		c.mu.Unlock()
		if pred(snap) {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// OnChange registers fn to run on the controller goroutine after every
// published change. fn must not call back into the controller synchronously.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
}

// Close tears down any active capture and stops the controller.
func (c *Controller) Close() {
	c.once.Do(func() {
		close(c.quit)
		<-c.exited
		c.cancel()
	})
}

func (c *Controller) post(ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.quit:
		return false
	}
}

func (c *Controller) run() {
	defer close(c.exited)
	for {
		var signal chan struct{}
		if c.sess != nil {
			signal = c.sess.box.signal
		}

		select {
		case <-c.quit:
			if c.sess != nil {
				c.teardown(c.sess, ErrClosed)
			}
			c.flushReplies()
			return
		case ev := <-c.events:
			c.handle(ev)
		case <-signal:
			c.drain(c.sess)
		}
		c.publish()
		c.flushReplies()
	}
}

// reply is delivered after the resulting snapshot is published, so callers
// observe the new state as soon as Start or Stop returns.
func (c *Controller) reply(ch chan error, err error) {
	c.replies = append(c.replies, func() { ch <- err })
}

func (c *Controller) flushReplies() {
	for _, fn := range c.replies {
		fn()
	}
	c.replies = nil
}

func (c *Controller) handle(ev any) {
	switch ev := ev.(type) {
	case startRequested:
		c.start(ev.reply)
	case stopRequested:
		c.reply(ev.reply, c.stop())
	case lockChanged:
		c.lockChanged(ev.locked)
	case deviceReady:
		c.deviceReady(ev)
	case analysisDone:
		c.analysisDone(ev)
	}
}

func (c *Controller) setState(to State) {
	if c.state == to {
		return
	}
	id := ""
	if s := c.current(); s != nil {
		id = s.id
	}
	log.StateChange(id, c.state.String(), to.String())
	c.state = to
}

func (c *Controller) current() *session {
	if c.sess != nil {
		return c.sess
	}
	return c.last
}

func (c *Controller) start(reply chan error) {
	switch {
	case c.sess != nil:
		c.reply(reply, ErrSessionActive)
		return
	case c.pending != nil:
		c.reply(reply, fmt.Errorf("%w: %w", ErrSessionActive, analysis.ErrRequestInFlight))
		return
	case !c.script.Locked():
		c.reply(reply, ErrNotLocked)
		return
	case !c.state.canStart():
		c.reply(reply, fmt.Errorf("%w: cannot start from %s", script.ErrInvalidState, c.state))
		return
	}

	c.feedback.Clear()
	ctx, cancel := context.WithCancel(c.ctx)
	s := &session{
		id:        uuid.NewString(),
		ctx:       ctx,
		cancel:    cancel,
		box:       newMailbox(),
		acquiring: true,
		startErr:  reply,
	}
	var once sync.Once
	s.release = func() {
		once.Do(func() {
			s.cancel()
			s.box.close()
			if s.capture != nil {
				s.capture.Release()
			}
		})
	}
	c.sess = s
	c.last = s
	c.lastErr = nil
	c.setState(LockedReady)

	go func() {
		capture, err := c.backend.Acquire(ctx, mailboxSink{box: s.box})
		if !c.post(deviceReady{sess: s, capture: capture, err: err}) && capture != nil {
			capture.Release()
		}
	}()
}

func (c *Controller) deviceReady(ev deviceReady) {
	s := ev.sess
	if s != c.sess || !s.acquiring {
		// Torn down while acquiring.
		if ev.capture != nil {
			ev.capture.Release()
		}
		return
	}
	s.acquiring = false

	if ev.err != nil {
		var cu *CaptureUnavailableError
		err := ev.err
		if !errors.As(err, &cu) {
			err = &CaptureUnavailableError{Err: err}
		}
		log.Errorf("capture %s: %v", s.id, err)
		s.release()
		c.sess = nil
		c.lastErr = err
		c.setState(LockedReady)
		c.reply(s.startErr, err)
		return
	}

	s.capture = ev.capture
	s.startedAt = time.Now()
	c.drain(s)
	if s.err != nil {
		err := s.err
		c.abort(s, err)
		c.reply(s.startErr, err)
		return
	}
	c.setState(Recording)
	c.reply(s.startErr, nil)
}

// drain applies queued capture events in arrival order. A device or
// recognition error while recording aborts the session.
func (c *Controller) drain(s *session) {
	if s == nil {
		return
	}
	for _, ev := range s.box.drain() {
		switch ev.kind {
		case audioChunk:
			s.chunks = append(s.chunks, ev.data)
		case partialResult:
			s.partial = ev.text
		case finalResult:
			s.acc.Add(transcriber.Event{Text: ev.text, Final: true})
			s.partial = ""
		case deviceError:
			if s.err == nil {
				s.err = ev.err
			}
		}
	}
	if s.err != nil && c.state == Recording && s == c.sess {
		c.abort(s, s.err)
	}
}

func (c *Controller) abort(s *session, err error) {
	log.Errorf("session %s aborted: %v", s.id, err)
	s.release()
	s.stoppedAt = time.Now()
	c.sess = nil
	c.lastErr = err
	c.setState(Error)
}

func (c *Controller) teardown(s *session, reason error) {
	s.release()
	if s.acquiring {
		s.acquiring = false
		c.reply(s.startErr, reason)
	}
	if !s.startedAt.IsZero() && s.stoppedAt.IsZero() {
		s.stoppedAt = time.Now()
	}
	c.sess = nil
}

func (c *Controller) stop() error {
	s := c.sess
	if s == nil || c.state != Recording {
		return ErrNotRecording
	}

	payload, err := c.finish(s)
	c.sess = nil
	if err != nil {
		c.lastErr = err
		c.setState(Error)
		return err
	}
	c.setState(Stopped)

	text := c.script.Text()
	if strings.TrimSpace(text) == "" {
		c.lastErr = analysis.ErrEmptyScript
		return analysis.ErrEmptyScript
	}

	c.pending = s
	c.setState(Submitting)
	go func() {
		res, err := c.client.Submit(c.ctx, text, payload)
		c.post(analysisDone{sess: s, result: res, err: err})
	}()
	return nil
}

// finish stops the stream and flushes the session into a payload. The
// device is released whether or not the flush succeeds.
func (c *Controller) finish(s *session) (analysis.Payload, error) {
	defer s.release()

	ctx, cancel := context.WithTimeout(c.ctx, finishTimeout)
	defer cancel()
	finishErr := s.capture.Finish(ctx)

	c.drain(s)
	s.stoppedAt = time.Now()

	switch {
	case finishErr != nil:
		return analysis.Payload{}, finishErr
	case s.err != nil:
		return analysis.Payload{}, s.err
	}
	return c.flush(s)
}

func (c *Controller) flush(s *session) (analysis.Payload, error) {
	if c.backend.Transcribes() {
		text := s.acc.Text()
		if strings.TrimSpace(text) == "" {
			return analysis.Payload{}, ErrNoSpeech
		}
		return analysis.TranscriptPayload(text), nil
	}

	if len(s.chunks) == 0 {
		return analysis.Payload{}, ErrNoAudio
	}
	enc, err := c.newEncoder(c.format)
	if err != nil {
		return analysis.Payload{}, err
	}
	for _, chunk := range s.chunks {
		if err := enc.Write(chunk); err != nil {
			return analysis.Payload{}, fmt.Errorf("encoding audio: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return analysis.Payload{}, fmt.Errorf("encoding audio: %w", err)
	}
	log.Infof("session %s: %.1fs audio, %d bytes %s", s.id, encoder.Seconds(enc.TotalFrames()), len(enc.Bytes()), enc.Filename())
	return analysis.AudioPayload(enc.Bytes(), enc.Filename()), nil
}

func (c *Controller) analysisDone(ev analysisDone) {
	if ev.sess != c.pending {
		return
	}
	c.pending = nil

	if ev.err != nil {
		log.Errorf("analysis %s: %v", ev.sess.id, ev.err)
		c.feedback.SetError(analysis.UserMessage(ev.err))
		c.lastErr = ev.err
		if c.state == Submitting {
			c.setState(Error)
		}
		return
	}

	c.feedback.SetResult(ev.result)
	log.FeedbackText(ev.sess.id, feedback.ScoreBadge(ev.result.Score))
	if c.state == Submitting {
		c.setState(Complete)
	}
}

func (c *Controller) lockChanged(locked bool) {
	if locked {
		if c.state == Idle {
			c.setState(LockedReady)
		}
		return
	}
	if s := c.sess; s != nil {
		log.Infof("script unlocked, tearing down session %s", s.id)
		c.teardown(s, ErrNotLocked)
	}
	c.lastErr = nil
	c.setState(Idle)
}

func (c *Controller) publish() {
	snap := Snapshot{
		State:     c.state,
		Analyzing: c.pending != nil,
		Err:       c.lastErr,
	}
	if s := c.current(); s != nil {
		snap.SessionID = s.id
		snap.Acquiring = s.acquiring
		snap.Chunks = len(s.chunks)
		snap.Transcript = s.acc.Text()
		snap.Partial = s.partial
		snap.StartedAt = s.startedAt
		snap.StoppedAt = s.stoppedAt
	}

	c.mu.Lock()
	if snap == c.snap {
		c.mu.Unlock()
		return
	}
	c.snap = snap
	close(c.changed)
	c.changed = make(chan struct{})
	watchers := append([]func(Snapshot){}, c.watchers...)
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(snap)
	}
}
