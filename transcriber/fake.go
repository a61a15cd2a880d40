package transcriber

import (
	"context"
	"sync"
)

// FakeRecognizer replays Events when a stream starts. StartErr fails Start;
// FailWith is reported through the error callback after the events.
type FakeRecognizer struct {
	Events   []Event
	StartErr error
	FailWith error

	mu      sync.Mutex
	streams []*FakeStream
}

func (f *FakeRecognizer) Name() string { return "fake" }

func (f *FakeRecognizer) Start(_ context.Context, onEvent EventFunc, onError ErrorFunc) (Stream, error) {
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	s := &FakeStream{onEvent: onEvent, onError: onError}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()

	for _, ev := range f.Events {
		s.Emit(ev)
	}
	if f.FailWith != nil {
		s.Fail(f.FailWith)
	}
	return s, nil
}

func (f *FakeRecognizer) Streams() []*FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeStream(nil), f.streams...)
}

type FakeStream struct {
	onEvent EventFunc
	onError ErrorFunc

	mu       sync.Mutex
	fed      int
	finished bool
	closed   bool
}

func (s *FakeStream) Emit(ev Event) {
	if !s.Closed() {
		s.onEvent(ev)
	}
}

func (s *FakeStream) Fail(err error) {
	if !s.Closed() {
		s.onError(&RecognitionError{Err: err})
	}
}

func (s *FakeStream) Feed(pcm []byte) {
	s.mu.Lock()
	s.fed += len(pcm)
	s.mu.Unlock()
}

func (s *FakeStream) Finish(context.Context) error {
	s.mu.Lock()
	s.finished = true
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *FakeStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *FakeStream) Fed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fed
}

func (s *FakeStream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
