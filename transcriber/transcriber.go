package transcriber

import (
	"context"
	"strings"
	"unicode"
)

// Event is one recognition result. Interim results may be revised later;
// final ones will not.
type Event struct {
	Text  string
	Final bool
}

// Callbacks must not block: they run on the recognizer's receive goroutine.
type (
	EventFunc func(Event)
	ErrorFunc func(error)
)

// Recognizer opens continuous speech-to-text streams.
type Recognizer interface {
	Name() string
	Start(ctx context.Context, onEvent EventFunc, onError ErrorFunc) (Stream, error)
}

// Stream accepts PCM16 mono audio in capture order.
type Stream interface {
	Feed(pcm []byte)
	// Finish flushes buffered audio and waits briefly for the recognizer to
	// emit its last final result, then closes the stream.
	Finish(ctx context.Context) error
	// Close abandons the stream without waiting for results.
	Close()
}

// RecognitionError is raised when the recognizer fails mid-session.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string { return "speech recognition failed: " + e.Err.Error() }
func (e *RecognitionError) Unwrap() error { return e.Err }

// Accumulator builds the spoken transcript from final results only, in
// arrival order. A space is added after a segment unless it already ends in
// whitespace.
type Accumulator struct {
	b        strings.Builder
	finals   int
	interims int
}

// Add reports whether ev changed the transcript.
func (a *Accumulator) Add(ev Event) bool {
	if !ev.Final {
		a.interims++
		return false
	}
	if strings.TrimSpace(ev.Text) == "" {
		return false
	}
	a.finals++
	a.b.WriteString(ev.Text)
	if !endsInSpace(ev.Text) {
		a.b.WriteByte(' ')
	}
	return true
}

func (a *Accumulator) Text() string { return a.b.String() }

func (a *Accumulator) Counts() (finals, interims int) { return a.finals, a.interims }

func endsInSpace(s string) bool {
	r := []rune(s)
	return len(r) > 0 && unicode.IsSpace(r[len(r)-1])
}
