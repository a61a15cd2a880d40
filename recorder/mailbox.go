package recorder

import "sync"

type captureKind int

const (
	audioChunk captureKind = iota
	partialResult
	finalResult
	deviceError
)

type captureEvent struct {
	kind captureKind
	data []byte
	text string
	err  error
}

// mailbox queues capture callbacks for one session. post never blocks, so
// audio and recognizer threads cannot stall on the actor.
type mailbox struct {
	mu     sync.Mutex
	items  []captureEvent
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) post(ev captureEvent) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.items = append(m.items, ev)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []captureEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.items = nil
	m.mu.Unlock()
}

// Sink receives capture output. Implementations must not block.
type Sink interface {
	Chunk(pcm []byte)
	Partial(text string)
	Final(text string)
	Fail(err error)
}

type mailboxSink struct{ box *mailbox }

func (s mailboxSink) Chunk(pcm []byte)    { s.box.post(captureEvent{kind: audioChunk, data: pcm}) }
func (s mailboxSink) Partial(text string) { s.box.post(captureEvent{kind: partialResult, text: text}) }
func (s mailboxSink) Final(text string)   { s.box.post(captureEvent{kind: finalResult, text: text}) }
func (s mailboxSink) Fail(err error)      { s.box.post(captureEvent{kind: deviceError, err: err}) }
