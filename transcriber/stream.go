package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"coach/encoder"
	"coach/log"

	"github.com/gorilla/websocket"
)

const (
	streamChunkMs     = 200
	streamChunkBytes  = encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8) * streamChunkMs / 1000
	streamQueue       = 128
	streamFinalizeMax = 1000 * time.Millisecond
	streamDrainMax    = 2 * time.Second
	// A peer that stops reading must not wedge the sender.
	streamWriteMax = 5 * time.Second
)

type StreamConfig struct {
	URL      string
	Key      string
	Language string
	Model    string
}

// WSRecognizer streams linear16 audio to a Deepgram-compatible websocket
// endpoint and reports interim and final results.
type WSRecognizer struct {
	cfg    StreamConfig
	dialer *websocket.Dialer
}

func NewWS(cfg StreamConfig) *WSRecognizer {
	return &WSRecognizer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (r *WSRecognizer) Name() string { return "stream" }

func (r *WSRecognizer) endpoint() (string, error) {
	u, err := url.Parse(r.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("recognizer url: %w", err)
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(encoder.SampleRate))
	q.Set("channels", strconv.Itoa(encoder.Channels))
	q.Set("interim_results", "true")
	if r.cfg.Language != "" {
		q.Set("language", r.cfg.Language)
	}
	if r.cfg.Model != "" {
		q.Set("model", r.cfg.Model)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *WSRecognizer) Start(ctx context.Context, onEvent EventFunc, onError ErrorFunc) (Stream, error) {
	endpoint, err := r.endpoint()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if r.cfg.Key != "" {
		headers.Set("Authorization", "Token "+r.cfg.Key)
	}

	conn, resp, err := r.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("recognizer dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("recognizer dial: %w", err)
	}

	s := &wsStream{
		conn:      conn,
		onEvent:   onEvent,
		onError:   onError,
		audioCh:   make(chan []byte, streamQueue),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
	}
	go s.runSender()
	go s.runReceiver()
	return s, nil
}

type streamResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type wsStream struct {
	conn    *websocket.Conn
	onEvent EventFunc
	onError ErrorFunc

	audioCh       chan []byte
	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	mu      sync.Mutex
	feedBuf []byte
	closed  bool
	aborted bool
	closing bool
	dropped int

	errOnce  sync.Once
	err      error
	shutOnce sync.Once
}

func (s *wsStream) Feed(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.feedBuf = append(s.feedBuf, pcm...)
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		select {
		case s.audioCh <- chunk:
		default:
			s.dropped++
		}
	}
}

func (s *wsStream) Finish(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.firstErr()
	}
	s.closed = true
	if len(s.feedBuf) > 0 {
		select {
		case s.audioCh <- s.feedBuf:
		default:
			s.dropped++
		}
		s.feedBuf = nil
	}
	close(s.audioCh)
	dropped := s.dropped
	s.mu.Unlock()

	if dropped > 0 {
		log.Warnf("recognizer stream dropped %d audio chunks", dropped)
	}

	select {
	case <-s.sendDone:
	case <-ctx.Done():
		s.mu.Lock()
		s.aborted = true
		s.mu.Unlock()
		// Closing the connection unblocks a sender stuck in a write.
		s.shutdown()
		<-s.sendDone
		return fmt.Errorf("recognizer finish: %w", ctx.Err())
	}
	select {
	case <-s.finalized:
	case <-time.After(streamFinalizeMax):
	case <-ctx.Done():
	}
	s.shutdown()
	return s.firstErr()
}

func (s *wsStream) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.aborted = true
		close(s.audioCh)
	}
	s.mu.Unlock()
	s.shutdown()
}

func (s *wsStream) shutdown() {
	s.shutOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
		select {
		case <-s.recvDone:
		case <-time.After(streamDrainMax):
			log.Warn("recognizer receiver drain timeout")
		}
	})
}

func (s *wsStream) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.write(websocket.BinaryMessage, chunk); err != nil {
			s.fail(err)
			for range s.audioCh {
			}
			return
		}
	}
	s.mu.Lock()
	aborted := s.aborted
	s.mu.Unlock()
	if aborted {
		return
	}
	if err := s.write(websocket.TextMessage, []byte(`{"type":"Finalize"}`)); err != nil {
		s.fail(err)
	}
}

func (s *wsStream) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(streamWriteMax)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *wsStream) runReceiver() {
	defer close(s.recvDone)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isClosing() {
				s.fail(err)
			}
			return
		}

		var resp streamResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Warnf("recognizer: unreadable message: %v", err)
			continue
		}
		if resp.Type != "" && resp.Type != "Results" {
			continue
		}
		if resp.FromFinalize {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}

		text := ""
		if len(resp.Channel.Alternatives) > 0 {
			text = resp.Channel.Alternatives[0].Transcript
		}
		if text == "" {
			continue
		}
		s.onEvent(Event{Text: text, Final: resp.IsFinal || resp.SpeechFinal || resp.FromFinalize})
	}
}

func (s *wsStream) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *wsStream) fail(err error) {
	if err == nil || s.isClosing() {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
			err = fmt.Errorf("recognizer closed the stream")
		}
		s.onError(&RecognitionError{Err: err})
	})
}

func (s *wsStream) firstErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return &RecognitionError{Err: s.err}
	}
	return nil
}
