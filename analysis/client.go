package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"

	"coach/feedback"
	"coach/log"

	"github.com/google/uuid"
)

const (
	analyzePath     = "/api/v1/analyze"
	analyzeTextPath = "/api/analyze"
	voicesPath      = "/api/v1/voices"

	DefaultAudioFilename = "recording.wav"
)

// Payload is what gets analyzed alongside the script. Exactly one of Audio
// or Transcript must be set.
type Payload struct {
	Audio      []byte
	Filename   string
	Transcript string
}

func AudioPayload(data []byte, filename string) Payload {
	return Payload{Audio: data, Filename: filename}
}

func TranscriptPayload(text string) Payload {
	return Payload{Transcript: text}
}

func (p Payload) IsAudio() bool { return len(p.Audio) > 0 }

func (p Payload) validate() error {
	hasAudio := len(p.Audio) > 0
	hasText := p.Transcript != ""
	if hasAudio == hasText {
		return ErrInvalidPayload
	}
	return nil
}

// Submitter is the part of Client the recorder depends on.
type Submitter interface {
	Submit(ctx context.Context, script string, p Payload) (*feedback.Result, error)
}

// Client talks to the analysis service. At most one Submit is outstanding
// per Client.
type Client struct {
	baseURL  string
	http     *tracedClient
	inFlight atomic.Bool
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newTracedClient(),
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Submit sends script and payload for analysis. A call made while another
// is unsettled fails with ErrRequestInFlight without any network I/O.
func (c *Client) Submit(ctx context.Context, script string, p Payload) (*feedback.Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRequestInFlight
	}
	defer c.inFlight.Store(false)

	if strings.TrimSpace(script) == "" {
		return nil, ErrEmptyScript
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	req, size, err := c.newAnalyzeRequest(ctx, script, p)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Errorf("analysis %s: %v", requestID, err)
		return nil, &NetworkError{Err: err}
	}
	log.AnalysisMetrics(requestID, resp.StatusCode, resp.Metrics.logFields(size))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: serverMessage(resp.Body)}
	}
	return parseResult(resp.Body)
}

func (c *Client) newAnalyzeRequest(ctx context.Context, script string, p Payload) (*http.Request, int, error) {
	if !p.IsAudio() {
		body, err := json.Marshal(map[string]string{
			"originalScript":   script,
			"spokenTranscript": p.Transcript,
		})
		if err != nil {
			return nil, 0, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzeTextPath, bytes.NewReader(body))
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, len(body), nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := p.Filename
	if filename == "" {
		filename = DefaultAudioFilename
	}
	part, err := writer.CreateFormFile("audioFile", filename)
	if err != nil {
		return nil, 0, err
	}
	if _, err := part.Write(p.Audio); err != nil {
		return nil, 0, err
	}
	if err := writer.WriteField("originalScript", script); err != nil {
		return nil, 0, err
	}
	if err := writer.Close(); err != nil {
		return nil, 0, err
	}

	size := body.Len()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, &body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, size, nil
}

// Voices lists the voice catalogue. It does not take the submission slot.
func (c *Client) Voices(ctx context.Context) ([]feedback.VoiceOption, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+voicesPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: serverMessage(resp.Body)}
	}

	var voices []feedback.VoiceOption
	if err := json.Unmarshal(resp.Body, &voices); err != nil {
		return nil, &MalformedResponseError{Reason: "voices", Err: err}
	}
	return voices, nil
}

func serverMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return GenericServerMessage
}

type wireResult struct {
	Score               *float64                      `json:"score"`
	PositiveFeedback    *string                       `json:"positiveFeedback"`
	ImprovementPoints   *string                       `json:"improvementPoints"`
	AudioURL            string                        `json:"audioUrl"`
	SpokenTranscript    string                        `json:"spokenTranscript"`
	VoiceRecommendation *feedback.VoiceRecommendation `json:"voiceRecommendation"`
}

func parseResult(body []byte) (*feedback.Result, error) {
	var w wireResult
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, &MalformedResponseError{Reason: "decode", Err: err}
	}
	switch {
	case w.Score == nil:
		return nil, &MalformedResponseError{Reason: "missing score"}
	case w.PositiveFeedback == nil:
		return nil, &MalformedResponseError{Reason: "missing positiveFeedback"}
	case w.ImprovementPoints == nil:
		return nil, &MalformedResponseError{Reason: "missing improvementPoints"}
	}

	score := *w.Score
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("score %v", score)}
	}
	if clamped := clamp(score, 0, 10); clamped != score {
		log.Warnf("analysis score %v out of range, clamped to %v", score, clamped)
		score = clamped
	}

	res := &feedback.Result{
		Score:               score,
		PositiveFeedback:    *w.PositiveFeedback,
		ImprovementPoints:   *w.ImprovementPoints,
		AudioURL:            w.AudioURL,
		SpokenTranscript:    w.SpokenTranscript,
		VoiceRecommendation: w.VoiceRecommendation,
	}
	if vr := res.VoiceRecommendation; vr != nil {
		if c := clamp(vr.ConfidenceScore, 0, 1); c != vr.ConfidenceScore {
			log.Warnf("voice confidence %v out of range, clamped to %v", vr.ConfidenceScore, c)
			vr.ConfidenceScore = c
		}
	}
	return res, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
