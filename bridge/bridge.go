package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"coach/log"
)

const (
	DefaultFeedbackName = "presentation-feedback.txt"
	DefaultAudioName    = "ideal-delivery.mp3"

	maxTextBytes = 8 << 20
)

var (
	textFilters     = []Filter{{Name: "Text documents", Extensions: []string{"txt", "md"}}}
	feedbackFilters = []Filter{{Name: "Text files", Extensions: []string{"txt"}}}
	audioFilters    = []Filter{{Name: "MP3 audio", Extensions: []string{"mp3"}}}
)

// Exporter is the fixed set of privileged operations available to the UI.
// Failures collapse to false or a missing value; details go to the log.
type Exporter interface {
	OpenTextFile(ctx context.Context) (string, bool)
	SaveFeedback(ctx context.Context, content string) bool
	SaveAudio(ctx context.Context, remoteURL string) bool
}

// Bridge performs the export operations in the trusted process.
type Bridge struct {
	dialogs Dialogs
	client  *http.Client
}

func New(d Dialogs) *Bridge {
	return &Bridge{
		dialogs: d,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (b *Bridge) OpenTextFile(ctx context.Context) (string, bool) {
	path, ok, err := b.dialogs.OpenFile(ctx, "Open script", textFilters)
	if err != nil || !ok {
		log.ExportResult("openFile", false, err)
		return "", false
	}
	text, err := readText(path)
	log.ExportResult("openFile", err == nil, err)
	if err != nil {
		return "", false
	}
	return text, true
}

func (b *Bridge) SaveFeedback(ctx context.Context, content string) bool {
	path, ok, err := b.dialogs.SaveFile(ctx, "Save feedback", DefaultFeedbackName, feedbackFilters)
	if err != nil || !ok {
		log.ExportResult("saveFeedback", false, err)
		return false
	}
	err = writeFileAtomic(path, strings.NewReader(content))
	log.ExportResult("saveFeedback", err == nil, err)
	return err == nil
}

func (b *Bridge) SaveAudio(ctx context.Context, remoteURL string) bool {
	if err := checkURL(remoteURL); err != nil {
		log.ExportResult("saveAudio", false, err)
		return false
	}
	path, ok, err := b.dialogs.SaveFile(ctx, "Save ideal delivery audio", DefaultAudioName, audioFilters)
	if err != nil || !ok {
		log.ExportResult("saveAudio", false, err)
		return false
	}
	err = b.download(ctx, remoteURL, path)
	log.ExportResult("saveAudio", err == nil, err)
	return err == nil
}

func readText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &FileSystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxTextBytes+1))
	if err != nil {
		return "", &FileSystemError{Op: "read", Path: path, Err: err}
	}
	if len(data) > maxTextBytes {
		return "", &FileSystemError{Op: "read", Path: path, Err: errors.New("file too large")}
	}

	data = trimBOM(data)
	if !utf8.Valid(data) {
		return "", &FileSystemError{Op: "decode", Path: path, Err: errors.New("not UTF-8 text")}
	}
	return string(data), nil
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &DownloadError{URL: raw, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &DownloadError{URL: raw, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	return nil
}

// download streams url into path. The body goes to a temp file next to the
// target which is renamed into place only after a complete, successful copy.
func (b *Bridge) download(ctx context.Context, rawURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &DownloadError{URL: rawURL, Err: err}
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return &DownloadError{URL: rawURL, Err: err}
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return writeFileAtomic(path, resp.Body)
}

// writeFileAtomic copies src into path via a temp file in the same directory
// so a failed copy never leaves a partial file behind.
func writeFileAtomic(path string, src io.Reader) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".coach-export-*")
	if err != nil {
		return &FileSystemError{Op: "create", Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return &FileSystemError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &FileSystemError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &FileSystemError{Op: "close", Path: path, Err: err}
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return &FileSystemError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &FileSystemError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
