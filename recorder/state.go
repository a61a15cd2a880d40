package recorder

import (
	"errors"
	"fmt"
	"time"
)

type State int

const (
	Idle State = iota
	LockedReady
	Recording
	Stopped
	Submitting
	Complete
	Error
)

var stateNames = [...]string{"idle", "locked_ready", "recording", "stopped", "submitting", "complete", "error"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// canStart lists the states a new capture may begin from.
func (s State) canStart() bool {
	switch s {
	case LockedReady, Stopped, Complete, Error:
		return true
	}
	return false
}

var (
	ErrSessionActive = errors.New("a recording session is already active")
	ErrNotRecording  = errors.New("not recording")
	ErrNotLocked     = errors.New("script is not locked")
	ErrNoAudio       = errors.New("no audio was captured")
	ErrNoSpeech      = errors.New("no speech was recognized")
	ErrClosed        = errors.New("recorder closed")
)

// CaptureUnavailableError means the capture device could not be acquired:
// no device, permission denied or an unsupported environment.
type CaptureUnavailableError struct {
	Err error
}

func (e *CaptureUnavailableError) Error() string { return "capture unavailable: " + e.Err.Error() }
func (e *CaptureUnavailableError) Unwrap() error { return e.Err }

// Snapshot is a read-only view of the controller, published after every change.
type Snapshot struct {
	State      State
	SessionID  string
	Acquiring  bool
	Analyzing  bool
	Chunks     int
	Transcript string
	Partial    string
	Err        error
	StartedAt  time.Time
	StoppedAt  time.Time
}

func (s Snapshot) Duration() time.Duration {
	switch {
	case s.StartedAt.IsZero():
		return 0
	case s.StoppedAt.IsZero():
		return time.Since(s.StartedAt)
	default:
		return s.StoppedAt.Sub(s.StartedAt)
	}
}
