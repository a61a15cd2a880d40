package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestInFlight rejects a submission while another one is unsettled.
	ErrRequestInFlight = errors.New("analysis request already in flight")
	ErrEmptyScript     = errors.New("script is empty")
	ErrInvalidPayload  = errors.New("payload needs exactly one of audio or transcript")
)

// GenericServerMessage is shown when a failed response carries no message.
const GenericServerMessage = "An unknown error occurred."

// NetworkError means no response was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "analysis request failed: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-success status. Message is the server-supplied text
// or GenericServerMessage.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("analysis service error %d: %s", e.StatusCode, e.Message)
}

// MalformedResponseError is a success status whose body is not a usable result.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return "malformed analysis response: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed analysis response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// UserMessage is the text stored in the feedback error slot for err.
func UserMessage(err error) string {
	var se *ServerError
	var ne *NetworkError
	var me *MalformedResponseError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Message
	case errors.As(err, &ne):
		return "Could not reach the analysis service. Check your connection and record again."
	case errors.As(err, &me):
		return "The analysis service returned an unexpected response."
	case errors.Is(err, ErrRequestInFlight):
		return "An analysis is already running. Please wait for it to finish."
	case errors.Is(err, ErrEmptyScript):
		return "Please enter your script before analyzing."
	default:
		return GenericServerMessage
	}
}
