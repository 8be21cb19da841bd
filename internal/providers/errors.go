package providers

import (
	"fmt"
	"strings"
)

// TransportError is a failed call to the service: the request could not be
// made, the service answered with a non-2xx status, or a 2xx body carried
// an error message.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Message    string
	Quality    *QualityReport
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("ocr service %s failed: %v", e.Op, e.Err)
	}
	msg := fmt.Sprintf("ocr service %s error (status %d): %s", e.Op, e.StatusCode, e.Message)
	if e.Quality != nil {
		msg += fmt.Sprintf(" (quality score %.0f", e.Quality.Score)
		if len(e.Quality.Suggestions) > 0 {
			msg += ": " + strings.Join(e.Quality.Suggestions, "; ")
		}
		msg += ")"
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError is a 2xx response whose body could not be decoded
// or lacks the expected keys.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("ocr service %s returned a malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
