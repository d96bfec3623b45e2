package tweezer

import (
	"errors"
	"fmt"
)

// ErrBusy matches any *BusyError via errors.Is.
var ErrBusy = errors.New("tweezer: server busy")

// ErrStreamClosed is returned by Stream.Next after Close.
var ErrStreamClosed = errors.New("tweezer: stream closed")

// BusyError is returned by Search when the server kept answering 503 until
// the retry budget ran out. Retries is the number of retries performed.
//
//	if errors.Is(err, tweezer.ErrBusy) { /* try again later */ }
type BusyError struct {
	Retries int
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("tweezer: cannot establish a connection after %d retries", e.Retries)
}

// Is reports ErrBusy as a match.
func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// ProtocolError is returned by Search for any status other than 200 or 503.
// It is never retried.
type ProtocolError struct {
	Body       string
	StatusCode int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tweezer: non-retryable status %d: %s", e.StatusCode, e.Body)
}

// IsClientError returns true for 4xx statuses.
func (e *ProtocolError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError returns true for 5xx statuses.
func (e *ProtocolError) IsServerError() bool {
	return e.StatusCode >= 500
}

// DecodeError is returned while consuming a Stream when a line cannot be
// decoded into a tweet. It terminates the stream. Line is 1-based and counts
// every line read, blank ones included.
type DecodeError struct {
	Err  error
	Line int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tweezer: decode line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
