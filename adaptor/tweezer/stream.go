package tweezer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/gurre/tweezer-client-go/logic/tweet"
)

// maxLineSize bounds a single stream line. A longer line is a decode fault.
const maxLineSize = 1 << 20

// errLineTooLong is wrapped in a DecodeError when a line exceeds maxLineSize.
var errLineTooLong = fmt.Errorf("line exceeds %d bytes", maxLineSize)

// Stream is an open search result. Each Next call reads one line from the
// still-open response and decodes it; nothing is read ahead. The response is
// released on end of stream, on the first error, or on Close, whichever
// comes first.
//
// A Stream is not safe for concurrent use, except that Close may be called
// from another goroutine to abort a blocked read.
type Stream struct {
	body   io.ReadCloser
	r      *bufio.Reader
	line   []byte
	lineNo int
	err    error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{
		body: body,
		r:    bufio.NewReader(body),
	}
}

// Next returns the next tweet. It returns io.EOF once the stream is
// exhausted, a *DecodeError for a line that is not a valid tweet, and
// ErrStreamClosed after Close. Once Next has returned an error it keeps
// returning it.
//
//	for {
//	    tw, err := stream.Next()
//	    if err == io.EOF { break }
//	    if err != nil { return err }
//	}
func (s *Stream) Next() (tweet.Tweet, error) {
	if s.err != nil {
		return tweet.Tweet{}, s.err
	}
	if s.closed.Load() {
		s.err = ErrStreamClosed
		return tweet.Tweet{}, s.err
	}

	for {
		line, err := s.readLine()
		if err != nil {
			switch {
			case s.closed.Load():
				err = ErrStreamClosed
			case !errors.Is(err, io.EOF):
				err = fmt.Errorf("tweezer: read stream: %w", err)
			}
			return tweet.Tweet{}, s.fail(err)
		}
		s.lineNo++

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if len(line) > maxLineSize {
			return tweet.Tweet{}, s.fail(&DecodeError{Line: s.lineNo, Err: errLineTooLong})
		}

		tw, err := tweet.Decode(line)
		if err != nil {
			return tweet.Tweet{}, s.fail(&DecodeError{Line: s.lineNo, Err: err})
		}
		return tw, nil
	}
}

// All returns the remaining tweets as an iterator. The iterator yields a
// non-nil error at most once, as its last element. The response is closed
// when the loop ends for any reason, including break.
//
//	for tw, err := range stream.All() {
//	    if err != nil { return err }
//	    fmt.Println(tw.Text)
//	}
func (s *Stream) All() iter.Seq2[tweet.Tweet, error] {
	return func(yield func(tweet.Tweet, error) bool) {
		defer func() { _ = s.Close() }()
		for {
			tw, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(tweet.Tweet{}, err)
				return
			}
			if !yield(tw, nil) {
				return
			}
		}
	}
}

// Close releases the response. It is idempotent and safe to call after the
// stream has ended.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// fail records the terminal error and releases the response.
func (s *Stream) fail(err error) error {
	s.err = err
	_ = s.Close()
	return err
}

// readLine returns the next line including its newline. The final line may
// lack one. The returned slice is reused by the next call. Reading stops
// accumulating past maxLineSize but keeps consuming up to the newline so the
// caller can report the fault.
func (s *Stream) readLine() ([]byte, error) {
	s.line = s.line[:0]
	overflow := false
	for {
		chunk, err := s.r.ReadSlice('\n')
		if !overflow {
			s.line = append(s.line, chunk...)
			if len(s.line) > maxLineSize {
				overflow = true
			}
		}
		switch {
		case err == nil:
			return s.line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(s.line) > 0:
			return s.line, nil
		default:
			return nil, err
		}
	}
}
