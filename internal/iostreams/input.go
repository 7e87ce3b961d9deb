package iostreams

import (
	"sync"

	"github.com/tjfontaine/wasihost/internal/errs"
)

// BlockingRead is the closure a custom input stream wraps (spec §4.F):
// it reads up to length bytes, blocking until at least one is available
// or the stream ends.
type BlockingRead func(length uint64) (data []byte, eof bool, errno errs.Errno)

// InputStream derives non-blocking Read/Skip/BlockingSkip from a single
// BlockingRead closure. Non-blocking Read works by keeping at most one
// BlockingRead in flight: a Read call that finds no in-flight request
// starts one and returns immediately with no data; a Read call that
// finds one already running checks whether it has completed yet. This
// is the same "kick off, poll for completion" shape spec §4.F's
// subscribe/pollable pairing implies, built here with a goroutine and a
// result channel instead of a JS promise.
type InputStream struct {
	blockingRead BlockingRead

	mu      sync.Mutex
	pending chan ioResult
	eof     bool
	signal  chan struct{}
}

type ioResult struct {
	data  []byte
	eof   bool
	errno errs.Errno
}

// NewInputStream wraps fn as a custom input stream.
func NewInputStream(fn BlockingRead) *InputStream {
	return &InputStream{blockingRead: fn, signal: make(chan struct{}, 1)}
}

func (s *InputStream) start(length uint64) {
	ch := make(chan ioResult, 1)
	s.pending = ch
	go func() {
		data, eof, errno := s.blockingRead(length)
		ch <- ioResult{data: data, eof: eof, errno: errno}
		select {
		case s.signal <- struct{}{}:
		default:
		}
	}()
}

// Read is the non-blocking form: it returns whatever the in-flight
// BlockingRead has produced so far, or starts one and returns an empty,
// non-EOF result if none is in flight yet.
func (s *InputStream) Read(length uint64) (data []byte, eof bool, errno errs.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eof {
		return nil, true, errs.Success
	}
	if s.pending == nil {
		s.start(length)
		return nil, false, errs.Success
	}
	select {
	case r := <-s.pending:
		s.pending = nil
		if r.eof {
			s.eof = true
		}
		return r.data, r.eof, r.errno
	default:
		return nil, false, errs.Success
	}
}

// BlockingRead waits for the in-flight (or newly started) read to
// complete and returns its result.
func (s *InputStream) BlockingRead(length uint64) (data []byte, eof bool, errno errs.Errno) {
	s.mu.Lock()
	if s.eof {
		s.mu.Unlock()
		return nil, true, errs.Success
	}
	if s.pending == nil {
		s.start(length)
	}
	ch := s.pending
	s.mu.Unlock()

	r := <-ch

	s.mu.Lock()
	s.pending = nil
	if r.eof {
		s.eof = true
	}
	s.mu.Unlock()
	return r.data, r.eof, r.errno
}

// Skip discards up to length bytes without returning them, non-blocking.
func (s *InputStream) Skip(length uint64) (skipped uint64, eof bool, errno errs.Errno) {
	data, eof, errno := s.Read(length)
	return uint64(len(data)), eof, errno
}

// BlockingSkip discards up to length bytes, blocking until some are
// available or the stream ends.
func (s *InputStream) BlockingSkip(length uint64) (skipped uint64, eof bool, errno errs.Errno) {
	data, eof, errno := s.BlockingRead(length)
	return uint64(len(data)), eof, errno
}

// Subscribe returns a Pollable that is ready whenever a completed read
// is waiting to be consumed, or the stream has reached EOF.
func (s *InputStream) Subscribe() *Pollable {
	ready := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.eof {
			return true
		}
		if s.pending == nil {
			return false
		}
		select {
		case r := <-s.pending:
			// Peek-and-stash: put it back so Read/BlockingRead still
			// observes it; channels have no peek, so replay via a
			// buffered channel of size 1.
			replay := make(chan ioResult, 1)
			replay <- r
			s.pending = replay
			return true
		default:
			return false
		}
	}
	return newPollable(ready, s.signal)
}
