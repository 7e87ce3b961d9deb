package iostreams

import "github.com/tjfontaine/wasihost/internal/errs"

// OutputCallbacks are the host-supplied primitives a custom output
// stream wraps (spec §4.F). Unlike the input side, these are already
// synchronous from the embedder's point of view, so OutputStream mostly
// passes them through; write_zeroes/blocking_write_zeroes are derived.
type OutputCallbacks struct {
	Write                 func(p []byte) (n int, errno errs.Errno)
	BlockingWriteAndFlush func(p []byte) errs.Errno
	CheckWrite            func() (maxBytes uint64, errno errs.Errno)
	Flush                 func() errs.Errno
	BlockingFlush         func() errs.Errno
}

// OutputStream is a custom output stream over OutputCallbacks.
type OutputStream struct {
	cb OutputCallbacks
}

// NewOutputStream wraps cb as a custom output stream.
func NewOutputStream(cb OutputCallbacks) *OutputStream {
	return &OutputStream{cb: cb}
}

func (s *OutputStream) Write(p []byte) (int, errs.Errno) { return s.cb.Write(p) }

func (s *OutputStream) BlockingWriteAndFlush(p []byte) errs.Errno {
	return s.cb.BlockingWriteAndFlush(p)
}

func (s *OutputStream) CheckWrite() (uint64, errs.Errno) { return s.cb.CheckWrite() }

func (s *OutputStream) Flush() errs.Errno { return s.cb.Flush() }

func (s *OutputStream) BlockingFlush() errs.Errno { return s.cb.BlockingFlush() }

// WriteZeroes writes n zero bytes, chunked through Write, stopping early
// on the first error. A short write continues with the remainder; a
// write that accepts zero bytes stops with errs.IO.
func (s *OutputStream) WriteZeroes(n uint64) errs.Errno {
	return s.writeZeroes(n, s.cb.Write)
}

// BlockingWriteZeroes is WriteZeroes using the blocking write primitive.
func (s *OutputStream) BlockingWriteZeroes(n uint64) errs.Errno {
	return s.writeZeroes(n, func(p []byte) (int, errs.Errno) {
		if errno := s.cb.BlockingWriteAndFlush(p); errno != errs.Success {
			return 0, errno
		}
		return len(p), errs.Success
	})
}

const zeroChunkSize = 4096

func (s *OutputStream) writeZeroes(n uint64, write func([]byte) (int, errs.Errno)) errs.Errno {
	if n == 0 {
		return errs.Success
	}
	zeros := make([]byte, zeroChunkSize)
	for n > 0 {
		chunk := zeros
		if n < uint64(len(chunk)) {
			chunk = chunk[:n]
		}
		written, errno := write(chunk)
		if errno != errs.Success {
			return errno
		}
		if written == 0 {
			return errs.IO
		}
		n -= uint64(written)
	}
	return errs.Success
}

// Splice is unsupported, per spec §4.F ("splice is not supported").
func (s *OutputStream) Splice(_ *InputStream, _ uint64) (uint64, errs.Errno) {
	return 0, errs.NotSupported
}

// Subscribe returns a Pollable that is ready whenever CheckWrite reports
// at least one available slot.
func (s *OutputStream) Subscribe() *Pollable {
	ready := func() bool {
		n, errno := s.cb.CheckWrite()
		return errno != errs.Success || n > 0
	}
	return newPollable(ready, nil)
}
