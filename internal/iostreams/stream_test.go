package iostreams_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/iostreams"
)

func TestInputStream_NonBlockingThenReady(t *testing.T) {
	release := make(chan struct{})
	s := iostreams.NewInputStream(func(length uint64) ([]byte, bool, errs.Errno) {
		<-release
		return []byte("hi"), false, errs.Success
	})

	data, eof, errno := s.Read(10)
	require.Equal(t, errs.Success, errno)
	require.False(t, eof)
	require.Empty(t, data)

	p := s.Subscribe()
	require.False(t, p.Ready())

	close(release)
	require.Eventually(t, p.Ready, time.Second, time.Millisecond)

	data, eof, errno = s.Read(10)
	require.Equal(t, errs.Success, errno)
	require.False(t, eof)
	require.Equal(t, []byte("hi"), data)
}

func TestInputStream_BlockingRead(t *testing.T) {
	s := iostreams.NewInputStream(func(length uint64) ([]byte, bool, errs.Errno) {
		return []byte("payload"), false, errs.Success
	})
	data, eof, errno := s.BlockingRead(10)
	require.Equal(t, errs.Success, errno)
	require.False(t, eof)
	require.Equal(t, []byte("payload"), data)
}

func TestInputStream_EOF(t *testing.T) {
	s := iostreams.NewInputStream(func(length uint64) ([]byte, bool, errs.Errno) {
		return nil, true, errs.Success
	})
	_, eof, errno := s.BlockingRead(10)
	require.Equal(t, errs.Success, errno)
	require.True(t, eof)

	_, eof, errno = s.Read(10)
	require.Equal(t, errs.Success, errno)
	require.True(t, eof)
}

func TestInputStream_Skip(t *testing.T) {
	s := iostreams.NewInputStream(func(length uint64) ([]byte, bool, errs.Errno) {
		return []byte("abcdef"), false, errs.Success
	})
	n, eof, errno := s.BlockingSkip(6)
	require.Equal(t, errs.Success, errno)
	require.False(t, eof)
	require.Equal(t, uint64(6), n)
}

func TestOutputStream_WriteZeroes(t *testing.T) {
	var written []byte
	out := iostreams.NewOutputStream(iostreams.OutputCallbacks{
		Write: func(p []byte) (int, errs.Errno) {
			written = append(written, p...)
			return len(p), errs.Success
		},
		CheckWrite: func() (uint64, errs.Errno) { return 4096, errs.Success },
	})
	require.Equal(t, errs.Success, out.WriteZeroes(10))
	require.Equal(t, make([]byte, 10), written)
}

func TestOutputStream_Splice(t *testing.T) {
	out := iostreams.NewOutputStream(iostreams.OutputCallbacks{})
	_, errno := out.Splice(nil, 10)
	require.Equal(t, errs.NotSupported, errno)
}

func TestOutputStream_Subscribe(t *testing.T) {
	available := uint64(0)
	out := iostreams.NewOutputStream(iostreams.OutputCallbacks{
		CheckWrite: func() (uint64, errs.Errno) { return available, errs.Success },
	})
	p := out.Subscribe()
	require.False(t, p.Ready())
	available = 1
	require.True(t, p.Ready())
}
