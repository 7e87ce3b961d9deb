package stdio_test

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/wasihost/internal/stdio"
)

func TestQueue_NonBlockingReadDrainsFIFO(t *testing.T) {
	q := stdio.NewQueue()
	q.Write([]byte("hello"))
	q.Write([]byte(" world"))

	data, eof := q.ReadNonBlocking(5)
	require.False(t, eof)
	require.Equal(t, "hello", string(data))

	data, eof = q.ReadNonBlocking(64)
	require.False(t, eof)
	require.Equal(t, " world", string(data))

	data, eof = q.ReadNonBlocking(64)
	require.False(t, eof)
	require.Empty(t, data)
}

func TestQueue_NonBlockingReadReportsEOFAfterClose(t *testing.T) {
	q := stdio.NewQueue()
	q.Write([]byte("x"))
	q.Close()

	data, eof := q.ReadNonBlocking(64)
	require.False(t, eof)
	require.Equal(t, "x", string(data))

	_, eof = q.ReadNonBlocking(64)
	require.True(t, eof)
}

func TestQueue_BlockingReadWaitsForWrite(t *testing.T) {
	q := stdio.NewQueue()
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := q.Read(buf)
		require.NoError(t, err)
		done <- buf[:n]
	}()

	select {
	case <-done:
		t.Fatal("Read returned before any write")
	case <-time.After(20 * time.Millisecond):
	}

	q.Write([]byte("ok"))
	select {
	case got := <-done:
		require.Equal(t, "ok", string(got))
	case <-time.After(time.Second):
		t.Fatal("Read never woke up after Write")
	}
}

func TestQueue_BlockingReadEOFOnClose(t *testing.T) {
	q := stdio.NewQueue()
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := q.Read(buf)
		done <- err
	}()
	q.Close()
	select {
	case err := <-done:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Read never woke up after Close")
	}
}

func TestRouter_FansOutToAllSinks(t *testing.T) {
	r := stdio.NewRouter()
	var a, b []byte
	r.AddStdout(func(p []byte) { a = append(a, p...) })
	r.AddStdout(func(p []byte) { b = append(b, p...) })
	r.WriteStdout([]byte("hi"))
	require.Equal(t, "hi", string(a))
	require.Equal(t, "hi", string(b))
}
