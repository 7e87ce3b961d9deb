package bridge_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/wasihost/internal/bridge"
	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
)

func newStore(t *testing.T) objectstore.Store {
	t.Helper()
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

// Bridge equivalence (spec §8): for every Store operation, results in
// stack-switch mode and shared-memory mode must be byte-identical given
// identical inputs.
func TestBridgeEquivalence(t *testing.T) {
	for _, mode := range []bridge.Mode{bridge.ModeStackSwitch, bridge.ModeSharedMemory} {
		mode := mode
		t.Run(modeName(mode), func(t *testing.T) {
			store := newStore(t)
			b := bridge.New(mode, store, bridge.Config{})

			fh, errno := b.OpenFile("f.txt", true)
			require.Equal(t, errs.Success, errno)

			errno = b.WriteAll(fh, []byte("payload"))
			require.Equal(t, errs.Success, errno)

			data, errno := b.ReadAll(fh)
			require.Equal(t, errs.Success, errno)
			require.Equal(t, []byte("payload"), data)

			dh, errno := b.OpenDir("", false)
			require.Equal(t, errs.Success, errno)
			entries, errno := b.List(dh)
			require.Equal(t, errs.Success, errno)
			require.Len(t, entries, 1)
			require.Equal(t, "f.txt", entries[0].Name)

			errno = b.Rename("f.txt", "g.txt")
			require.Equal(t, errs.Success, errno)

			_, errno = b.ReadAll(objectstore.FileHandle{Path: "f.txt"})
			require.Equal(t, errs.NoEntry, errno)

			errno = b.Remove("g.txt")
			require.Equal(t, errs.Success, errno)

			_, errno = b.OpenFile("h.txt", true)
			require.Equal(t, errs.Success, errno)
			errno = b.SetTimes("h.txt", time.Unix(1_700_000_000, 0))
			require.Equal(t, errs.Success, errno)
		})
	}
}

func TestSharedMemory_OversizeIsIO(t *testing.T) {
	store := newStore(t)
	b := bridge.New(bridge.ModeSharedMemory, store, bridge.Config{BufferSize: 64})

	fh, errno := b.OpenFile("f.txt", true)
	require.Equal(t, errs.Success, errno)

	errno = b.WriteAll(fh, []byte("this payload is much larger than the sixty-four byte buffer"))
	require.Equal(t, errs.IO, errno)
}

func TestSharedMemory_TimeoutIsWouldBlock(t *testing.T) {
	store := &hangingStore{}
	b := bridge.New(bridge.ModeSharedMemory, store, bridge.Config{Timeout: 10 * time.Millisecond})

	_, errno := b.OpenFile("f.txt", true)
	require.Equal(t, errs.WouldBlock, errno)
}

// hangingStore never resolves any future, to exercise the shared-memory
// tier's timeout path without waiting on the real default of 30s.
type hangingStore struct{ objectstore.Store }

func (h *hangingStore) OpenFile(_ pathutil.Canonical, _ bool) objectstore.Future[objectstore.FileHandle] {
	return make(chan objectstore.Result[objectstore.FileHandle])
}

func modeName(m bridge.Mode) string {
	if m == bridge.ModeStackSwitch {
		return "stack-switch"
	}
	return "shared-memory"
}
