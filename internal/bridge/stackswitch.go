package bridge

import (
	"time"

	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
)

// stackSwitch implements Bridge for hosts that can suspend the guest's
// stack across an await point: every method is a plain channel receive on
// the Future objectstore already returns.
type stackSwitch struct {
	store objectstore.Store
}

func (s *stackSwitch) OpenDir(path pathutil.Canonical, create bool) (objectstore.DirHandle, errs.Errno) {
	r := <-s.store.OpenDir(path, create)
	return r.Value, r.Errno
}

func (s *stackSwitch) OpenFile(path pathutil.Canonical, create bool) (objectstore.FileHandle, errs.Errno) {
	r := <-s.store.OpenFile(path, create)
	return r.Value, r.Errno
}

func (s *stackSwitch) List(dir objectstore.DirHandle) ([]objectstore.Entry, errs.Errno) {
	r := <-s.store.List(dir)
	return r.Value, r.Errno
}

func (s *stackSwitch) ReadAll(file objectstore.FileHandle) ([]byte, errs.Errno) {
	r := <-s.store.ReadAll(file)
	return r.Value, r.Errno
}

func (s *stackSwitch) WriteAll(file objectstore.FileHandle, data []byte) errs.Errno {
	r := <-s.store.WriteAll(file, data)
	return r.Errno
}

func (s *stackSwitch) CreateWritable(file objectstore.FileHandle) (objectstore.Writer, errs.Errno) {
	r := <-s.store.CreateWritable(file)
	return r.Value, r.Errno
}

func (s *stackSwitch) Remove(path pathutil.Canonical) errs.Errno {
	r := <-s.store.Remove(path)
	return r.Errno
}

func (s *stackSwitch) Rename(oldPath, newPath pathutil.Canonical) errs.Errno {
	r := <-s.store.Rename(oldPath, newPath)
	return r.Errno
}

func (s *stackSwitch) SetTimes(path pathutil.Canonical, mtime time.Time) errs.Errno {
	r := <-s.store.SetTimes(path, mtime)
	return r.Errno
}
