package errs_test

import (
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/wasihost/internal/errs"
)

func TestErrno_String(t *testing.T) {
	tests := []struct {
		errno errs.Errno
		want  string
	}{
		{errs.Success, "success"},
		{errs.NoEntry, "no-entry"},
		{errs.IsDirectory, "is-directory"},
		{errs.NameTooLong, "name-too-long"},
		{errs.Errno(255), "errno(255)"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, tc.errno.String())
	}
}

func TestErrno_Is(t *testing.T) {
	var err error = errs.NoEntry
	require.True(t, errors.Is(err, errs.NoEntry))
	require.False(t, errors.Is(err, errs.Exist))
}

func TestFromPathError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.Errno
	}{
		{"nil", nil, errs.Success},
		{"not exist", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, errs.NoEntry},
		{"exist", &fs.PathError{Op: "mkdir", Path: "/x", Err: fs.ErrExist}, errs.Exist},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, errs.Permission},
		{"closed", fs.ErrClosed, errs.Invalid},
		{"link error", &os.LinkError{Op: "rename", Old: "/a", New: "/b", Err: fs.ErrNotExist}, errs.NoEntry},
		{"unmapped", errors.New("boom"), errs.IO},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, errs.FromPathError(tc.err))
		})
	}
}
