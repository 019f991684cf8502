package errors

import (
	"errors"
	"io/fs"
	"syscall"
)

// WrapWrite wraps a failed write to path. Failures that would hit every
// file in the target tree (permissions, full or read-only filesystem) get
// ErrCodeTarget; anything else is local to the file and gets ErrCodeWrite.
func WrapWrite(err error, path string) *Error {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EROFS) {
		return Wrap(ErrCodeTarget, err, "write %s", path)
	}
	return Wrap(ErrCodeWrite, err, "write %s", path)
}
