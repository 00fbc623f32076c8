//go:build !windows

package snapshot

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/sitediff/internal/errors"
)

// noFollow is added to every open so a path swapped for a symlink fails
// with ELOOP instead of being followed.
const noFollow = syscall.O_NOFOLLOW | syscall.O_CLOEXEC

// OpenNoFollow opens path with flag, refusing a symlink at the last
// component. Parent directories are the caller's concern.
func OpenNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|noFollow, uint32(perm))
	if err == nil {
		return os.NewFile(uintptr(fd), path), nil
	}
	switch {
	case stderrors.Is(err, syscall.ELOOP):
		return nil, errors.NewInvalidRequest("refusing to open symlink: " + path)
	case flag&(os.O_WRONLY|os.O_RDWR) == 0 && stderrors.Is(err, syscall.ENOENT):
		return nil, errors.NewNotFound(path)
	}
	return nil, err
}

// OpenNoFollowRead is OpenNoFollow for reading.
func OpenNoFollowRead(path string) (*os.File, error) {
	return OpenNoFollow(path, os.O_RDONLY, 0)
}
