//go:build windows

package snapshot

import (
	"os"

	"github.com/hpungsan/sitediff/internal/errors"
)

// OpenNoFollow opens path with flag. Windows has no O_NOFOLLOW, so callers
// reject symlinks before getting here.
func OpenNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil && flag&(os.O_WRONLY|os.O_RDWR) == 0 && os.IsNotExist(err) {
		return nil, errors.NewNotFound(path)
	}
	return f, err
}

// OpenNoFollowRead is OpenNoFollow for reading.
func OpenNoFollowRead(path string) (*os.File, error) {
	return OpenNoFollow(path, os.O_RDONLY, 0)
}
