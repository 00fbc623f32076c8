package tracker

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/sitediff/internal/errors"
)

// LockName is the run lock file name inside the snapshot directory.
const LockName = ".lock"

// RunLock is an exclusive cross-process lock on a snapshot directory.
type RunLock struct {
	path string
}

// AcquireRunLock creates the lock file in dir. If another holder owns it,
// LOCKED is returned, unless the lock is older than staleAfter, in which case
// it is broken and taken over. A zero staleAfter never breaks a lock.
func AcquireRunLock(dir string, staleAfter time.Duration) (*RunLock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.NewIOFailure("mkdir", dir, err)
	}
	path := filepath.Join(dir, LockName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := fmt.Fprintf(f, "pid %d at %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, errors.NewIOFailure("write", path, stderrors.Join(werr, cerr))
			}
			return &RunLock{path: path}, nil
		}
		if !stderrors.Is(err, os.ErrExist) {
			return nil, errors.NewIOFailure("create", path, err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			if stderrors.Is(statErr, os.ErrNotExist) {
				continue // released between open and stat
			}
			return nil, errors.NewIOFailure("stat", path, statErr)
		}
		if staleAfter > 0 && time.Since(info.ModTime()) > staleAfter {
			broken, err := breakStale(path, info, staleAfter)
			if err != nil {
				return nil, err
			}
			if broken {
				continue
			}
		}
		return nil, errors.NewLocked(lockHolder(path))
	}
	return nil, errors.NewLocked(lockHolder(path))
}

// breakStale removes the lock at path only if it is still the stale file
// described by seen. Breakers are serialized by a sibling guard file, so a
// breaker acting on an old stat cannot remove a lock another process has
// just taken. A busy guard reports false and the caller sees LOCKED.
func breakStale(path string, seen os.FileInfo, staleAfter time.Duration) (bool, error) {
	guard := path + ".break"
	g, err := os.OpenFile(guard, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if !stderrors.Is(err, os.ErrExist) {
			return false, errors.NewIOFailure("create", guard, err)
		}
		// The guard is held for one stat and one remove; an old one was left
		// by a process that died mid-break.
		if gi, serr := os.Stat(guard); serr == nil && time.Since(gi.ModTime()) > staleAfter {
			_ = os.Remove(guard)
		}
		return false, nil
	}
	_ = g.Close()
	defer os.Remove(guard)

	cur, err := os.Stat(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, errors.NewIOFailure("stat", path, err)
	}
	if !os.SameFile(seen, cur) || time.Since(cur.ModTime()) <= staleAfter {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return false, errors.NewIOFailure("remove", path, err)
	}
	return true, nil
}

// Release removes the lock file. Releasing twice is a no-op.
func (l *RunLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""
	if err := os.Remove(path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.NewIOFailure("remove", path, err)
	}
	return nil
}

func lockHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	holder := strings.TrimSpace(string(data))
	if holder == "" {
		return "unknown"
	}
	return holder
}
