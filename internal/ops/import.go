package ops

import (
	"context"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/registry"
	"github.com/hpungsan/sitediff/internal/snapshot"
	"github.com/hpungsan/sitediff/internal/tracker"
)

// MaxWatchlistBytes caps the size of an imported watchlist file.
const MaxWatchlistBytes = 1 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string // required
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one URL that could not be imported.
type ImportError struct {
	URL     string `json:"url"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import reads a YAML watchlist and tracks every URL not already tracked.
// Each new URL gets its initial capture; one URL failing does not stop the rest.
func Import(ctx context.Context, env *Env, input ImportInput) (*ImportOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, env.BaseDir, env.Config); err != nil {
		return nil, err
	}

	wl, err := readWatchlist(input.Path)
	if err != nil {
		return nil, err
	}

	lock, err := env.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	tracked, err := env.Tracker.Registry().List()
	if err != nil {
		return nil, err
	}

	out := &ImportOutput{Errors: []ImportError{}}
	seen := make(map[string]bool, len(wl.URLs))
	for _, u := range wl.URLs {
		if seen[u] || slices.Contains(tracked, u) {
			out.Skipped++
			continue
		}
		seen[u] = true

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := registry.ValidateURL(u); err != nil {
			out.Errors = append(out.Errors, importError(u, err))
			continue
		}

		res, err := env.Tracker.Track(ctx, u)
		if err != nil {
			env.recordCheck("", tracker.Result{URL: u, Key: keyOf(u), Err: err})
			out.Errors = append(out.Errors, importError(u, err))
			continue
		}
		env.recordCheck("", *res)
		out.Imported++
	}

	return out, nil
}

func readWatchlist(path string) (*Watchlist, error) {
	f, err := snapshot.OpenNoFollowRead(path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewIOFailure("open", path, err)
	}
	defer f.Close()

	var wl Watchlist
	if err := yaml.NewDecoder(io.LimitReader(f, MaxWatchlistBytes)).Decode(&wl); err != nil {
		if err == io.EOF {
			return &wl, nil
		}
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid watchlist: %v", err))
	}
	if wl.Version > WatchlistVersion {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported watchlist version %d", wl.Version))
	}
	return &wl, nil
}

func importError(url string, err error) ImportError {
	ie := ImportError{URL: url, Code: string(errors.ErrInternal), Message: err.Error()}
	if sErr, ok := errors.As(err); ok {
		ie.Code = string(sErr.Code)
		ie.Message = sErr.Message
	}
	return ie
}
