package ops

import (
	"slices"

	"github.com/hpungsan/sitediff/internal/db"
	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/registry"
	"github.com/hpungsan/sitediff/internal/snapshot"
)

// RemoveInput contains parameters for the Remove operation.
type RemoveInput struct {
	URL         string // required
	KeepHistory bool
}

// RemoveOutput contains the result of the Remove operation.
type RemoveOutput struct {
	URL            string `json:"url"`
	Key            string `json:"key"`
	WasTracked     bool   `json:"was_tracked"`
	HistoryDeleted int    `json:"history_deleted"`
}

// Remove stops tracking a URL, deleting its snapshot and, unless KeepHistory
// is set, its check history. Removing an unknown URL succeeds, and so does
// removing from a corrupt registry (WasTracked is then false).
func Remove(env *Env, input RemoveInput) (*RemoveOutput, error) {
	if err := registry.ValidateURL(input.URL); err != nil {
		return nil, err
	}

	lock, err := env.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	reg := env.Tracker.Registry()
	urls, err := reg.URLs()
	switch {
	case errors.Is(err, errors.ErrRegistryCorrupt):
		// Registry.Remove leaves a corrupt record alone and still deletes the snapshot.
		env.Log.Warn().Err(err).Str("url", input.URL).Msg("registry unreadable, removing anyway")
	case err != nil:
		return nil, err
	}
	wasTracked := slices.Contains(urls, input.URL)

	if err := reg.Remove(input.URL); err != nil {
		return nil, err
	}

	out := &RemoveOutput{
		URL:        input.URL,
		Key:        keyOf(input.URL),
		WasTracked: wasTracked,
	}
	if !input.KeepHistory && env.DB != nil {
		n, err := db.DeleteChecksForURL(env.DB, input.URL)
		if err != nil {
			return nil, err
		}
		out.HistoryDeleted = n
	}
	return out, nil
}

func keyOf(url string) string {
	return snapshot.Key(url)
}
