// Package tracker fetches tracked URLs, compares them with their stored
// snapshots and classifies each outcome.
package tracker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hpungsan/sitediff/internal/diff"
	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/registry"
	"github.com/hpungsan/sitediff/internal/snapshot"
)

// Fetcher returns the current text of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, url string) (string, error)

// Fetch calls f.
func (f FetchFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// Tracker owns the snapshot store and registry for one process. Calls are
// serialized: at most one Track or TrackAll runs at a time.
type Tracker struct {
	store    *snapshot.Store
	registry *registry.Registry
	fetcher  Fetcher
	log      zerolog.Logger

	mu sync.Mutex
}

// New creates a Tracker.
func New(store *snapshot.Store, reg *registry.Registry, fetcher Fetcher, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:    store,
		registry: reg,
		fetcher:  fetcher,
		log:      log.With().Str("component", "tracker").Logger(),
	}
}

// Store returns the snapshot store.
func (t *Tracker) Store() *snapshot.Store { return t.store }

// Registry returns the URL registry.
func (t *Tracker) Registry() *registry.Registry { return t.registry }

// Track fetches url and classifies it against its stored snapshot.
// A fetch failure leaves the store and registry untouched.
func (t *Tracker) Track(ctx context.Context, url string) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.track(ctx, url)
}

// TrackAll tracks every registered URL sequentially, in registry order.
// Per-URL failures are recorded in the corresponding Result; only a failure
// to list the registry fails the batch.
func (t *Tracker) TrackAll(ctx context.Context) ([]Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	urls, err := t.registry.List()
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(urls))
	var changed, failed int
	for _, u := range urls {
		res, err := t.track(ctx, u)
		if err != nil {
			failed++
			t.log.Warn().Err(err).Str("url", u).Msg("track failed")
			results = append(results, Result{URL: u, Key: snapshot.Key(u), Err: err})
			continue
		}
		if res.IsChanged() {
			changed++
		}
		results = append(results, *res)
	}

	t.log.Info().
		Int("urls", len(urls)).
		Int("changed", changed).
		Int("failed", failed).
		Msg("batch complete")
	return results, nil
}

func (t *Tracker) track(ctx context.Context, url string) (*Result, error) {
	if err := registry.ValidateURL(url); err != nil {
		return nil, err
	}
	key := snapshot.Key(url)
	log := t.log.With().Str("url", url).Str("key", key).Logger()

	content, err := t.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, errors.NewFetchFailure(url, err)
	}

	if err := t.store.Init(); err != nil {
		return nil, err
	}

	exists, err := t.store.Exists(key)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := t.store.Write(key, content); err != nil {
			return nil, err
		}
		if err := t.registry.Add(url); err != nil {
			return nil, err
		}
		log.Info().Msg("initial capture")
		return &Result{URL: url, Key: key, Outcome: Created{}}, nil
	}

	baseline, err := t.store.Read(key)
	if err != nil {
		return nil, err
	}

	script := diff.Compute(baseline, content)
	if !script.HasChanges() {
		log.Debug().Msg("no differences")
		return &Result{URL: url, Key: key, Outcome: Unchanged{Script: script}}, nil
	}

	if err := t.store.Write(key, content); err != nil {
		return nil, err
	}
	added, removed := script.Counts()
	log.Info().Int("added", added).Int("removed", removed).Msg("content changed")

	return &Result{
		URL: url,
		Key: key,
		Outcome: Changed{
			Script:     script,
			PlainText:  diff.PlainText(script),
			MarkupText: diff.MarkupText(script),
		},
	}, nil
}
