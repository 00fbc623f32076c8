// Package registry keeps the ordered list of tracked URLs next to their snapshots.
//
// The record is a plain text file inside the snapshot directory, one URL per
// line in registration order, never containing duplicates.
package registry

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/snapshot"
)

// RecordName is the registry file name inside the snapshot directory.
const RecordName = ".registry"

// Registry is the persisted set of tracked URLs.
type Registry struct {
	store *snapshot.Store
	log   zerolog.Logger

	mu sync.Mutex
}

// ReconcileReport describes what Reconcile changed.
type ReconcileReport struct {
	Tracked        int      `json:"tracked"`
	OrphansRemoved []string `json:"orphans_removed"`
	MissingPruned  []string `json:"missing_pruned"`
}

// New returns a Registry stored alongside the snapshots in store.
func New(store *snapshot.Store, log zerolog.Logger) *Registry {
	return &Registry{
		store: store,
		log:   log.With().Str("component", "registry").Logger(),
	}
}

// Path returns the registry record path.
func (r *Registry) Path() string {
	return filepath.Join(r.store.Dir(), RecordName)
}

// ValidateURL checks that url can be stored as a registry line.
func ValidateURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return errors.NewInvalidRequest("url must not be empty")
	}
	if strings.ContainsAny(url, "\r\n\x00") {
		return errors.NewInvalidRequest("url must be a single line")
	}
	return nil
}

// URLs returns every URL in the record, whether or not its snapshot exists.
// A missing record yields an empty list. A malformed record yields REGISTRY_CORRUPT.
func (r *Registry) URLs() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

// List returns registered URLs whose snapshot exists, in registration order.
// A corrupt record degrades to an empty list.
func (r *Registry) List() ([]string, error) {
	urls, err := r.URLs()
	if err != nil {
		if errors.Is(err, errors.ErrRegistryCorrupt) {
			r.log.Warn().Err(err).Msg("registry unreadable, treating as empty")
			return []string{}, nil
		}
		return nil, err
	}

	tracked := make([]string, 0, len(urls))
	for _, u := range urls {
		ok, err := r.store.Exists(snapshot.Key(u))
		if err != nil {
			return nil, err
		}
		if ok {
			tracked = append(tracked, u)
		}
	}
	return tracked, nil
}

// Add appends url to the record if it is not already present.
func (r *Registry) Add(url string) error {
	if err := ValidateURL(url); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	urls, err := r.readLocked()
	if err != nil {
		if !errors.Is(err, errors.ErrRegistryCorrupt) {
			return err
		}
		r.log.Warn().Err(err).Msg("rewriting corrupt registry")
		urls = nil
	}
	for _, u := range urls {
		if u == url {
			return nil
		}
	}
	return r.writeLocked(append(urls, url))
}

// Remove drops url from the record and deletes its snapshot. Removing an
// unknown URL still attempts the snapshot deletion.
func (r *Registry) Remove(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls, err := r.readLocked()
	if err != nil && !errors.Is(err, errors.ErrRegistryCorrupt) {
		return err
	}

	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != url {
			kept = append(kept, u)
		}
	}
	if len(kept) != len(urls) {
		if err := r.writeLocked(kept); err != nil {
			return err
		}
	}

	return r.store.Remove(snapshot.Key(url))
}

// Reconcile deletes snapshots that no registered URL maps to and prunes
// registered URLs that have no snapshot. It never fetches.
func (r *Registry) Reconcile() (*ReconcileReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls, err := r.readLocked()
	if err != nil {
		if !errors.Is(err, errors.ErrRegistryCorrupt) {
			return nil, err
		}
		r.log.Warn().Err(err).Msg("registry unreadable, reconciling against an empty list")
		urls = nil
	}

	keys, err := r.store.ListKeys()
	if err != nil {
		return nil, err
	}
	stored := make(map[string]bool, len(keys))
	for _, k := range keys {
		stored[k] = true
	}

	report := &ReconcileReport{
		OrphansRemoved: []string{},
		MissingPruned:  []string{},
	}

	registered := make(map[string]bool, len(urls))
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		k := snapshot.Key(u)
		registered[k] = true
		if stored[k] {
			kept = append(kept, u)
		} else {
			report.MissingPruned = append(report.MissingPruned, u)
		}
	}

	for _, k := range keys {
		if registered[k] {
			continue
		}
		if err := r.store.Remove(k); err != nil {
			return nil, err
		}
		report.OrphansRemoved = append(report.OrphansRemoved, k)
	}

	if len(report.MissingPruned) > 0 {
		if err := r.writeLocked(kept); err != nil {
			return nil, err
		}
	}

	report.Tracked = len(kept)
	r.log.Info().
		Int("tracked", report.Tracked).
		Int("orphans", len(report.OrphansRemoved)).
		Int("pruned", len(report.MissingPruned)).
		Msg("reconciled")
	return report, nil
}

func (r *Registry) readLocked() ([]string, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, errors.NewIOFailure("read", r.Path(), err)
	}
	return parse(r.Path(), data)
}

func (r *Registry) writeLocked(urls []string) error {
	if err := r.store.Init(); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, u := range urls {
		buf.WriteString(u)
		buf.WriteByte('\n')
	}
	return snapshot.WriteFileAtomic(r.Path(), buf.Bytes())
}

// parse splits a record into URLs, dropping blank lines and repeats.
func parse(path string, data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, errors.NewRegistryCorrupt(path, "invalid UTF-8")
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, errors.NewRegistryCorrupt(path, "NUL byte in record")
	}

	lines := strings.Split(string(data), "\n")
	seen := make(map[string]bool, len(lines))
	urls := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || seen[line] {
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}
	return urls, nil
}
