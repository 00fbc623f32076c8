package registry

import (
	"os"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/snapshot"
)

func newTestRegistry(t *testing.T) (*Registry, *snapshot.Store) {
	t.Helper()
	store := snapshot.New(t.TempDir())
	return New(store, zerolog.Nop()), store
}

// track writes a snapshot and registers the URL, the way a first fetch does.
func track(t *testing.T, r *Registry, s *snapshot.Store, url string) {
	t.Helper()
	require.NoError(t, s.Write(snapshot.Key(url), "content of "+url))
	require.NoError(t, r.Add(url))
}

func TestList_MissingRecord(t *testing.T) {
	r, _ := newTestRegistry(t)

	urls, err := r.List()
	require.NoError(t, err)
	require.Empty(t, urls)
}

func TestAdd_PreservesOrderWithoutDuplicates(t *testing.T) {
	r, s := newTestRegistry(t)

	track(t, r, s, "https://b.example")
	track(t, r, s, "https://a.example")
	require.NoError(t, r.Add("https://b.example"))

	urls, err := r.List()
	require.NoError(t, err)
	require.Equal(t, []string{"https://b.example", "https://a.example"}, urls)

	raw, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	require.Equal(t, "https://b.example\nhttps://a.example\n", string(raw))
}

func TestAdd_RejectsMultiline(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.Add("https://a.example\nhttps://b.example")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	err = r.Add("   ")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestList_FiltersURLsWithoutSnapshot(t *testing.T) {
	r, s := newTestRegistry(t)

	track(t, r, s, "https://kept.example")
	require.NoError(t, r.Add("https://never-written.example"))

	urls, err := r.List()
	require.NoError(t, err)
	require.Equal(t, []string{"https://kept.example"}, urls)

	all, err := r.URLs()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestList_CorruptRecordDegradesToEmpty(t *testing.T) {
	r, s := newTestRegistry(t)
	require.NoError(t, s.Init())
	require.NoError(t, os.WriteFile(r.Path(), []byte{0xff, 0xfe, 'x', '\n'}, 0600))

	_, err := r.URLs()
	require.True(t, errors.Is(err, errors.ErrRegistryCorrupt), "got %v", err)

	urls, err := r.List()
	require.NoError(t, err)
	require.Empty(t, urls)
}

func TestList_UnreadableRecord(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits not enforced")
	}
	r, s := newTestRegistry(t)
	track(t, r, s, "https://a.example")
	require.NoError(t, os.Chmod(r.Path(), 0000))
	t.Cleanup(func() { _ = os.Chmod(r.Path(), 0600) })

	_, err := r.List()
	require.True(t, errors.Is(err, errors.ErrIOFailure), "got %v", err)
}

func TestRemove_CleansUpFully(t *testing.T) {
	r, s := newTestRegistry(t)
	track(t, r, s, "https://a.example")
	track(t, r, s, "https://b.example")

	require.NoError(t, r.Remove("https://a.example"))

	urls, err := r.List()
	require.NoError(t, err)
	require.Equal(t, []string{"https://b.example"}, urls)

	ok, err := s.Exists(snapshot.Key("https://a.example"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemove_UnknownURLStillDeletesSnapshot(t *testing.T) {
	r, s := newTestRegistry(t)
	key := snapshot.Key("https://stray.example")
	require.NoError(t, s.Write(key, "left behind"))

	require.NoError(t, r.Remove("https://stray.example"))
	require.NoError(t, r.Remove("https://stray.example"))

	ok, err := s.Exists(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReconcile_RestoresInvariant(t *testing.T) {
	r, s := newTestRegistry(t)
	track(t, r, s, "https://a.example")
	track(t, r, s, "https://b.example")

	// Orphan snapshot with no registry entry
	orphan := snapshot.Key("https://orphan.example")
	require.NoError(t, s.Write(orphan, "orphan"))

	// Registry entry whose snapshot vanished
	require.NoError(t, s.Remove(snapshot.Key("https://b.example")))

	report, err := r.Reconcile()
	require.NoError(t, err)
	require.Equal(t, []string{orphan}, report.OrphansRemoved)
	require.Equal(t, []string{"https://b.example"}, report.MissingPruned)
	require.Equal(t, 1, report.Tracked)

	listed, err := r.List()
	require.NoError(t, err)
	keys, err := s.ListKeys()
	require.NoError(t, err)

	// Every listed URL has a snapshot, every snapshot maps to a listed URL
	listedKeys := make([]string, 0, len(listed))
	for _, u := range listed {
		ok, err := s.Exists(snapshot.Key(u))
		require.NoError(t, err)
		require.True(t, ok)
		listedKeys = append(listedKeys, snapshot.Key(u))
	}
	require.ElementsMatch(t, listedKeys, keys)

	all, err := r.URLs()
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example"}, all)
}

func TestReconcile_NothingToDo(t *testing.T) {
	r, s := newTestRegistry(t)
	track(t, r, s, "https://a.example")

	report, err := r.Reconcile()
	require.NoError(t, err)
	require.Empty(t, report.OrphansRemoved)
	require.Empty(t, report.MissingPruned)
	require.Equal(t, 1, report.Tracked)
}

func TestParse_SkipsBlankAndDuplicateLines(t *testing.T) {
	urls, err := parse("rec", []byte("a\r\n\nb\na\n  \n"))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, urls)
}
