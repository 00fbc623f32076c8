package tracker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sitediff/internal/diff"
	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/fetch"
	"github.com/hpungsan/sitediff/internal/registry"
	"github.com/hpungsan/sitediff/internal/snapshot"
)

// pages is a fake web: url -> body. A missing entry fails the fetch.
type pages struct {
	mu    sync.Mutex
	body  map[string]string
	calls []string
}

func (p *pages) set(url, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body[url] = body
}

func (p *pages) drop(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.body, url)
}

func (p *pages) Fetch(_ context.Context, url string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, url)
	b, ok := p.body[url]
	if !ok {
		return "", stderrors.New("connection refused")
	}
	return b, nil
}

func newTestTracker(t *testing.T) (*Tracker, *pages) {
	t.Helper()
	store := snapshot.New(filepath.Join(t.TempDir(), "diff"))
	reg := registry.New(store, zerolog.Nop())
	p := &pages{body: map[string]string{}}
	return New(store, reg, p, zerolog.Nop()), p
}

func TestTrack_FirstCaptureCreates(t *testing.T) {
	tr, p := newTestTracker(t)
	p.set("https://a.example", "hello\n")

	res, err := tr.Track(context.Background(), "https://a.example")
	require.NoError(t, err)
	require.Equal(t, KindCreated, res.Outcome.Kind())
	require.True(t, res.IsCreated())
	require.False(t, res.IsChanged())
	require.Equal(t, snapshot.Key("https://a.example"), res.Key)
	require.Equal(t, "Writing initial "+res.Key+" file.", res.Message())

	got, err := tr.Store().Read(res.Key)
	require.NoError(t, err)
	require.Equal(t, "hello\n", got)

	urls, err := tr.Registry().List()
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example"}, urls)
}

func TestTrack_SecondCaptureUnchanged(t *testing.T) {
	tr, p := newTestTracker(t)
	p.set("https://a.example", "hello\n")

	_, err := tr.Track(context.Background(), "https://a.example")
	require.NoError(t, err)

	res, err := tr.Track(context.Background(), "https://a.example")
	require.NoError(t, err)
	require.Equal(t, KindUnchanged, res.Outcome.Kind())
	require.Equal(t, "No differences detected.", res.Message())
	require.Empty(t, res.MessageHTML())
	require.False(t, res.Script().HasChanges())

	urls, err := tr.Registry().List()
	require.NoError(t, err)
	require.Len(t, urls, 1)
}

func TestTrack_ChangeReplacesSnapshot(t *testing.T) {
	tr, p := newTestTracker(t)
	url := "https://a.example"
	p.set(url, "a\nb\nc")
	_, err := tr.Track(context.Background(), url)
	require.NoError(t, err)

	p.set(url, "a\nx\nc")
	res, err := tr.Track(context.Background(), url)
	require.NoError(t, err)
	require.True(t, res.IsChanged())

	changed, ok := res.Outcome.(Changed)
	require.True(t, ok)
	require.Equal(t, diff.Script{
		{Kind: diff.Unchanged, Text: "a\n"},
		{Kind: diff.Removed, Text: "b\n"},
		{Kind: diff.Added, Text: "x\n"},
		{Kind: diff.Unchanged, Text: "c"},
	}, changed.Script)
	require.Equal(t, "-b\n\n+x\n", changed.PlainText)
	require.Equal(t, changed.PlainText, res.Message())
	require.Contains(t, res.MessageHTML(), `<span style="color:red">b<br></span>`)
	require.Contains(t, res.MessageHTML(), `<span style="color:green">x<br></span>`)

	got, err := tr.Store().Read(res.Key)
	require.NoError(t, err)
	require.Equal(t, "a\nx\nc", got)

	// The new content is now the baseline.
	res, err = tr.Track(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, KindUnchanged, res.Outcome.Kind())
}

func TestTrack_FetchFailureLeavesStateUntouched(t *testing.T) {
	tr, p := newTestTracker(t)
	url := "https://a.example"

	_, err := tr.Track(context.Background(), url)
	require.True(t, errors.Is(err, errors.ErrFetchFailure), "got %v", err)

	exists, err := tr.Store().Exists(snapshot.Key(url))
	require.NoError(t, err)
	require.False(t, exists)
	urls, err := tr.Registry().List()
	require.NoError(t, err)
	require.Empty(t, urls)

	// An existing snapshot survives a later failure.
	p.set(url, "v1")
	_, err = tr.Track(context.Background(), url)
	require.NoError(t, err)
	p.drop(url)
	_, err = tr.Track(context.Background(), url)
	require.True(t, errors.Is(err, errors.ErrFetchFailure), "got %v", err)

	got, err := tr.Store().Read(snapshot.Key(url))
	require.NoError(t, err)
	require.Equal(t, "v1", got)
}

func TestTrack_OversizePageKeepsSnapshot(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f, err := fetch.New(fetch.Config{MaxBytes: 16})
	require.NoError(t, err)
	store := snapshot.New(filepath.Join(t.TempDir(), "diff"))
	tr := New(store, registry.New(store, zerolog.Nop()), f, zerolog.Nop())
	ctx := context.Background()

	body = "line 1\nline 2\n"
	res, err := tr.Track(ctx, srv.URL)
	require.NoError(t, err)
	require.True(t, res.IsCreated())

	body = "line 1\nline 2\nline 3 is past the limit\n"
	_, err = tr.Track(ctx, srv.URL)
	require.True(t, errors.Is(err, errors.ErrFetchFailure), "got %v", err)
	require.ErrorIs(t, err, fetch.ErrTooLarge)

	got, err := store.Read(snapshot.Key(srv.URL))
	require.NoError(t, err)
	require.Equal(t, "line 1\nline 2\n", got)
}

func TestTrack_RejectsInvalidURL(t *testing.T) {
	tr, p := newTestTracker(t)

	_, err := tr.Track(context.Background(), "")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
	require.Empty(t, p.calls)
}

func TestTrack_IdenticalEmptyContentIsUnchanged(t *testing.T) {
	tr, p := newTestTracker(t)
	p.set("https://empty.example", "")

	res, err := tr.Track(context.Background(), "https://empty.example")
	require.NoError(t, err)
	require.True(t, res.IsCreated())

	res, err = tr.Track(context.Background(), "https://empty.example")
	require.NoError(t, err)
	require.Equal(t, KindUnchanged, res.Outcome.Kind())
}

func TestTrackAll_IsolatesFailures(t *testing.T) {
	tr, p := newTestTracker(t)
	urls := []string{"https://one.example", "https://two.example", "https://three.example"}
	for _, u := range urls {
		p.set(u, "v1 of "+u)
		_, err := tr.Track(context.Background(), u)
		require.NoError(t, err)
	}

	p.set(urls[0], "v2 of one")
	p.drop(urls[1])
	p.calls = nil

	results, err := tr.TrackAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, urls, p.calls)

	require.Equal(t, urls[0], results[0].URL)
	require.True(t, results[0].IsChanged())

	require.Equal(t, urls[1], results[1].URL)
	require.Nil(t, results[1].Outcome)
	require.True(t, errors.Is(results[1].Err, errors.ErrFetchFailure))

	require.Equal(t, urls[2], results[2].URL)
	require.Equal(t, KindUnchanged, results[2].Outcome.Kind())

	got, err := tr.Store().Read(snapshot.Key(urls[1]))
	require.NoError(t, err)
	require.Equal(t, "v1 of "+urls[1], got)
}

func TestTrackAll_EmptyRegistry(t *testing.T) {
	tr, p := newTestTracker(t)

	results, err := tr.TrackAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, results)
	require.Empty(t, p.calls)
}

func TestTrackAll_SkipsURLsWithoutSnapshot(t *testing.T) {
	tr, p := newTestTracker(t)
	p.set("https://a.example", "a")
	p.set("https://b.example", "b")
	for _, u := range []string{"https://a.example", "https://b.example"} {
		_, err := tr.Track(context.Background(), u)
		require.NoError(t, err)
	}
	require.NoError(t, tr.Store().Remove(snapshot.Key("https://a.example")))

	results, err := tr.TrackAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "https://b.example", results[0].URL)
}

func TestFetchFunc(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.fetcher = FetchFunc(func(_ context.Context, url string) (string, error) {
		return "body of " + url, nil
	})

	res, err := tr.Track(context.Background(), "https://f.example")
	require.NoError(t, err)
	require.True(t, res.IsCreated())
}

func TestResult_MarshalJSON(t *testing.T) {
	r := Result{
		URL: "https://a.example",
		Key: snapshot.Key("https://a.example"),
		Outcome: Changed{
			Script:     diff.Script{{Kind: diff.Added, Text: "x\n"}},
			PlainText:  "+x\n",
			MarkupText: `<span style="color:green">x<br></span>`,
		},
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "changed", got["kind"])
	require.Equal(t, true, got["changed"])
	require.Equal(t, false, got["created"])
	require.Equal(t, "+x\n", got["message"])
	require.NotContains(t, got, "error")

	failed := Result{URL: "https://b.example", Err: errors.NewFetchFailure("https://b.example", stderrors.New("boom"))}
	data, err = json.Marshal(failed)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	errObj, ok := got["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "FETCH_FAILURE", errObj["code"])
}

func TestRunLock_Exclusive(t *testing.T) {
	dir := t.TempDir()

	l1, err := AcquireRunLock(dir, time.Hour)
	require.NoError(t, err)

	_, err = AcquireRunLock(dir, time.Hour)
	require.True(t, errors.Is(err, errors.ErrLocked), "got %v", err)
	sErr, ok := errors.As(err)
	require.True(t, ok)
	require.Contains(t, sErr.Details["holder"], "pid")

	require.NoError(t, l1.Release())
	require.NoError(t, l1.Release())

	l2, err := AcquireRunLock(dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestRunLock_BreaksStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockName)
	require.NoError(t, os.WriteFile(path, []byte("pid 1 at 2000-01-01T00:00:00Z\n"), 0o600))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	l, err := AcquireRunLock(dir, time.Hour)
	require.NoError(t, err)
	defer l.Release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "pid ")
	require.NotContains(t, string(data), "2000-01-01")
}

func writeOldLock(t *testing.T, path, holder string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(holder+"\n"), 0o600))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestRunLock_BreakKeepsLockTakenSinceStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockName)
	writeOldLock(t, path, "pid 1", 3*time.Hour)
	seen, err := os.Stat(path)
	require.NoError(t, err)

	// Another process breaks the stale lock and takes a fresh one before
	// this breaker gets to act on its stat.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, []byte("pid 2\n"), 0o600))

	broken, err := breakStale(path, seen, time.Hour)
	require.NoError(t, err)
	require.False(t, broken)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "pid 2\n", string(data))
	_, err = os.Stat(path + ".break")
	require.True(t, os.IsNotExist(err), "guard left behind: %v", err)
}

func TestRunLock_ConcurrentBreakersOneWinner(t *testing.T) {
	dir := t.TempDir()
	writeOldLock(t, filepath.Join(dir, LockName), "pid 1", 3*time.Hour)

	const n = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		held  []*RunLock
		other []error
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, err := AcquireRunLock(dir, time.Hour)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				held = append(held, l)
			case !errors.Is(err, errors.ErrLocked):
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	require.Len(t, held, 1)
	require.NoError(t, held[0].Release())
}

func TestRunLock_BusyBreakGuardReportsLocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockName)
	writeOldLock(t, path, "pid 1", 3*time.Hour)
	require.NoError(t, os.WriteFile(path+".break", nil, 0o600))

	_, err := AcquireRunLock(dir, time.Hour)
	require.True(t, errors.Is(err, errors.ErrLocked), "got %v", err)
	_, err = os.Stat(path)
	require.NoError(t, err, "stale lock must survive while another breaker holds the guard")
}

func TestRunLock_ClearsAbandonedBreakGuard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockName)
	writeOldLock(t, path, "pid 1", 3*time.Hour)
	writeOldLock(t, path+".break", "", 3*time.Hour)

	_, err := AcquireRunLock(dir, time.Hour)
	require.True(t, errors.Is(err, errors.ErrLocked), "got %v", err)

	l, err := AcquireRunLock(dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestRunLock_ZeroStaleNeverBreaks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockName)
	require.NoError(t, os.WriteFile(path, []byte("pid 1\n"), 0o600))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	_, err := AcquireRunLock(dir, 0)
	require.True(t, errors.Is(err, errors.ErrLocked), "got %v", err)
}

func TestRunLock_NotAKey(t *testing.T) {
	require.False(t, snapshot.IsKey(LockName))
}
