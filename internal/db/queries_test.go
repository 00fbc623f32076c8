package db

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sitediff/internal/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndGetCheck(t *testing.T) {
	db := openTestDB(t)

	in := &Check{
		ID:         "01HZZZZZZZZZZZZZZZZZZZZZZ1",
		RunID:      "01HZZZZZZZZZZZZZZZZZZZZZR1",
		URL:        "https://a.example",
		Key:        "abc",
		Kind:       "changed",
		Added:      1,
		Removed:    2,
		PlainDiff:  "-b\n\n+x\n",
		MarkupDiff: `<span style="color:green">x<br></span>`,
		CheckedAt:  1700000000,
	}
	require.NoError(t, InsertCheck(db, in))

	got, err := GetCheck(db, in.ID)
	require.NoError(t, err)
	require.Equal(t, in, got)
	require.False(t, got.Failed())
}

func TestInsertCheck_FailureRow(t *testing.T) {
	db := openTestDB(t)

	in := &Check{
		ID:           "01HZZZZZZZZZZZZZZZZZZZZZZ2",
		URL:          "https://down.example",
		Key:          "def",
		ErrorCode:    "FETCH_FAILURE",
		ErrorMessage: "fetch https://down.example: http 503",
		CheckedAt:    1700000001,
	}
	require.NoError(t, InsertCheck(db, in))

	got, err := GetCheck(db, in.ID)
	require.NoError(t, err)
	require.True(t, got.Failed())
	require.Empty(t, got.Kind)
	require.Empty(t, got.RunID)
}

func TestGetCheck_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetCheck(db, "missing")
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestListChecks_NewestFirstAndFiltered(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		url := "https://a.example"
		if i%2 == 1 {
			url = "https://b.example"
		}
		require.NoError(t, InsertCheck(db, &Check{
			ID:        fmt.Sprintf("id-%d", i),
			URL:       url,
			Key:       "k",
			Kind:      "unchanged",
			CheckedAt: int64(1000 + i),
		}))
	}

	all, total, err := ListChecks(db, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, all, 5)
	require.Equal(t, "id-4", all[0].ID)
	require.Equal(t, "id-0", all[4].ID)

	onlyA, total, err := ListChecks(db, ListFilter{URL: "https://a.example"})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, []string{"id-4", "id-2", "id-0"}, ids(onlyA))

	page, total, err := ListChecks(db, ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Equal(t, []string{"id-3", "id-2"}, ids(page))
}

func TestListChecks_Empty(t *testing.T) {
	db := openTestDB(t)

	checks, total, err := ListChecks(db, ListFilter{URL: "https://none.example"})
	require.NoError(t, err)
	require.Zero(t, total)
	require.NotNil(t, checks)
	require.Empty(t, checks)
}

func TestListChecks_ClampsLimit(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < MaxListLimit+5; i++ {
		require.NoError(t, InsertCheck(db, &Check{
			ID: fmt.Sprintf("id-%03d", i), URL: "https://a.example", Key: "k", CheckedAt: int64(i),
		}))
	}

	checks, _, err := ListChecks(db, ListFilter{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, checks, MaxListLimit)

	checks, _, err = ListChecks(db, ListFilter{})
	require.NoError(t, err)
	require.Len(t, checks, DefaultListLimit)
}

func TestDeleteChecksForURL(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, InsertCheck(db, &Check{ID: "1", URL: "https://a.example", Key: "k", CheckedAt: 1}))
	require.NoError(t, InsertCheck(db, &Check{ID: "2", URL: "https://a.example", Key: "k", CheckedAt: 2}))
	require.NoError(t, InsertCheck(db, &Check{ID: "3", URL: "https://b.example", Key: "k", CheckedAt: 3}))

	n, err := DeleteChecksForURL(db, "https://a.example")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, total, err := ListChecks(db, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	n, err = DeleteChecksForURL(db, "https://a.example")
	require.NoError(t, err)
	require.Zero(t, n)
}

func ids(checks []Check) []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.ID
	}
	return out
}
