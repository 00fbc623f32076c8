package db

import (
	"database/sql"

	"github.com/hpungsan/sitediff/internal/errors"
)

// Check is one recorded observation of a tracked URL.
type Check struct {
	ID           string `json:"id"`
	RunID        string `json:"run_id,omitempty"`
	URL          string `json:"url"`
	Key          string `json:"key"`
	Kind         string `json:"kind,omitempty"`
	Added        int    `json:"added"`
	Removed      int    `json:"removed"`
	PlainDiff    string `json:"plain_diff,omitempty"`
	MarkupDiff   string `json:"markup_diff,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CheckedAt    int64  `json:"checked_at"`
}

// Failed reports whether the check recorded an error instead of an outcome.
func (c *Check) Failed() bool {
	return c.ErrorCode != ""
}

// DefaultListLimit and MaxListLimit bound ListChecks.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListFilter narrows ListChecks. Empty URL means every URL.
type ListFilter struct {
	URL    string
	Limit  int
	Offset int
}

// InsertCheck stores a check.
func InsertCheck(db *sql.DB, c *Check) error {
	query := `
		INSERT INTO checks (
			id, run_id, url, snapshot_key, kind, added, removed,
			plain_diff, markup_diff, error_code, error_message, checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		c.ID, toNullString(c.RunID), c.URL, c.Key, toNullString(c.Kind), c.Added, c.Removed,
		toNullString(c.PlainDiff), toNullString(c.MarkupDiff),
		toNullString(c.ErrorCode), toNullString(c.ErrorMessage), c.CheckedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetCheck retrieves a check by its ULID.
func GetCheck(db *sql.DB, id string) (*Check, error) {
	row := db.QueryRow(selectChecks+` WHERE id = ?`, id)
	c, err := scanCheck(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// ListChecks returns checks newest first, plus the total matching the filter.
func ListChecks(db *sql.DB, f ListFilter) ([]Check, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []any
	if f.URL != "" {
		where = ` WHERE url = ?`
		args = append(args, f.URL)
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM checks`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	// ULIDs sort by time, so id breaks ties between checks in the same millisecond.
	query := selectChecks + where + ` ORDER BY checked_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	checks := make([]Check, 0)
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		checks = append(checks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return checks, total, nil
}

// DeleteChecksForURL removes the history of url and returns how many rows went.
func DeleteChecksForURL(db *sql.DB, url string) (int, error) {
	res, err := db.Exec(`DELETE FROM checks WHERE url = ?`, url)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

const selectChecks = `
	SELECT id, run_id, url, snapshot_key, kind, added, removed,
		plain_diff, markup_diff, error_code, error_message, checked_at
	FROM checks`

type scanner interface {
	Scan(dest ...any) error
}

func scanCheck(s scanner) (*Check, error) {
	var c Check
	var runID, kind, plain, markup, errCode, errMsg sql.NullString
	err := s.Scan(
		&c.ID, &runID, &c.URL, &c.Key, &kind, &c.Added, &c.Removed,
		&plain, &markup, &errCode, &errMsg, &c.CheckedAt,
	)
	if err != nil {
		return nil, err
	}
	c.RunID = runID.String
	c.Kind = kind.String
	c.PlainDiff = plain.String
	c.MarkupDiff = markup.String
	c.ErrorCode = errCode.String
	c.ErrorMessage = errMsg.String
	return &c, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
