package ops

import (
	stderrors "errors"

	"github.com/hpungsan/sitediff/internal/db"
	"github.com/hpungsan/sitediff/internal/errors"
)

var errNoHistory = stderrors.New("history database is not open")

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	URL    string // optional filter
	Limit  int    // default: 20, max: 100
	Offset int
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Items      []db.Check `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// History lists recorded checks newest first.
func History(env *Env, input HistoryInput) (*HistoryOutput, error) {
	if env.DB == nil {
		return nil, errors.NewInternal(errNoHistory)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	offset := max(input.Offset, 0)

	checks, total, err := db.ListChecks(env.DB, db.ListFilter{URL: input.URL, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	return &HistoryOutput{
		Items: checks,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(checks) < total,
			Total:   total,
		},
	}, nil
}

// GetCheck returns a single recorded check.
func GetCheck(env *Env, id string) (*db.Check, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if env.DB == nil {
		return nil, errors.NewInternal(errNoHistory)
	}
	return db.GetCheck(env.DB, id)
}
