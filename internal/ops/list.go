package ops

import (
	"github.com/hpungsan/sitediff/internal/db"
)

// ListItem is one tracked URL with its most recent check, if any.
type ListItem struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	LastCheck *db.Check `json:"last_check,omitempty"`
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items []ListItem `json:"items"`
	Count int        `json:"count"`
}

// List returns the tracked URLs in registration order.
func List(env *Env) (*ListOutput, error) {
	urls, err := env.Tracker.Registry().List()
	if err != nil {
		return nil, err
	}

	items := make([]ListItem, 0, len(urls))
	for _, u := range urls {
		item := ListItem{URL: u, Key: keyOf(u)}
		if env.DB != nil {
			checks, _, err := db.ListChecks(env.DB, db.ListFilter{URL: u, Limit: 1})
			if err != nil {
				return nil, err
			}
			if len(checks) > 0 {
				last := checks[0]
				// The list view only needs the summary.
				last.MarkupDiff = ""
				item.LastCheck = &last
			}
		}
		items = append(items, item)
	}

	return &ListOutput{Items: items, Count: len(items)}, nil
}
