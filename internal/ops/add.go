package ops

import (
	"context"

	"github.com/hpungsan/sitediff/internal/registry"
	"github.com/hpungsan/sitediff/internal/tracker"
)

// AddInput contains parameters for the Add operation.
type AddInput struct {
	URL string // required
}

// AddOutput contains the result of the Add operation.
type AddOutput struct {
	Result  *tracker.Result `json:"result"`
	CheckID string          `json:"check_id,omitempty"`
}

// Add tracks a single URL: the first call captures it, later calls compare
// against the stored snapshot. A fetch failure is recorded in the history and
// returned.
func Add(ctx context.Context, env *Env, input AddInput) (*AddOutput, error) {
	if err := registry.ValidateURL(input.URL); err != nil {
		return nil, err
	}

	lock, err := env.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	res, err := env.Tracker.Track(ctx, input.URL)
	if err != nil {
		env.recordCheck("", tracker.Result{URL: input.URL, Key: keyOf(input.URL), Err: err})
		return nil, err
	}

	return &AddOutput{
		Result:  res,
		CheckID: env.recordCheck("", *res),
	}, nil
}
