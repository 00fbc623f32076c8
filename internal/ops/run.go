package ops

import (
	"context"

	"github.com/hpungsan/sitediff/internal/tracker"
)

// RunInput contains parameters for the Run operation.
type RunInput struct {
	Notify bool // mail changed results when a notifier is configured
	Digest bool // send one summary mail instead of one mail per change
}

// RunOutput contains the result of the Run operation.
type RunOutput struct {
	RunID       string           `json:"run_id"`
	Results     []tracker.Result `json:"results"`
	Created     int              `json:"created"`
	Changed     int              `json:"changed"`
	Unchanged   int              `json:"unchanged"`
	Failed      int              `json:"failed"`
	Notified    int              `json:"notified"`
	NotifyError string           `json:"notify_error,omitempty"`
}

// Run tracks every registered URL once. Per-URL failures are reported in
// Results; only a registry or lock failure fails the run.
func Run(ctx context.Context, env *Env, input RunInput) (*RunOutput, error) {
	lock, err := env.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	results, err := env.Tracker.TrackAll(ctx)
	if err != nil {
		return nil, err
	}

	runID := newID()
	for _, r := range results {
		env.recordCheck(runID, r)
	}

	out := &RunOutput{
		RunID:   runID,
		Results: results,
	}
	out.Created, out.Changed, out.Unchanged, out.Failed = countOutcomes(results)

	if input.Notify && env.Notifier != nil {
		if input.Digest {
			sent, err := env.Notifier.NotifyDigest(ctx, results)
			if sent {
				out.Notified = 1
			}
			if err != nil {
				out.NotifyError = err.Error()
			}
		} else {
			sent, err := env.Notifier.Notify(ctx, results)
			out.Notified = sent
			if err != nil {
				out.NotifyError = err.Error()
			}
		}
	}

	env.Log.Info().
		Str("run_id", runID).
		Int("changed", out.Changed).
		Int("failed", out.Failed).
		Int("notified", out.Notified).
		Msg("run complete")
	return out, nil
}
