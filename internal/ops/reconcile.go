package ops

import (
	"github.com/hpungsan/sitediff/internal/registry"
)

// Reconcile brings the registry and the snapshot store back into agreement
// without fetching anything.
func Reconcile(env *Env) (*registry.ReconcileReport, error) {
	lock, err := env.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	return env.Tracker.Registry().Reconcile()
}
