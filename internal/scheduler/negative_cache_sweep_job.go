package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/cache"
)

// NegativeCacheSweepJob deletes expired negative-cache entries so a
// previously-unresolved alias is retried once its TTL has elapsed
// (§4.2 cleanup_expired_negative_cache). It runs on the scheduler's cron
// timer (hourly, as cmd/engine registers it) and is the only caller of
// the sweep: resolve calls and pipeline runs never sweep. Until a sweep
// runs, the resolver already ignores an expired entry on its own.
type NegativeCacheSweepJob struct {
	store *cache.Store
	log   zerolog.Logger
}

// NewNegativeCacheSweepJob builds a NegativeCacheSweepJob.
func NewNegativeCacheSweepJob(store *cache.Store, log zerolog.Logger) *NegativeCacheSweepJob {
	return &NegativeCacheSweepJob{store: store, log: log.With().Str("job", "negative_cache_sweep").Logger()}
}

func (j *NegativeCacheSweepJob) Name() string { return "negative_cache_sweep" }

func (j *NegativeCacheSweepJob) Run() error {
	removed, err := j.store.CleanupExpiredNegativeCache()
	if err != nil {
		return err
	}
	j.log.Info().Int64("removed", removed).Msg("negative cache swept")
	return nil
}
