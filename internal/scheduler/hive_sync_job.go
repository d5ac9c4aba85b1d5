package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/hive"
)

// HiveSyncJob pulls the full identity domain from the community store
// into the Local Cache (§4.2 sync_from, §4.3 sync_identity_domain). It
// is the one background worker §5's scheduling model permits alongside
// the pipeline's cooperative single thread.
type HiveSyncJob struct {
	store  *cache.Store
	remote *hive.Client
	log    zerolog.Logger
}

// NewHiveSyncJob builds a HiveSyncJob. A nil or disabled remote client
// makes Run a no-op so the job can stay registered even when no
// community store URL is configured.
func NewHiveSyncJob(store *cache.Store, remote *hive.Client, log zerolog.Logger) *HiveSyncJob {
	return &HiveSyncJob{store: store, remote: remote, log: log.With().Str("job", "hive_sync").Logger()}
}

func (j *HiveSyncJob) Name() string { return "hive_sync" }

func (j *HiveSyncJob) Run() error {
	if j.remote == nil || !j.remote.Enabled() {
		return nil
	}
	counts, err := j.store.SyncFrom(j.remote)
	if err != nil {
		return err
	}
	j.log.Info().Int("assets", counts.Assets).Int("listings", counts.Listings).
		Int("aliases", counts.Aliases).Msg("hive sync complete")
	return nil
}
