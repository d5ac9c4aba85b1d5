package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/cache"
)

// FormatLogRollupJob aggregates the append-only format_log table into
// per-(api_source, format_type) success ratios and logs them as
// structured observability (§4.4 "Format observability": "the core
// does not reorder variants based on these stats — the hook exists,
// the optimization does not"). It never mutates format_log; the table
// stays append-only per §9 Design Notes ("Arena + index").
type FormatLogRollupJob struct {
	store *cache.Store
	log   zerolog.Logger
}

// NewFormatLogRollupJob builds a FormatLogRollupJob.
func NewFormatLogRollupJob(store *cache.Store, log zerolog.Logger) *FormatLogRollupJob {
	return &FormatLogRollupJob{store: store, log: log.With().Str("job", "format_log_rollup").Logger()}
}

func (j *FormatLogRollupJob) Name() string { return "format_log_rollup" }

func (j *FormatLogRollupJob) Run() error {
	stats, err := j.store.GetFormatStats()
	if err != nil {
		return err
	}
	for _, st := range stats {
		j.log.Info().Str("api_source", st.APISource).Str("format_type", string(st.FormatType)).
			Int("attempts", st.Attempts).Int("successes", st.Successes).
			Float64("success_ratio", st.SuccessRatio).Msg("format log rollup")
	}
	return nil
}
