package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name string
	runs int
	err  error
}

func (f *fakeJob) Name() string { return f.name }
func (f *fakeJob) Run() error {
	f.runs++
	return f.err
}

func TestAddJobRunsOnScheduleAndRunNowRunsImmediately(t *testing.T) {
	s := New(zerolog.Nop())
	job := &fakeJob{name: "test-job"}

	require.NoError(t, s.RunNow(job))
	require.Equal(t, 1, job.runs)

	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return job.runs >= 2 }, 2*time.Second, 50*time.Millisecond)
}

func TestAddJobRejectsMalformedSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &fakeJob{name: "bad"})
	require.Error(t, err)
}

func TestRunNowPropagatesJobFailure(t *testing.T) {
	s := New(zerolog.Nop())
	job := &fakeJob{name: "failing", err: errors.New("boom")}
	require.Error(t, s.RunNow(job))
}
