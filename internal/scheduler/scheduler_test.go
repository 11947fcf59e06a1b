package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name string
	err  error
	runs chan struct{}
}

func newFakeJob(name string, err error) *fakeJob {
	return &fakeJob{name: name, err: err, runs: make(chan struct{}, 16)}
}

func (j *fakeJob) Run() error {
	j.runs <- struct{}{}
	return j.err
}

func (j *fakeJob) Name() string { return j.name }

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := New(time.UTC, testLog())

	err := s.AddJob("not a cron spec", newFakeJob("bad", nil))
	assert.Error(t, err)
	assert.Empty(t, s.Status())
}

func TestRunNow(t *testing.T) {
	s := New(nil, testLog())

	ok := newFakeJob("ok", nil)
	require.NoError(t, s.RunNow(ok))
	assert.Len(t, ok.runs, 1)

	boom := newFakeJob("boom", errors.New("boom"))
	assert.Error(t, s.RunNow(boom))
}

func TestStatusListsJobsSortedByName(t *testing.T) {
	s := New(time.UTC, testLog())

	require.NoError(t, s.AddJob(DailySpec(2, 15), newFakeJob("nightly_forecast", nil)))
	require.NoError(t, s.AddJob(DailySpec(3, 15), newFakeJob("database_backup", nil)))

	assert.False(t, s.Running())

	s.Start()
	defer s.Stop()

	assert.True(t, s.Running())

	statuses := s.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, "database_backup", statuses[0].Name)
	assert.Equal(t, "0 15 3 * * *", statuses[0].Schedule)
	assert.Equal(t, "nightly_forecast", statuses[1].Name)
	assert.Equal(t, "0 15 2 * * *", statuses[1].Schedule)

	for _, st := range statuses {
		assert.False(t, st.NextRun.IsZero(), "next run should be set once started")
	}
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(time.UTC, testLog())

	job := newFakeJob("ticker", nil)
	require.NoError(t, s.AddJob("@every 100ms", job))

	s.Start()
	defer s.Stop()

	select {
	case <-job.runs:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled job did not run within 5s")
	}
}

func TestDailySpec(t *testing.T) {
	assert.Equal(t, "0 15 2 * * *", DailySpec(2, 15))
	assert.Equal(t, "0 0 0 * * *", DailySpec(0, 0))
}
