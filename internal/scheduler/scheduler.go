// Package scheduler runs the recurring background jobs: the nightly
// forecast pipeline, store maintenance, and offsite backups.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/utils"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus describes one registered job for the system status surface.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[cron.EntryID]entryMeta
	started bool
}

type entryMeta struct {
	name     string
	schedule string
}

// New creates a scheduler in the given location. A nil location means UTC.
// Schedules use the six-field cron syntax with a leading seconds column.
func New(loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		log:     log.With().Str("component", "scheduler").Logger(),
		entries: make(map[cron.EntryID]entryMeta),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// Running reports whether the scheduler has been started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 15 2 * * *"       - 02:15 daily
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("Running job")
		timer := utils.NewTimer("job:"+job.Name(), s.log)

		runErr := job.Run()
		duration := timer.Stop()

		if runErr != nil {
			s.log.Error().
				Err(runErr).
				Str("job", job.Name()).
				Dur("duration", duration).
				Msg("Job failed")
		} else {
			s.log.Debug().
				Str("job", job.Name()).
				Dur("duration", duration).
				Msg("Job completed")
		}
	})

	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[id] = entryMeta{name: job.Name(), schedule: schedule}
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}

// Status returns the registered jobs with their next run times, sorted by
// name. Next run times are zero until the scheduler starts.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	meta := make(map[cron.EntryID]entryMeta, len(s.entries))
	for id, m := range s.entries {
		meta[id] = m
	}
	s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(meta))
	for _, entry := range s.cron.Entries() {
		m, ok := meta[entry.ID]
		if !ok {
			continue
		}

		statuses = append(statuses, JobStatus{
			Name:     m.name,
			Schedule: m.schedule,
			NextRun:  entry.Next,
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})

	return statuses
}

// DailySpec builds the cron spec for a daily run at the given hour and
// minute in the scheduler's location.
func DailySpec(hour, minute int) string {
	return fmt.Sprintf("0 %d %d * * *", minute, hour)
}
