// Package jobs runs scheduled background maintenance.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultReaperSchedule runs the reaper once a minute.
const DefaultReaperSchedule = "@every 1m"

// Reaper closes idle guest sessions.
type Reaper interface {
	ReapIdle(ctx context.Context) int
}

// GuestReaperJob closes guest sessions that have been idle longer than the
// session TTL, releasing their ephemeral voices.
type GuestReaperJob struct {
	reaper   Reaper
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewGuestReaperJob validates the schedule and registers the job. It does not
// start it.
func NewGuestReaperJob(r Reaper, schedule string, log zerolog.Logger) (*GuestReaperJob, error) {
	if schedule == "" {
		schedule = DefaultReaperSchedule
	}
	j := &GuestReaperJob{
		reaper:   r,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  time.Minute,
		log:      log.With().Str("component", "guest_reaper").Logger(),
	}
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins the background schedule.
func (j *GuestReaperJob) Start() {
	j.cron.Start()
	j.log.Info().Str("schedule", j.schedule).Msg("started")
}

// Stop waits for a running pass to finish.
func (j *GuestReaperJob) Stop() {
	<-j.cron.Stop().Done()
	j.log.Info().Msg("stopped")
}

// RunOnce performs a single pass. Overlapping passes are skipped.
func (j *GuestReaperJob) RunOnce() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.log.Debug().Msg("previous pass still running, skipping")
		return
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if n := j.reaper.ReapIdle(ctx); n > 0 {
		j.log.Info().Int("closed", n).Msg("idle guest sessions closed")
	}
}
