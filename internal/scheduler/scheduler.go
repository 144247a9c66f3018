// Package scheduler runs the periodic background jobs: the silent feed
// reload of all sessions and the idle-session sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "latinevents/internal/log"
	"latinevents/internal/refresh"
	"latinevents/internal/session"
)

// SweepSpec is how often idle sessions are expired.
const SweepSpec = "@every 1m"

// reloadTimeout bounds a single background reload.
const reloadTimeout = 2 * time.Minute

// Sessions is the part of the session registry the jobs drive.
type Sessions interface {
	ReloadAll(ctx context.Context, opts session.ReloadOptions) error
	Sweep() int
}

// Scheduler wraps a cron instance with the two jobs registered.
type Scheduler struct {
	cron     *cron.Cron
	sessions Sessions
	now      func() time.Time
}

// New registers the reload job under refreshSpec (standard five-field
// cron syntax or a descriptor such as "@hourly") and the sweep job.
func New(refreshSpec string, sessions Sessions, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s := &Scheduler{cron: c, sessions: sessions, now: time.Now}

	if _, err := c.AddFunc(refreshSpec, s.reload); err != nil {
		return nil, fmt.Errorf("scheduler: refresh spec %q: %w", refreshSpec, err)
	}
	if _, err := c.AddFunc(SweepSpec, s.sweep); err != nil {
		return nil, fmt.Errorf("scheduler: sweep spec: %w", err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("scheduler stop timed out; jobs still running")
	}
}

// NextReload returns the next scheduled reload, zero before Start.
func (s *Scheduler) NextReload() time.Time {
	for _, e := range s.cron.Entries() {
		if e.ID == 1 {
			return e.Next
		}
	}
	return time.Time{}
}

func (s *Scheduler) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	opts := session.ReloadOptions{CacheBust: refresh.CacheBustToken(s.now()), Silent: true}
	if err := s.sessions.ReloadAll(ctx, opts); err != nil {
		appLog.Error("scheduled reload failed", err)
	}
}

func (s *Scheduler) sweep() {
	s.sessions.Sweep()
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
