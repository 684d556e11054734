// Package jobs runs the register's periodic housekeeping: expiring abandoned
// fragment buffers and stale webhook receipts.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-travel-register/internal/observability"
	"github.com/tbourn/go-travel-register/internal/repo"
)

// Job names, also used as the metrics label.
const (
	JobFragmentSweep = "fragment-sweep"
	JobReceiptPurge  = "receipt-purge"
)

// Sweeper expires fragment buffers older than its TTL.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// JobInfo describes a registered job for inspection.
type JobInfo struct {
	Name    string
	Every   time.Duration
	LastRun time.Time // zero if never run
	NextRun time.Time // zero if not scheduled
}

// Scheduler owns the gocron scheduler and the housekeeping tasks.
type Scheduler struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
	every     time.Duration

	db      *gorm.DB
	sweeper Sweeper
	clock   clock.Clock
}

// New registers the housekeeping jobs to run every interval. Nothing runs
// until Start.
func New(db *gorm.DB, sweeper Sweeper, clk clock.Clock, every time.Duration) (*Scheduler, error) {
	if every <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", every)
	}
	if clk == nil {
		clk = clock.WallClock
	}
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{
		scheduler: gs,
		jobs:      make(map[string]gocron.Job),
		every:     every,
		db:        db,
		sweeper:   sweeper,
		clock:     clk,
	}
	for name, fn := range map[string]func(context.Context) (int64, error){
		JobFragmentSweep: s.sweepFragments,
		JobReceiptPurge:  s.purgeReceipts,
	} {
		if err := s.add(name, fn); err != nil {
			_ = gs.Shutdown()
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, fn func(context.Context) (int64, error)) error {
	j, err := s.scheduler.NewJob(
		gocron.DurationJob(s.every),
		gocron.NewTask(s.run, name, fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", name, err)
	}
	s.jobs[name] = j
	return nil
}

// run executes one job, recording its outcome.
func (s *Scheduler) run(name string, fn func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("housekeeping failed")
		return
	}
	observability.SweptRows.WithLabelValues(name).Add(float64(n))
	if n > 0 {
		log.Info().Str("job", name).Int64("rows", n).Msg("housekeeping done")
	}
}

func (s *Scheduler) sweepFragments(ctx context.Context) (int64, error) {
	if s.sweeper == nil {
		return 0, nil
	}
	return s.sweeper.Sweep(ctx)
}

func (s *Scheduler) purgeReceipts(ctx context.Context) (int64, error) {
	return repo.PurgeReceipts(ctx, s.db, s.clock.Now())
}

// RunOnce runs every job synchronously and returns the rows each removed.
func (s *Scheduler) RunOnce(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 2)
	n, err := s.sweepFragments(ctx)
	if err != nil {
		return out, fmt.Errorf("%s: %w", JobFragmentSweep, err)
	}
	out[JobFragmentSweep] = n
	observability.SweptRows.WithLabelValues(JobFragmentSweep).Add(float64(n))

	n, err = s.purgeReceipts(ctx)
	if err != nil {
		return out, fmt.Errorf("%s: %w", JobReceiptPurge, err)
	}
	out[JobReceiptPurge] = n
	observability.SweptRows.WithLabelValues(JobReceiptPurge).Add(float64(n))
	return out, nil
}

// Jobs returns info about the registered jobs.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, j := range s.jobs {
		info := JobInfo{Name: name, Every: s.every}
		if lr, err := j.LastRun(); err == nil {
			info.LastRun = lr
		}
		if nr, err := j.NextRun(); err == nil {
			info.NextRun = nr
		}
		infos = append(infos, info)
	}
	return infos
}

// Start begins executing the jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Info().Int("jobs", len(s.jobs)).Dur("every", s.every).Msg("scheduler started")
}

// Stop shuts down the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
