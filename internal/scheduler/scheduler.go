package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"signal-engine/internal/monitor"
	"signal-engine/pkg/i18n"
)

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (Report, error)
}

type jobState struct {
	Job
	running atomic.Bool
}

// Scheduler runs each job on its own ticker. A job never overlaps itself:
// a tick that finds the previous run still active is skipped.
type Scheduler struct {
	jobs    []*jobState
	metrics *monitor.Metrics
	log     zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. Jobs run once at start in the order given.
func New(metrics *monitor.Metrics, log zerolog.Logger, jobs ...Job) *Scheduler {
	s := &Scheduler{metrics: metrics, log: log.With().Str("component", "scheduler").Logger()}
	for _, j := range jobs {
		s.jobs = append(s.jobs, &jobState{Job: j})
	}
	return s
}

// Start runs every job once, in order, then starts the tickers. It
// returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, j := range s.jobs {
			if ctx.Err() != nil {
				return
			}
			s.trigger(ctx, j)
		}
		for _, j := range s.jobs {
			if j.Interval <= 0 {
				continue
			}
			s.wg.Add(1)
			go s.loop(ctx, j)
		}
	}()
}

// Stop cancels the tickers and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Trigger runs the named job now unless it is already running. It
// reports whether the job ran.
func (s *Scheduler) Trigger(ctx context.Context, name string) bool {
	for _, j := range s.jobs {
		if j.Name == name {
			return s.trigger(ctx, j)
		}
	}
	return false
}

func (s *Scheduler) loop(ctx context.Context, j *jobState) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, j)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, j *jobState) bool {
	if !j.running.CompareAndSwap(false, true) {
		s.log.Warn().Str("job", j.Name).Msgf(i18n.M().JobSkipped, j.Name)
		return false
	}
	defer j.running.Store(false)

	start := time.Now()
	report, err := safeRun(ctx, j.Job)
	elapsed := time.Since(start)
	s.metrics.ObserveJob(j.Name, elapsed, report.Succeeded, report.Failed)

	ev := s.log.Info()
	if err != nil || report.Failed > 0 {
		ev = s.log.Warn().Err(err).AnErr("items", report.Err())
	}
	ev.Str("job", j.Name).Dur("elapsed", elapsed).
		Int("total", report.Total).Int("succeeded", report.Succeeded).Int("failed", report.Failed).
		Msg("job finished")
	return true
}

func safeRun(ctx context.Context, j Job) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
		}
	}()
	return j.Run(ctx)
}
