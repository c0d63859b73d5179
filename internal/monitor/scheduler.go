// Package monitor runs the periodic background checks: strategy
// performance, account risk, alerts and housekeeping. Each job has its own
// ticker and goroutine, so a slow or failing job never holds up another.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	Clock  clockwork.Clock
	Logger *zap.Logger
	Jobs   []Job
	// Enabled gates every tick; nil means always on.
	Enabled func(ctx context.Context) bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// Start launches one goroutine per job. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg = &sync.WaitGroup{}
	for _, job := range s.Jobs {
		if job.Run == nil || job.Interval <= 0 {
			continue
		}
		ticker := s.clock().NewTicker(job.Interval)
		s.wg.Add(1)
		go s.loop(ctx, job, ticker, s.wg)
	}
	if s.Logger != nil {
		s.Logger.Info("monitoring started", zap.Int("jobs", len(s.Jobs)))
	}
}

// Stop stops the tickers and waits for in-flight runs to return. Runs that
// already started are not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, wg := s.cancel, s.wg
	s.cancel, s.wg = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	wg.Wait()
	if s.Logger != nil {
		s.Logger.Info("monitoring stopped")
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job, ticker clockwork.Ticker, wg *sync.WaitGroup) {
	defer wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			s.RunJob(context.WithoutCancel(ctx), job)
		}
	}
}

// RunJob runs job once, recovering a panic and logging an error.
func (s *Scheduler) RunJob(ctx context.Context, job Job) {
	defer func() {
		if p := recover(); p != nil && s.Logger != nil {
			s.Logger.Error("monitor job panicked", zap.String("job", job.Name), zap.Any("panic", p))
		}
	}()
	if s.Enabled != nil && !s.Enabled(ctx) {
		return
	}
	start := s.clock().Now()
	err := job.Run(ctx)
	if s.Logger == nil {
		return
	}
	if err != nil && ctx.Err() == nil {
		s.Logger.Warn("monitor job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	s.Logger.Debug("monitor job done", zap.String("job", job.Name), zap.Duration("took", s.clock().Since(start)))
}

func (s *Scheduler) clock() clockwork.Clock {
	if s.Clock == nil {
		return clockwork.NewRealClock()
	}
	return s.Clock
}
