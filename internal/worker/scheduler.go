package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// ErrLocked is returned when another process holds the scheduler lock
var ErrLocked = errors.New("another ingestor instance is already running")

// Job is one unit of scheduled work
type Job func(ctx context.Context) error

// Scheduler runs a job immediately and then again one interval after each
// run finishes. Runs never overlap.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	lock     *flock.Flock
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	runs    int
	lastErr error
	lastRun time.Time
}

// NewScheduler creates a scheduler; an empty lockPath disables the
// cross-process lock
func NewScheduler(name string, interval time.Duration, lockPath string, job Job, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger.Named("scheduler"),
	}
	if lockPath != "" {
		s.lock = flock.New(lockPath)
	}
	return s
}

// Name returns the worker name for identification
func (s *Scheduler) Name() string {
	return s.name
}

// Start acquires the lock and launches the run loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("%s is already running", s.name)
	}
	if s.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", s.name)
	}

	if err := s.acquire(); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("Scheduler started",
		zap.String("name", s.name),
		zap.Duration("interval", s.interval))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop, waits for an in-flight run and releases the lock
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.release()

	s.logger.Info("Scheduler stopped", zap.String("name", s.name))
}

// Done is closed when the loop has exited
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// RunOnce runs the job a single time under the lock
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	return s.execute(ctx)
}

// Stats reports the number of completed runs and the last outcome
func (s *Scheduler) Stats() (runs int, lastRun time.Time, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastRun, s.lastErr
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	_ = s.execute(ctx)

	// The timer is armed only after a run completes.
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Scheduler context cancelled", zap.String("name", s.name))
			return
		case <-timer.C:
			_ = s.execute(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context) error {
	start := time.Now()
	err := s.job(ctx)

	s.mu.Lock()
	s.runs++
	s.lastRun = start
	s.lastErr = err
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Scheduled run failed",
			zap.String("name", s.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	}
	return err
}

func (s *Scheduler) acquire() error {
	if s.lock == nil {
		return nil
	}
	if dir := filepath.Dir(s.lock.Path()); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (s *Scheduler) release() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("Failed to release scheduler lock", zap.Error(err))
	}
}
