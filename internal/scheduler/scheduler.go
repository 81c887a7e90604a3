package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"wpsync/internal/domain"
)

var (
	ErrQueueFull = errors.New("job queue is full")
	ErrStopped   = errors.New("scheduler stopped")
)

// Syncer runs a full pass over every registered content type.
type Syncer interface {
	SyncEverything(ctx context.Context) ([]*domain.SyncStats, error)
}

// Job is a unit of work run by the pool. Jobs with Retry set are
// re-scheduled with backoff when they fail with a retryable error.
type Job struct {
	Name  string
	Run   func(ctx context.Context) error
	Retry bool

	attempt int
}

type Config struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JobTimeout     time.Duration
	// Interval between full syncs. Zero disables the periodic pass.
	Interval time.Duration
}

type Scheduler struct {
	cfg    Config
	syncer Syncer
	logger *slog.Logger

	queue   chan Job
	stopped chan struct{}
	once    sync.Once

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func New(cfg Config, syncer Syncer, logger *slog.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	return &Scheduler{
		cfg:     cfg,
		syncer:  syncer,
		logger:  logger.With("component", "scheduler"),
		queue:   make(chan Job, cfg.QueueSize),
		stopped: make(chan struct{}),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// ScheduleNow enqueues job without blocking.
func (s *Scheduler) ScheduleNow(job Job) error {
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}

	select {
	case s.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// ScheduleAfter enqueues job once delay has elapsed. Pending timers are
// dropped when the scheduler stops.
func (s *Scheduler) ScheduleAfter(delay time.Duration, job Job) error {
	if delay <= 0 {
		return s.ScheduleNow(job)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		if err := s.ScheduleNow(job); err != nil {
			s.logger.Error("failed to enqueue delayed job", "job", job.Name, "error", err)
		}
	})
	s.timers[t] = struct{}{}
	return nil
}

// Run starts the workers and the periodic full sync, blocking until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"workers", s.cfg.Workers,
		"interval", s.cfg.Interval,
	)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id)
		}(i)
	}

	var tick <-chan time.Time
	if s.cfg.Interval > 0 && s.syncer != nil {
		s.enqueueFullSync()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.stop()
			wg.Wait()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-tick:
			s.enqueueFullSync()
		}
	}
}

func (s *Scheduler) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.stopped)
		for t := range s.timers {
			t.Stop()
		}
		s.timers = make(map[*time.Timer]struct{})
		s.mu.Unlock()
	})
}

func (s *Scheduler) enqueueFullSync() {
	job := Job{
		Name: "sync_everything",
		Run: func(ctx context.Context) error {
			_, err := s.syncer.SyncEverything(ctx)
			return err
		},
	}
	if err := s.ScheduleNow(job); err != nil {
		s.logger.Warn("failed to enqueue full sync", "error", err)
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.execute(ctx, id, job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, workerID int, job Job) {
	jobCtx := ctx
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(jobCtx)
	if err == nil {
		s.logger.Debug("job completed",
			"worker_id", workerID,
			"job", job.Name,
			"duration", time.Since(start),
		)
		return
	}

	if ctx.Err() != nil {
		return
	}

	if !job.Retry || !domain.IsRetryable(err) || job.attempt >= s.cfg.MaxRetries {
		s.logger.Error("job failed",
			"worker_id", workerID,
			"job", job.Name,
			"attempt", job.attempt+1,
			"error", err,
		)
		return
	}

	job.attempt++
	backoff := s.backoff(job.attempt)
	s.logger.Warn("job failed, retrying",
		"worker_id", workerID,
		"job", job.Name,
		"attempt", job.attempt,
		"backoff", backoff,
		"error", err,
	)

	if err := s.ScheduleAfter(backoff, job); err != nil {
		s.logger.Error("failed to schedule retry", "job", job.Name, "error", err)
	}
}

func (s *Scheduler) backoff(attempt int) time.Duration {
	backoff := s.cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	if backoff > s.cfg.MaxBackoff {
		backoff = s.cfg.MaxBackoff
	}
	return backoff
}
