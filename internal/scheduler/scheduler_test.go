package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"wpsync/internal/domain"
)

type countingSyncer struct {
	calls atomic.Int32
}

func (c *countingSyncer) SyncEverything(context.Context) ([]*domain.SyncStats, error) {
	c.calls.Add(1)
	return nil, nil
}

type SchedulerSuite struct {
	suite.Suite
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan error
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.cancel = nil
	s.done = nil
}

func (s *SchedulerSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
		s.ErrorIs(<-s.done, context.Canceled)
	}
}

func (s *SchedulerSuite) start(cfg Config, syncer Syncer) *Scheduler {
	sched := New(cfg, syncer, s.logger)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- sched.Run(ctx) }()
	return sched
}

func (s *SchedulerSuite) TestRun_FullSyncOnStartAndTick() {
	syncer := &countingSyncer{}
	s.start(Config{Workers: 1, Interval: 20 * time.Millisecond}, syncer)

	s.Eventually(func() bool { return syncer.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func (s *SchedulerSuite) TestRun_NoIntervalNoFullSync() {
	syncer := &countingSyncer{}
	sched := s.start(Config{Workers: 1}, syncer)

	var ran atomic.Bool
	s.Require().NoError(sched.ScheduleNow(Job{Name: "probe", Run: func(context.Context) error {
		ran.Store(true)
		return nil
	}}))

	s.Eventually(ran.Load, time.Second, 5*time.Millisecond)
	s.Equal(int32(0), syncer.calls.Load())
}

func (s *SchedulerSuite) TestScheduleAfter_RunsAfterDelay() {
	sched := s.start(Config{Workers: 2}, nil)

	ranAt := make(chan time.Time, 1)
	start := time.Now()
	s.Require().NoError(sched.ScheduleAfter(30*time.Millisecond, Job{Name: "delayed", Run: func(context.Context) error {
		ranAt <- time.Now()
		return nil
	}}))

	select {
	case at := <-ranAt:
		s.GreaterOrEqual(at.Sub(start), 30*time.Millisecond)
	case <-time.After(time.Second):
		s.Fail("delayed job never ran")
	}
}

func (s *SchedulerSuite) TestRetry_RetryableErrorUpToMax() {
	sched := s.start(Config{Workers: 1, MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, nil)

	var runs atomic.Int32
	s.Require().NoError(sched.ScheduleNow(Job{Name: "flaky", Retry: true, Run: func(context.Context) error {
		runs.Add(1)
		return &domain.TransportError{URL: "http://wp/posts", Err: errors.New("connection refused")}
	}}))

	s.Eventually(func() bool { return runs.Load() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Equal(int32(3), runs.Load())
}

func (s *SchedulerSuite) TestRetry_SucceedsOnSecondAttempt() {
	sched := s.start(Config{Workers: 1, MaxRetries: 5, InitialBackoff: time.Millisecond}, nil)

	var runs atomic.Int32
	s.Require().NoError(sched.ScheduleNow(Job{Name: "recovering", Retry: true, Run: func(context.Context) error {
		if runs.Add(1) == 1 {
			return &domain.APIResponseError{URL: "http://wp/posts", StatusCode: 503}
		}
		return nil
	}}))

	s.Eventually(func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Equal(int32(2), runs.Load())
}

func (s *SchedulerSuite) TestRetry_NotRetried() {
	sched := s.start(Config{Workers: 1, MaxRetries: 3, InitialBackoff: time.Millisecond}, nil)

	var clientErrRuns, noRetryRuns atomic.Int32
	s.Require().NoError(sched.ScheduleNow(Job{Name: "client-error", Retry: true, Run: func(context.Context) error {
		clientErrRuns.Add(1)
		return &domain.APIResponseError{URL: "http://wp/posts", StatusCode: 400}
	}}))
	s.Require().NoError(sched.ScheduleNow(Job{Name: "no-retry", Run: func(context.Context) error {
		noRetryRuns.Add(1)
		return &domain.TransportError{URL: "http://wp/posts", Err: errors.New("timeout")}
	}}))

	s.Eventually(func() bool { return clientErrRuns.Load() == 1 && noRetryRuns.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Equal(int32(1), clientErrRuns.Load())
	s.Equal(int32(1), noRetryRuns.Load())
}

func (s *SchedulerSuite) TestJobTimeout() {
	sched := s.start(Config{Workers: 1, JobTimeout: 10 * time.Millisecond}, nil)

	got := make(chan error, 1)
	s.Require().NoError(sched.ScheduleNow(Job{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	}}))

	select {
	case err := <-got:
		s.ErrorIs(err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		s.Fail("job context never expired")
	}
}

func TestScheduleNow_QueueFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	sched := New(Config{QueueSize: 1}, nil, logger)

	noop := Job{Name: "noop", Run: func(context.Context) error { return nil }}
	require.NoError(t, sched.ScheduleNow(noop))
	assert.ErrorIs(t, sched.ScheduleNow(noop), ErrQueueFull)
}

func TestSchedule_AfterStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	sched := New(Config{}, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sched.Run(ctx), context.Canceled)

	noop := Job{Name: "noop", Run: func(context.Context) error { return nil }}
	assert.ErrorIs(t, sched.ScheduleNow(noop), ErrStopped)
	assert.ErrorIs(t, sched.ScheduleAfter(time.Minute, noop), ErrStopped)
}

func TestBackoff(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	sched := New(Config{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}, nil, logger)

	assert.Equal(t, time.Second, sched.backoff(1))
	assert.Equal(t, 2*time.Second, sched.backoff(2))
	assert.Equal(t, 4*time.Second, sched.backoff(3))
	assert.Equal(t, 5*time.Second, sched.backoff(4))
	assert.Equal(t, 5*time.Second, sched.backoff(30))
}
