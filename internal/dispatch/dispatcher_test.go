package dispatch

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wpsync/internal/broker"
	"wpsync/internal/domain"
	"wpsync/internal/scheduler"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) SyncOne(ctx context.Context, contentType, id string, preview bool) (domain.Outcome, error) {
	args := m.Called(ctx, contentType, id, preview)
	return args.Get(0).(domain.Outcome), args.Error(1)
}

func (m *mockReconciler) SyncAll(ctx context.Context, contentType string) (*domain.SyncStats, error) {
	args := m.Called(ctx, contentType)
	stats, _ := args.Get(0).(*domain.SyncStats)
	return stats, args.Error(1)
}

func (m *mockReconciler) SyncOptions(ctx context.Context) (domain.Outcome, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Outcome), args.Error(1)
}

func (m *mockReconciler) Purge(ctx context.Context, contentType, id string) (domain.Outcome, error) {
	args := m.Called(ctx, contentType, id)
	return args.Get(0).(domain.Outcome), args.Error(1)
}

func (m *mockReconciler) Unpublish(ctx context.Context, contentType, id string) (domain.Outcome, error) {
	args := m.Called(ctx, contentType, id)
	return args.Get(0).(domain.Outcome), args.Error(1)
}

// recordingScheduler keeps jobs instead of running them.
type recordingScheduler struct {
	now    []scheduler.Job
	after  []scheduler.Job
	delays []time.Duration
	err    error
}

func (s *recordingScheduler) ScheduleNow(job scheduler.Job) error {
	if s.err != nil {
		return s.err
	}
	s.now = append(s.now, job)
	return nil
}

func (s *recordingScheduler) ScheduleAfter(delay time.Duration, job scheduler.Job) error {
	if s.err != nil {
		return s.err
	}
	s.after = append(s.after, job)
	s.delays = append(s.delays, delay)
	return nil
}

func newDispatcher(rec Reconciler, sched Scheduler) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(rec, sched, logger)
}

func TestDispatcher_Handle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cmd     broker.Command
		setup   func(m *mockReconciler)
		jobName string
	}{
		{
			name: "sync one",
			cmd:  broker.Command{Action: broker.CommandSync, ContentType: "post", ID: "5", Preview: true},
			setup: func(m *mockReconciler) {
				m.On("SyncOne", mock.Anything, "post", "5", true).Return(domain.OutcomeCreated, nil)
			},
			jobName: "sync:post:5",
		},
		{
			name: "sync all",
			cmd:  broker.Command{Action: broker.CommandSyncAll, ContentType: "page"},
			setup: func(m *mockReconciler) {
				m.On("SyncAll", mock.Anything, "page").Return(&domain.SyncStats{ContentType: "page"}, nil)
			},
			jobName: "sync_all:page",
		},
		{
			name: "options",
			cmd:  broker.Command{Action: broker.CommandSyncOptions},
			setup: func(m *mockReconciler) {
				m.On("SyncOptions", mock.Anything).Return(domain.OutcomeUpdated, nil)
			},
			jobName: "sync_options",
		},
		{
			name: "purge",
			cmd:  broker.Command{Action: broker.CommandPurge, ContentType: "post", ID: "9"},
			setup: func(m *mockReconciler) {
				m.On("Purge", mock.Anything, "post", "9").Return(domain.OutcomeNotFound, nil)
			},
			jobName: "purge:post:9",
		},
		{
			name: "unpublish",
			cmd:  broker.Command{Action: broker.CommandUnpublish, ContentType: "post", ID: "3"},
			setup: func(m *mockReconciler) {
				m.On("Unpublish", mock.Anything, "post", "3").Return(domain.OutcomeUnpublished, nil)
			},
			jobName: "unpublish:post:3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(mockReconciler)
			tt.setup(rec)
			sched := &recordingScheduler{}
			d := newDispatcher(rec, sched)

			require.NoError(t, d.Handle(ctx, tt.cmd))
			require.Len(t, sched.now, 1)
			assert.Empty(t, sched.after)

			job := sched.now[0]
			assert.Equal(t, tt.jobName, job.Name)
			assert.True(t, job.Retry)

			require.NoError(t, job.Run(ctx))
			rec.AssertExpectations(t)
		})
	}
}

func TestDispatcher_DelayedCommand(t *testing.T) {
	rec := new(mockReconciler)
	sched := &recordingScheduler{}
	d := newDispatcher(rec, sched)

	cmd := broker.Command{Action: broker.CommandSync, ContentType: "post", ID: "1", Delay: 2 * time.Second}
	require.NoError(t, d.Handle(context.Background(), cmd))

	assert.Empty(t, sched.now)
	require.Len(t, sched.after, 1)
	assert.Equal(t, 2*time.Second, sched.delays[0])
	rec.AssertNotCalled(t, "SyncOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_JobPropagatesError(t *testing.T) {
	ctx := context.Background()
	apiErr := &domain.APIResponseError{URL: "http://wp/posts/1", StatusCode: 502}

	rec := new(mockReconciler)
	rec.On("SyncOne", mock.Anything, "post", "1", false).Return(domain.OutcomeNotFound, apiErr)
	sched := &recordingScheduler{}
	d := newDispatcher(rec, sched)

	require.NoError(t, d.Handle(ctx, broker.Command{Action: broker.CommandSync, ContentType: "post", ID: "1"}))
	require.Len(t, sched.now, 1)

	err := sched.now[0].Run(ctx)
	assert.ErrorIs(t, err, apiErr)
	assert.True(t, domain.IsRetryable(err))
}

func TestDispatcher_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown action", func(t *testing.T) {
		sched := &recordingScheduler{}
		d := newDispatcher(new(mockReconciler), sched)

		err := d.Handle(ctx, broker.Command{Action: "reindex"})
		assert.ErrorContains(t, err, "unknown action")
		assert.Empty(t, sched.now)
	})

	t.Run("queue full", func(t *testing.T) {
		sched := &recordingScheduler{err: scheduler.ErrQueueFull}
		d := newDispatcher(new(mockReconciler), sched)

		err := d.Handle(ctx, broker.Command{Action: broker.CommandSyncOptions})
		assert.ErrorIs(t, err, scheduler.ErrQueueFull)
	})

	t.Run("scheduler stopped", func(t *testing.T) {
		sched := &recordingScheduler{err: scheduler.ErrStopped}
		d := newDispatcher(new(mockReconciler), sched)

		err := d.Handle(ctx, broker.Command{Action: broker.CommandSyncAll, ContentType: "post"})
		assert.ErrorIs(t, err, scheduler.ErrStopped)
	})
}
