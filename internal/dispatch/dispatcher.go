package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wpsync/internal/broker"
	"wpsync/internal/domain"
	"wpsync/internal/scheduler"
)

type Reconciler interface {
	SyncOne(ctx context.Context, contentType, id string, preview bool) (domain.Outcome, error)
	SyncAll(ctx context.Context, contentType string) (*domain.SyncStats, error)
	SyncOptions(ctx context.Context) (domain.Outcome, error)
	Purge(ctx context.Context, contentType, id string) (domain.Outcome, error)
	Unpublish(ctx context.Context, contentType, id string) (domain.Outcome, error)
}

type Scheduler interface {
	ScheduleNow(job scheduler.Job) error
	ScheduleAfter(delay time.Duration, job scheduler.Job) error
}

var _ broker.Handler = (*Dispatcher)(nil)

// Dispatcher turns broker commands into scheduled reconciler jobs.
type Dispatcher struct {
	reconciler Reconciler
	scheduler  Scheduler
	logger     *slog.Logger
}

func New(reconciler Reconciler, sched Scheduler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		reconciler: reconciler,
		scheduler:  sched,
		logger:     logger.With("component", "dispatcher"),
	}
}

// Handle schedules cmd. It returns once the job is queued, not when it has
// run.
func (d *Dispatcher) Handle(_ context.Context, cmd broker.Command) error {
	job, err := d.job(cmd)
	if err != nil {
		return err
	}

	if cmd.Delay > 0 {
		err = d.scheduler.ScheduleAfter(cmd.Delay, job)
	} else {
		err = d.scheduler.ScheduleNow(job)
	}
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}

	d.logger.Debug("job scheduled", "job", job.Name, "delay", cmd.Delay)
	return nil
}

func (d *Dispatcher) job(cmd broker.Command) (scheduler.Job, error) {
	var run func(ctx context.Context) error

	switch cmd.Action {
	case broker.CommandSync:
		run = func(ctx context.Context) error {
			outcome, err := d.reconciler.SyncOne(ctx, cmd.ContentType, cmd.ID, cmd.Preview)
			return d.logOutcome(cmd, outcome, err)
		}
	case broker.CommandSyncAll:
		run = func(ctx context.Context) error {
			_, err := d.reconciler.SyncAll(ctx, cmd.ContentType)
			return err
		}
	case broker.CommandSyncOptions:
		run = func(ctx context.Context) error {
			outcome, err := d.reconciler.SyncOptions(ctx)
			return d.logOutcome(cmd, outcome, err)
		}
	case broker.CommandPurge:
		run = func(ctx context.Context) error {
			outcome, err := d.reconciler.Purge(ctx, cmd.ContentType, cmd.ID)
			return d.logOutcome(cmd, outcome, err)
		}
	case broker.CommandUnpublish:
		run = func(ctx context.Context) error {
			outcome, err := d.reconciler.Unpublish(ctx, cmd.ContentType, cmd.ID)
			return d.logOutcome(cmd, outcome, err)
		}
	default:
		return scheduler.Job{}, fmt.Errorf("unknown action %q", cmd.Action)
	}

	return scheduler.Job{
		Name:  jobName(cmd),
		Run:   run,
		Retry: true,
	}, nil
}

func (d *Dispatcher) logOutcome(cmd broker.Command, outcome domain.Outcome, err error) error {
	if err != nil {
		return err
	}
	d.logger.Info("command processed",
		"action", cmd.Action,
		"content_type", cmd.ContentType,
		"id", cmd.ID,
		"outcome", outcome.String(),
	)
	return nil
}

func jobName(cmd broker.Command) string {
	switch {
	case cmd.ID != "":
		return fmt.Sprintf("%s:%s:%s", cmd.Action, cmd.ContentType, cmd.ID)
	case cmd.ContentType != "":
		return fmt.Sprintf("%s:%s", cmd.Action, cmd.ContentType)
	default:
		return cmd.Action
	}
}
