package redqueue

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hibiken/asynq"
)

type SchedulerOptions struct {
	RedisAddress string `help:"Redis server address:port to connect to" default:"localhost:6379" env:"REDIS_ADDR"`
	Queue        string `help:"Name of the queue render jobs are published to" default:"default"`
	MaxRetry     int    `help:"Number of times a failed render is retried" default:"1"`
}

// Scheduler publishes render jobs for workers to pick up.
type Scheduler struct {
	totalErrors    uint64
	totalPublished uint64

	options   SchedulerOptions
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    log.Logger
}

func NewScheduler(options SchedulerOptions, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	redis := asynq.RedisClientOpt{Addr: options.RedisAddress}
	return &Scheduler{
		options:   options,
		client:    asynq.NewClient(redis),
		inspector: asynq.NewInspector(redis),
		logger:    logger,
	}
}

func (s *Scheduler) Close() error {
	if s == nil || s.client == nil {
		return nil
	}

	return errors.Join(s.client.Close(), s.inspector.Close())
}

// Schedule enqueues the job and returns the ID of the queued task.
func (s *Scheduler) Schedule(ctx context.Context, job RenderJob) (string, error) {
	task, err := MarshalJob(job)
	if err != nil {
		level.Error(s.logger).Log("msg", "scheduling error", "requestID", job.RequestID, "err", err)
		atomic.AddUint64(&s.totalErrors, 1)
		return "", err
	}

	info, err := s.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(s.options.MaxRetry),
		asynq.Queue(s.options.Queue),
		asynq.TaskID(TaskID(job)),
	)
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to publish", "requestID", job.RequestID, "err", err)
		atomic.AddUint64(&s.totalErrors, 1)
		return "", err
	}

	atomic.AddUint64(&s.totalPublished, 1)
	level.Debug(s.logger).Log("msg", "published task", "id", info.ID, "queue", info.Queue)
	return info.ID, nil
}

// Cancel deletes a task that is still waiting in the queue. A task a worker is already processing
// is sent a cancellation instead. Tasks that are gone are not an error.
func (s *Scheduler) Cancel(taskID string) error {
	err := s.inspector.DeleteTask(s.options.Queue, taskID)
	switch {
	case err == nil:
		level.Debug(s.logger).Log("msg", "deleted task", "id", taskID, "queue", s.options.Queue)
		return nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return nil
	}

	// Active tasks can not be deleted
	if err := s.inspector.CancelProcessing(taskID); err != nil {
		return err
	}

	level.Debug(s.logger).Log("msg", "cancelled task", "id", taskID)
	return nil
}

// Stats returns the number of jobs published and failed so far.
func (s *Scheduler) Stats() (published, failed uint64) {
	return atomic.LoadUint64(&s.totalPublished), atomic.LoadUint64(&s.totalErrors)
}
