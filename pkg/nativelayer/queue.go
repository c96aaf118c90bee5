package nativelayer

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/redqueue"
	"github.com/sre-norns/vellum/pkg/ticket"
)

type JobScheduler interface {
	Schedule(ctx context.Context, job redqueue.RenderJob) (string, error)
	// Cancel removes a queued task, or stops it if a worker already picked it up.
	Cancel(taskID string) error
}

// Queue hands preview requests to render workers. A response only confirms that the job was accepted,
// the rendered content is stored by the worker.
// Scheduling a request withdraws the job of the request it supersedes in the same session.
type Queue struct {
	scheduler JobScheduler
	logger    log.Logger

	mu sync.Mutex
	// Last task scheduled per session
	scheduled map[string]string
}

func NewQueue(scheduler JobScheduler, logger log.Logger) *Queue {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Queue{
		scheduler: scheduler,
		logger:    logger,
		scheduled: map[string]string{},
	}
}

func (q *Queue) GetPreview(ctx context.Context, req preview.Request) (preview.Response, error) {
	t, err := ticket.Parse(req.PrintTicket)
	if err != nil {
		return preview.Response{}, err
	}

	taskID, err := q.scheduler.Schedule(ctx, redqueue.JobFromRequest(req))
	if err != nil {
		return preview.Response{}, err
	}

	q.mu.Lock()
	superseded := q.scheduled[req.SessionID]
	q.scheduled[req.SessionID] = taskID
	q.mu.Unlock()

	if superseded != "" && superseded != taskID {
		if err := q.scheduler.Cancel(superseded); err != nil {
			level.Warn(q.logger).Log("msg", "failed to withdraw superseded render job", "session", req.SessionID, "task", superseded, "err", err)
		}
	}

	return preview.Response{
		RequestID:   req.RequestID,
		PrintTicket: req.PrintTicket,
		PageCount:   t.PageCount,
		TaskID:      taskID,
	}, nil
}
