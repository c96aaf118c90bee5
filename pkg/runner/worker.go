package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hibiken/asynq"

	"github.com/sre-norns/vellum/pkg/dbstore"
	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/redqueue"
)

// PreviewSaver persists rendered previews.
type PreviewSaver interface {
	Save(ctx context.Context, sessionID string, res preview.Response) (*dbstore.Preview, error)
}

type Worker struct {
	renderer preview.Renderer
	store    PreviewSaver
	timeout  time.Duration
	logger   log.Logger
	metrics  *Metrics
}

func NewWorker(renderer preview.Renderer, store PreviewSaver, timeout time.Duration, logger log.Logger, metrics *Metrics) *Worker {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Worker{
		renderer: renderer,
		store:    store,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// HandleRenderTask renders the preview a task asks for and stores the result.
// Malformed and cancelled tasks are not retried.
func (w *Worker) HandleRenderTask(ctx context.Context, t *asynq.Task) error {
	job, err := redqueue.UnmarshalJob(t)
	if err != nil {
		w.metrics.Jobs(OutcomeRejected).Inc()
		level.Warn(w.logger).Log("msg", "failed to deserialize render job", "err", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	logger := log.With(w.logger, "session", job.SessionID, "requestID", job.RequestID)
	if !job.EnqueuedAt.IsZero() {
		w.metrics.latency.Observe(time.Since(job.EnqueuedAt).Seconds())
	}

	workCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		workCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	level.Debug(logger).Log("msg", "rendering", "url", job.DocumentURL, "timeout", w.timeout)
	start := time.Now()
	res, err := w.renderer.GetPreview(workCtx, job.Request())
	w.metrics.duration.Observe(time.Since(start).Seconds())
	if ctx.Err() != nil {
		// Superseded requests are withdrawn by cancelling their task
		w.metrics.Jobs(OutcomeCancelled).Inc()
		level.Info(logger).Log("msg", "render cancelled", "err", ctx.Err())
		return fmt.Errorf("%w: %w", ctx.Err(), asynq.SkipRetry)
	}
	if err != nil {
		w.metrics.Jobs(OutcomeFailed).Inc()
		level.Error(logger).Log("msg", "render failed", "err", err)
		return err
	}

	res.TaskID = redqueue.TaskID(job)
	saved, err := w.store.Save(ctx, job.SessionID, res)
	if err != nil {
		w.metrics.Jobs(OutcomeFailed).Inc()
		level.Error(logger).Log("msg", "failed to store preview", "err", err)
		return err
	}

	w.metrics.Jobs(OutcomeRendered).Inc()
	level.Info(logger).Log("msg", "preview stored", "pages", saved.PageCount, "size", saved.Size)
	return nil
}

func (w *Worker) ServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(redqueue.TaskType, w.HandleRenderTask)
	return mux
}
