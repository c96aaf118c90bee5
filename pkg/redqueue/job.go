package redqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sre-norns/vellum/pkg/preview"
)

const TaskType = "preview:render"

var ErrInvalidJob = fmt.Errorf("render job has no print ticket")

// RenderJob is a preview request waiting for a worker to render it
type RenderJob struct {
	SessionID   string `json:"sessionID" yaml:"sessionID"`
	RequestID   int    `json:"requestID" yaml:"requestID"`
	DocumentURL string `json:"documentURL" yaml:"documentURL"`
	PrintTicket string `json:"printTicket" yaml:"printTicket"`

	// Time the job was handed to the queue
	EnqueuedAt time.Time `json:"enqueuedAt" yaml:"enqueuedAt"`
}

func JobFromRequest(req preview.Request) RenderJob {
	return RenderJob{
		SessionID:   req.SessionID,
		RequestID:   req.RequestID,
		DocumentURL: req.DocumentURL,
		PrintTicket: req.PrintTicket,
		EnqueuedAt:  time.Now(),
	}
}

func (j RenderJob) Request() preview.Request {
	return preview.Request{
		SessionID:   j.SessionID,
		RequestID:   j.RequestID,
		DocumentURL: j.DocumentURL,
		PrintTicket: j.PrintTicket,
	}
}

func UnmarshalJob(msg *asynq.Task) (RenderJob, error) {
	var result RenderJob
	if err := json.Unmarshal(msg.Payload(), &result); err != nil {
		return result, fmt.Errorf("failed to decode render job: %w", err)
	}
	if result.PrintTicket == "" {
		return result, ErrInvalidJob
	}

	return result, nil
}

func MarshalJob(job RenderJob) (*asynq.Task, error) {
	if job.PrintTicket == "" {
		return nil, ErrInvalidJob
	}

	data, err := json.Marshal(&job)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskType, data), nil
}

// TaskID names the queued task so that a request is enqueued at most once.
func TaskID(job RenderJob) string {
	return fmt.Sprintf("%s-%d", job.SessionID, job.RequestID)
}
