package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"ytcollector/internal/logger"
)

// AsynqEnqueuer dispatches tasks through an asynq (Redis) broker.
type AsynqEnqueuer struct {
	client        *asynq.Client
	log           logger.Logger
	hardTimeLimit time.Duration
}

// NewAsynqEnqueuer builds an Enqueuer over the broker at brokerURL
// (redis:// URI). hardTimeLimit forcibly terminates a task that overruns it.
func NewAsynqEnqueuer(brokerURL string, hardTimeLimit time.Duration, log logger.Logger) (*AsynqEnqueuer, error) {
	opt, err := asynq.ParseRedisURI(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse broker url: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AsynqEnqueuer{
		client:        asynq.NewClient(opt),
		log:           log,
		hardTimeLimit: hardTimeLimit,
	}, nil
}

func (e *AsynqEnqueuer) EnqueueProcessChannelJob(ctx context.Context, jobID, runID int64) error {
	task, err := NewProcessChannelJobTask(jobID, runID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(0)}
	if e.hardTimeLimit > 0 {
		opts = append(opts, asynq.Timeout(e.hardTimeLimit))
	}
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("queue: enqueue job %d: %w", jobID, err)
	}
	e.log.Debug("enqueued process task",
		logger.F("job_id", jobID),
		logger.F("run_id", runID),
		logger.F("task_id", info.ID))
	return nil
}

func (e *AsynqEnqueuer) EnqueueFinalizeRun(ctx context.Context, runID int64) error {
	task, err := NewFinalizeRunTask(runID)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("queue: enqueue finalize for run %d: %w", runID, err)
	}
	return nil
}

// Close releases the broker connection.
func (e *AsynqEnqueuer) Close() error { return e.client.Close() }
