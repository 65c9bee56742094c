package queue

import (
	"context"

	"github.com/hibiken/asynq"

	"postpilot/internal/service"
)

type Worker struct {
	publisher service.PublisherService
}

func NewWorker(publisher service.PublisherService) *Worker {
	return &Worker{publisher: publisher}
}

// HandlePublishDueTask runs one publish pass. Per-post failures are
// already resolved inside the pass; only a store-level failure is returned
// so asynq retries the whole run.
func (w *Worker) HandlePublishDueTask(ctx context.Context, task *asynq.Task) error {
	_, _, err := w.publisher.PublishDuePosts(ctx)
	return err
}
