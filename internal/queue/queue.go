package queue

import (
	"time"

	"github.com/hibiken/asynq"
)

const TaskTypePublishDue = "publish:due"

// EnqueuePublishRun queues one publish pass. The pass itself decides what
// is due, so enqueueing is cheap and duplicate runs are harmless (the
// store's claim keeps them from double-publishing).
func EnqueuePublishRun(client *asynq.Client, delay time.Duration) error {
	task := asynq.NewTask(TaskTypePublishDue, nil)
	_, err := client.Enqueue(task, asynq.ProcessIn(delay), asynq.MaxRetry(3))
	return err
}
