package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TaskQueueKey is the Redis list the background workers consume.
const TaskQueueKey = "modqueue:tasks"

// QueueService is the default AsyncScheduler: tasks land on a Redis list
// and the TruncateWorker drains it. Enqueue never waits on execution.
type QueueService struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewQueueService(rdb *redis.Client, log zerolog.Logger) *QueueService {
	return &QueueService{rdb: rdb, log: log}
}

// queuedTask is the wire form of a scheduled task.
type queuedTask struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	Args       any       `json:"args"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Enqueue schedules a task for background execution.
func (q *QueueService) Enqueue(ctx context.Context, task string, args any) error {
	if q.rdb == nil {
		q.log.Debug().Str("task", task).Msg("queue: disabled, dropping task")
		return nil
	}

	b, err := json.Marshal(queuedTask{
		ID:         uuid.NewString(),
		Task:       task,
		Args:       args,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, TaskQueueKey, b).Err()
}
