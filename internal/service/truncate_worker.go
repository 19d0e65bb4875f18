package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// TruncateWorker drains the Redis task list and runs counter truncation.
// Tasks are at-least-once: truncation is idempotent, so redelivery after a
// crash is safe.
type TruncateWorker struct {
	rdb         *redis.Client
	statsSvc    *FlagStatsService
	truncations prometheus.Counter // may be nil
}

func NewTruncateWorker(rdb *redis.Client, statsSvc *FlagStatsService, truncations prometheus.Counter) *TruncateWorker {
	return &TruncateWorker{rdb: rdb, statsSvc: statsSvc, truncations: truncations}
}

// Start blocks on the task queue until ctx is cancelled. Without a Redis
// client the worker exits immediately (scheduling is disabled too).
func (w *TruncateWorker) Start(ctx context.Context) {
	if w.rdb == nil {
		log.Println("truncate-worker: no redis, worker disabled")
		return
	}
	log.Println("truncate-worker: starting")

	for {
		if ctx.Err() != nil {
			log.Println("truncate-worker: stopping (context cancelled)")
			return
		}

		res, err := w.rdb.BRPop(ctx, 5*time.Second, TaskQueueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue // queue empty, poll again
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Println("truncate-worker: stopping (context cancelled)")
				return
			}
			log.Printf("truncate-worker: pop error, retrying in 5s: %v", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		w.handle(ctx, []byte(res[1]))
	}
}

func (w *TruncateWorker) handle(ctx context.Context, raw []byte) {
	var task queuedTask
	if err := json.Unmarshal(raw, &task); err != nil {
		log.Printf("truncate-worker: bad task payload: %v", err)
		return
	}

	switch task.Task {
	case TaskTruncateFlagStats:
		userIDs, err := argsToUserIDs(task.Args)
		if err != nil {
			log.Printf("truncate-worker: task %s: %v", task.ID, err)
			return
		}
		if err := w.statsSvc.Truncate(ctx, userIDs); err != nil {
			log.Printf("truncate-worker: truncate failed for %v: %v", userIDs, err)
			return
		}
		if w.truncations != nil {
			w.truncations.Inc()
		}
		log.Printf("truncate-worker: truncated flag stats for %d user(s)", len(userIDs))
	default:
		log.Printf("truncate-worker: unknown task %q, dropping", task.Task)
	}
}

// argsToUserIDs recovers the user-id list from the JSON-roundtripped args.
func argsToUserIDs(args any) ([]int64, error) {
	raw, ok := args.([]any)
	if !ok {
		return nil, errors.New("args is not a list")
	}
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			ids = append(ids, int64(n))
		case string:
			id, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		default:
			return nil, errors.New("args contains a non-numeric id")
		}
	}
	return ids, nil
}
