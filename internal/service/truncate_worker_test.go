package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func taskPayload(t *testing.T, task string, args any) []byte {
	t.Helper()
	b, err := json.Marshal(queuedTask{ID: "t1", Task: task, Args: args, EnqueuedAt: time.Now()})
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	return b
}

func TestTruncateWorker_HandleRunsTruncationAndCounts(t *testing.T) {
	store := &fakeStatsStore{totals: make(map[int64]int)}
	svc := NewFlagStatsService(store, &fakeScheduler{}, 100, zerolog.Nop())
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_truncations_total"})
	w := NewTruncateWorker(nil, svc, counter)

	w.handle(context.Background(), taskPayload(t, TaskTruncateFlagStats, []any{float64(7), float64(9)}))

	if len(store.truncated) != 2 || store.truncated[0] != 7 || store.truncated[1] != 9 {
		t.Errorf("truncated users = %v, want [7 9]", store.truncated)
	}
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("truncations counter = %v, want 1", got)
	}
}

func TestTruncateWorker_HandleBadPayloadDoesNothing(t *testing.T) {
	store := &fakeStatsStore{totals: make(map[int64]int)}
	svc := NewFlagStatsService(store, &fakeScheduler{}, 100, zerolog.Nop())
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_truncations_total"})
	w := NewTruncateWorker(nil, svc, counter)

	w.handle(context.Background(), []byte("{not json"))
	w.handle(context.Background(), taskPayload(t, "unknown_task", nil))
	w.handle(context.Background(), taskPayload(t, TaskTruncateFlagStats, "not a list"))

	if len(store.truncated) != 0 {
		t.Errorf("truncated users = %v, want none", store.truncated)
	}
	if got := testutil.ToFloat64(counter); got != 0 {
		t.Errorf("truncations counter = %v, want 0", got)
	}
}

func TestTruncateWorker_NilCounterIsSafe(t *testing.T) {
	store := &fakeStatsStore{totals: make(map[int64]int)}
	svc := NewFlagStatsService(store, &fakeScheduler{}, 100, zerolog.Nop())
	w := NewTruncateWorker(nil, svc, nil)

	w.handle(context.Background(), taskPayload(t, TaskTruncateFlagStats, []any{float64(3)}))

	if len(store.truncated) != 1 || store.truncated[0] != 3 {
		t.Errorf("truncated users = %v, want [3]", store.truncated)
	}
}
