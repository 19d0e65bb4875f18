package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mikadit/modqueue/internal/service"
)

// dependencyStatus is one entry in the readiness report.
type dependencyStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// queueStatus reports the background task queue the truncate worker
// drains. Depth is the number of tasks waiting on the Redis list.
type queueStatus struct {
	Status string `json:"status"`
	Key    string `json:"key,omitempty"`
	Depth  int64  `json:"depth,omitempty"`
	Error  string `json:"error,omitempty"`
}

type HealthHandler struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	startAt time.Time
}

func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{
		pool:    pool,
		rdb:     rdb,
		startAt: time.Now(),
	}
}

// Live handles GET /health/live — liveness probe.
func (h *HealthHandler) Live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /health/ready. The case store is required; Redis is
// optional, so a missing client reports the cache, queue and signals as
// disabled without degrading readiness.
func (h *HealthHandler) Ready(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	caseStore := h.checkCaseStore(ctx)
	cache := h.checkCache(ctx)
	queue := h.checkTaskQueue(ctx)

	overall := "healthy"
	if caseStore.Status != "up" {
		overall = "degraded"
	}
	if cache.Status == "down" && overall == "healthy" {
		overall = "degraded"
	}

	status := fiber.StatusOK
	if overall != "healthy" {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"case_store": caseStore,
			"cache":      cache,
			"task_queue": queue,
		},
		"uptime_seconds": int(time.Since(h.startAt).Seconds()),
	})
}

func (h *HealthHandler) checkCaseStore(ctx context.Context) dependencyStatus {
	start := time.Now()
	err := h.pool.Ping(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return dependencyStatus{Status: "down", LatencyMS: latency, Error: "connection failed"}
	}
	return dependencyStatus{
		Status:    "up",
		LatencyMS: latency,
		Detail:    "listening on " + service.CaseChangeChannel,
	}
}

func (h *HealthHandler) checkCache(ctx context.Context) dependencyStatus {
	if h.rdb == nil {
		return dependencyStatus{Status: "disabled"}
	}

	start := time.Now()
	err := h.rdb.Ping(ctx).Err()
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return dependencyStatus{Status: "down", LatencyMS: latency, Error: "connection failed"}
	}
	return dependencyStatus{Status: "up", LatencyMS: latency}
}

func (h *HealthHandler) checkTaskQueue(ctx context.Context) queueStatus {
	if h.rdb == nil {
		return queueStatus{Status: "disabled"}
	}

	depth, err := h.rdb.LLen(ctx, service.TaskQueueKey).Result()
	if err != nil {
		return queueStatus{Status: "down", Key: service.TaskQueueKey, Error: "depth probe failed"}
	}
	return queueStatus{Status: "up", Key: service.TaskQueueKey, Depth: depth}
}
