package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mikadit/modqueue/internal/model"
)

// ReportCacheTTL bounds staleness of the cached dashboard page; actions
// invalidate eagerly anyway.
const ReportCacheTTL = time.Minute

// CacheService provides a Redis cache-aside layer for the hot report page.
type CacheService struct {
	rdb *redis.Client
}

// NewCacheService creates a new CacheService. If redisURL is empty or the
// connection fails, it returns a CacheService with a nil client (cache
// operations become no-ops).
func NewCacheService(redisURL string) *CacheService {
	if redisURL == "" {
		log.Println("redis: no URL configured, caching disabled")
		return &CacheService{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("redis: invalid URL %q, caching disabled: %v", redisURL, err)
		return &CacheService{}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis: connection failed, caching disabled: %v", err)
		return &CacheService{}
	}

	log.Println("redis: connected, caching enabled")
	return &CacheService{rdb: rdb}
}

// Client returns the underlying Redis client (for health checks and the
// task queue). May be nil.
func (c *CacheService) Client() *redis.Client {
	return c.rdb
}

// GetReport retrieves the cached first report page, nil on miss or when
// caching is disabled.
func (c *CacheService) GetReport(ctx context.Context, pageSize int) (*model.FlaggedPostsReport, error) {
	if c == nil || c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, reportKey(pageSize)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report model.FlaggedPostsReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// SetReport stores the assembled first report page.
func (c *CacheService) SetReport(ctx context.Context, pageSize int, report *model.FlaggedPostsReport) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, reportKey(pageSize), b, ReportCacheTTL).Err()
}

// InvalidateReports drops every cached report page (called after each
// performed action and by the recalc worker).
func (c *CacheService) InvalidateReports(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, "report:pending:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("cache: invalidate %s error: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache: invalidate scan error: %v", err)
	}
}

// Close shuts down the Redis connection.
func (c *CacheService) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func reportKey(pageSize int) string {
	return fmt.Sprintf("report:pending:%d", pageSize)
}
