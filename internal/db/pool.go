package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PoolSettings are the connection knobs surfaced through configuration.
// Zero values fall back to defaults sized for the moderation workload,
// which is dominated by the report's bulk reads plus short resolution
// transactions.
type PoolSettings struct {
	MaxConns        int32
	MinConns        int32
	ConnectAttempts int
}

func (s PoolSettings) normalize() PoolSettings {
	if s.MaxConns <= 0 {
		s.MaxConns = 10
	}
	if s.MinConns <= 0 {
		s.MinConns = 2
	}
	if s.MinConns > s.MaxConns {
		s.MinConns = s.MaxConns
	}
	if s.ConnectAttempts <= 0 {
		s.ConnectAttempts = 5
	}
	return s
}

// NewPool connects to the review-case store, retrying with a growing
// backoff so the service survives the database coming up after it.
func NewPool(ctx context.Context, databaseURL string, settings PoolSettings, log zerolog.Logger) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	s := settings.normalize()
	pc.MaxConns = s.MaxConns
	pc.MinConns = s.MinConns
	pc.MaxConnLifetime = 30 * time.Minute
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.HealthCheckPeriod = time.Minute

	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= s.ConnectAttempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				log.Info().
					Int32("max_conns", pc.MaxConns).
					Int32("min_conns", pc.MinConns).
					Msg("case store connected")
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		log.Warn().Err(err).
			Int("attempt", attempt).
			Int("attempts", s.ConnectAttempts).
			Msg("case store unreachable")

		if attempt == s.ConnectAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if backoff < 8*time.Second {
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("case store unreachable after %d attempts: %w", s.ConnectAttempts, lastErr)
}
