package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SignalService publishes review events over Redis pub/sub. Each event
// carries a unique id so at-least-once consumers can deduplicate. A nil
// client degrades to a logged no-op, mirroring the cache layer.
type SignalService struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewSignalService(rdb *redis.Client, log zerolog.Logger) *SignalService {
	return &SignalService{rdb: rdb, log: log}
}

// signalEnvelope is the wire form of an emitted event.
type signalEnvelope struct {
	ID      string    `json:"id"`
	Event   string    `json:"event"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Emit publishes one event. Emission runs after the owning transaction
// committed; failures are logged and never surfaced to the action path.
func (s *SignalService) Emit(ctx context.Context, event string, payload any) {
	if s.rdb == nil {
		s.log.Debug().Str("event", event).Msg("signals: disabled, dropping event")
		return
	}

	envelope := signalEnvelope{
		ID:      uuid.NewString(),
		Event:   event,
		At:      time.Now().UTC(),
		Payload: payload,
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("signals: marshal failed")
		return
	}

	// Bound the publish so a stalled Redis never blocks the caller for long.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.rdb.Publish(pubCtx, "signals:"+event, b).Err(); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("signals: publish failed")
	}
}
