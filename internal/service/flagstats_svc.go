package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mikadit/modqueue/internal/model"
)

// FlagStatsService maintains per-user moderation-outcome counters. The
// counters belong to the flag's target (the author whose content was
// judged) and move by one per resolved case, never per entry. When a
// user's counter sum climbs past the ceiling, a truncation task is
// scheduled asynchronously so the hot path never pays for the rescale.
type FlagStatsService struct {
	store     StatsStore
	scheduler AsyncScheduler
	ceiling   int
	log       zerolog.Logger
}

func NewFlagStatsService(store StatsStore, scheduler AsyncScheduler, ceiling int, log zerolog.Logger) *FlagStatsService {
	return &FlagStatsService{
		store:     store,
		scheduler: scheduler,
		ceiling:   ceiling,
		log:       log,
	}
}

// Apply records one resolved case against the target user's counters.
// The target is removed from the reviewer set first: when the only flagger
// is the author themself, nothing is counted (no self-credit).
func (s *FlagStatsService) Apply(ctx context.Context, outcome model.CaseStatus, targetUserID int64, reviewerIDs []int64) error {
	others := make([]int64, 0, len(reviewerIDs))
	for _, id := range reviewerIDs {
		if id != targetUserID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return nil
	}

	totals, err := s.store.ApplyOutcome(ctx, outcome, []int64{targetUserID})
	if err != nil {
		return err
	}

	// Check-on-write: only users touched by this call are candidates for
	// truncation, which bounds the task queue to active moderation volume.
	var over []int64
	for _, t := range totals {
		if t.Total > s.ceiling {
			over = append(over, t.UserID)
		}
	}
	if len(over) == 0 {
		return nil
	}

	if err := s.scheduler.Enqueue(ctx, TaskTruncateFlagStats, over); err != nil {
		// Truncation is best-effort housekeeping; the next resolution for
		// the same user re-triggers it.
		s.log.Warn().Err(err).Ints64("user_ids", over).Msg("flag-stats: truncation enqueue failed")
	}
	return nil
}

// Truncate rescales the counters of each listed user down to the ceiling.
// Idempotent: re-running on already-truncated counters changes nothing.
func (s *FlagStatsService) Truncate(ctx context.Context, userIDs []int64) error {
	for _, id := range userIDs {
		if err := s.store.Truncate(ctx, id, s.ceiling); err != nil {
			return err
		}
	}
	return nil
}
