package service

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikadit/modqueue/internal/model"
)

// ScoreService recomputes case scores from their score entries and decides
// threshold visibility.
type ScoreService struct {
	pool *pgxpool.Pool
}

func NewScoreService(pool *pgxpool.Pool) *ScoreService {
	return &ScoreService{pool: pool}
}

// RecomputeScore sums active entry weights for a pending case. Terminal
// cases keep the score they closed with, so their entries (now all
// disposed) contribute nothing new. Deterministic given the entry set.
func RecomputeScore(status model.CaseStatus, current float64, entries []model.ScoreEntry) float64 {
	if status.Terminal() {
		return current
	}
	var score float64
	for i := range entries {
		if entries[i].Active() {
			score += entries[i].Weight
		}
	}
	return score
}

// ExceedsThreshold reports whether an aggregate score makes a case
// default-visible.
func ExceedsThreshold(score, configuredMin float64) bool {
	return score >= configuredMin
}

// RecalculateCaseScore persists the recomputed aggregate for a pending
// case in one statement. Terminal cases are left untouched.
func (s *ScoreService) RecalculateCaseScore(ctx context.Context, caseID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE review_cases
		SET score = (
			SELECT COALESCE(SUM(weight), 0)
			FROM score_entries
			WHERE case_id = $1 AND disposition = ''
		), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, caseID)
	return err
}
