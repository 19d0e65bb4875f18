package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikadit/modqueue/internal/model"
)

type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// statColumns whitelists the counter column per outcome; never built from
// request input.
var statColumns = map[model.CaseStatus]string{
	model.StatusApproved: "flags_agreed",
	model.StatusRejected: "flags_disagreed",
	model.StatusIgnored:  "flags_ignored",
}

// ApplyOutcome increments the outcome counter for each user by one and
// returns the post-increment totals in the same statement, so the
// truncation check is scoped to exactly the users touched by this call.
func (r *StatsRepo) ApplyOutcome(ctx context.Context, outcome model.CaseStatus, userIDs []int64) ([]model.StatTotal, error) {
	col, ok := statColumns[outcome]
	if !ok {
		return nil, fmt.Errorf("no flag-stat counter for outcome %q", outcome)
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	// Users without a stats row yet get one on first resolution.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_flag_stats (user_id)
		SELECT unnest($1::bigint[])
		ON CONFLICT (user_id) DO NOTHING`, userIDs)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		UPDATE user_flag_stats
		SET %s = %s + 1
		WHERE user_id = ANY($1)
		RETURNING user_id, flags_agreed + flags_disagreed + flags_ignored AS total`,
		col, col), userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []model.StatTotal
	for rows.Next() {
		var t model.StatTotal
		if err := rows.Scan(&t.UserID, &t.Total); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Get returns a user's counters, zeroes if no row exists yet.
func (r *StatsRepo) Get(ctx context.Context, userID int64) (model.UserFlagStats, error) {
	stats := model.UserFlagStats{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(flags_agreed, 0), COALESCE(flags_disagreed, 0), COALESCE(flags_ignored, 0)
		FROM user_flag_stats WHERE user_id = $1`, userID).Scan(
		&stats.FlagsAgreed, &stats.FlagsDisagreed, &stats.FlagsIgnored,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	return stats, err
}

// Truncate rescales a user's counters so their sum equals the ceiling,
// preserving the proportions. A second run on already-truncated counters is
// a no-op, so redelivered tasks are harmless.
func (r *StatsRepo) Truncate(ctx context.Context, userID int64, ceiling int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var agreed, disagreed, ignored int
	err = tx.QueryRow(ctx, `
		SELECT flags_agreed, flags_disagreed, flags_ignored
		FROM user_flag_stats WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&agreed, &disagreed, &ignored)
	if err != nil {
		return err
	}

	newAgreed, newDisagreed, newIgnored := TruncateCounters(agreed, disagreed, ignored, ceiling)
	if newAgreed == agreed && newDisagreed == disagreed && newIgnored == ignored {
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE user_flag_stats
		SET flags_agreed = $1, flags_disagreed = $2, flags_ignored = $3
		WHERE user_id = $4`,
		newAgreed, newDisagreed, newIgnored, userID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TruncateCounters rescales three counters whose sum exceeds the ceiling
// down to (at most) the ceiling, keeping their relative proportions.
// Counters at or under the ceiling come back unchanged, which is what makes
// the truncation task idempotent.
func TruncateCounters(agreed, disagreed, ignored, ceiling int) (int, int, int) {
	total := agreed + disagreed + ignored
	if ceiling <= 0 || total <= ceiling {
		return agreed, disagreed, ignored
	}

	scale := float64(ceiling) / float64(total)
	return int(float64(agreed) * scale),
		int(float64(disagreed) * scale),
		int(float64(ignored) * scale)
}
