package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikadit/modqueue/internal/model"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// BulkByIDs loads user records with their flag-stat counters in one query.
func (r *UserRepo) BulkByIDs(ctx context.Context, userIDs []int64) ([]model.UserInfo, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.username, u.silenced_till IS NOT NULL AND u.silenced_till > NOW(), u.created_at,
		       COALESCE(s.flags_agreed, 0), COALESCE(s.flags_disagreed, 0), COALESCE(s.flags_ignored, 0)
		FROM users u
		LEFT JOIN user_flag_stats s ON s.user_id = u.id
		WHERE u.id = ANY($1)
		ORDER BY u.id ASC`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.UserInfo
	for rows.Next() {
		var u model.UserInfo
		err := rows.Scan(
			&u.ID, &u.Username, &u.Silenced, &u.CreatedAt,
			&u.FlagsAgreed, &u.FlagsDisagreed, &u.FlagsIgnored,
		)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Silence marks the user silenced, recording the post that triggered it so
// a later disagree can undo exactly this silence.
func (r *UserRepo) Silence(ctx context.Context, userID, forPostID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET silenced_till = 'infinity', silenced_for_post_id = $1
		WHERE id = $2`, forPostID, userID)
	return err
}

// Unsilence lifts a silence.
func (r *UserRepo) Unsilence(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET silenced_till = NULL, silenced_for_post_id = NULL
		WHERE id = $1`, userID)
	return err
}

// WasAutoSilencedFor reports whether the post's author is currently
// silenced specifically because of this post.
func (r *UserRepo) WasAutoSilencedFor(ctx context.Context, postID int64) (bool, error) {
	var silenced bool
	err := r.pool.QueryRow(ctx, `
		SELECT u.silenced_till IS NOT NULL AND u.silenced_till > NOW()
		FROM users u
		JOIN posts p ON p.user_id = u.id
		WHERE p.id = $1 AND u.silenced_for_post_id = $1`, postID).Scan(&silenced)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return silenced, err
}
