package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikadit/modqueue/internal/model"
)

type TopicRepo struct {
	pool *pgxpool.Pool
}

func NewTopicRepo(pool *pgxpool.Pool) *TopicRepo {
	return &TopicRepo{pool: pool}
}

// BulkWithDeleted loads topics by id, soft-deleted ones included — the
// report still shows rows whose topic has been removed.
func (r *TopicRepo) BulkWithDeleted(ctx context.Context, topicIDs []int64) ([]model.Topic, error) {
	if len(topicIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, title, category_id, posts_count, deleted_at
		FROM topics
		WHERE id = ANY($1)
		ORDER BY id ASC`, topicIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []model.Topic
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Title, &t.CategoryID, &t.PostsCount, &t.DeletedAt); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
