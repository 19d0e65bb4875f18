package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikadit/modqueue/internal/model"
	"github.com/mikadit/modqueue/pkg/excerpt"
)

// ExcerptLength is the rendered excerpt size for report rows.
const ExcerptLength = 200

type PostRepo struct {
	pool *pgxpool.Pool
}

func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

// Find returns the minimal snapshot the action path needs: author, topic,
// position and hidden/deleted state. Soft-deleted posts are still returned.
func (r *PostRepo) Find(ctx context.Context, postID int64) (*model.PostSnapshot, error) {
	var p model.PostSnapshot
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, topic_id, post_number, reply_count,
		       hidden, deleted_at, user_deleted
		FROM posts WHERE id = $1`, postID).Scan(
		&p.ID, &p.UserID, &p.TopicID, &p.PostNumber, &p.ReplyCount,
		&p.Hidden, &p.DeletedAt, &p.UserDeleted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Hide marks the post hidden, recording the flag type that triggered it.
func (r *PostRepo) Hide(ctx context.Context, postID int64, reason model.FlagType) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET hidden = true, hidden_at = NOW(), hidden_reason = $1
		WHERE id = $2`, reason, postID)
	return err
}

// Unhide clears the hidden state after a disagree.
func (r *PostRepo) Unhide(ctx context.Context, postID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET hidden = false, hidden_at = NULL, hidden_reason = NULL
		WHERE id = $1`, postID)
	return err
}

// IsHidden reports the current hidden state.
func (r *PostRepo) IsHidden(ctx context.Context, postID int64) (bool, error) {
	var hidden bool
	err := r.pool.QueryRow(ctx,
		`SELECT hidden FROM posts WHERE id = $1`, postID).Scan(&hidden)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, model.ErrNotFound
	}
	return hidden, err
}

// Delete soft-deletes the post on behalf of the actor.
func (r *PostRepo) Delete(ctx context.Context, postID, actorID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE posts SET deleted_at = NOW(), deleted_by = $1
		WHERE id = $2 AND deleted_at IS NULL`, actorID, postID)
	return err
}

// Restore recovers a previously soft-deleted post.
func (r *PostRepo) Restore(ctx context.Context, postID, actorID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE posts SET deleted_at = NULL, deleted_by = NULL
		WHERE id = $1 AND deleted_at IS NOT NULL`, postID)
	return err
}

// Excerpt renders a plain-text excerpt of the post body.
func (r *PostRepo) Excerpt(ctx context.Context, postID int64, maxLen int) (string, error) {
	var cooked string
	err := r.pool.QueryRow(ctx,
		`SELECT cooked FROM posts WHERE id = $1`, postID).Scan(&cooked)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return excerpt.Render(cooked, maxLen), nil
}

// BulkSnapshots loads full report snapshots for a set of posts in one
// query, including the last-revision time and the count of previously
// resolved flags on each post.
func (r *PostRepo) BulkSnapshots(ctx context.Context, postIDs []int64) (map[int64]*model.PostSnapshot, error) {
	if len(postIDs) == 0 {
		return map[int64]*model.PostSnapshot{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.user_id, p.topic_id, p.post_number, p.cooked,
		       p.reply_count, p.hidden, p.deleted_at, p.user_deleted,
		       (SELECT MAX(created_at) FROM post_revisions
		         WHERE post_id = p.id AND user_id = p.user_id) AS last_revised_at,
		       (SELECT COUNT(*) FROM score_entries e
		         JOIN review_cases c ON c.id = e.case_id
		         WHERE c.target_id = p.id AND c.target_type = 'post'
		           AND e.disposition <> '')::int AS previous_flags_count
		FROM posts p
		WHERE p.id = ANY($1)`, postIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make(map[int64]*model.PostSnapshot, len(postIDs))
	for rows.Next() {
		var p model.PostSnapshot
		var cooked string
		err := rows.Scan(
			&p.ID, &p.UserID, &p.TopicID, &p.PostNumber, &cooked,
			&p.ReplyCount, &p.Hidden, &p.DeletedAt, &p.UserDeleted,
			&p.LastRevisedAt, &p.PreviousFlagsCount,
		)
		if err != nil {
			return nil, err
		}
		p.Excerpt = excerpt.Render(cooked, ExcerptLength)
		snapshots[p.ID] = &p
	}
	return snapshots, rows.Err()
}

// conversationRow is one excerpted post from a related private topic.
type conversationRow struct {
	TopicID    int64
	UserID     int64
	Excerpt    string
	Position   int
	PostsCount int
}

// ConversationPreviews maps each related post to the first two replies of
// its topic. Two queries total regardless of how many entries reference a
// conversation.
func (r *PostRepo) ConversationPreviews(ctx context.Context, relatedPostIDs []int64) (map[int64]*model.Conversation, error) {
	if len(relatedPostIDs) == 0 {
		return map[int64]*model.Conversation{}, nil
	}

	// Related post → owning topic.
	rows, err := r.pool.Query(ctx,
		`SELECT id, topic_id FROM posts WHERE id = ANY($1)`, relatedPostIDs)
	if err != nil {
		return nil, err
	}
	topicByPost := make(map[int64]int64)
	topicIDs := make([]int64, 0, len(relatedPostIDs))
	for rows.Next() {
		var postID, topicID int64
		if err := rows.Scan(&postID, &topicID); err != nil {
			rows.Close()
			return nil, err
		}
		topicByPost[postID] = topicID
		topicIDs = append(topicIDs, topicID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(topicIDs) == 0 {
		return map[int64]*model.Conversation{}, nil
	}

	// First two ordered posts per topic, plus the topic's total post count
	// so HasMore doesn't need a third query.
	rows, err = r.pool.Query(ctx, `
		SELECT topic_id, user_id, cooked, rn, posts_count FROM (
			SELECT p.topic_id, p.user_id, p.cooked, t.posts_count,
			       ROW_NUMBER() OVER (PARTITION BY p.topic_id ORDER BY p.post_number ASC) AS rn
			FROM posts p
			JOIN topics t ON t.id = p.topic_id
			WHERE p.topic_id = ANY($1) AND p.deleted_at IS NULL
		) ordered
		WHERE rn <= 2`, topicIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byTopic := make(map[int64]*model.Conversation)
	for rows.Next() {
		var row conversationRow
		var cooked string
		if err := rows.Scan(&row.TopicID, &row.UserID, &cooked, &row.Position, &row.PostsCount); err != nil {
			return nil, err
		}
		row.Excerpt = excerpt.Render(cooked, ExcerptLength)

		conv := byTopic[row.TopicID]
		if conv == nil {
			conv = &model.Conversation{}
			byTopic[row.TopicID] = conv
		}
		post := &model.ConversationPost{Excerpt: row.Excerpt, UserID: row.UserID}
		switch row.Position {
		case 1:
			conv.Response = post
		case 2:
			conv.Reply = post
			conv.HasMore = row.PostsCount > 2
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	previews := make(map[int64]*model.Conversation, len(topicByPost))
	for postID, topicID := range topicByPost {
		if conv, ok := byTopic[topicID]; ok {
			previews[postID] = conv
		}
	}
	return previews, nil
}
