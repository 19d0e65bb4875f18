package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikadit/modqueue/internal/model"
)

type CaseRepo struct {
	pool *pgxpool.Pool
}

func NewCaseRepo(pool *pgxpool.Pool) *CaseRepo {
	return &CaseRepo{pool: pool}
}

// flagCountColumns maps flag types to the denormalized counter columns on
// posts. Only these columns may be reset; never interpolate raw input.
var flagCountColumns = map[model.FlagType]string{
	model.FlagOffTopic:         "off_topic_count",
	model.FlagInappropriate:    "inappropriate_count",
	model.FlagSpam:             "spam_count",
	model.FlagIllegal:          "illegal_count",
	model.FlagNotifyModerators: "notify_moderators_count",
}

const caseColumns = `id, target_type, target_id, target_created_by, topic_id,
       category_id, status, score, version, claimed_by, created_at, updated_at`

func scanCase(row pgx.Row) (*model.ReviewCase, error) {
	var c model.ReviewCase
	err := row.Scan(
		&c.ID, &c.TargetType, &c.TargetID, &c.TargetCreatedBy, &c.TopicID,
		&c.CategoryID, &c.Status, &c.Score, &c.Version, &c.ClaimedBy,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByID returns a single review case.
func (r *CaseRepo) FindByID(ctx context.Context, id int64) (*model.ReviewCase, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+caseColumns+` FROM review_cases WHERE id = $1`, id)
	return scanCase(row)
}

// FindPendingByTarget returns the open case for a target, if any.
// (target_type, target_id) is unique among pending cases.
func (r *CaseRepo) FindPendingByTarget(ctx context.Context, targetType string, targetID int64) (*model.ReviewCase, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+caseColumns+` FROM review_cases
		 WHERE target_type = $1 AND target_id = $2 AND status = 'pending'`,
		targetType, targetID)
	return scanCase(row)
}

// RecordFlag inserts a score entry, appending to the pending case for the
// target or opening a new one if none exists (a terminal case never
// reopens). The case score is bumped immediately; the recalc worker settles
// the authoritative aggregate.
func (r *CaseRepo) RecordFlag(ctx context.Context, f model.Flag) (*model.ReviewCase, error) {
	if !model.ValidFlagType(f.Type) {
		return nil, fmt.Errorf("%w: flag type %q", model.ErrInvalidAction, f.Type)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Target must exist; its author and topic are denormalized onto the case.
	var authorID, topicID int64
	var categoryID *int64
	err = tx.QueryRow(ctx, `
		SELECT p.user_id, p.topic_id, t.category_id
		FROM posts p JOIN topics t ON t.id = p.topic_id
		WHERE p.id = $1`, f.TargetID).Scan(&authorID, &topicID, &categoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c, err := scanCase(tx.QueryRow(ctx,
		`SELECT `+caseColumns+` FROM review_cases
		 WHERE target_type = $1 AND target_id = $2 AND status = 'pending'
		 FOR UPDATE`,
		f.TargetType, f.TargetID))
	if errors.Is(err, model.ErrNotFound) {
		c, err = scanCase(tx.QueryRow(ctx, `
			INSERT INTO review_cases
				(target_type, target_id, target_created_by, topic_id, category_id, status, score, version)
			VALUES ($1, $2, $3, $4, $5, 'pending', 0, 0)
			RETURNING `+caseColumns,
			f.TargetType, f.TargetID, authorID, topicID, categoryID))
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO score_entries
			(case_id, reviewer_id, type, weight, reason, related_post_id, targets_topic)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, f.ReviewerID, f.Type, f.Weight, f.Reason, f.RelatedPostID, f.TargetsTopic)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE review_cases SET score = score + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING score`, f.Weight, c.ID).Scan(&c.Score)
	if err != nil {
		return nil, err
	}

	// Keep the denormalized per-type counter on the post in step.
	_, err = tx.Exec(ctx, fmt.Sprintf(
		`UPDATE posts SET %s = %s + 1 WHERE id = $1`,
		flagCountColumns[f.Type], flagCountColumns[f.Type]), f.TargetID)
	if err != nil {
		return nil, err
	}

	// Wake the recalc worker once the insert commits.
	_, err = tx.Exec(ctx, `SELECT pg_notify('case_changes', $1::text)`, c.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ActiveEntries returns undisposed score entries on a case whose type is in
// the given set, oldest first.
func (r *CaseRepo) ActiveEntries(ctx context.Context, caseID int64, types []model.FlagType) ([]model.ScoreEntry, error) {
	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = string(t)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, reviewer_id, type, weight, disposition,
		       disposed_by, disposed_at, related_post_id, targets_topic, created_at
		FROM score_entries
		WHERE case_id = $1 AND disposition = '' AND type = ANY($2)
		ORDER BY created_at ASC, id ASC`,
		caseID, typeNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// EntriesForCases bulk-loads every score entry for a page of cases in a
// single query, newest first per case.
func (r *CaseRepo) EntriesForCases(ctx context.Context, caseIDs []int64) (map[int64][]model.ScoreEntry, error) {
	if len(caseIDs) == 0 {
		return map[int64][]model.ScoreEntry{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, reviewer_id, type, weight, disposition,
		       disposed_by, disposed_at, related_post_id, targets_topic, created_at
		FROM score_entries
		WHERE case_id = ANY($1)
		ORDER BY created_at DESC, id DESC`,
		caseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	byCase := make(map[int64][]model.ScoreEntry, len(caseIDs))
	for _, e := range entries {
		byCase[e.CaseID] = append(byCase[e.CaseID], e)
	}
	return byCase, nil
}

func scanEntries(rows pgx.Rows) ([]model.ScoreEntry, error) {
	var entries []model.ScoreEntry
	for rows.Next() {
		var e model.ScoreEntry
		err := rows.Scan(
			&e.ID, &e.CaseID, &e.ReviewerID, &e.Type, &e.Weight, &e.Disposition,
			&e.DisposedBy, &e.DisposedAt, &e.RelatedPostID, &e.TargetsTopic, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ApplyResolution stamps the selected entries, zeroes the requested post
// counters and transitions the case, all in one transaction. The status
// update is conditioned on the version being unchanged; a concurrent writer
// surfaces as model.ErrConflict and nothing is applied.
func (r *CaseRepo) ApplyResolution(ctx context.Context, res *model.Resolution) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE review_cases
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3 AND status = 'pending'`,
		res.NewStatus, res.CaseID, res.ExpectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Disambiguate: gone, version raced, or already terminal. The
		// caller read the case as pending, so a changed version means a
		// concurrent writer got there first and must surface as a
		// conflict even when that writer also closed the case.
		var status model.CaseStatus
		var version int
		err := tx.QueryRow(ctx,
			`SELECT status, version FROM review_cases WHERE id = $1`, res.CaseID).
			Scan(&status, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		if version != res.ExpectedVersion {
			return model.ErrConflict
		}
		if status.Terminal() {
			return model.ErrAlreadyHandled
		}
		return model.ErrConflict
	}

	if len(res.EntryIDs) > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE score_entries
			SET disposition = $1, disposed_by = $2, disposed_at = $3
			WHERE id = ANY($4) AND disposition = ''`,
			res.Disposition, res.DisposedBy, res.DisposedAt, res.EntryIDs)
		if err != nil {
			return err
		}
	}

	// Soft-deleted posts keep their row, so no deleted_at filter here.
	for _, t := range res.ResetCounterTypes {
		col, ok := flagCountColumns[t]
		if !ok {
			continue
		}
		_, err = tx.Exec(ctx, fmt.Sprintf(
			`UPDATE posts SET %s = 0 WHERE id = $1`, col), res.TargetID)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `SELECT pg_notify('case_changes', $1::text)`, res.CaseID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CaseQuery selects and windows cases for the report.
type CaseQuery struct {
	Filter   model.ReportFilter
	TopicID  *int64
	UserID   *int64 // target_created_by
	MinScore float64
	Offset   int
	Limit    int
}

func (q CaseQuery) where() (string, []any) {
	clause := `WHERE target_type = 'post'`
	args := []any{}

	if q.Filter == model.FilterOld {
		clause += ` AND status <> 'pending'`
	} else {
		clause += ` AND status = 'pending'`
		if q.MinScore > 0 {
			args = append(args, q.MinScore)
			clause += fmt.Sprintf(` AND score >= $%d`, len(args))
		}
	}
	if q.TopicID != nil {
		args = append(args, *q.TopicID)
		clause += fmt.Sprintf(` AND topic_id = $%d`, len(args))
	}
	if q.UserID != nil {
		args = append(args, *q.UserID)
		clause += fmt.Sprintf(` AND target_created_by = $%d`, len(args))
	}
	return clause, args
}

// pageSQL builds the windowed page query. Highest score first; ties
// break on creation time then id so offset windows partition the
// matching set without overlap.
func (q CaseQuery) pageSQL() (string, []any) {
	clause, args := q.where()
	args = append(args, q.Limit, q.Offset)
	query := fmt.Sprintf(`
		SELECT `+caseColumns+` FROM review_cases
		%s
		ORDER BY score DESC, created_at ASC, id ASC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))
	return query, args
}

// Page returns one window of matching cases.
func (r *CaseRepo) Page(ctx context.Context, q CaseQuery) ([]model.ReviewCase, error) {
	query, args := q.pageSQL()
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []model.ReviewCase
	for rows.Next() {
		var c model.ReviewCase
		err := rows.Scan(
			&c.ID, &c.TargetType, &c.TargetID, &c.TargetCreatedBy, &c.TopicID,
			&c.CategoryID, &c.Status, &c.Score, &c.Version, &c.ClaimedBy,
			&c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// PendingFlagRow is one score entry on a pending, default-visible case,
// used by the flagged-topics digest.
type PendingFlagRow struct {
	Type       model.FlagType
	PostID     int64
	TopicID    int64
	ReviewerID int64
	CreatedAt  time.Time
}

// PendingFlagRows returns entry rows for every pending case at or above
// the visibility threshold, newest flag first.
func (r *CaseRepo) PendingFlagRows(ctx context.Context, minScore float64) ([]PendingFlagRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.type, c.target_id, c.topic_id, e.reviewer_id, e.created_at
		FROM review_cases c
		JOIN score_entries e ON e.case_id = c.id
		WHERE c.target_type = 'post'
		  AND c.status = 'pending'
		  AND e.disposition = ''
		  AND c.score >= $1
		ORDER BY e.created_at DESC, e.id DESC`, minScore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingFlagRow
	for rows.Next() {
		var row PendingFlagRow
		if err := rows.Scan(&row.Type, &row.PostID, &row.TopicID, &row.ReviewerID, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Count returns the unwindowed size of the matching set.
func (r *CaseRepo) Count(ctx context.Context, q CaseQuery) (int, error) {
	clause, args := q.where()
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM review_cases `+clause, args...).Scan(&total)
	return total, err
}
