package service

import (
	"context"

	"github.com/mikadit/modqueue/internal/model"
)

// CaseStore is the durable record of review cases and score entries. The
// repository implementation applies resolutions transactionally under
// optimistic concurrency (model.ErrConflict on a lost race).
type CaseStore interface {
	FindByID(ctx context.Context, id int64) (*model.ReviewCase, error)
	ActiveEntries(ctx context.Context, caseID int64, types []model.FlagType) ([]model.ScoreEntry, error)
	ApplyResolution(ctx context.Context, res *model.Resolution) error
}

// ContentStore is the narrow surface of the post subsystem the review core
// consumes. Hiding, deletion and restoration rules live behind it.
type ContentStore interface {
	Find(ctx context.Context, postID int64) (*model.PostSnapshot, error)
	Hide(ctx context.Context, postID int64, reason model.FlagType) error
	Unhide(ctx context.Context, postID int64) error
	IsHidden(ctx context.Context, postID int64) (bool, error)
	Delete(ctx context.Context, postID, actorID int64) error
	Restore(ctx context.Context, postID, actorID int64) error
}

// AccountStore covers the account-moderation operations triggered by
// review outcomes.
type AccountStore interface {
	Silence(ctx context.Context, userID, forPostID int64) error
	Unsilence(ctx context.Context, userID int64) error
	WasAutoSilencedFor(ctx context.Context, postID int64) (bool, error)
}

// Guardian is the external authorization predicate.
type Guardian interface {
	CanReview(actor model.Actor, c *model.ReviewCase) bool
	CanSee(actor model.Actor, c *model.ReviewCase) bool
	CanDelete(actor model.Actor, topicID int64) bool
}

// SignalEmitter publishes review events to subscribers. Emission is
// best-effort and at-least-once; it runs only after the case transition
// committed and its failures never roll anything back.
type SignalEmitter interface {
	Emit(ctx context.Context, event string, payload any)
}

// StatRecorder updates per-user moderation-outcome counters.
type StatRecorder interface {
	Apply(ctx context.Context, outcome model.CaseStatus, targetUserID int64, reviewerIDs []int64) error
}

// StatsStore is the counter persistence behind FlagStatsService.
type StatsStore interface {
	ApplyOutcome(ctx context.Context, outcome model.CaseStatus, userIDs []int64) ([]model.StatTotal, error)
	Truncate(ctx context.Context, userID int64, ceiling int) error
}

// AsyncScheduler hands tasks to background processing. Enqueue must not
// block the action path on task execution.
type AsyncScheduler interface {
	Enqueue(ctx context.Context, task string, args any) error
}

// CustomFieldRegistry exposes plugin-contributed per-post fields to the
// report. The core holds no compile-time knowledge of field contents.
type CustomFieldRegistry interface {
	EnabledFieldNames(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, postIDs []int64, names []string) (map[int64]map[string]string, error)
}

// Review signal event names.
const (
	SignalFlagReviewed  = "flag_reviewed"
	SignalFlagAgreed    = "flag_agreed"
	SignalFlagDisagreed = "flag_disagreed"
	SignalFlagDeferred  = "flag_deferred"
	SignalConfirmedSpam = "confirmed_spam"
)

// Background task names.
const (
	TaskTruncateFlagStats = "truncate_user_flag_stats"
)

// ModGuardian is the default Guardian: moderators review everything,
// topic deletion requires moderator rights, the system actor is always
// allowed.
type ModGuardian struct{}

func (ModGuardian) CanReview(actor model.Actor, _ *model.ReviewCase) bool {
	return actor.IsModerator || actor.IsSystem
}

func (ModGuardian) CanSee(actor model.Actor, _ *model.ReviewCase) bool {
	return actor.IsModerator || actor.IsSystem
}

func (ModGuardian) CanDelete(actor model.Actor, _ int64) bool {
	return actor.IsModerator || actor.IsSystem
}
