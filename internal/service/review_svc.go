package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikadit/modqueue/internal/model"
)

// ReviewService is the review-case state machine. A pending case moves to
// exactly one of approved/rejected/ignored; entry stamping and the status
// transition commit as one unit, signals and counters follow the commit.
type ReviewService struct {
	cases    CaseStore
	posts    ContentStore
	accounts AccountStore
	guardian Guardian
	signals  SignalEmitter
	stats    StatRecorder
	cache    *CacheService
	log      zerolog.Logger
}

func NewReviewService(
	cases CaseStore,
	posts ContentStore,
	accounts AccountStore,
	guardian Guardian,
	signals SignalEmitter,
	stats StatRecorder,
	cache *CacheService,
	log zerolog.Logger,
) *ReviewService {
	return &ReviewService{
		cases:    cases,
		posts:    posts,
		accounts: accounts,
		guardian: guardian,
		signals:  signals,
		stats:    stats,
		cache:    cache,
		log:      log,
	}
}

// Perform runs one terminal action against a case on behalf of an actor.
// On a version race the caller gets model.ErrConflict and decides whether
// to retry against the fresh state; nothing is retried here.
func (s *ReviewService) Perform(ctx context.Context, caseID int64, actor model.Actor, action model.Action, opts model.PerformOpts) (*model.PerformResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAction, action)
	}

	c, err := s.cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !s.guardian.CanReview(actor, c) {
		return nil, model.ErrForbidden
	}
	if c.Status.Terminal() {
		return nil, model.ErrAlreadyHandled
	}

	post, err := s.posts.Find(ctx, c.TargetID)
	if err != nil {
		return nil, err
	}

	var result *model.PerformResult
	switch action {
	case model.ActionAgree:
		result, err = s.performAgree(ctx, c, post, actor, opts)
	case model.ActionDisagree:
		result, err = s.performDisagree(ctx, c, post, actor)
	case model.ActionIgnore:
		result, err = s.performIgnore(ctx, c, post, actor, opts)
	}
	// A non-nil result means the resolution committed; invalidate the
	// cached report even when a post side effect failed afterwards.
	if result != nil {
		s.cache.InvalidateReports(ctx)
	}
	return result, err
}

func (s *ReviewService) performAgree(ctx context.Context, c *model.ReviewCase, post *model.PostSnapshot, actor model.Actor, opts model.PerformOpts) (*model.PerformResult, error) {
	if !model.ValidDisposal(opts.ActionOnPost) {
		return nil, fmt.Errorf("%w: action_on_post %q", model.ErrInvalidAction, opts.ActionOnPost)
	}
	// Deleting a topic starter takes the whole topic with it; check the
	// topic permission before anything commits.
	if opts.ActionOnPost == model.DisposalDelete && post.PostNumber == 1 && !s.guardian.CanDelete(actor, c.TopicID) {
		return nil, model.ErrForbidden
	}

	entries, err := s.cases.ActiveEntries(ctx, c.ID, model.FlagTypes())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.cases.ApplyResolution(ctx, &model.Resolution{
		CaseID:          c.ID,
		TargetID:        c.TargetID,
		ExpectedVersion: c.Version,
		NewStatus:       model.StatusApproved,
		Disposition:     model.DispositionAgreed,
		DisposedBy:      actor.ID,
		DisposedAt:      now,
		EntryIDs:        entryIDs(entries),
	})
	if err != nil {
		return nil, err
	}

	// The resolution is committed; counters and signals land no matter
	// what happens to the post below.
	if err := s.stats.Apply(ctx, model.StatusApproved, post.UserID, reviewerIDs(entries)); err != nil {
		s.log.Error().Err(err).Int64("case_id", c.ID).Msg("review: flag stats update failed")
	}

	var sideErr error
	switch opts.ActionOnPost {
	case model.DisposalDelete:
		sideErr = s.posts.Delete(ctx, c.TargetID, actor.ID)
	case model.DisposalRestore:
		sideErr = s.posts.Restore(ctx, c.TargetID, actor.ID)
	case model.DisposalKeep:
		// Flag upheld but the post stays up (author handled separately).
	default: // hide
		if len(entries) > 0 {
			sideErr = s.posts.Hide(ctx, c.TargetID, entries[0].Type)
		}
	}

	if hasSpamEntry(entries) {
		s.signals.Emit(ctx, SignalConfirmedSpam, signalPayload(c, nil))
	}
	if len(entries) > 0 {
		s.signals.Emit(ctx, SignalFlagReviewed, signalPayload(c, nil))
		s.signals.Emit(ctx, SignalFlagAgreed, signalPayload(c, &entries[0]))
	}

	result := &model.PerformResult{Status: model.StatusApproved, RecalculateScore: true}
	if sideErr != nil {
		return result, fmt.Errorf("agree side effect: %w", sideErr)
	}
	return result, nil
}

func (s *ReviewService) performDisagree(ctx context.Context, c *model.ReviewCase, post *model.PostSnapshot, actor model.Actor) (*model.PerformResult, error) {
	// The system actor only cleans up after its own automatic flags; a
	// human disagreeing overrides every flag type.
	types := model.FlagTypes()
	if actor.IsSystem {
		types = model.AutoActionFlagTypes()
	}

	entries, err := s.cases.ActiveEntries(ctx, c.ID, types)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.cases.ApplyResolution(ctx, &model.Resolution{
		CaseID:            c.ID,
		TargetID:          c.TargetID,
		ExpectedVersion:   c.Version,
		NewStatus:         model.StatusRejected,
		Disposition:       model.DispositionDisagreed,
		DisposedBy:        actor.ID,
		DisposedAt:        now,
		EntryIDs:          entryIDs(entries),
		ResetCounterTypes: types,
	})
	if err != nil {
		return nil, err
	}

	if err := s.stats.Apply(ctx, model.StatusRejected, post.UserID, reviewerIDs(entries)); err != nil {
		s.log.Error().Err(err).Int64("case_id", c.ID).Msg("review: flag stats update failed")
	}

	if len(entries) > 0 {
		s.signals.Emit(ctx, SignalFlagReviewed, signalPayload(c, nil))
		s.signals.Emit(ctx, SignalFlagDisagreed, signalPayload(c, &entries[0]))
	}

	result := &model.PerformResult{Status: model.StatusRejected, RecalculateScore: true}
	if sideErr := s.restorePost(ctx, c, post); sideErr != nil {
		return result, fmt.Errorf("disagree side effect: %w", sideErr)
	}
	return result, nil
}

// restorePost undoes the automatic consequences of the flags on a
// disagreed case: unhide the post and lift an auto-silence tied to it.
func (s *ReviewService) restorePost(ctx context.Context, c *model.ReviewCase, post *model.PostSnapshot) error {
	hidden, err := s.posts.IsHidden(ctx, c.TargetID)
	if err != nil {
		return err
	}
	if !hidden {
		return nil
	}
	if err := s.posts.Unhide(ctx, c.TargetID); err != nil {
		return fmt.Errorf("unhide post %d: %w", c.TargetID, err)
	}
	autoSilenced, err := s.accounts.WasAutoSilencedFor(ctx, c.TargetID)
	if err != nil {
		return err
	}
	if autoSilenced {
		if err := s.accounts.Unsilence(ctx, post.UserID); err != nil {
			return fmt.Errorf("unsilence user %d: %w", post.UserID, err)
		}
	}
	return nil
}

func (s *ReviewService) performIgnore(ctx context.Context, c *model.ReviewCase, post *model.PostSnapshot, actor model.Actor, opts model.PerformOpts) (*model.PerformResult, error) {
	if opts.DeletePost && post.PostNumber == 1 && !s.guardian.CanDelete(actor, c.TopicID) {
		return nil, model.ErrForbidden
	}

	entries, err := s.cases.ActiveEntries(ctx, c.ID, model.FlagTypes())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.cases.ApplyResolution(ctx, &model.Resolution{
		CaseID:          c.ID,
		TargetID:        c.TargetID,
		ExpectedVersion: c.Version,
		NewStatus:       model.StatusIgnored,
		Disposition:     model.DispositionDeferred,
		DisposedBy:      actor.ID,
		DisposedAt:      now,
		EntryIDs:        entryIDs(entries),
	})
	if err != nil {
		return nil, err
	}

	if err := s.stats.Apply(ctx, model.StatusIgnored, post.UserID, reviewerIDs(entries)); err != nil {
		s.log.Error().Err(err).Int64("case_id", c.ID).Msg("review: flag stats update failed")
	}

	// Deletion is requested alongside ignoring but runs strictly after the
	// deferral is recorded; ignore itself never hides or unhides.
	var sideErr error
	if opts.DeletePost {
		sideErr = s.posts.Delete(ctx, c.TargetID, actor.ID)
	}

	if len(entries) > 0 {
		s.signals.Emit(ctx, SignalFlagReviewed, signalPayload(c, nil))
		s.signals.Emit(ctx, SignalFlagDeferred, signalPayload(c, &entries[0]))
	}

	result := &model.PerformResult{Status: model.StatusIgnored, RecalculateScore: true}
	if sideErr != nil {
		return result, fmt.Errorf("delete post %d: %w", c.TargetID, sideErr)
	}
	return result, nil
}

func entryIDs(entries []model.ScoreEntry) []int64 {
	ids := make([]int64, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	return ids
}

// reviewerIDs returns the distinct flaggers behind a set of entries.
func reviewerIDs(entries []model.ScoreEntry) []int64 {
	seen := make(map[int64]struct{}, len(entries))
	ids := make([]int64, 0, len(entries))
	for i := range entries {
		if _, ok := seen[entries[i].ReviewerID]; ok {
			continue
		}
		seen[entries[i].ReviewerID] = struct{}{}
		ids = append(ids, entries[i].ReviewerID)
	}
	return ids
}

func hasSpamEntry(entries []model.ScoreEntry) bool {
	for i := range entries {
		if entries[i].Type == model.FlagSpam {
			return true
		}
	}
	return false
}

func signalPayload(c *model.ReviewCase, entry *model.ScoreEntry) map[string]any {
	payload := map[string]any{
		"caseId": c.ID,
		"postId": c.TargetID,
	}
	if entry != nil {
		payload["entry"] = entry
	}
	return payload
}
