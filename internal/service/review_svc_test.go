package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikadit/modqueue/internal/model"
)

// --- In-memory fakes ---

type fakeCaseStore struct {
	cases       map[int64]*model.ReviewCase
	entries     map[int64][]model.ScoreEntry
	resolutions []*model.Resolution
	ops         *[]string // shared op log for ordering assertions
}

func newFakeCaseStore() *fakeCaseStore {
	ops := make([]string, 0, 8)
	return &fakeCaseStore{
		cases:   make(map[int64]*model.ReviewCase),
		entries: make(map[int64][]model.ScoreEntry),
		ops:     &ops,
	}
}

func (f *fakeCaseStore) FindByID(_ context.Context, id int64) (*model.ReviewCase, error) {
	c, ok := f.cases[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCaseStore) ActiveEntries(_ context.Context, caseID int64, types []model.FlagType) ([]model.ScoreEntry, error) {
	wanted := make(map[model.FlagType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	var out []model.ScoreEntry
	for _, e := range f.entries[caseID] {
		if e.Active() && wanted[e.Type] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCaseStore) ApplyResolution(_ context.Context, res *model.Resolution) error {
	c, ok := f.cases[res.CaseID]
	if !ok {
		return model.ErrNotFound
	}
	if c.Version != res.ExpectedVersion {
		return model.ErrConflict
	}
	if c.Status.Terminal() {
		return model.ErrAlreadyHandled
	}
	c.Status = res.NewStatus
	c.Version++
	stamped := make(map[int64]bool, len(res.EntryIDs))
	for _, id := range res.EntryIDs {
		stamped[id] = true
	}
	list := f.entries[res.CaseID]
	for i := range list {
		if stamped[list[i].ID] {
			list[i].Disposition = res.Disposition
			by := res.DisposedBy
			at := res.DisposedAt
			list[i].DisposedBy = &by
			list[i].DisposedAt = &at
		}
	}
	f.resolutions = append(f.resolutions, res)
	*f.ops = append(*f.ops, "resolve")
	return nil
}

type fakeContentStore struct {
	posts    map[int64]*model.PostSnapshot
	hidden   map[int64]bool
	deleted  map[int64]bool
	hideType map[int64]model.FlagType
	ops      *[]string

	hideErr   error
	deleteErr error
}

func newFakeContentStore(ops *[]string) *fakeContentStore {
	return &fakeContentStore{
		posts:    make(map[int64]*model.PostSnapshot),
		hidden:   make(map[int64]bool),
		deleted:  make(map[int64]bool),
		hideType: make(map[int64]model.FlagType),
		ops:      ops,
	}
}

func (f *fakeContentStore) Find(_ context.Context, id int64) (*model.PostSnapshot, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeContentStore) Hide(_ context.Context, id int64, reason model.FlagType) error {
	if f.hideErr != nil {
		return f.hideErr
	}
	f.hidden[id] = true
	f.hideType[id] = reason
	*f.ops = append(*f.ops, "hide")
	return nil
}

func (f *fakeContentStore) Unhide(_ context.Context, id int64) error {
	f.hidden[id] = false
	*f.ops = append(*f.ops, "unhide")
	return nil
}

func (f *fakeContentStore) IsHidden(_ context.Context, id int64) (bool, error) {
	return f.hidden[id], nil
}

func (f *fakeContentStore) Delete(_ context.Context, id, _ int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted[id] = true
	*f.ops = append(*f.ops, "delete")
	return nil
}

func (f *fakeContentStore) Restore(_ context.Context, id, _ int64) error {
	f.deleted[id] = false
	*f.ops = append(*f.ops, "restore")
	return nil
}

type fakeAccountStore struct {
	silencedForPost map[int64]bool // keyed by post id
	unsilenced      []int64
}

func (f *fakeAccountStore) Silence(_ context.Context, _, _ int64) error { return nil }

func (f *fakeAccountStore) Unsilence(_ context.Context, userID int64) error {
	f.unsilenced = append(f.unsilenced, userID)
	return nil
}

func (f *fakeAccountStore) WasAutoSilencedFor(_ context.Context, postID int64) (bool, error) {
	return f.silencedForPost[postID], nil
}

type fakeSignals struct {
	events []string
}

func (f *fakeSignals) Emit(_ context.Context, event string, _ any) {
	f.events = append(f.events, event)
}

func (f *fakeSignals) count(event string) int {
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

type statsCall struct {
	outcome      model.CaseStatus
	targetUserID int64
	reviewerIDs  []int64
}

type fakeStats struct {
	calls []statsCall
}

func (f *fakeStats) Apply(_ context.Context, outcome model.CaseStatus, targetUserID int64, reviewerIDs []int64) error {
	f.calls = append(f.calls, statsCall{outcome, targetUserID, reviewerIDs})
	return nil
}

// allowGuardian permits review but makes topic deletion configurable.
type allowGuardian struct {
	canDelete bool
}

func (g allowGuardian) CanReview(model.Actor, *model.ReviewCase) bool { return true }
func (g allowGuardian) CanSee(model.Actor, *model.ReviewCase) bool    { return true }
func (g allowGuardian) CanDelete(model.Actor, int64) bool             { return g.canDelete }

// --- Fixture ---

type reviewFixture struct {
	svc      *ReviewService
	cases    *fakeCaseStore
	posts    *fakeContentStore
	accounts *fakeAccountStore
	signals  *fakeSignals
	stats    *fakeStats
}

func newReviewFixture(guardian Guardian) *reviewFixture {
	cs := newFakeCaseStore()
	posts := newFakeContentStore(cs.ops)
	accounts := &fakeAccountStore{silencedForPost: make(map[int64]bool)}
	signals := &fakeSignals{}
	stats := &fakeStats{}
	return &reviewFixture{
		svc:      NewReviewService(cs, posts, accounts, guardian, signals, stats, nil, zerolog.Nop()),
		cases:    cs,
		posts:    posts,
		accounts: accounts,
		signals:  signals,
		stats:    stats,
	}
}

func (fx *reviewFixture) seedCase(id int64, entries ...model.ScoreEntry) {
	fx.cases.cases[id] = &model.ReviewCase{
		ID:              id,
		TargetType:      "post",
		TargetID:        id * 10,
		TargetCreatedBy: 42,
		TopicID:         7,
		Status:          model.StatusPending,
		Version:         3,
		CreatedAt:       time.Now(),
	}
	fx.cases.entries[id] = entries
	fx.posts.posts[id*10] = &model.PostSnapshot{ID: id * 10, UserID: 42, TopicID: 7, PostNumber: 2}
}

func entry(id, reviewer int64, t model.FlagType) model.ScoreEntry {
	return model.ScoreEntry{ID: id, CaseID: 1, ReviewerID: reviewer, Type: t, Weight: 1}
}

var moderator = model.Actor{ID: 100, IsModerator: true}

func TestPerform_AgreeApprovesAndHides(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1,
		entry(11, 201, model.FlagInappropriate),
		entry(12, 202, model.FlagSpam),
	)

	result, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree, model.PerformOpts{})
	if err != nil {
		t.Fatalf("Perform(agree) error: %v", err)
	}
	if result.Status != model.StatusApproved {
		t.Errorf("status = %s, want approved", result.Status)
	}
	if !result.RecalculateScore {
		t.Error("expected RecalculateScore to be set")
	}
	if fx.cases.cases[1].Status != model.StatusApproved {
		t.Errorf("stored status = %s, want approved", fx.cases.cases[1].Status)
	}

	// Entries stamped agreed by the acting moderator
	for _, e := range fx.cases.entries[1] {
		if e.Disposition != model.DispositionAgreed {
			t.Errorf("entry %d disposition = %q, want agreed", e.ID, e.Disposition)
		}
		if e.DisposedBy == nil || *e.DisposedBy != moderator.ID {
			t.Errorf("entry %d disposedBy = %v, want %d", e.ID, e.DisposedBy, moderator.ID)
		}
	}

	// Default disposal hides the post with the first entry's type
	if !fx.posts.hidden[10] {
		t.Error("expected post 10 to be hidden")
	}
	if fx.posts.hideType[10] != model.FlagInappropriate {
		t.Errorf("hide reason = %s, want inappropriate (first entry)", fx.posts.hideType[10])
	}
}

func TestPerform_AgreeSpamEmitsConfirmedSpamOnce(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1,
		entry(11, 201, model.FlagSpam),
		entry(12, 202, model.FlagSpam),
	)

	if _, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree, model.PerformOpts{}); err != nil {
		t.Fatalf("Perform(agree) error: %v", err)
	}

	if n := fx.signals.count(SignalConfirmedSpam); n != 1 {
		t.Errorf("confirmed_spam emitted %d times, want 1", n)
	}
	if n := fx.signals.count(SignalFlagAgreed); n != 1 {
		t.Errorf("flag_agreed emitted %d times, want 1", n)
	}
}

func TestPerform_AgreeDeleteDisposal(t *testing.T) {
	fx := newReviewFixture(allowGuardian{canDelete: true})
	fx.seedCase(1, entry(11, 201, model.FlagIllegal))

	_, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree,
		model.PerformOpts{ActionOnPost: model.DisposalDelete})
	if err != nil {
		t.Fatalf("Perform(agree delete) error: %v", err)
	}
	if !fx.posts.deleted[10] {
		t.Error("expected post 10 to be deleted")
	}
	if fx.posts.hidden[10] {
		t.Error("delete disposal must not also hide")
	}
}

func TestPerform_AgreeKeepLeavesPostAlone(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagInappropriate))

	_, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree,
		model.PerformOpts{ActionOnPost: model.DisposalKeep})
	if err != nil {
		t.Fatalf("Perform(agree keep) error: %v", err)
	}
	if fx.posts.hidden[10] || fx.posts.deleted[10] {
		t.Error("keep disposal must not touch the post")
	}
	if fx.cases.cases[1].Status != model.StatusApproved {
		t.Errorf("status = %s, want approved", fx.cases.cases[1].Status)
	}
}

func TestPerform_AgreeDeleteTopicStarterNeedsTopicPermission(t *testing.T) {
	fx := newReviewFixture(allowGuardian{canDelete: false})
	fx.seedCase(1, entry(11, 201, model.FlagSpam))
	fx.posts.posts[10].PostNumber = 1 // topic starter

	_, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree,
		model.PerformOpts{ActionOnPost: model.DisposalDelete})
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}
	// Nothing committed
	if fx.cases.cases[1].Status != model.StatusPending {
		t.Errorf("status = %s, want still pending", fx.cases.cases[1].Status)
	}
}

func TestPerform_TerminalCaseIsAlreadyHandled(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagSpam))
	fx.cases.cases[1].Status = model.StatusRejected

	_, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree, model.PerformOpts{})
	if !errors.Is(err, model.ErrAlreadyHandled) {
		t.Fatalf("error = %v, want ErrAlreadyHandled", err)
	}
}

func TestPerform_VersionRaceSurfacesConflict(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagSpam))

	// Another writer bumps the version between read and resolution.
	fx.cases.cases[1].Version++

	_, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree, model.PerformOpts{})
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

// staleReadStore returns a snapshot captured before another writer
// committed, so the write-back runs against fresher state than the read.
type staleReadStore struct {
	*fakeCaseStore
	stale model.ReviewCase
}

func (s *staleReadStore) FindByID(context.Context, int64) (*model.ReviewCase, error) {
	cp := s.stale
	return &cp, nil
}

func TestPerform_ConcurrentActionsSingleWinner(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagSpam))

	// Both moderators load the case while it is still pending.
	stale := *fx.cases.cases[1]

	if _, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree, model.PerformOpts{}); err != nil {
		t.Fatalf("first action error: %v", err)
	}

	// The loser acts on the snapshot it read before the winner committed;
	// the stale version must surface as a conflict, not already-handled.
	loser := NewReviewService(
		&staleReadStore{fakeCaseStore: fx.cases, stale: stale},
		fx.posts, fx.accounts, allowGuardian{}, fx.signals, fx.stats, nil, zerolog.Nop(),
	)
	_, err := loser.Perform(context.Background(), 1, moderator, model.ActionDisagree, model.PerformOpts{})
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("second action error = %v, want ErrConflict", err)
	}
	if got := fx.cases.cases[1].Status; got != model.StatusApproved {
		t.Errorf("status = %s, want approved (first action wins)", got)
	}
}

func TestPerform_UnknownCase(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})

	_, err := fx.svc.Perform(context.Background(), 99, moderator, model.ActionAgree, model.PerformOpts{})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPerform_InvalidAction(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1)

	_, err := fx.svc.Perform(context.Background(), 1, moderator, model.Action("escalate"), model.PerformOpts{})
	if !errors.Is(err, model.ErrInvalidAction) {
		t.Fatalf("error = %v, want ErrInvalidAction", err)
	}
}

func TestPerform_NonModeratorForbidden(t *testing.T) {
	fx := newReviewFixture(ModGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagSpam))

	_, err := fx.svc.Perform(context.Background(), 1, model.Actor{ID: 300}, model.ActionAgree, model.PerformOpts{})
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}
}

func TestPerform_DisagreeBySystemOnlyClearsAutoActionTypes(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1,
		entry(11, 201, model.FlagSpam),              // auto-action
		entry(12, 202, model.FlagIllegal),           // not auto-action
		entry(13, 203, model.FlagNotifyModerators),  // not auto-action
	)

	system := model.Actor{ID: -1, IsSystem: true}
	if _, err := fx.svc.Perform(context.Background(), 1, system, model.ActionDisagree, model.PerformOpts{}); err != nil {
		t.Fatalf("Perform(disagree) error: %v", err)
	}

	byID := make(map[int64]model.ScoreEntry)
	for _, e := range fx.cases.entries[1] {
		byID[e.ID] = e
	}
	if byID[11].Disposition != model.DispositionDisagreed {
		t.Errorf("spam entry disposition = %q, want disagreed", byID[11].Disposition)
	}
	if byID[12].Disposition != model.DispositionUnset {
		t.Errorf("illegal entry disposition = %q, want unset (system leaves it)", byID[12].Disposition)
	}
	if byID[13].Disposition != model.DispositionUnset {
		t.Errorf("notify_moderators entry disposition = %q, want unset (system leaves it)", byID[13].Disposition)
	}

	// Counter resets limited to the same subset
	res := fx.cases.resolutions[len(fx.cases.resolutions)-1]
	if len(res.ResetCounterTypes) != len(model.AutoActionFlagTypes()) {
		t.Errorf("reset types = %v, want auto-action subset", res.ResetCounterTypes)
	}
}

func TestPerform_DisagreeByHumanClearsEveryType(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1,
		entry(11, 201, model.FlagSpam),
		entry(12, 202, model.FlagIllegal),
	)

	if _, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionDisagree, model.PerformOpts{}); err != nil {
		t.Fatalf("Perform(disagree) error: %v", err)
	}

	for _, e := range fx.cases.entries[1] {
		if e.Disposition != model.DispositionDisagreed {
			t.Errorf("entry %d disposition = %q, want disagreed", e.ID, e.Disposition)
		}
	}
	if fx.cases.cases[1].Status != model.StatusRejected {
		t.Errorf("status = %s, want rejected", fx.cases.cases[1].Status)
	}
}

func TestPerform_DisagreeUnhidesAndUnsilences(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagSpam))
	fx.posts.hidden[10] = true
	fx.accounts.silencedForPost[10] = true

	if _, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionDisagree, model.PerformOpts{}); err != nil {
		t.Fatalf("Perform(disagree) error: %v", err)
	}

	if fx.posts.hidden[10] {
		t.Error("expected post 10 unhidden after disagree")
	}
	if len(fx.accounts.unsilenced) != 1 || fx.accounts.unsilenced[0] != 42 {
		t.Errorf("unsilenced = %v, want [42] (post author)", fx.accounts.unsilenced)
	}
}

func TestPerform_DisagreeNotHiddenSkipsUnsilence(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagSpam))
	fx.accounts.silencedForPost[10] = true // silenced, but post not hidden

	if _, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionDisagree, model.PerformOpts{}); err != nil {
		t.Fatalf("Perform(disagree) error: %v", err)
	}
	if len(fx.accounts.unsilenced) != 0 {
		t.Errorf("unsilenced = %v, want none when post was never hidden", fx.accounts.unsilenced)
	}
}

func TestPerform_IgnoreStampsDeferred(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagOffTopic))

	result, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionIgnore, model.PerformOpts{})
	if err != nil {
		t.Fatalf("Perform(ignore) error: %v", err)
	}
	if result.Status != model.StatusIgnored {
		t.Errorf("status = %s, want ignored", result.Status)
	}
	if got := fx.cases.entries[1][0].Disposition; got != model.DispositionDeferred {
		t.Errorf("entry disposition = %q, want deferred", got)
	}
	if fx.posts.hidden[10] {
		t.Error("ignore must not hide the post")
	}
}

func TestPerform_IgnoreWithDeleteRunsAfterDeferral(t *testing.T) {
	fx := newReviewFixture(allowGuardian{canDelete: true})
	fx.seedCase(1, entry(11, 201, model.FlagOffTopic))

	_, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionIgnore,
		model.PerformOpts{DeletePost: true})
	if err != nil {
		t.Fatalf("Perform(ignore delete) error: %v", err)
	}

	ops := *fx.cases.ops
	if len(ops) != 2 || ops[0] != "resolve" || ops[1] != "delete" {
		t.Fatalf("op order = %v, want [resolve delete]", ops)
	}
	if got := fx.cases.entries[1][0].Disposition; got != model.DispositionDeferred {
		t.Errorf("entry disposition = %q, want deferred even when post deleted", got)
	}
}

func TestPerform_StatsTargetIsPostAuthor(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1,
		entry(11, 201, model.FlagSpam),
		entry(12, 202, model.FlagSpam),
		entry(13, 201, model.FlagOffTopic), // same reviewer twice
	)

	if _, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree, model.PerformOpts{}); err != nil {
		t.Fatalf("Perform(agree) error: %v", err)
	}

	if len(fx.stats.calls) != 1 {
		t.Fatalf("stats calls = %d, want 1", len(fx.stats.calls))
	}
	call := fx.stats.calls[0]
	if call.outcome != model.StatusApproved {
		t.Errorf("stats outcome = %s, want approved", call.outcome)
	}
	if call.targetUserID != 42 {
		t.Errorf("stats target = %d, want 42 (post author)", call.targetUserID)
	}
	if len(call.reviewerIDs) != 2 {
		t.Errorf("reviewerIDs = %v, want 2 distinct reviewers", call.reviewerIDs)
	}
}

func TestPerform_AgreeHideFailureStillLandsStatsAndSignals(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagSpam))
	fx.posts.hideErr = errors.New("posts unavailable")

	result, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionAgree, model.PerformOpts{})
	if err == nil {
		t.Fatal("expected the hide failure to surface")
	}
	if result == nil || result.Status != model.StatusApproved {
		t.Fatalf("result = %+v, want committed approved status alongside the error", result)
	}
	if got := fx.cases.cases[1].Status; got != model.StatusApproved {
		t.Errorf("case status = %s, want approved (resolution committed)", got)
	}
	if len(fx.stats.calls) != 1 {
		t.Errorf("stats calls = %d, want 1 despite hide failure", len(fx.stats.calls))
	}
	if fx.signals.count(SignalFlagReviewed) != 1 || fx.signals.count(SignalFlagAgreed) != 1 {
		t.Errorf("signals = %v, want flag_reviewed and flag_agreed despite hide failure", fx.signals.events)
	}
}

func TestPerform_IgnoreDeleteFailureStillDefers(t *testing.T) {
	fx := newReviewFixture(allowGuardian{})
	fx.seedCase(1, entry(11, 201, model.FlagSpam))
	fx.posts.deleteErr = errors.New("posts unavailable")

	result, err := fx.svc.Perform(context.Background(), 1, moderator, model.ActionIgnore, model.PerformOpts{DeletePost: true})
	if err == nil {
		t.Fatal("expected the delete failure to surface")
	}
	if result == nil || result.Status != model.StatusIgnored {
		t.Fatalf("result = %+v, want committed ignored status alongside the error", result)
	}
	if len(fx.stats.calls) != 1 {
		t.Errorf("stats calls = %d, want 1 despite delete failure", len(fx.stats.calls))
	}
	if fx.signals.count(SignalFlagDeferred) != 1 {
		t.Errorf("signals = %v, want flag_deferred despite delete failure", fx.signals.events)
	}
}
