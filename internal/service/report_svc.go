package service

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mikadit/modqueue/internal/model"
	"github.com/mikadit/modqueue/internal/repository"
)

// ReportService assembles the flagged-posts dashboard report: a page of
// cases joined with post snapshots, enriched score entries, conversation
// previews, bulk-loaded users/topics and plugin custom fields. The number
// of store round trips is a small constant regardless of page size.
type ReportService struct {
	cases    *repository.CaseRepo
	posts    *repository.PostRepo
	topics   *repository.TopicRepo
	users    *repository.UserRepo
	fields   CustomFieldRegistry
	guardian Guardian
	cache    *CacheService
	log      zerolog.Logger

	minScore        float64
	defaultPageSize int
}

func NewReportService(
	cases *repository.CaseRepo,
	posts *repository.PostRepo,
	topics *repository.TopicRepo,
	users *repository.UserRepo,
	fields CustomFieldRegistry,
	guardian Guardian,
	cache *CacheService,
	minScore float64,
	defaultPageSize int,
	log zerolog.Logger,
) *ReportService {
	return &ReportService{
		cases:           cases,
		posts:           posts,
		topics:          topics,
		users:           users,
		fields:          fields,
		guardian:        guardian,
		cache:           cache,
		log:             log,
		minScore:        minScore,
		defaultPageSize: defaultPageSize,
	}
}

// BuildReport returns one ordered page of the flagged-posts report plus the
// unwindowed total. An empty matching set yields an empty page, never an
// error.
func (s *ReportService) BuildReport(ctx context.Context, viewer model.Actor, filter model.ReportFilter, topicID, userID *int64, offset, pageSize int) (*model.FlaggedPostsReport, error) {
	if !model.ValidFilter(filter) {
		filter = model.FilterPending
	}
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	// The hot dashboard view (first page of pending, no narrowing) is
	// cache-aside in Redis; every performed action invalidates it. Only
	// the full-visibility moderator view may share the cached copy.
	cacheable := filter == model.FilterPending && topicID == nil && userID == nil &&
		offset == 0 && viewer.IsModerator
	if cacheable {
		if cached, err := s.cache.GetReport(ctx, pageSize); err == nil && cached != nil {
			return cached, nil
		}
	}

	q := repository.CaseQuery{
		Filter:   filter,
		TopicID:  topicID,
		UserID:   userID,
		MinScore: s.minScore,
		Offset:   offset,
		Limit:    pageSize,
	}

	cases, err := s.cases.Page(ctx, q)
	if err != nil {
		return nil, err
	}
	cases = visibleTo(s.guardian, viewer, cases)
	total, err := s.cases.Count(ctx, q)
	if err != nil {
		return nil, err
	}

	report := &model.FlaggedPostsReport{
		Posts:     []model.ReportedPost{},
		Topics:    []model.Topic{},
		Users:     []model.UserInfo{},
		TotalRows: total,
	}
	if len(cases) == 0 {
		return report, nil
	}

	postIDs := make([]int64, 0, len(cases))
	caseIDs := make([]int64, 0, len(cases))
	for _, c := range cases {
		postIDs = append(postIDs, c.TargetID)
		caseIDs = append(caseIDs, c.ID)
	}

	snapshots, err := s.posts.BulkSnapshots(ctx, postIDs)
	if err != nil {
		return nil, err
	}
	entriesByCase, err := s.cases.EntriesForCases(ctx, caseIDs)
	if err != nil {
		return nil, err
	}

	previews, err := s.posts.ConversationPreviews(ctx, relatedPostIDs(entriesByCase))
	if err != nil {
		return nil, err
	}

	rows, userIDs, topicIDs := assembleRows(cases, snapshots, entriesByCase, previews)

	names, err := s.fields.EnabledFieldNames(ctx)
	if err != nil {
		return nil, err
	}
	customFields, err := s.fields.Fetch(ctx, postIDs, names)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].CustomFields = customFields[rows[i].ID]
	}

	users, err := s.users.BulkByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	topics, err := s.topics.BulkWithDeleted(ctx, topicIDs)
	if err != nil {
		return nil, err
	}

	report.Posts = rows
	report.Users = users
	report.Topics = topics

	if cacheable {
		if err := s.cache.SetReport(ctx, pageSize, report); err != nil {
			s.log.Warn().Err(err).Msg("report: cache write failed")
		}
	}
	return report, nil
}

// assembleRows joins cases with their snapshots, entries and conversation
// previews, preserving the page's case order, and collects every touched
// user and topic id for the bulk loads.
func assembleRows(
	cases []model.ReviewCase,
	snapshots map[int64]*model.PostSnapshot,
	entriesByCase map[int64][]model.ScoreEntry,
	previews map[int64]*model.Conversation,
) ([]model.ReportedPost, []int64, []int64) {
	userIDs := make(map[int64]struct{})
	topicIDs := make(map[int64]struct{})

	rows := make([]model.ReportedPost, 0, len(cases))
	for _, c := range cases {
		snap := snapshots[c.TargetID]
		if snap == nil {
			// Target vanished under the case; skip the row rather than
			// failing the whole page.
			continue
		}
		userIDs[snap.UserID] = struct{}{}
		topicIDs[snap.TopicID] = struct{}{}

		row := model.ReportedPost{
			PostSnapshot: *snap,
			CaseID:       c.ID,
			CaseStatus:   c.Status,
			Score:        c.Score,
			PostActions:  []model.ReportedAction{},
		}

		for _, e := range entriesByCase[c.ID] {
			action := model.ReportedAction{
				ID:           e.ID,
				PostID:       c.TargetID,
				UserID:       e.ReviewerID,
				Type:         e.Type,
				CreatedAt:    e.CreatedAt,
				DisposedByID: e.DisposedBy,
				DisposedAt:   e.DisposedAt,
				Disposition:  e.Disposition,
			}
			userIDs[e.ReviewerID] = struct{}{}
			if e.DisposedBy != nil {
				userIDs[*e.DisposedBy] = struct{}{}
			}
			if e.RelatedPostID != nil {
				if conv := previews[*e.RelatedPostID]; conv != nil {
					action.Conversation = conv
					if conv.Response != nil {
						userIDs[conv.Response.UserID] = struct{}{}
					}
					if conv.Reply != nil {
						userIDs[conv.Reply.UserID] = struct{}{}
					}
				}
			}
			row.PostActions = append(row.PostActions, action)
		}

		rows = append(rows, row)
	}

	return rows, sortedIDs(userIDs), sortedIDs(topicIDs)
}

// visibleTo drops cases the viewer may not see. The query window is
// moderation-wide; per-viewer visibility applies on the fetched page.
func visibleTo(g Guardian, viewer model.Actor, cases []model.ReviewCase) []model.ReviewCase {
	out := make([]model.ReviewCase, 0, len(cases))
	for i := range cases {
		if g.CanSee(viewer, &cases[i]) {
			out = append(out, cases[i])
		}
	}
	return out
}

func relatedPostIDs(entriesByCase map[int64][]model.ScoreEntry) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, entries := range entriesByCase {
		for i := range entries {
			if entries[i].RelatedPostID == nil {
				continue
			}
			id := *entries[i].RelatedPostID
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FlaggedTopics aggregates pending, default-visible flags per topic for
// the digest view.
func (s *ReportService) FlaggedTopics(ctx context.Context) (*model.FlaggedTopicsDigest, error) {
	flagRows, err := s.cases.PendingFlagRows(ctx, s.minScore)
	if err != nil {
		return nil, err
	}

	topics, userIDs := aggregateFlaggedTopics(flagRows)

	users, err := s.users.BulkByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	return &model.FlaggedTopicsDigest{FlaggedTopics: topics, Users: users}, nil
}

// aggregateFlaggedTopics folds per-entry rows (newest first) into one
// record per topic with per-type counts and distinct flaggers.
func aggregateFlaggedTopics(rows []repository.PendingFlagRow) ([]model.FlaggedTopic, []int64) {
	byTopic := make(map[int64]*model.FlaggedTopic)
	var order []int64
	allUsers := make(map[int64]struct{})

	for _, r := range rows {
		ft := byTopic[r.TopicID]
		if ft == nil {
			ft = &model.FlaggedTopic{
				TopicID:    r.TopicID,
				FlagCounts: make(map[model.FlagType]int),
				LastFlagAt: r.CreatedAt,
			}
			byTopic[r.TopicID] = ft
			order = append(order, r.TopicID)
		}
		ft.FlagCounts[r.Type]++
		if !containsID(ft.UserIDs, r.ReviewerID) {
			ft.UserIDs = append(ft.UserIDs, r.ReviewerID)
		}
		allUsers[r.ReviewerID] = struct{}{}
	}

	topics := make([]model.FlaggedTopic, 0, len(order))
	for _, id := range order {
		topics = append(topics, *byTopic[id])
	}
	return topics, sortedIDs(allUsers)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
