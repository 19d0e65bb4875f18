package model

import "time"

// ReportFilter selects which cases a flagged-posts report covers.
type ReportFilter string

const (
	FilterPending ReportFilter = "pending" // default
	FilterOld     ReportFilter = "old"     // any non-pending case
)

// ValidFilter reports whether f is a supported report filter.
func ValidFilter(f ReportFilter) bool {
	return f == FilterPending || f == FilterOld
}

// ConversationPost is one excerpted reply from a related private topic.
type ConversationPost struct {
	Excerpt string `json:"excerpt"`
	UserID  int64  `json:"userId"`
}

// Conversation previews the first two replies of the private topic a flag
// references, with HasMore set when the topic holds more than two posts.
type Conversation struct {
	Response *ConversationPost `json:"response,omitempty"`
	Reply    *ConversationPost `json:"reply,omitempty"`
	HasMore  bool              `json:"hasMore,omitempty"`
}

// ReportedAction is a score entry enriched for the dashboard: disposition
// label, disposing actor and optional conversation context.
type ReportedAction struct {
	ID           int64         `json:"id"`
	PostID       int64         `json:"postId"`
	UserID       int64         `json:"userId"`
	Type         FlagType      `json:"type"`
	CreatedAt    time.Time     `json:"createdAt"`
	DisposedByID *int64        `json:"disposedById,omitempty"`
	DisposedAt   *time.Time    `json:"disposedAt,omitempty"`
	Disposition  Disposition   `json:"disposition,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
}

// ReportedPost is one row of the flagged-posts report: the post snapshot
// plus its enriched score entries and plugin-contributed custom fields.
type ReportedPost struct {
	PostSnapshot
	CaseID       int64             `json:"caseId"`
	CaseStatus   CaseStatus        `json:"caseStatus"`
	Score        float64           `json:"score"`
	PostActions  []ReportedAction  `json:"postActions"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// FlaggedPostsReport is the assembled, paginated dashboard bundle.
type FlaggedPostsReport struct {
	Posts     []ReportedPost `json:"posts"`
	Topics    []Topic        `json:"topics"`
	Users     []UserInfo     `json:"users"`
	TotalRows int            `json:"totalRows"`
}

// MoreAvailable reports whether another page exists past the given window.
func (r *FlaggedPostsReport) MoreAvailable(offset, pageSize int) bool {
	return r.TotalRows > offset+pageSize
}

// FlaggedTopic aggregates pending flags per topic for the digest view.
type FlaggedTopic struct {
	TopicID    int64            `json:"topicId"`
	FlagCounts map[FlagType]int `json:"flagCounts"`
	UserIDs    []int64          `json:"userIds"`
	LastFlagAt time.Time        `json:"lastFlagAt"`
}

// FlaggedTopicsDigest is the response bundle for the flagged-topics view.
type FlaggedTopicsDigest struct {
	FlaggedTopics []FlaggedTopic `json:"flaggedTopics"`
	Users         []UserInfo     `json:"users"`
}
