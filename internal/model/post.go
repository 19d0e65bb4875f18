package model

import "time"

// PostSnapshot is the denormalized view of a flagged post used by both the
// action path (author, hidden state, topic-starter check) and the report.
type PostSnapshot struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"userId"`
	TopicID            int64      `json:"topicId"`
	PostNumber         int        `json:"postNumber"`
	Excerpt            string     `json:"excerpt"`
	ReplyCount         int        `json:"replyCount"`
	Hidden             bool       `json:"hidden"`
	DeletedAt          *time.Time `json:"deletedAt,omitempty"`
	UserDeleted        bool       `json:"userDeleted"`
	LastRevisedAt      *time.Time `json:"lastRevisedAt,omitempty"`
	PreviousFlagsCount int        `json:"previousFlagsCount"`
}

// Topic is the owning conversation of a flagged post. Soft-deleted topics
// are still returned in reports.
type Topic struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	CategoryID *int64     `json:"categoryId,omitempty"`
	PostsCount int        `json:"postsCount"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
}
