package model

import "time"

// FlagType categorizes why content was flagged.
type FlagType string

const (
	FlagOffTopic         FlagType = "off_topic"
	FlagInappropriate    FlagType = "inappropriate"
	FlagSpam             FlagType = "spam"
	FlagIllegal          FlagType = "illegal"
	FlagNotifyModerators FlagType = "notify_moderators"
)

// FlagTypes returns every flag type that lands in the review queue.
func FlagTypes() []FlagType {
	return []FlagType{
		FlagOffTopic,
		FlagInappropriate,
		FlagSpam,
		FlagIllegal,
		FlagNotifyModerators,
	}
}

// AutoActionFlagTypes is the strict subset of flag types the system actor is
// allowed to disagree on (automated cleanup never overrides a human-only
// flag such as notify_moderators or illegal).
func AutoActionFlagTypes() []FlagType {
	return []FlagType{
		FlagOffTopic,
		FlagInappropriate,
		FlagSpam,
	}
}

// ValidFlagType reports whether t is a known flag type.
func ValidFlagType(t FlagType) bool {
	for _, ft := range FlagTypes() {
		if ft == t {
			return true
		}
	}
	return false
}

// Disposition is the resolved state of a single score entry. It is stamped
// exactly once, atomically with the owning case's status transition.
type Disposition string

const (
	DispositionUnset     Disposition = ""
	DispositionAgreed    Disposition = "agreed"
	DispositionDisagreed Disposition = "disagreed"
	DispositionDeferred  Disposition = "deferred"
)

// ScoreEntry is a single flag contributing weight to a review case.
type ScoreEntry struct {
	ID            int64       `json:"id"`
	CaseID        int64       `json:"caseId"`
	ReviewerID    int64       `json:"reviewerId"`
	Type          FlagType    `json:"type"`
	Weight        float64     `json:"weight"`
	Disposition   Disposition `json:"disposition,omitempty"`
	DisposedBy    *int64      `json:"disposedBy,omitempty"`
	DisposedAt    *time.Time  `json:"disposedAt,omitempty"`
	RelatedPostID *int64      `json:"relatedPostId,omitempty"`
	TargetsTopic  bool        `json:"targetsTopic"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Active reports whether the entry still counts toward the case score.
func (e *ScoreEntry) Active() bool {
	return e.Disposition == DispositionUnset
}

// Flag is an incoming flag event: it either appends to the pending case for
// its target or opens a new one.
type Flag struct {
	TargetType    string   `json:"targetType"`
	TargetID      int64    `json:"targetId"`
	ReviewerID    int64    `json:"reviewerId"`
	Type          FlagType `json:"type"`
	Weight        float64  `json:"weight"`
	Reason        string   `json:"reason,omitempty"`
	RelatedPostID *int64   `json:"relatedPostId,omitempty"`
	TargetsTopic  bool     `json:"targetsTopic,omitempty"`
}
