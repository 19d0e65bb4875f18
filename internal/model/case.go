package model

import "time"

// CaseStatus is the lifecycle state of a review case. Every status other
// than pending is terminal.
type CaseStatus string

const (
	StatusPending  CaseStatus = "pending"
	StatusApproved CaseStatus = "approved"
	StatusRejected CaseStatus = "rejected"
	StatusIgnored  CaseStatus = "ignored"
)

// Terminal reports whether the status permits no further transitions.
func (s CaseStatus) Terminal() bool {
	return s != StatusPending
}

// Action is a closed set of terminal moderator actions on a pending case.
type Action string

const (
	ActionAgree    Action = "agree"
	ActionDisagree Action = "disagree"
	ActionIgnore   Action = "ignore"
)

// Valid reports whether the action is one of the supported enum values.
func (a Action) Valid() bool {
	switch a {
	case ActionAgree, ActionDisagree, ActionIgnore:
		return true
	}
	return false
}

// ReviewCase is a flagged piece of content awaiting (or past) moderation.
type ReviewCase struct {
	ID               int64      `json:"id"`
	TargetType       string     `json:"targetType"`
	TargetID         int64      `json:"targetId"`
	TargetCreatedBy  int64      `json:"targetCreatedBy"`
	TopicID          int64      `json:"topicId"`
	CategoryID       *int64     `json:"categoryId,omitempty"`
	Status           CaseStatus `json:"status"`
	Score            float64    `json:"score"`
	Version          int        `json:"version"`
	ClaimedBy        *int64     `json:"claimedBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Actor is the user performing a review action.
type Actor struct {
	ID          int64 `json:"id"`
	IsModerator bool  `json:"isModerator"`
	IsSystem    bool  `json:"isSystem"`
}

// PostDisposal selects the content side effect requested alongside an
// agree: hide the post (default), delete it, restore a previously deleted
// one, or keep it untouched (the flag was right but the post stays up,
// e.g. the author was silenced instead).
type PostDisposal string

const (
	DisposalHide    PostDisposal = "hide"
	DisposalDelete  PostDisposal = "delete"
	DisposalRestore PostDisposal = "restore"
	DisposalKeep    PostDisposal = "keep"
)

// ValidDisposal reports whether d is a supported post disposal ("" counts
// as the default hide).
func ValidDisposal(d PostDisposal) bool {
	switch d {
	case "", DisposalHide, DisposalDelete, DisposalRestore, DisposalKeep:
		return true
	}
	return false
}

// PerformOpts carries action-specific arguments.
type PerformOpts struct {
	// ActionOnPost applies to agree: hide, delete, restore or keep.
	ActionOnPost PostDisposal `json:"actionOnPost,omitempty"`
	// DeletePost applies to ignore: delete the post after deferral.
	DeletePost bool `json:"deletePost,omitempty"`
}

// PerformResult is the structured outcome of a performed action.
type PerformResult struct {
	Status           CaseStatus `json:"status"`
	RecalculateScore bool       `json:"recalculateScore"`
}

// Resolution is the atomic write unit for a case transition: the entries to
// stamp, the counters to reset and the status change, all applied in one
// transaction conditioned on the case version being unchanged.
type Resolution struct {
	CaseID          int64
	TargetID        int64
	ExpectedVersion int
	NewStatus       CaseStatus
	Disposition     Disposition
	DisposedBy      int64
	DisposedAt      time.Time
	EntryIDs        []int64
	// ResetCounterTypes lists the denormalized per-type flag counters on the
	// post that must be zeroed (disagree only, soft-deleted posts included).
	ResetCounterTypes []FlagType
}
