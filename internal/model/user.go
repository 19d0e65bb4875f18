package model

import "time"

// UserInfo is the bulk-loaded user record attached to report rows.
type UserInfo struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Silenced  bool      `json:"silenced"`
	CreatedAt time.Time `json:"createdAt"`

	FlagsAgreed    int `json:"flagsAgreed"`
	FlagsDisagreed int `json:"flagsDisagreed"`
	FlagsIgnored   int `json:"flagsIgnored"`
}

// UserFlagStats are the per-user moderation-outcome counters, maintained on
// the target of the flag. They only ever increase, except when the
// truncation task rescales them back under the configured ceiling.
type UserFlagStats struct {
	UserID         int64 `json:"userId"`
	FlagsAgreed    int   `json:"flagsAgreed"`
	FlagsDisagreed int   `json:"flagsDisagreed"`
	FlagsIgnored   int   `json:"flagsIgnored"`
}

// Total is the counter sum checked against the truncation ceiling.
func (s UserFlagStats) Total() int {
	return s.FlagsAgreed + s.FlagsDisagreed + s.FlagsIgnored
}

// StatTotal is a post-increment readback row from the counter update, used
// to decide which users need asynchronous truncation.
type StatTotal struct {
	UserID int64
	Total  int
}
