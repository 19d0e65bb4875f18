package model

import "errors"

// Domain error taxonomy. Repositories and services return these wrapped;
// the HTTP layer maps them to status codes with errors.Is.
var (
	// ErrNotFound: no case (or target) exists for the given identifier.
	ErrNotFound = errors.New("review case not found")

	// ErrAlreadyHandled: the case is in a terminal status; re-invoking any
	// action leaves it unchanged.
	ErrAlreadyHandled = errors.New("review case already handled")

	// ErrConflict: optimistic-lock version mismatch on a concurrent write.
	// The caller must re-read and retry; the core never retries silently.
	ErrConflict = errors.New("review case version conflict")

	// ErrForbidden: the guardian predicate denied the actor.
	ErrForbidden = errors.New("actor not allowed to review this case")

	// ErrInvalidAction: the requested action is not in the supported set.
	ErrInvalidAction = errors.New("unsupported review action")
)
