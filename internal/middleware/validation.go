package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// Query parameter limits.
const (
	MaxOffset     = 1_000_000
	MaxPerPage    = 50
	MaxFlagReason = 500 // score_entries.reason VARCHAR(500)
)

// ErrorResponse is a helper that returns a standard API error response.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// ValidateCaseID parses a positive int64 case id from a path parameter.
func ValidateCaseID(raw string) (int64, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "case id is required"
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, "case id must be a positive integer"
	}
	return id, ""
}

// ValidateUserID parses a positive int64 user id.
func ValidateUserID(raw string) (int64, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "user id is required"
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, "user id must be a positive integer"
	}
	return id, ""
}

// ValidateFilter checks the report filter query parameter. Empty defaults
// to "pending".
func ValidateFilter(raw string) (string, string) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	switch raw {
	case "", "pending":
		return "pending", ""
	case "old":
		return "old", ""
	}
	return "", "filter must be one of: pending, old"
}

// ValidateOffset parses a non-negative pagination offset. Empty means zero.
func ValidateOffset(raw string) (int, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ""
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, "offset must be a non-negative integer"
	}
	if offset > MaxOffset {
		return 0, "offset is too large"
	}
	return offset, ""
}

// ValidatePerPage parses the requested report page size. Empty falls back
// to the configured default; explicit values are bounded.
func ValidatePerPage(raw string, fallback int) (int, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, ""
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > MaxPerPage {
		return 0, "per_page must be between 1 and 50"
	}
	return n, ""
}

// ValidateReason trims and truncates a flag reason to DB limits.
func ValidateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) > MaxFlagReason {
		reason = reason[:MaxFlagReason]
	}
	return reason
}
