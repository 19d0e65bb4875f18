package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/mikadit/modqueue/internal/middleware"
	"github.com/mikadit/modqueue/internal/model"
	"github.com/mikadit/modqueue/internal/service"
)

type ReportHandler struct {
	svc          *service.ReportService
	systemUserID int64
	pageSize     int
}

func NewReportHandler(svc *service.ReportService, systemUserID int64, pageSize int) *ReportHandler {
	return &ReportHandler{svc: svc, systemUserID: systemUserID, pageSize: pageSize}
}

// List handles GET /api/flagged — one page of the flagged-posts report.
func (h *ReportHandler) List(c fiber.Ctx) error {
	actor, errMsg := actorFromRequest(c, h.systemUserID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_ACTOR", errMsg)
	}
	if !actor.IsModerator {
		return middleware.ErrorResponse(c, fiber.StatusForbidden, "FORBIDDEN", "Moderator access required")
	}

	filter, errMsg := middleware.ValidateFilter(fiber.Query[string](c, "filter"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	offset, errMsg := middleware.ValidateOffset(fiber.Query[string](c, "offset"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	pageSize, errMsg := middleware.ValidatePerPage(fiber.Query[string](c, "per_page"), h.pageSize)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var topicID, userID *int64
	if raw := fiber.Query[string](c, "topic_id"); raw != "" {
		id, errMsg := middleware.ValidateCaseID(raw)
		if errMsg != "" {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", "topic_id must be a positive integer")
		}
		topicID = &id
	}
	if raw := fiber.Query[string](c, "user_id"); raw != "" {
		id, errMsg := middleware.ValidateUserID(raw)
		if errMsg != "" {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
		}
		userID = &id
	}

	start := time.Now()
	report, err := h.svc.BuildReport(c.Context(), actor, model.ReportFilter(filter), topicID, userID, offset, pageSize)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to build report")
	}
	Metrics.ReportDuration.Observe(time.Since(start).Seconds())

	return c.JSON(fiber.Map{
		"posts":  report.Posts,
		"topics": report.Topics,
		"users":  report.Users,
		"meta": fiber.Map{
			"totalRows":     report.TotalRows,
			"offset":        offset,
			"pageSize":      pageSize,
			"moreAvailable": report.MoreAvailable(offset, pageSize),
		},
	})
}

// Topics handles GET /api/flagged/topics — the flagged-topics digest.
func (h *ReportHandler) Topics(c fiber.Ctx) error {
	actor, errMsg := actorFromRequest(c, h.systemUserID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_ACTOR", errMsg)
	}
	if !actor.IsModerator {
		return middleware.ErrorResponse(c, fiber.StatusForbidden, "FORBIDDEN", "Moderator access required")
	}

	digest, err := h.svc.FlaggedTopics(c.Context())
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to build digest")
	}

	return c.JSON(digest)
}
