package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/mikadit/modqueue/internal/middleware"
	"github.com/mikadit/modqueue/internal/model"
	"github.com/mikadit/modqueue/internal/service"
)

type FlagHandler struct {
	svc          *service.FlagService
	systemUserID int64
}

func NewFlagHandler(svc *service.FlagService, systemUserID int64) *FlagHandler {
	return &FlagHandler{svc: svc, systemUserID: systemUserID}
}

type flagRequest struct {
	TargetID      int64   `json:"targetId"`
	Type          string  `json:"type"`
	Weight        float64 `json:"weight,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	RelatedPostID *int64  `json:"relatedPostId,omitempty"`
	TargetsTopic  bool    `json:"targetsTopic,omitempty"`
}

// Submit handles POST /api/flags
func (h *FlagHandler) Submit(c fiber.Ctx) error {
	actor, errMsg := actorFromRequest(c, h.systemUserID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_ACTOR", errMsg)
	}

	var req flagRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	if req.TargetID <= 0 {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", "targetId must be a positive integer")
	}
	if !model.ValidFlagType(model.FlagType(req.Type)) {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FLAG_TYPE",
			"type must be one of: off_topic, inappropriate, spam, illegal, notify_moderators")
	}

	reviewCase, err := h.svc.Submit(c.Context(), model.Flag{
		TargetType:    "post",
		TargetID:      req.TargetID,
		ReviewerID:    actor.ID,
		Type:          model.FlagType(req.Type),
		Weight:        req.Weight,
		Reason:        middleware.ValidateReason(req.Reason),
		RelatedPostID: req.RelatedPostID,
		TargetsTopic:  req.TargetsTopic,
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "Target post not found")
		}
		if errors.Is(err, model.ErrInvalidAction) {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FLAG_TYPE", err.Error())
		}
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record flag")
	}

	Metrics.FlagsTotal.WithLabelValues(req.Type).Inc()

	return c.Status(fiber.StatusCreated).JSON(reviewCase)
}
