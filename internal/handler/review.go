package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/mikadit/modqueue/internal/middleware"
	"github.com/mikadit/modqueue/internal/model"
	"github.com/mikadit/modqueue/internal/service"
)

type ReviewHandler struct {
	svc          *service.ReviewService
	systemUserID int64
}

func NewReviewHandler(svc *service.ReviewService, systemUserID int64) *ReviewHandler {
	return &ReviewHandler{svc: svc, systemUserID: systemUserID}
}

// actorFromRequest builds the acting user from request headers. The system
// actor id gets IsSystem so disagree only resets auto-action flag types.
func actorFromRequest(c fiber.Ctx, systemUserID int64) (model.Actor, string) {
	raw := c.Get("X-Actor-Id")
	if raw == "" {
		return model.Actor{}, "X-Actor-Id header is required"
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return model.Actor{}, "X-Actor-Id must be a non-zero integer"
	}
	return model.Actor{
		ID:          id,
		IsModerator: c.Get("X-Actor-Moderator") == "true",
		IsSystem:    id == systemUserID,
	}, ""
}

type performRequest struct {
	ActionOnPost string `json:"actionOnPost,omitempty"`
	DeletePost   bool   `json:"deletePost,omitempty"`
}

// Agree handles POST /api/flagged/:id/agree
func (h *ReviewHandler) Agree(c fiber.Ctx) error {
	return h.perform(c, model.ActionAgree)
}

// Disagree handles POST /api/flagged/:id/disagree
func (h *ReviewHandler) Disagree(c fiber.Ctx) error {
	return h.perform(c, model.ActionDisagree)
}

// Defer handles POST /api/flagged/:id/defer
func (h *ReviewHandler) Defer(c fiber.Ctx) error {
	return h.perform(c, model.ActionIgnore)
}

func (h *ReviewHandler) perform(c fiber.Ctx, action model.Action) error {
	caseID, errMsg := middleware.ValidateCaseID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	actor, errMsg := actorFromRequest(c, h.systemUserID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_ACTOR", errMsg)
	}

	var req performRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		}
	}

	opts := model.PerformOpts{
		ActionOnPost: model.PostDisposal(req.ActionOnPost),
		DeletePost:   req.DeletePost,
	}
	if action == model.ActionAgree && opts.ActionOnPost == "" {
		opts.ActionOnPost = model.DisposalHide
	}
	if action == model.ActionAgree && !model.ValidDisposal(opts.ActionOnPost) {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD",
			"actionOnPost must be one of: hide, delete, restore, keep")
	}

	result, err := h.svc.Perform(c.Context(), caseID, actor, action, opts)
	if err != nil {
		// A non-nil result means the resolution committed and only a
		// post side effect failed; report the resolved status with a
		// warning instead of pretending the action did not happen.
		if result != nil {
			middleware.Logger.Error().Err(err).Int64("case_id", caseID).Msg("post action failed after resolution")
			Metrics.ActionsTotal.WithLabelValues(string(action)).Inc()
			return c.JSON(fiber.Map{
				"status":           result.Status,
				"recalculateScore": result.RecalculateScore,
				"warning":          "case resolved, but the post action failed",
			})
		}
		switch {
		case errors.Is(err, model.ErrNotFound):
			return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "Review case not found")
		case errors.Is(err, model.ErrAlreadyHandled):
			return middleware.ErrorResponse(c, fiber.StatusConflict, "ALREADY_HANDLED", "Case has already been resolved")
		case errors.Is(err, model.ErrConflict):
			return middleware.ErrorResponse(c, fiber.StatusConflict, "VERSION_CONFLICT", "Case changed concurrently, reload and retry")
		case errors.Is(err, model.ErrForbidden):
			return middleware.ErrorResponse(c, fiber.StatusForbidden, "FORBIDDEN", "Actor may not review this case")
		case errors.Is(err, model.ErrInvalidAction):
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_ACTION", err.Error())
		}
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to perform action")
	}

	Metrics.ActionsTotal.WithLabelValues(string(action)).Inc()

	return c.JSON(result)
}
