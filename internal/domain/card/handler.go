package card

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"coachbook/internal/domain/relationship"
	"coachbook/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	coachID := c.GetInt64("user_id")
	t, err := h.service.CreateTemplate(c.Request.Context(), coachID, req.Name, req.Color, req.LessonCount, req.ValidDays)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"template": t})
}

func (h *Handler) SetTemplateActive(c *gin.Context) {
	templateID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid template ID")
		return
	}

	var req TemplateActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	coachID := c.GetInt64("user_id")
	if err := h.service.SetTemplateActive(c.Request.Context(), coachID, templateID, *req.Active); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"template_id": templateID, "active": *req.Active})
}

func (h *Handler) DeleteTemplate(c *gin.Context) {
	templateID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid template ID")
		return
	}

	coachID := c.GetInt64("user_id")
	if err := h.service.DeleteTemplate(c.Request.Context(), coachID, templateID); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"template_id": templateID})
}

func (h *Handler) ListTemplates(c *gin.Context) {
	coachID := c.GetInt64("user_id")
	templates, err := h.service.ListTemplates(c.Request.Context(), coachID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"templates": templates})
}

func (h *Handler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	ci, err := h.service.Issue(c.Request.Context(), req.TemplateID, req.RelationshipID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"card": ci})
}

func (h *Handler) Activate(c *gin.Context)   { h.transition(c, h.service.Activate) }
func (h *Handler) Deactivate(c *gin.Context) { h.transition(c, h.service.Deactivate) }
func (h *Handler) Reactivate(c *gin.Context) { h.transition(c, h.service.Reactivate) }

func (h *Handler) Delete(c *gin.Context) {
	id, ok := cardID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"card_id": id})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := cardID(c)
	if !ok {
		return
	}

	ci, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"card": ci})
}

func (h *Handler) ListMine(c *gin.Context) {
	studentID := c.GetInt64("user_id")
	cards, err := h.service.ListByStudent(c.Request.Context(), studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cards": cards})
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (*CardInstance, error)) {
	id, ok := cardID(c)
	if !ok {
		return
	}

	ci, err := fn(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"card": ci})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var unavailable *UnavailableError
	var notDeletable *NotDeletableError

	switch {
	case errors.Is(err, ErrTemplateNotFound), errors.Is(err, ErrCardNotFound),
		errors.Is(err, relationship.ErrRelationshipNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ErrAlreadyActive):
		response.Error(c, http.StatusConflict, "ALREADY_IN_STATE", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrTemplateEnabled),
		errors.Is(err, ErrTemplateDisabled):
		response.Error(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, ErrCardExpired):
		response.Error(c, http.StatusUnprocessableEntity, "CARD_EXPIRED", err.Error())
	case errors.As(err, &unavailable):
		response.Error(c, http.StatusUnprocessableEntity, "CARD_UNAVAILABLE", unavailable.Reason)
	case errors.As(err, &notDeletable):
		response.Error(c, http.StatusConflict, "CONFLICT", notDeletable.Reason)
	case errors.Is(err, ErrNotRelationCoach):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error")
	}
}

func cardID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid card ID")
		return uuid.Nil, false
	}
	return id, true
}
