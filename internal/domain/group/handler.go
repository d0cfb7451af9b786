package group

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coachbook/internal/domain/relationship"
	"coachbook/internal/pkg/response"
	"coachbook/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if fields := validator.Validate(req); fields != nil {
			response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", fields)
			return
		}
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	coachID := c.GetInt64("user_id")
	sess, err := h.service.CreateSession(c.Request.Context(), coachID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": NewSessionView(sess)})
}

func (h *Handler) Publish(c *gin.Context) {
	sessionID, err := parseID(c, "id")
	if err != nil {
		return
	}

	coachID := c.GetInt64("user_id")
	sess, err := h.service.Publish(c.Request.Context(), coachID, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": NewSessionView(sess)})
}

func (h *Handler) EndSession(c *gin.Context) {
	sessionID, err := parseID(c, "id")
	if err != nil {
		return
	}

	var req EndSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	coachID := c.GetInt64("user_id")
	sess, err := h.service.EndSession(c.Request.Context(), coachID, sessionID, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": NewSessionView(sess)})
}

func (h *Handler) GetSession(c *gin.Context) {
	sessionID, err := parseID(c, "id")
	if err != nil {
		return
	}

	sess, err := h.service.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": NewSessionView(sess)})
}

func (h *Handler) ListSessions(c *gin.Context) {
	if c.Query("mine") == "true" {
		coachID := c.GetInt64("user_id")
		sessions, err := h.service.ListSessionsByCoach(c.Request.Context(), coachID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"sessions": sessionViews(sessions)})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	sessions, err := h.service.ListOpenSessions(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessionViews(sessions)})
}

func (h *Handler) Register(c *gin.Context) {
	sessionID, err := parseID(c, "id")
	if err != nil {
		return
	}

	studentID := c.GetInt64("user_id")
	reg, err := h.service.Register(c.Request.Context(), studentID, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"registration": NewRegistrationView(reg)})
}

func (h *Handler) ListRegistrations(c *gin.Context) {
	sessionID, err := parseID(c, "id")
	if err != nil {
		return
	}

	sess, err := h.service.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if sess.CoachID != c.GetInt64("user_id") {
		response.Error(c, http.StatusForbidden, "FORBIDDEN", ErrForbidden.Error())
		return
	}

	regs, err := h.service.ListRegistrations(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"registrations": registrationViews(regs)})
}

func (h *Handler) ListMyRegistrations(c *gin.Context) {
	studentID := c.GetInt64("user_id")
	regs, err := h.service.ListMyRegistrations(c.Request.Context(), studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"registrations": registrationViews(regs)})
}

// registrationAction wraps the coach/student registration transitions that
// share the same (actorID, registrationID) shape.
func (h *Handler) registrationAction(c *gin.Context, fn func(actorID, registrationID int64) (*GroupRegistration, error)) {
	registrationID, err := parseID(c, "id")
	if err != nil {
		return
	}

	reg, err := fn(c.GetInt64("user_id"), registrationID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"registration": NewRegistrationView(reg)})
}

func (h *Handler) ConfirmRegistration(c *gin.Context) {
	h.registrationAction(c, func(actorID, regID int64) (*GroupRegistration, error) {
		return h.service.ConfirmRegistration(c.Request.Context(), actorID, regID)
	})
}

func (h *Handler) RejectRegistration(c *gin.Context) {
	h.registrationAction(c, func(actorID, regID int64) (*GroupRegistration, error) {
		return h.service.RejectRegistration(c.Request.Context(), actorID, regID)
	})
}

func (h *Handler) CancelRegistration(c *gin.Context) {
	h.registrationAction(c, func(actorID, regID int64) (*GroupRegistration, error) {
		return h.service.CancelRegistration(c.Request.Context(), actorID, regID)
	})
}

func (h *Handler) CheckIn(c *gin.Context) {
	h.registrationAction(c, func(actorID, regID int64) (*GroupRegistration, error) {
		return h.service.CheckIn(c.Request.Context(), actorID, regID)
	})
}

func (h *Handler) MarkAbsent(c *gin.Context) {
	h.registrationAction(c, func(actorID, regID int64) (*GroupRegistration, error) {
		return h.service.MarkAbsent(c.Request.Context(), actorID, regID)
	})
}

func (h *Handler) RevertCheckIn(c *gin.Context) {
	h.registrationAction(c, func(actorID, regID int64) (*GroupRegistration, error) {
		return h.service.RevertCheckIn(c.Request.Context(), actorID, regID)
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrRegistrationNotFound),
		errors.Is(err, relationship.ErrCategoryNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ErrForbidden), errors.Is(err, relationship.ErrNotRelationshipCoach):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, ErrSessionNotOpen), errors.Is(err, ErrSessionNotDraft),
		errors.Is(err, ErrSessionFull), errors.Is(err, ErrSessionEnded),
		errors.Is(err, ErrAlreadyRegistered), errors.Is(err, ErrInvalidRegState),
		errors.Is(err, ErrNotCheckedIn):
		response.Error(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, ErrRelationshipRequired):
		response.Error(c, http.StatusUnprocessableEntity, "RELATIONSHIP_REQUIRED", err.Error())
	case errors.Is(err, relationship.ErrInsufficientCredit):
		response.Error(c, http.StatusUnprocessableEntity, "INSUFFICIENT_CREDIT", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error")
	}
}

func parseID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid ID")
		return 0, err
	}
	return id, nil
}

func sessionViews(sessions []GroupSession) []SessionView {
	views := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, NewSessionView(&sessions[i]))
	}
	return views
}

func registrationViews(regs []GroupRegistration) []RegistrationView {
	views := make([]RegistrationView, 0, len(regs))
	for i := range regs {
		views = append(views, NewRegistrationView(&regs[i]))
	}
	return views
}
