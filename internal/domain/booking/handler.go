package booking

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coachbook/internal/domain/address"
	"coachbook/internal/domain/auth"
	"coachbook/internal/domain/card"
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

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if fields := validator.Validate(req); fields != nil {
			response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", fields)
			return
		}
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	actorID := c.GetInt64("user_id")
	b, err := h.service.Create(c.Request.Context(), actorID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"booking": NewView(b)})
}

func (h *Handler) Transition(c *gin.Context) {
	bookingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking ID")
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	actorID := c.GetInt64("user_id")
	b, err := h.service.Transition(c.Request.Context(), bookingID, actorID, req.Action, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": NewView(b)})
}

func (h *Handler) Get(c *gin.Context) {
	bookingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking ID")
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), bookingID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	actorID := c.GetInt64("user_id")
	if actorID != b.StudentID && actorID != b.CoachID {
		response.Error(c, http.StatusForbidden, "FORBIDDEN", ErrForbidden.Error())
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": NewView(b)})
}

func (h *Handler) ListMine(c *gin.Context) {
	actorID := c.GetInt64("user_id")
	role := c.GetString("role")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var (
		bookings []Booking
		err      error
	)
	if role == "coach" {
		bookings, err = h.service.ListForCoach(c.Request.Context(), actorID, limit, offset)
	} else {
		bookings, err = h.service.ListForStudent(c.Request.Context(), actorID, limit, offset)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	views := make([]View, 0, len(bookings))
	for i := range bookings {
		views = append(views, NewView(&bookings[i]))
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": views})
}

func (h *Handler) SetSlotCapacity(c *gin.Context) {
	var req SlotCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	coachID := c.GetInt64("user_id")
	t, err := h.service.SetSlotCapacity(c.Request.Context(), coachID, req.SlotCapacity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"template": t})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var cardUnavailable *card.UnavailableError

	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAmbiguousSource), errors.Is(err, ErrUnknownAction):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrBookingNotFound),
		errors.Is(err, relationship.ErrRelationshipNotFound),
		errors.Is(err, relationship.ErrCategoryNotFound),
		errors.Is(err, card.ErrCardNotFound),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, address.ErrAddressNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrSelfConfirm),
		errors.Is(err, ErrCoachOnlyComplete), errors.Is(err, relationship.ErrNotRelationshipCoach):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrCoachCapacityFull),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrBookingDisabled),
		errors.Is(err, ErrRelationshipClosed), errors.Is(err, ErrCardNotOnRelation):
		response.Error(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, relationship.ErrInsufficientCredit):
		response.Error(c, http.StatusUnprocessableEntity, "INSUFFICIENT_CREDIT", err.Error())
	case errors.As(err, &cardUnavailable):
		response.Error(c, http.StatusUnprocessableEntity, "CARD_UNAVAILABLE", cardUnavailable.Reason)
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error")
	}
}
