package relationship

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coachbook/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Bind(c *gin.Context) {
	var req BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	studentID := c.GetInt64("user_id")
	rel, err := h.service.Bind(c.Request.Context(), studentID, req.CoachID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to bind coach")
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"relationship": rel})
}

func (h *Handler) Unbind(c *gin.Context) {
	relID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Unbind(c.Request.Context(), relID); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"relationship_id": relID})
}

func (h *Handler) List(c *gin.Context) {
	userID := c.GetInt64("user_id")
	role := c.GetString("role")

	var (
		rels []Relationship
		err  error
	)
	if role == "coach" {
		rels, err = h.service.ListByCoach(c.Request.Context(), userID)
	} else {
		rels, err = h.service.ListByStudent(c.Request.Context(), userID)
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list relationships")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"relationships": rels})
}

func (h *Handler) SetBookingEnabled(c *gin.Context) {
	relID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req BookingEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	coachID := c.GetInt64("user_id")
	if err := h.service.SetBookingEnabled(c.Request.Context(), relID, coachID, *req.Enabled); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"relationship_id": relID, "booking_enabled": *req.Enabled})
}

func (h *Handler) ListBalances(c *gin.Context) {
	relID, ok := pathID(c, "id")
	if !ok {
		return
	}

	balances, err := h.service.ListBalances(c.Request.Context(), relID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"balances": balances})
}

func (h *Handler) GetAvailable(c *gin.Context) {
	relID, ok := pathID(c, "id")
	if !ok {
		return
	}
	catID, err := strconv.ParseInt(c.Query("category_id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "category_id is required")
		return
	}

	available, err := h.service.GetAvailableForBooking(c.Request.Context(), relID, catID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"available": available})
}

func (h *Handler) Adjust(c *gin.Context) {
	relID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	var expire *time.Time
	if req.ExpireDate != "" {
		d, err := time.Parse("2006-01-02", req.ExpireDate)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "expire_date must be YYYY-MM-DD")
			return
		}
		expire = &d
	}

	coachID := c.GetInt64("user_id")
	bal, err := h.service.Adjust(c.Request.Context(), coachID, relID, req.CategoryID, req.Delta, expire)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"balance": bal})
}

func (h *Handler) ListCreditLogs(c *gin.Context) {
	relID, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	logs, err := h.service.ListCreditLogs(c.Request.Context(), relID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"logs": logs})
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	coachID := c.GetInt64("user_id")
	cat, err := h.service.CreateCategory(c.Request.Context(), coachID, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"category": cat})
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	catID, ok := pathID(c, "id")
	if !ok {
		return
	}

	coachID := c.GetInt64("user_id")
	if err := h.service.DeleteCategory(c.Request.Context(), coachID, catID); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"category_id": catID})
}

func (h *Handler) ListCategories(c *gin.Context) {
	coachID := c.GetInt64("user_id")
	cats, err := h.service.ListCategories(c.Request.Context(), coachID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"categories": cats})
}

func (h *Handler) AttachCategory(c *gin.Context) {
	relID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AttachCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := h.service.AddCategory(c.Request.Context(), relID, req.CategoryID); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"relationship_id": relID, "category_id": req.CategoryID})
}

func (h *Handler) DetachCategory(c *gin.Context) {
	relID, ok := pathID(c, "id")
	if !ok {
		return
	}
	catID, err := strconv.ParseInt(c.Param("categoryId"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid category ID")
		return
	}

	if err := h.service.RemoveCategory(c.Request.Context(), relID, catID); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"relationship_id": relID, "category_id": catID})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRelationshipNotFound), errors.Is(err, ErrCategoryNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ErrCategoryNotEmpty), errors.Is(err, ErrDefaultCategory):
		response.Error(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, ErrInsufficientCredit):
		response.Error(c, http.StatusUnprocessableEntity, "INSUFFICIENT_CREDIT", err.Error())
	case errors.Is(err, ErrNotRelationshipCoach):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, ErrInvalidCount):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error")
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid ID")
		return 0, false
	}
	return id, true
}
