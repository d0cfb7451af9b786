package relationship

import "github.com/gin-gonic/gin"

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rels := rg.Group("/relationships")
	{
		rels.POST("", h.Bind)
		rels.GET("", h.List)
		rels.DELETE("/:id", h.Unbind)
		rels.PATCH("/:id/booking-enabled", h.SetBookingEnabled)
		rels.GET("/:id/balances", h.ListBalances)
		rels.GET("/:id/available", h.GetAvailable)
		rels.POST("/:id/adjust", h.Adjust)
		rels.GET("/:id/credit-logs", h.ListCreditLogs)
		rels.POST("/:id/categories", h.AttachCategory)
		rels.DELETE("/:id/categories/:categoryId", h.DetachCategory)
	}

	cats := rg.Group("/categories")
	{
		cats.GET("", h.ListCategories)
		cats.POST("", h.CreateCategory)
		cats.DELETE("/:id", h.DeleteCategory)
	}
}
