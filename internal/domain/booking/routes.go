package booking

import "github.com/gin-gonic/gin"

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	bookings := rg.Group("/bookings")
	{
		bookings.POST("", h.Create)
		bookings.GET("", h.ListMine)
		bookings.GET("/:id", h.Get)
		bookings.POST("/:id/transition", h.Transition)
	}

	rg.PUT("/coach/slot-capacity", h.SetSlotCapacity)
}
