package group

import "github.com/gin-gonic/gin"

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/group-sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("", h.ListSessions)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/publish", h.Publish)
		sessions.POST("/:id/end", h.EndSession)
		sessions.POST("/:id/registrations", h.Register)
		sessions.GET("/:id/registrations", h.ListRegistrations)
	}

	regs := rg.Group("/group-registrations")
	{
		regs.GET("", h.ListMyRegistrations)
		regs.POST("/:id/confirm", h.ConfirmRegistration)
		regs.POST("/:id/reject", h.RejectRegistration)
		regs.POST("/:id/cancel", h.CancelRegistration)
		regs.POST("/:id/check-in", h.CheckIn)
		regs.POST("/:id/absent", h.MarkAbsent)
		regs.POST("/:id/revert-check-in", h.RevertCheckIn)
	}
}
