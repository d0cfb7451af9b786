package card

import "github.com/gin-gonic/gin"

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	templates := rg.Group("/card-templates")
	{
		templates.GET("", h.ListTemplates)
		templates.POST("", h.CreateTemplate)
		templates.PATCH("/:id/active", h.SetTemplateActive)
		templates.DELETE("/:id", h.DeleteTemplate)
	}

	cards := rg.Group("/cards")
	{
		cards.GET("", h.ListMine)
		cards.POST("", h.Issue)
		cards.GET("/:id", h.Get)
		cards.POST("/:id/activate", h.Activate)
		cards.POST("/:id/deactivate", h.Deactivate)
		cards.POST("/:id/reactivate", h.Reactivate)
		cards.DELETE("/:id", h.Delete)
	}
}
