package delivery

import (
	authDelivery "crmboard/internal/auth/delivery"
	authUsecase "crmboard/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the board API under /tenants/:tenant_id/boards/:board_type
func RegisterRoutes(api *gin.RouterGroup, h *BoardHandler, authUsecase authUsecase.AuthUsecase) {
	boards := api.Group("/tenants/:tenant_id/boards/:board_type")
	boards.Use(authDelivery.AuthMiddleware(authUsecase), authDelivery.TenantMiddleware())
	{
		boards.GET("", h.GetBoard)

		stages := boards.Group("/stages")
		{
			stages.GET("", h.ListStages)
			stages.POST("", authDelivery.RequireAdmin(), h.CreateStage)
			stages.PUT("/orders", authDelivery.RequireAdmin(), h.ReorderStages)
			stages.PATCH("/:stage_id", authDelivery.RequireAdmin(), h.UpdateStage)
			stages.DELETE("/:stage_id", authDelivery.RequireAdmin(), h.DeleteStage)
		}

		cards := boards.Group("/cards")
		{
			cards.GET("", h.ListCards)
			cards.POST("", h.CreateCard)
			cards.GET("/search", h.SearchCards)
			cards.PATCH("/:card_id", h.UpdateCard)
			cards.POST("/:card_id/move", h.MoveCard)
			cards.DELETE("/:card_id", h.DeleteCard)
			cards.GET("/:card_id/history", h.CardHistory)
		}

		boards.GET("/snapshot", h.GetSnapshot)
		boards.PUT("/snapshot", h.SaveSnapshot)
	}
}
