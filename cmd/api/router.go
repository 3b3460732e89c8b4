package api

import (
	"net/http"

	"crmboard/internal/auth/delivery"
	boardDelivery "crmboard/internal/board/delivery"
	"crmboard/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	authHandler := delivery.NewAuthHandler(h.authUsecase)
	boardHandler := boardDelivery.NewBoardHandler(h.boardUsecase)
	realtimeHandler := realtime.NewHandler(h.hub, h.config.CORSOrigin, h.log)

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Realtime change feed (websocket)
		api.GET("/realtime", delivery.AuthMiddleware(h.authUsecase), realtimeHandler.Serve)

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", delivery.AuthMiddleware(h.authUsecase), authHandler.Me)
			auth.POST("/logout", authHandler.Logout)
		}

		// Team routes (protected)
		members := api.Group("/tenants/:tenant_id/members")
		members.Use(delivery.AuthMiddleware(h.authUsecase), delivery.TenantMiddleware())
		{
			members.GET("", authHandler.ListMembers)
			members.POST("", delivery.RequireAdmin(), authHandler.AddMember)
		}

		// Board routes (protected)
		boardDelivery.RegisterRoutes(api, boardHandler, h.authUsecase)
	}
}
