package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	authUsecase "crmboard/internal/auth/usecase"
	boardUsecase "crmboard/internal/board/usecase"
	"crmboard/internal/realtime"
	"crmboard/pkg/config"
	"crmboard/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Handler struct {
	authUsecase  authUsecase.AuthUsecase
	boardUsecase boardUsecase.BoardUsecase
	hub          *realtime.Hub
	metrics      *metrics.Metrics
	config       *config.Config
	log          zerolog.Logger
}

func NewHandler(authUc authUsecase.AuthUsecase, boardUc boardUsecase.BoardUsecase, hub *realtime.Hub, m *metrics.Metrics, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		authUsecase:  authUc,
		boardUsecase: boardUc,
		hub:          hub,
		metrics:      m,
		config:       cfg,
		log:          log.With().Str("component", "http").Logger(),
	}
}

// corsMiddleware answers preflight requests and echoes the allowed origin
func corsMiddleware(allowed string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowed != "" && allowed != "*":
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowed)
		case origin != "":
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		default:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger writes one structured line per request
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("tenant_id", c.GetString("tenantID")).
			Msg("request")
	}
}

// Router builds the gin engine with middleware and routes
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log), corsMiddleware(h.config.CORSOrigin))
	if h.metrics != nil {
		r.Use(h.metrics.GinMiddleware())
	}
	SetupRoutes(r, h)
	return r
}

// Start serves until ctx ends, then shuts down gracefully
func (h *Handler) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.log.Info().Str("addr", addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	h.log.Info().Msg("server stopped")
	return nil
}
