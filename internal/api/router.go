package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterOptions tune the engine.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler, opts RouterOptions, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	api := router.Group("/api")
	registerPriceRoutes(api, h)
	registerAlertRoutes(api, h)
	registerDiscordRoutes(api, h)

	return router
}

func registerPriceRoutes(router *gin.RouterGroup, h *Handler) {
	prices := router.Group("/prices")
	{
		prices.GET("/:symbol", h.GetPrice)
		prices.GET("/ws/:symbol", h.StreamPrices)
	}
	router.GET("/candles", h.GetCandles)
	router.GET("/exchange/info", h.GetExchangeInfo)
}

func registerAlertRoutes(router *gin.RouterGroup, h *Handler) {
	alerts := router.Group("/alerts")
	{
		alerts.GET("", h.ListAlerts)
		alerts.POST("", h.CreateAlert)
		alerts.PUT("/:id", h.UpdateAlert)
		alerts.DELETE("/:id", h.DeleteAlert)
		alerts.POST("/:id/trigger", h.TriggerAlert)
	}
}

func registerDiscordRoutes(router *gin.RouterGroup, h *Handler) {
	router.POST("/test-alert", h.TestAlert)
	router.POST("/verify-discord", h.VerifyDiscord)
	router.POST("/discord/send", h.SendDiscord)
	router.POST("/discord/alert", h.SendDiscordAlert)
	router.GET("/debug/env", h.DebugEnv)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	cfg.MaxAge = 12 * time.Hour
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request served")
	}
}
