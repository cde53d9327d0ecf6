package http

import (
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"portalchat/internal/app"
	"portalchat/internal/bootstrap"
	"portalchat/internal/logger"
	"portalchat/internal/metrics"
	"portalchat/internal/transport/http/handler"
	"portalchat/internal/transport/http/middleware"
)

type routerDeps struct {
	GinMode        string
	Store          app.ConversationStore
	Realtime       nethttp.Handler
	RealtimePath   string
	JWTSecret      string
	AdminRole      string
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	MetricsPath    string
	HealthChecks   map[string]handler.Check
	StartedAt      time.Time
	Log            zerolog.Logger
}

func NewRouter(a *bootstrap.App) *gin.Engine {
	deps := routerDeps{
		GinMode:        a.Config.App.GinMode,
		Store:          a.Store,
		Realtime:       a.Realtime,
		RealtimePath:   a.Config.Realtime.Path,
		JWTSecret:      a.Config.Auth.JWTSecret,
		AdminRole:      a.Config.Auth.AdminRole,
		AllowedOrigins: a.Config.CORS.AllowedOrigins,
		HealthChecks:   make(map[string]handler.Check),
		StartedAt:      a.StartedAt,
		Log:            logger.Component(a.Log, "http"),
	}
	if a.Config.Metrics.Enabled {
		deps.Metrics = a.Metrics
		deps.MetricsPath = a.Config.Metrics.Path
	}
	for name, check := range a.HealthChecks() {
		deps.HealthChecks[name] = check
	}
	return newEngine(deps)
}

func newEngine(deps routerDeps) *gin.Engine {
	if deps.GinMode != "" {
		gin.SetMode(deps.GinMode)
	}
	router := gin.New()
	router.Use(
		middleware.Recovery(deps.Log),
		middleware.RequestLogger(deps.Log),
		middleware.Metrics(deps.Metrics),
		middleware.CORS(deps.AllowedOrigins),
	)

	healthHandler := handler.NewHealthHandler(deps.HealthChecks, deps.StartedAt)
	router.GET("/healthz", healthHandler.Check)
	if deps.Metrics != nil && deps.MetricsPath != "" {
		router.GET(deps.MetricsPath, gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})))
	}
	if deps.Realtime != nil && deps.RealtimePath != "" {
		router.GET(deps.RealtimePath, gin.WrapH(deps.Realtime))
	}

	chatHandler := handler.NewChatHandler(deps.Store, deps.Log)
	supportHandler := handler.NewSupportHandler(deps.Store, deps.AdminRole, deps.Log)

	chatGroup := router.Group("/api/chat")
	chatGroup.POST("/session", chatHandler.CreateSession)
	chatGroup.GET("/session/:sessionId", chatHandler.GetSession)
	chatGroup.GET("/messages/:sessionId", chatHandler.GetMessages)
	chatGroup.POST("/messages", chatHandler.AddMessage)

	supportGroup := chatGroup.Group("/support")
	supportGroup.Use(middleware.AuthJWT(deps.JWTSecret))
	supportGroup.GET("", supportHandler.List)
	supportGroup.POST("", supportHandler.Create)
	supportGroup.GET("/export", supportHandler.Export)
	supportGroup.PATCH("/:messageId/read", supportHandler.MarkRead)

	return router
}
