package ginserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zarp/internal/infra/config"
	"zarp/internal/infra/obs"
)

type SessionHTTP interface {
	Open(c *gin.Context)
	Calendar(c *gin.Context)
	CheckIn(c *gin.Context)
	CheckOut(c *gin.Context)
	Clear(c *gin.Context)
	State(c *gin.Context)
	Refresh(c *gin.Context)
	Submit(c *gin.Context)
	Close(c *gin.Context)
}

type Handlers struct {
	Session SessionHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	if h.Session != nil {
		api.POST("/sessions", h.Session.Open)
		api.GET("/sessions/:id/calendar", h.Session.Calendar)
		api.POST("/sessions/:id/checkin", h.Session.CheckIn)
		api.POST("/sessions/:id/checkout", h.Session.CheckOut)
		api.POST("/sessions/:id/clear", h.Session.Clear)
		api.GET("/sessions/:id/state", h.Session.State)
		api.POST("/sessions/:id/refresh", h.Session.Refresh)
		api.POST("/sessions/:id/submit", h.Session.Submit)
		api.DELETE("/sessions/:id", h.Session.Close)
	}

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func configureGinMode(env string) string {
	mode := gin.ReleaseMode
	if env == "dev" {
		mode = gin.DebugMode
	}
	gin.SetMode(mode)
	return mode
}
