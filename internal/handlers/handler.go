package handlers

import (
	"net/http"
	"time"

	"oven_controller/internal/logger"
	"oven_controller/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Options toggles the optional parts of the HTTP surface.
type Options struct {
	// AuthEnabled puts /set behind the bearer-token middleware.
	AuthEnabled bool
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
	// SysInfo overrides the host statistics source.
	SysInfo SysInfoFunc
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	opts     Options
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts Options) *Handler {
	if opts.SysInfo == nil {
		opts.SysInfo = collectSysInfo
	}
	return &Handler{services: services, log: log, opts: opts}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Oven endpoints
	h.registerOvenRoutes(router)

	// Diagnostics
	if h.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.opts.Metrics))
	}
	router.GET("/sysinfo", h.sysInfo)

	// State stream over WebSocket, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerOvenRoutes(r *gin.Engine) {
	r.GET("/status", h.getStatus)
	r.GET("/trend", h.getTrend)
	r.GET("/events", h.getEvents)

	if h.opts.AuthEnabled {
		r.GET("/set", h.userIdMiddleware, h.setDevice)
	} else {
		r.GET("/set", h.setDevice)
	}
}
