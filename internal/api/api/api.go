package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wb-go/wbf/ginext"

	"eventpass/cmd/middleware"
	"eventpass/internal/service"
)

type Routers struct {
	Service    service.Service
	Auth       middleware.Authenticator
	CORSOrigin string
	UploadsDir string
	Metrics    prometheus.Gatherer
}

func NewRouters(r *Routers) *ginext.Engine {
	binding.EnableDecoderDisallowUnknownFields = true

	app := ginext.New("release")
	app.MaxMultipartMemory = 8 << 20

	app.Use(gin.Recovery())
	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.New(corsConfig(r.CORSOrigin)))

	admin := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return []gin.HandlerFunc{middleware.RequireAuth(r.Auth), middleware.RequireAdmin(), h}
	}

	apiGroup := app.Group("/api")

	events := apiGroup.Group("/events")
	events.GET("", r.Service.GetAllEvents)
	events.GET("/all", r.Service.GetAllEvents)
	events.GET("/:id", r.Service.GetEvent)
	events.POST("", admin(r.Service.CreateEvent)...)
	events.PUT("/:id", admin(r.Service.UpdateEvent)...)
	events.DELETE("/:id", admin(r.Service.DeleteEvent)...)

	regs := apiGroup.Group("/registrations")
	regs.POST("/register", r.Service.Register)
	regs.POST("/validate", r.Service.Validate)
	regs.POST("/decode", r.Service.Decode)
	regs.GET("/events/all", r.Service.EventSummaries)
	regs.GET("/event/:eventId", admin(r.Service.EventRegistrations)...)
	regs.GET("/all", admin(r.Service.AllRegistrations)...)

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/login", r.Service.Login)
	authGroup.POST("/logout", middleware.RequireAuth(r.Auth), r.Service.Logout)

	app.GET("/health", r.Service.Health)
	if r.Metrics != nil {
		app.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.Metrics, promhttp.HandlerOpts{})))
	} else {
		app.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	if r.UploadsDir != "" {
		app.Static("/uploads", r.UploadsDir)
	}

	return app
}

func corsConfig(origin string) cors.Config {
	cfg := cors.DefaultConfig()
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{origin}
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	return cfg
}
