package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/idcard-api/internal/handler"
	"github.com/noah-isme/idcard-api/internal/middleware"
	"github.com/noah-isme/idcard-api/internal/service"
	"github.com/noah-isme/idcard-api/pkg/config"
	"github.com/noah-isme/idcard-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/idcard-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/idcard-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *service.MetricsService
	auth     middleware.TokenValidator
	health   *handler.MetricsHandler
	proxy    *handler.ProxyHandler
	authH    *handler.AuthHandler
	roster   *handler.RosterHandler
	sessions *handler.SessionHandler
	staff    *handler.StaffHandler
	cards    *handler.CardHandler
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(middleware.Metrics(d.metrics))

	r.GET("/health", d.health.Health)
	r.GET("/ready", d.health.Ready)
	r.GET("/metrics", d.health.Prometheus)
	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	images := r.Group("/api/proxy-image", corsmiddleware.Permissive())
	images.GET("", d.proxy.ProxyImage)
	images.OPTIONS("", func(*gin.Context) {})

	api := r.Group(d.cfg.APIPrefix, corsmiddleware.New(d.cfg.CORS.AllowedOrigins), middleware.WithResponseMeta())
	api.OPTIONS("/*path", func(*gin.Context) {})
	api.POST("/auth/login", d.authH.Login)
	api.GET("/cards/download/:token", d.cards.Download)

	gated := api.Group("", middleware.JWT(d.auth))
	gated.GET("/roster", d.roster.List)
	gated.GET("/roster/diagnostics", d.roster.Diagnostics)
	gated.GET("/card-jobs/:jobId", d.cards.JobStatus)
	gated.POST("/sessions", d.sessions.Create)

	s := gated.Group("/sessions/:id")
	s.GET("", d.sessions.Get)
	s.GET("/students", d.sessions.Students)
	s.POST("/temp/select-visible", d.sessions.SelectVisible)
	s.POST("/temp/:studentId/toggle", d.sessions.ToggleTemp)
	s.POST("/selected", d.sessions.CommitAll)
	s.DELETE("/selected", d.sessions.Clear)
	s.POST("/selected/:studentId", d.sessions.Commit)
	s.DELETE("/selected/:studentId", d.sessions.Remove)
	s.PUT("/selected/:studentId/expiration", d.sessions.SetExpiration)
	s.POST("/csv-filter", d.sessions.UploadCSVFilter)
	s.DELETE("/csv-filter", d.sessions.ClearCSVFilter)
	s.POST("/cards", d.cards.GenerateStudents)
	s.POST("/cards/jobs", d.cards.CreateJob)
	s.GET("/manifest.csv", d.cards.Manifest)

	s.GET("/staff", d.staff.List)
	s.POST("/staff", d.staff.Add)
	s.DELETE("/staff", d.staff.Clear)
	s.POST("/staff/import", d.staff.Import)
	s.POST("/staff/cards", d.cards.GenerateStaff)
	s.PUT("/staff/:staffId/photo", d.staff.SetPhoto)
	s.DELETE("/staff/:staffId/photo", d.staff.RemovePhoto)
	s.DELETE("/staff/:staffId", d.staff.Remove)

	return r
}
