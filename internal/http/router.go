package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/fieldserve/backend/internal/config"
	"github.com/fieldserve/backend/internal/db"
	"github.com/fieldserve/backend/internal/dispatch"
	"github.com/fieldserve/backend/internal/geocode"
	"github.com/fieldserve/backend/internal/http/handlers"
	"github.com/fieldserve/backend/internal/http/middleware"
	"github.com/fieldserve/backend/internal/metrics"

	_ "github.com/fieldserve/backend/docs"
)

func Router(cfg config.Config, store *db.Store, batch *dispatch.BatchService, geocoder geocode.Geocoder, recorder *metrics.Recorder, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:          store,
		Batch:          batch,
		Geocoder:       geocoder,
		Metrics:        recorder,
		Validator:      validator.New(),
		Logger:         logger,
		AdminKey:       cfg.AdminKey,
		CountryDefault: cfg.CountryDefault,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/jobs", h.JobsList)
		api.GET("/jobs/:id", h.JobDetails)
		api.GET("/technicians", h.TechniciansList)
		api.GET("/runs/latest", h.RunsLatest)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/jobs/:id/dispatch", h.DispatchJob)
		admin.POST("/jobs/:id/override", h.OverrideAssign)
		admin.POST("/jobs/:id/start", h.StartJob)
		admin.POST("/jobs/:id/complete", h.CompleteJob)
		admin.POST("/jobs/:id/unassign", h.UnassignJob)
		admin.POST("/dispatch/preview", h.PreviewDispatch)
		admin.POST("/dispatch/batch", h.BatchDispatch)
		admin.POST("/jobs/regeocode", h.RegeocodeJobs)
		admin.GET("/debug/eligibility", h.DebugEligibility)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
