package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/smd-platform/syllabus-api/api/swagger"
	"github.com/smd-platform/syllabus-api/internal/handler"
	"github.com/smd-platform/syllabus-api/internal/middleware"
	"github.com/smd-platform/syllabus-api/internal/models"
	"github.com/smd-platform/syllabus-api/internal/repository"
	"github.com/smd-platform/syllabus-api/internal/service"
	"github.com/smd-platform/syllabus-api/pkg/config"
	"github.com/smd-platform/syllabus-api/pkg/database"
	"github.com/smd-platform/syllabus-api/pkg/logger"
	corsmiddleware "github.com/smd-platform/syllabus-api/pkg/middleware/cors"
	reqidmiddleware "github.com/smd-platform/syllabus-api/pkg/middleware/requestid"
	"github.com/smd-platform/syllabus-api/pkg/objectstore"
	"github.com/smd-platform/syllabus-api/pkg/retry"
)

// @title Syllabus API
// @version 1.0.0
// @description Syllabus lifecycle management: drafting, approval workflow, attachments and the public catalog
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := objectstore.NewS3Store(ctx, cfg.Storage)
	cancel()
	if err != nil {
		logr.Sugar().Fatalw("object store init failed", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	syllabusRepo := repository.NewSyllabusRepository(db)
	fileRepo := repository.NewFileRepository(db)

	metricsSvc := service.NewMetricsService()
	metricsSvc.RegisterDBStats(db)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	var workflowSvc *service.WorkflowService
	if cfg.Catalog.CacheEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		workflowSvc = service.NewWorkflowService(syllabusRepo, cacheRepo, cfg.Catalog.CacheTTL, metricsSvc, logr)
	} else {
		workflowSvc = service.NewWorkflowService(syllabusRepo, nil, 0, metricsSvc, logr)
	}

	fileSvc := service.NewFileService(fileRepo, store, retry.Policy{
		MaxAttempts: cfg.Files.CompensateRetries,
		Backoff:     cfg.Files.CompensateBackoff,
	}, cfg.Files, metricsSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	syllabusHandler := handler.NewSyllabusHandler(workflowSvc)
	fileHandler := handler.NewFileHandler(fileSvc)
	publicHandler := handler.NewPublicHandler(workflowSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	public := api.Group("/public")
	{
		public.GET("/syllabi", publicHandler.Catalog)
		public.GET("/syllabi/export", publicHandler.Export)
		public.GET("/syllabi/:id", publicHandler.Get)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.POST("/syllabi", middleware.RequireRoles(models.RoleLecturer), syllabusHandler.Create)
		authed.GET("/syllabi", syllabusHandler.List)
		authed.GET("/syllabi/pending", syllabusHandler.Pending)
		authed.GET("/syllabi/:id", syllabusHandler.Get)
		authed.PUT("/syllabi/:id", syllabusHandler.Update)
		authed.POST("/syllabi/:id/submit", syllabusHandler.Submit)
		authed.POST("/syllabi/:id/hod-approve", syllabusHandler.HODApprove)
		authed.POST("/syllabi/:id/hod-reject", syllabusHandler.HODReject)
		authed.POST("/syllabi/:id/aa-approve", syllabusHandler.AAApprove)
		authed.POST("/syllabi/:id/aa-reject", syllabusHandler.AAReject)
		authed.POST("/syllabi/:id/publish", syllabusHandler.Publish)
		authed.POST("/syllabi/:id/unpublish", syllabusHandler.Unpublish)
		authed.GET("/syllabi/:id/workflow-actions", syllabusHandler.AuditTrail)

		authed.POST("/versions/:versionId/files", fileHandler.Upload)
		authed.PUT("/files/:id/content", fileHandler.Replace)
		authed.PATCH("/files/:id", fileHandler.Rename)
		authed.DELETE("/files/:id", fileHandler.Delete)
	}

	// Attachment reads apply the visibility ladder, so a token is used
	// when present but never required.
	optional := api.Group("")
	optional.Use(middleware.OptionalJWT(authSvc))
	{
		optional.GET("/versions/:versionId/files", fileHandler.List)
		optional.GET("/files/:id/signed-url", fileHandler.SignedURL)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
