package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campuslab/capstone-api/api/swagger"
	"github.com/campuslab/capstone-api/internal/handler"
	"github.com/campuslab/capstone-api/internal/middleware"
	"github.com/campuslab/capstone-api/internal/models"
	"github.com/campuslab/capstone-api/internal/repository"
	"github.com/campuslab/capstone-api/internal/service"
	"github.com/campuslab/capstone-api/pkg/cache"
	"github.com/campuslab/capstone-api/pkg/config"
	"github.com/campuslab/capstone-api/pkg/database"
	"github.com/campuslab/capstone-api/pkg/jobs"
	"github.com/campuslab/capstone-api/pkg/logger"
	corsmiddleware "github.com/campuslab/capstone-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuslab/capstone-api/pkg/middleware/requestid"
)

// @title Capstone Portal API
// @version 1.0.0
// @description University capstone project management portal
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	// Redis is optional: the portal serves the catalog from Postgres when
	// the cache is unavailable.
	var cacheSvc *service.CacheService
	if cfg.TopicCatalog.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.TopicCatalog.CacheTTL, logr, true)
		}
	}

	userRepo := repository.NewUserRepository(db)
	topicRepo := repository.NewTopicRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	validate := validator.New()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)

	notificationSvc := service.NewNotificationService(notificationRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, logr)
	notificationSvc.Start(context.Background())
	defer notificationSvc.Stop()

	topicSvc := service.NewTopicService(topicRepo, userRepo, projectRepo, cacheSvc, validate, logr)
	groupSvc := service.NewGroupService(groupRepo, userRepo, notificationSvc, cfg.Groups.MinInvitees, cfg.Groups.MaxInvitees, validate, logr)
	allocationSvc := service.NewAllocationService(projectRepo, topicRepo, groupRepo, userRepo, cacheSvc, metrics, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	topicHandler := handler.NewTopicHandler(topicSvc)
	groupHandler := handler.NewGroupHandler(groupSvc)
	projectHandler := handler.NewProjectHandler(allocationSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", userHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleCoordinator), "SELF"), userHandler.Get)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
	}

	topics := api.Group("/topics", middleware.JWT(authSvc))
	{
		topics.GET("", topicHandler.List)
		topics.POST("", middleware.RequireRoles(models.RoleTeacher), topicHandler.Submit)
		topics.GET("/catalog", middleware.RequireRoles(models.RoleStudent), topicHandler.Catalog)
		topics.POST("/:id/review", middleware.RequireRoles(models.RoleCoordinator, models.RoleAdmin), topicHandler.Review)
		topics.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), topicHandler.Delete)
	}

	groups := api.Group("/groups", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent))
	{
		groups.POST("", groupHandler.Create)
		groups.GET("/my", groupHandler.My)
		groups.POST("/:id/accept", groupHandler.Accept)
		groups.POST("/:id/reject", groupHandler.Reject)
		groups.POST("/:id/leave", groupHandler.Leave)
	}

	projects := api.Group("/projects", middleware.JWT(authSvc))
	{
		projects.POST("/select-topic", middleware.RequireRoles(models.RoleStudent), projectHandler.SelectTopic)
		projects.GET("/my", middleware.RequireRoles(models.RoleStudent), projectHandler.My)
		projects.PUT("/:id/progress", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), projectHandler.UpdateProgress)
	}

	notifications := api.Group("/notifications", middleware.JWT(authSvc))
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
