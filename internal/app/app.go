package app

import (
	"context"
	"course_progress_backend/internal/config"
	"course_progress_backend/internal/controller"
	"course_progress_backend/internal/repository"
	"course_progress_backend/internal/service"
	"course_progress_backend/pkg/configwatcher"
	"course_progress_backend/pkg/database"
	"course_progress_backend/pkg/logger"
	"course_progress_backend/pkg/monitoring"
	"course_progress_backend/pkg/security"
	"course_progress_backend/pkg/tracing"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigDir       string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	curriculum     *repository.CurriculumRepository
	enrollment     *repository.EnrollmentRepository
	attempt        *repository.AttemptRepository
	lessonProgress *repository.LessonProgressRepository
	certificate    *repository.CertificateRepository
}

type services struct {
	storage     service.StorageProvider
	attempt     *service.AttemptService
	progress    *service.ProgressService
	certificate *service.CertificateService
}

type controllers struct {
	attempt     *controller.AttemptController
	progress    *controller.ProgressController
	certificate *controller.CertificateController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	ttl := time.Duration(cfg.Curriculum.CacheTTLMinutes) * time.Minute
	return &repositories{
		curriculum:     repository.NewCurriculumRepository(db, rdb, ttl),
		enrollment:     repository.NewEnrollmentRepository(db),
		attempt:        repository.NewAttemptRepository(db),
		lessonProgress: repository.NewLessonProgressRepository(db),
		certificate:    repository.NewCertificateRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.storage = service.NewStorageProvider(&cfg.Storage)
	s.attempt = service.NewAttemptService(repos.attempt, repos.curriculum, repos.enrollment, cfg.Attempts)
	s.progress = service.NewProgressService(repos.curriculum, repos.enrollment, repos.lessonProgress, repos.attempt, cfg.Progress)
	s.certificate = service.NewCertificateService(s.progress, repos.curriculum, repos.enrollment, repos.certificate, s.storage, cfg.Certificate)

	// graded attempts feed lesson progress, completed courses feed certificates
	s.attempt.Listener = s.progress
	s.progress.Completion = s.certificate

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		attempt:     controller.NewAttemptController(s.attempt),
		progress:    controller.NewProgressController(s.progress),
		certificate: controller.NewCertificateController(s.certificate, s.progress),
		health:      controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// applyPolicies pushes reloaded policy sections into the running services.
func (a *App) applyPolicies(cfg *config.Config) {
	a.services.attempt.SetPolicy(cfg.Attempts)
	a.services.progress.SetPolicy(cfg.Progress)
	a.services.certificate.SetConfig(cfg.Certificate)
	logger.Log.Info("Policies reloaded",
		zap.Bool("countExpiredAttempts", cfg.Attempts.CountExpiredAttempts),
		zap.Float64("videoCompletionThreshold", cfg.Progress.Normalized().VideoCompletionThreshold),
		zap.Bool("certificateAutoIssue", cfg.Certificate.AutoIssue))
}

func (a *App) startBackgroundTasks(ctx context.Context) {
	go a.sweepOverdueAttempts(ctx)

	go func() {
		err := configwatcher.Watch(ctx, a.ConfigDir, func(cfg *config.Config) {
			for _, callback := range a.configCallbacks {
				callback(cfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config hot reload disabled", zap.String("dir", a.ConfigDir), zap.Error(err))
		}
	}()
}

// sweepOverdueAttempts closes attempts whose time limit passed. The interval
// is re-read after each run so a reload can enable or disable the sweep.
func (a *App) sweepOverdueAttempts(ctx context.Context) {
	const idle = time.Minute
	for {
		wait := idle
		if secs := a.services.attempt.Policy().SweepIntervalSeconds; secs > 0 {
			wait = time.Duration(secs) * time.Second
			n, err := a.services.attempt.ExpireOverdue(ctx, time.Now())
			if err != nil {
				logger.Log.Error("Overdue attempt sweep failed", zap.Error(err))
			} else if n > 0 {
				logger.Log.Info("Expired overdue attempts", zap.Int("count", n))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	migrate := cfg.Server.Mode == gin.DebugMode || cfg.ForceMigrate
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		DB:        db,
		Redis:     rdb,
	}
	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(db, rdb, cfg)
	app.services = app.initServices(repos, cfg)
	controllers := app.initControllers(app.services, db, rdb)
	app.RegisterConfigCallback(app.applyPolicies)

	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("course-progress", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.startBackgroundTasks(ctx)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	log.Println("Server exiting")
}
