package app

import (
	"course_progress_backend/docs"
	"course_progress_backend/internal/config"
	"course_progress_backend/internal/controller"
	"course_progress_backend/internal/middleware"
	"course_progress_backend/internal/model"
	"course_progress_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		RegisterLearnerRoutes(authGroup, c.attempt, c.progress, c.certificate)

		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		RegisterTeacherRoutes(teacher, c.attempt)
	}
}

// RegisterLearnerRoutes mounts the attempt, progress and certificate endpoints.
func RegisterLearnerRoutes(rg *gin.RouterGroup, attempts *controller.AttemptController, progress *controller.ProgressController, certificates *controller.CertificateController) {
	assessments := rg.Group("/assessments")
	{
		assessments.POST("/:id/attempts", attempts.Start)
		assessments.GET("/:id/attempts", attempts.List)
	}

	attemptGroup := rg.Group("/attempts")
	{
		attemptGroup.GET("/:attemptId", attempts.Result)
		attemptGroup.POST("/:attemptId/submit", attempts.Submit)
		attemptGroup.POST("/:attemptId/expire", attempts.Expire)
	}

	enrollments := rg.Group("/enrollments")
	{
		enrollments.PUT("/:id/lessons/:lessonId/progress", progress.MarkLesson)
		enrollments.GET("/:id/progress", progress.GetProgress)
		enrollments.GET("/:id/certificate/eligibility", certificates.GetEligibility)
		enrollments.POST("/:id/certificate", certificates.Issue)
	}
}

// RegisterTeacherRoutes mounts grading endpoints on a group already restricted to staff.
func RegisterTeacherRoutes(rg *gin.RouterGroup, attempts *controller.AttemptController) {
	rg.GET("/attempts/pending", attempts.ListPending)
	rg.POST("/attempts/:attemptId/grade", attempts.Grade)
	rg.POST("/attempts/:attemptId/reset", attempts.Reset)
}
