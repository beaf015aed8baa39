package app

import (
	"course_gen_backend/docs"
	"course_gen_backend/internal/config"
	"course_gen_backend/internal/middleware"
	"course_gen_backend/internal/model"
	"course_gen_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/health", c.health.HealthCheck)

	// 公共路由（无需登录）
	api := router.Group("/api")
	{
		api.POST("/register", c.auth.Register)
		api.POST("/login", c.auth.Login)
		api.GET("/courses", c.course.ListCourses)

		// 课程详情与进度订阅：游客可看公开课程，私有课程在 service 层判权
		api.GET("/courses/:id", middleware.TryAuthMiddleware(cfg), c.course.GetCourse)
		api.GET("/courses/:id/events", middleware.TryAuthMiddleware(cfg), c.generation.StreamEvents)
		api.POST("/courses/:id/chapters/:chapterId/view", c.course.RecordChapterView)
	}

	// 需要登录的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/me", c.auth.Me)
		authGroup.GET("/user/courses", c.course.MyCourses)

		authGroup.POST("/courses", c.course.CreateCourse)
		authGroup.PUT("/courses/:id", c.course.UpdateCourse)
		authGroup.DELETE("/courses/:id", c.course.DeleteCourse)
		authGroup.POST("/courses/:id/publish", c.course.PublishCourse)
		authGroup.POST("/courses/:id/enroll", c.course.EnrollCourse)

		authGroup.POST("/courses/:id/generate", c.generation.GenerateCourse)
		authGroup.POST("/courses/:id/chapters/:chapterId/regenerate", c.generation.RegenerateChapter)
	}

	// 凭证池运维接口，仅管理员
	adminGroup := router.Group("/api/youtube")
	adminGroup.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		adminGroup.GET("/status", c.youtube.Status)
		adminGroup.POST("/keys/reset", c.youtube.ResetKeys)
	}
}
