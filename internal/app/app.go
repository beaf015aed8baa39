package app

import (
	"context"
	"course_gen_backend/internal/config"
	"course_gen_backend/internal/controller"
	"course_gen_backend/internal/repository"
	"course_gen_backend/internal/service"
	"course_gen_backend/pkg/configwatcher"
	"course_gen_backend/pkg/database"
	"course_gen_backend/pkg/logger"
	"course_gen_backend/pkg/monitoring"
	"course_gen_backend/pkg/security"
	"course_gen_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	configMu sync.RWMutex
}

type repositories struct {
	user   *repository.UserRepository
	course *repository.CourseRepository
}

type services struct {
	auth       *service.AuthService
	course     *service.CourseService
	generation *service.GenerationService
	keys       *service.YouTubeKeyManager
}

type controllers struct {
	auth       *controller.AuthController
	course     *controller.CourseController
	generation *controller.GenerationController
	youtube    *controller.YouTubeStatusController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:   repository.NewUserRepository(db),
		course: repository.NewCourseRepository(db, rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	ai := service.NewAIService(cfg.AI)

	keys := service.NewYouTubeKeyManager(cfg.YouTube.APIKeys)
	youtube := service.NewYouTubeClient(cfg.YouTube, keys, service.RetryConfigFrom(cfg.Generation))
	transcripts := service.NewTranscriptService(cfg.Transcript)
	synth := service.NewSynthesisService(ai)

	return &services{
		auth:       service.NewAuthService(repos.user, cfg),
		course:     service.NewCourseService(repos.course, ai),
		generation: service.NewGenerationService(repos.course, youtube, transcripts, synth),
		keys:       keys,
	}
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		course:     controller.NewCourseController(s.course),
		generation: controller.NewGenerationController(s.generation, repos.course),
		youtube:    controller.NewYouTubeStatusController(s.keys),
		health:     controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式默认不自动迁移，需要 -migrate 显式触发
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Log.Info("Database migration completed")
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg)
	controllers := app.initControllers(services, repos, db)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("course-gen", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	// 配置文件热更新：当前只对可安全热替换的字段生效
	go configwatcher.WatchConfig("configs/config.yaml", func(newCfg interface{}) {
		reloaded, ok := newCfg.(*config.Config)
		if !ok {
			return
		}
		app.configMu.Lock()
		app.Config.CORS = reloaded.CORS
		app.Config.RateLimit = reloaded.RateLimit
		app.configMu.Unlock()
		logger.Log.Info("Config reloaded")
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
