package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"vcompressor/app/auth"
	"vcompressor/app/config"
	"vcompressor/app/database"
	"vcompressor/app/engine"
	"vcompressor/app/filewatcher"
	"vcompressor/app/handler"
	"vcompressor/app/logger"
	"vcompressor/app/media"
	"vcompressor/app/metrics"
	"vcompressor/app/middleware"
	"vcompressor/app/service"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger

	gin        *gin.Engine
	http       *http.Server
	jwtService *auth.JWTService
	inspector  media.Inspector
	queue      *service.JobQueueService
	notifier   *service.NotifyService
	watchers   *filewatcher.FileWatcherManager
}

// New 创建服务器并组装压缩队列，需要先调用 database.Init
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	router := gin.Default()

	// 同一个文件在预览、入队、重试时只检测一次
	inspector := media.NewCachedInspector(
		media.NewFFprobeInspector(cfg.FFmpeg.FFprobePath, log.Named("ffprobe").Logger),
		cfg.FFmpeg.ProbeCacheTTL,
	)

	deps := service.JobQueueDeps{
		DB:        database.GetDB(),
		Inspector: inspector,
		Engine:    engine.NewFFmpegEngine(cfg.FFmpeg, log.Named("ffmpeg")),
	}
	if cfg.Compress.Poster {
		deps.Poster = engine.NewPosterGenerator(cfg.FFmpeg.FFmpegPath, cfg.Compress.PosterWidth, cfg.Compress.PosterBadge, log.Named("poster"))
	}

	notifier := service.NewNotifyService(cfg.Notify, log.Named("notify"))
	if notifier != nil {
		deps.Notifier = notifier
	}

	queue := service.NewJobQueueService(cfg, log.Named("queue"), deps)

	watchers, err := filewatcher.NewFileWatcherManager(cfg.Watcher, queue, log.Named("watcher"))
	if err != nil {
		return nil, fmt.Errorf("创建文件监控失败: %w", err)
	}

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:     cfg,
		Logger:     log,
		jwtService: auth.NewJWTService(cfg.JWT),
		inspector:  inspector,
		queue:      queue,
		notifier:   notifier,
		watchers:   watchers,
	}

	s.setupRoutes()

	return s, nil
}

// Handler 返回路由，测试时直接调用
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Start 启动任务队列、文件监控和 HTTP 服务
func (s *Server) Start() error {
	s.queue.Start()

	if err := s.watchers.Start(); err != nil {
		s.queue.Stop()
		return err
	}

	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown 先停止接收新任务，再等待正在压缩的任务退出
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.http.Shutdown(ctx)

	if err := s.watchers.Stop(); err != nil {
		s.Logger.Errorf("停止文件监控失败: %v", err)
	}

	s.queue.Stop()

	if s.notifier != nil {
		s.notifier.Close()
	}

	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return httpErr
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.jwtService, s.Logger.Named("auth"))
	jobHandler := handler.NewJobHandler(s.queue, s.Logger.Named("api"))
	probeHandler := handler.NewProbeHandler(s.inspector, s.Config.Compress, s.Logger.Named("api"))

	s.gin.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.gin.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, handler.ApiResponse{Message: "ok", Data: gin.H{"queue_running": s.queue.IsRunning()}})
	})

	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.RefreshToken)
	}

	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.jwtService))
	{
		protected.GET("/me", authHandler.Me)

		// 创建任务会写入并覆盖任意输出路径，只允许管理员操作
		jobs := protected.Group("/jobs")
		{
			jobs.POST("", middleware.AdminOnly(), jobHandler.CreateJob)
			jobs.GET("", jobHandler.GetJobs)
			jobs.GET("/:id", jobHandler.GetJob)
			jobs.POST("/:id/cancel", middleware.AdminOnly(), jobHandler.CancelJob)
		}

		protected.GET("/queue/status", jobHandler.GetQueueStatus)

		protected.POST("/probe", probeHandler.Probe)
		protected.POST("/options/preview", probeHandler.Preview)
	}
}
