package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"AuraFM/cache"
	"AuraFM/config"
	"AuraFM/core/catalog"
	"AuraFM/core/download"
	"AuraFM/core/library"
	"AuraFM/core/media"
	"AuraFM/core/playback"
	"AuraFM/core/push"
	"AuraFM/db"
	"AuraFM/logger"
	"AuraFM/model"
	"AuraFM/repository"
	"AuraFM/storage"
)

// jobEvents 任务事件扇出：推送给WebSocket客户端，终态落入下载历史
type jobEvents struct {
	hub     *push.Hub
	history repository.HistoryRepository
}

func (e *jobEvents) PublishJobUpdate(userID int64, job *model.DownloadJob) {
	if e.hub != nil {
		e.hub.PublishJobUpdate(userID, job)
	}
	if e.history == nil || job == nil || !job.Status.IsTerminal() {
		return
	}

	finishedAt := time.Now()
	if job.CompletedAt != nil {
		finishedAt = *job.CompletedAt
	}
	entry := &model.DownloadHistory{
		JobID:      job.ID,
		UserID:     job.UserID,
		Type:       string(job.Type),
		TrackID:    job.TrackID,
		AlbumID:    job.AlbumID,
		Quality:    job.Quality,
		Status:     string(job.Status),
		RetryCount: job.RetryCount,
		Error:      job.Error,
		FinishedAt: finishedAt,
	}
	if err := e.history.Append(context.Background(), entry); err != nil {
		logger.Warn("写入下载历史失败", logger.String("jobId", job.ID), logger.ErrorField(err))
	}
}

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	if err := logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database with GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(&model.DownloadHistory{}); err != nil {
		logger.Fatal("Failed to migrate history models", logger.ErrorField(err))
	}

	// Redis 不可用时降级到内存存储：会话和任务不再跨重启存活，服务照常工作
	var jobStore download.JobStore
	var sessionStore playback.SessionStore
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis连接失败，降级到内存存储", logger.ErrorField(err))
		jobStore = download.NewMemoryJobStore()
		sessionStore = playback.NewMemorySessionStore()
	} else {
		defer cache.CloseRedis()
		jobStore = cache.NewRedisJobStore(cache.RedisClient)
		sessionStore = cache.NewRedisSessionStore(cache.RedisClient, cfg.SessionTTL)
	}

	hub := push.NewHub()
	go hub.Run()

	sessions := playback.NewSessionManager(sessionStore, hub, cfg.FallbackQuality)

	userRepo := repository.NewMySQLUserRepository(db.DB)
	libraryRepo := repository.NewMySQLLibraryRepository(db.DB)
	historyRepo := repository.NewGormHistoryRepository(db.GormDB)

	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogToken, cfg.CatalogTimeout)
	transcoder := media.NewTranscoder(cfg.FFmpegPath)

	manager := download.NewManager(download.ManagerConfig{
		Workers:           cfg.DownloadWorkers,
		DefaultMaxRetries: cfg.DownloadMaxRetries,
		RetryDelay:        cfg.RetryDelay,
		LeaseTTL:          cfg.DownloadLeaseTTL,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}, download.ManagerDeps{
		Store:      jobStore,
		Source:     catalogClient,
		Transcoder: transcoder,
		LocalSink:  storage.NewLocalSink(cfg.DownloadDir),
		ServerSink: storage.NewMinioSink(storage.GetMinioClient(), cfg.MinioBucket),
		Recorder:   repository.NewDownloadRecorder(libraryRepo),
		Notifier:   &jobEvents{hub: hub, history: historyRepo},
	})

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if err := manager.Start(rootCtx); err != nil {
		logger.Fatal("Failed to start download manager", logger.ErrorField(err))
	}

	watcher := library.NewWatcher(cfg.DownloadDir, libraryRepo)
	if err := watcher.Start(rootCtx); err != nil {
		logger.Warn("下载目录监听启动失败", logger.ErrorField(err))
	}

	apiHandler := NewAPIHandler(cfg, userRepo, libraryRepo, historyRepo, sessions, manager, catalogClient, hub)

	router := mux.NewRouter()

	// CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", cfg.AllowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// 下载队列
	router.HandleFunc("/api/download-queue", apiHandler.AuthMiddleware(apiHandler.SubmitDownloadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/download-queue", apiHandler.AuthMiddleware(apiHandler.ListDownloadsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/download-queue/{jobId}", apiHandler.AuthMiddleware(apiHandler.GetDownloadHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/download-queue/{jobId}", apiHandler.AuthMiddleware(apiHandler.CancelDownloadHandler)).Methods(http.MethodDelete)

	// 播放会话
	router.HandleFunc("/api/playback", apiHandler.AuthMiddleware(apiHandler.GetPlaybackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/playback/queue", apiHandler.AuthMiddleware(apiHandler.SetQueueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/queue", apiHandler.AuthMiddleware(apiHandler.ClearQueueHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/playback/queue/shuffle", apiHandler.AuthMiddleware(apiHandler.ShuffleQueueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/queue/tracks", apiHandler.AuthMiddleware(apiHandler.EnqueueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/queue/tracks/{index}", apiHandler.AuthMiddleware(apiHandler.RemoveFromQueueHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/playback/next", apiHandler.AuthMiddleware(apiHandler.NextTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/previous", apiHandler.AuthMiddleware(apiHandler.PreviousTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/events", apiHandler.AuthMiddleware(apiHandler.PlaybackEventHandler)).Methods(http.MethodPost)

	// 媒体库与历史
	router.HandleFunc("/api/library", apiHandler.AuthMiddleware(apiHandler.ListLibraryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/library/{id}/stream", apiHandler.AuthMiddleware(apiHandler.StreamLibraryTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/history", apiHandler.AuthMiddleware(apiHandler.ListHistoryHandler)).Methods(http.MethodGet)

	// 上游曲库代理
	router.HandleFunc("/api/catalog/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.GetCatalogTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/catalog/albums/{id}/tracks", apiHandler.AuthMiddleware(apiHandler.GetCatalogAlbumTracksHandler)).Methods(http.MethodGet)

	// WebSocket 事件推送
	router.HandleFunc("/api/ws", apiHandler.WebSocketHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	watcher.Stop()
	manager.Stop()
	hub.Stop()
	logger.Info("Server stopped")
}
