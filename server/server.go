package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resonate/config"
	"resonate/core/auth"
	"resonate/core/events"
	"resonate/core/ident"
	"resonate/core/ingest"
	"resonate/core/media"
	"resonate/core/stream"
	"resonate/db"
	"resonate/logger"
	"resonate/model"
	"resonate/repository"
	"resonate/storage"

	"github.com/gorilla/mux"
)

// Start initializes dependencies, wires the HTTP surface and serves until
// interrupted.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(getLogLevel()),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	auth.InitJWT(cfg.JWTSecret)

	// 设置服务器超时。写超时放宽，流式接口可能长时间占用连接。
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}

	// GORM 只负责 artist_profiles
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(&model.ArtistProfile{}); err != nil {
		logger.Fatal("Failed to migrate artist profiles", logger.ErrorField(err))
	}

	// Redis 不可用时降级为直查数据库
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, track meta cache disabled", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
	}

	store, err := storage.NewStore(cfg.StorageRoot)
	if err != nil {
		logger.Fatal("Failed to initialize storage", logger.ErrorField(err))
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 可选：把落盘资产异步归档到 MinIO
	if cfg.MinioEnabled {
		if err := storage.InitMinio(cfg); err != nil {
			logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
		}
		archiver := storage.NewArchiver(store, storage.GetMinioClient(), cfg.MinioBucket)
		go func() {
			if err := archiver.Run(rootCtx); err != nil {
				logger.Error("asset archiver stopped", logger.ErrorField(err))
			}
		}()
	}

	userRepo := repository.NewMySQLUserRepository(db.DB)
	albumRepo := repository.NewMySQLAlbumRepository(db.DB)
	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	profileRepo := repository.NewGormProfileRepository(db.GormDB)

	userAlloc := ident.NewAllocator(ident.Users, userRepo, cfg.IDMaxRetries, repository.IsDuplicatePrimaryKey)
	albumAlloc := ident.NewAllocator(ident.Albums, albumRepo, cfg.IDMaxRetries, repository.IsDuplicatePrimaryKey)
	trackAlloc := ident.NewAllocator(ident.Tracks, trackRepo, cfg.IDMaxRetries, repository.IsDuplicatePrimaryKey)

	hub := events.NewHub()
	go hub.Run()
	defer hub.Stop()

	transcoder := media.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.AudioBitrate, cfg.TranscodeConcurrency, cfg.TranscodeTimeout)
	pipeline := ingest.NewPipeline(
		store,
		media.NewExifSanitizer(),
		transcoder,
		albumRepo,
		trackRepo,
		profileRepo,
		albumAlloc,
		trackAlloc,
		hub,
		cfg.TranscodeConcurrency,
	)

	apiHandler := NewAPIHandler(
		userRepo, albumRepo, trackRepo, profileRepo,
		pipeline, stream.NewStreamer(), store, hub, userAlloc, cfg,
	)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 账户
	router.HandleFunc("/xrpc/account.register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/xrpc/account.login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// 专辑摄取与管理
	router.HandleFunc("/xrpc/music/album.create", apiHandler.AuthMiddleware(apiHandler.CreateAlbumHandler)).Methods(http.MethodPost)
	router.HandleFunc("/xrpc/music/albums", apiHandler.AuthMiddleware(apiHandler.GetUserAlbumsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/xrpc/music/album/{albumId}", apiHandler.GetAlbumHandler).Methods(http.MethodGet)
	router.HandleFunc("/xrpc/music/album.edit/{albumId}", apiHandler.AuthMiddleware(apiHandler.UpdateAlbumHandler)).Methods(http.MethodPut)
	router.HandleFunc("/xrpc/music/album.delete/{albumId}", apiHandler.AuthMiddleware(apiHandler.DeleteAlbumHandler)).Methods(http.MethodDelete)

	// 流式播放与公共图片
	router.HandleFunc("/xrpc/music/stream/{trackId}", apiHandler.StreamTrackHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/xrpc/images/{category}/{name}", apiHandler.ImageHandler).Methods(http.MethodGet)

	// 摄取进度推送
	router.HandleFunc("/ws/ingest", apiHandler.IngestEventsHandler).Methods(http.MethodGet)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}

func getLogLevel() string {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}
