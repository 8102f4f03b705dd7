package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/link-registry/internal/config"
	"github.com/SergeiKhy/link-registry/internal/handler"
	"github.com/SergeiKhy/link-registry/internal/middleware"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/SergeiKhy/link-registry/internal/service"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Подключение к хранилищу
	linkRepo, closeStore, err := openStore(cfg.DB, logger)
	if err != nil {
		logger.Fatal("Failed to open link store", zap.String("driver", cfg.DB.Driver), zap.Error(err))
	}

	// Redis опционален: без REDIS_HOST кэш остаётся nil и сервисы работают без него
	var cacheRepo repository.CacheRepository
	if cfg.Redis.Enabled() {
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		cacheRepo = repository.NewCacheRepository(redis)
		logger.Info("Connected to Redis")
	}

	var source service.CodeSource = service.MathRandSource{}
	if cfg.Code.SecureRandom {
		source = service.CryptoRandSource{}
	}
	allocator := service.NewCodeAllocator(linkRepo, service.AllocatorConfig{
		CodeLength:  cfg.Code.Length,
		MaxAttempts: cfg.Code.MaxAttempts,
		Source:      source,
	})

	// Инициализация процессора кликов (Worker Pool)
	clickProcessor := service.NewClickProcessor(linkRepo, cacheRepo, logger, service.ClickProcessorConfig{
		Workers:    cfg.Clicks.Workers,
		Buffer:     cfg.Clicks.Buffer,
		MaxRetries: cfg.Clicks.Retries,
		Timeout:    cfg.DB.QueryTimeout,
	})
	clickProcessor.Start()

	linkService := service.NewLinkService(linkRepo, cacheRepo, allocator, clickProcessor, logger, cfg.Redis.TTL)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Stop()

	router := handler.NewRouter(linkService, clickProcessor, rateLimiter, logger, cfg.App.BaseURL)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port), zap.String("driver", cfg.DB.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Дописываем клики из буфера до закрытия хранилища
	clickProcessor.Stop()
	closeStore()

	logger.Info("Server exited")
}

// openStore открывает хранилище ссылок выбранного драйвера
func openStore(cfg config.DBConfig, logger *zap.Logger) (repository.LinkRepository, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := repository.NewSQLiteDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Opened SQLite", zap.String("path", cfg.SQLitePath))
		return repository.NewSQLiteLinkRepository(db), func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close SQLite", zap.Error(err))
			}
		}, nil
	default:
		db, err := repository.NewPostgresDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected to PostgreSQL")
		return repository.NewLinkRepository(db), db.Close, nil
	}
}
