package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/Kosench/go-link-resolver/internal/cache"
	"github.com/Kosench/go-link-resolver/internal/clicks"
	"github.com/Kosench/go-link-resolver/internal/config"
	"github.com/Kosench/go-link-resolver/internal/database"
	"github.com/Kosench/go-link-resolver/internal/handler"
	"github.com/Kosench/go-link-resolver/internal/logging"
	"github.com/Kosench/go-link-resolver/internal/metrics"
	"github.com/Kosench/go-link-resolver/internal/middleware"
	"github.com/Kosench/go-link-resolver/internal/qrcode"
	"github.com/Kosench/go-link-resolver/internal/repository"
	"github.com/Kosench/go-link-resolver/internal/service"
	"github.com/Kosench/go-link-resolver/internal/tracing"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger, level, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Path:       cfg.Log.Path,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		log.Fatal("Failed to init logger: ", err)
	}
	defer logger.Sync()

	metrics.Init()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(context.Background(), cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(ctx)
			}()
			logger.Info("tracing enabled", zap.String("endpoint", cfg.Tracing.Endpoint))
		}
	}

	store, err := openStore(cfg, logger, level)
	if err != nil {
		logger.Fatal("failed to open record store", zap.Error(err))
	}
	defer store.close()
	logger.Info("record store ready", zap.String("driver", cfg.Database.Driver))

	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			CacheTTL:     cfg.Redis.CacheTTL,
			Namespace:    cfg.Redis.Namespace,
		})
		if err != nil {
			logger.Warn("failed to connect to Redis, running with local cache only", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info("connected to Redis")
		}
	}

	localCache, err := cache.NewLocalCache(cfg.Cache.LocalSize, cfg.Cache.LocalTTL)
	if err != nil {
		logger.Fatal("failed to create local cache", zap.Error(err))
	}

	var remote cache.Cache = cache.NewNullCache()
	if redisClient != nil {
		remote = redisClient
	}
	linkCache := cache.NewTieredCache(localCache, remote)
	defer linkCache.Close()

	linkRepo := repository.NewCachedLinkRepository(store.repo, linkCache, logger.Named("cache"), repository.CacheOptions{
		TTL:         cfg.Redis.CacheTTL,
		NegativeTTL: cfg.Redis.NegativeTTL,
		Namespace:   cfg.Redis.Namespace,
	})

	workers, workerCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	recorder, source := startClickPipeline(workers, &wg, cfg, linkRepo, logger)

	linkService := service.NewLinkService(linkRepo, recorder, service.Options{
		BaseURL:         cfg.GetBaseURL(),
		ShortCodeLength: cfg.App.ShortCodeLength,
		MaxRetries:      cfg.App.MaxRetries,
		Logger:          logger,
	})

	var ipLimiter *middleware.IPRateLimiter
	if redisClient == nil {
		ipLimiter = middleware.NewIPRateLimiter(cfg.App.RateLimit, cfg.App.RateWindow)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Cache.WarmupSchedule, func() {
		warmup(linkRepo, cfg.Cache.WarmupLimit, logger)
	}); err != nil {
		logger.Fatal("failed to schedule cache warm-up", zap.Error(err))
	}
	if ipLimiter != nil {
		if _, err := scheduler.AddFunc("@every 5m", ipLimiter.Cleanup); err != nil {
			logger.Fatal("failed to schedule rate limiter cleanup", zap.Error(err))
		}
	}
	scheduler.Start()
	go warmup(linkRepo, cfg.Cache.WarmupLimit, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.ZapLogger(logger.Named("http")),
		middleware.Metrics(),
		middleware.TraceName(),
	)

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.GetAllowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.UserIDHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	if redisClient != nil {
		router.Use(middleware.RedisRateLimit(redisClient, redisClient.GetKeyBuilder(), cfg.App.RateLimit, cfg.App.RateWindow, logger))
	} else {
		router.Use(ipLimiter.Middleware())
	}

	router.Use(middleware.Identity())

	checks := map[string]handler.HealthCheck{
		"database": store.health,
		"cache":    nil,
	}
	if redisClient != nil {
		checks["cache"] = redisClient.HealthCheck
	}

	info := gin.H{
		"service":         "Link Resolver",
		"version":         version,
		"database_driver": cfg.Database.Driver,
		"cache_enabled":   redisClient != nil,
		"kafka_enabled":   cfg.Clicks.Kafka.Enabled,
	}
	if v := store.version(); v != "" {
		info["database_version"] = v
	}

	handler.NewHealthHandler(checks, info).Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.NewLinkHandler(linkService, qrcode.NewGenerator(cfg.QR.DefaultSize)).Register(router)

	var httpHandler http.Handler = router
	if cfg.Tracing.Enabled {
		httpHandler = otelhttp.NewHandler(router, "http.server")
	}

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        httpHandler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.GetServerAddress()),
			zap.String("base_url", cfg.GetBaseURL()),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	<-scheduler.Stop().Done()

	// No new clicks after the server stops; flush what is buffered.
	if err := recorder.Close(); err != nil {
		logger.Warn("failed to close click recorder", zap.Error(err))
	}
	if source != nil {
		if err := source.Close(); err != nil {
			logger.Warn("failed to close click source", zap.Error(err))
		}
	}
	workerCancel()
	wg.Wait()

	logger.Info("server gracefully stopped")
}

// recordStore is the configured backend plus its lifecycle hooks.
type recordStore struct {
	repo    repository.LinkRepository
	health  handler.HealthCheck
	version func() string
	close   func()
}

func openStore(cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel) (*recordStore, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := database.Connect(database.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, err
		}

		if cfg.Database.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := database.Migrate(ctx, db, logger.Named("migrate")); err != nil {
				db.Close()
				return nil, err
			}
		}

		return &recordStore{
			repo:    repository.NewPostgresLinkRepository(db),
			health:  func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
			version: func() string { return postgresVersion(db) },
			close:   func() { db.Close() },
		}, nil

	case "mysql":
		db, err := database.OpenMySQL(cfg.Database.MySQLDSN, logger.Named("gorm"), level)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get mysql pool: %w", err)
		}

		repo := repository.NewGormLinkRepository(db)
		if cfg.Database.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := repo.AutoMigrate(ctx); err != nil {
				sqlDB.Close()
				return nil, err
			}
		}

		return &recordStore{
			repo:    repo,
			health:  sqlDB.PingContext,
			version: func() string { return "" },
			close:   func() { sqlDB.Close() },
		}, nil

	case "memory":
		return &recordStore{
			repo:    repository.NewMemoryLinkRepository(),
			health:  func(context.Context) error { return nil },
			version: func() string { return "" },
			close:   func() {},
		}, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

func postgresVersion(db *sql.DB) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := database.GetVersion(ctx, db)
	if err != nil {
		return ""
	}
	return v
}

// startClickPipeline wires the recorder to a batching consumer. With Kafka the
// events travel through the topic and the returned source must be closed on
// shutdown; otherwise they go through an in-process channel.
func startClickPipeline(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, store clicks.Store, logger *zap.Logger) (clicks.Recorder, io.Closer) {
	consumerCfg := clicks.ConsumerConfig{
		BatchSize:     cfg.Clicks.BatchSize,
		FlushInterval: cfg.Clicks.FlushInterval,
	}

	if cfg.Clicks.Kafka.Enabled {
		kafkaCfg := clicks.KafkaConfig{
			Brokers: cfg.Clicks.Kafka.Brokers,
			Topic:   cfg.Clicks.Kafka.Topic,
			GroupID: cfg.Clicks.Kafka.GroupID,
		}

		source := clicks.NewKafkaSource(kafkaCfg, cfg.Clicks.BufferSize, logger)
		consumer := clicks.NewConsumer(store, source.Events(), consumerCfg, logger)

		wg.Add(2)
		go func() {
			defer wg.Done()
			source.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()

		logger.Info("click events via kafka", zap.String("topic", kafkaCfg.Topic))
		return clicks.NewKafkaRecorder(kafkaCfg, logger), source
	}

	recorder := clicks.NewChannelRecorder(cfg.Clicks.BufferSize)
	consumer := clicks.NewConsumer(store, recorder.Events(), consumerCfg, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	return recorder, nil
}

func warmup(repo *repository.CachedLinkRepository, limit int, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := repo.WarmupCache(ctx, limit)
	if err != nil {
		logger.Warn("failed to warm up cache", zap.Error(err))
		return
	}
	logger.Debug("cache warmed up", zap.Int("links", n))
}
