package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"anoa.com/friendline/internal/bootstrap"
	"anoa.com/friendline/internal/config"
	searchService "anoa.com/friendline/internal/modules/search/service"
	"anoa.com/friendline/internal/server"
	"anoa.com/friendline/pkg/changefeed"
	"anoa.com/friendline/pkg/database"
	"anoa.com/friendline/pkg/logger"
	"anoa.com/friendline/pkg/moderation"
	"anoa.com/friendline/pkg/storage"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.Options{
		DSN:      cfg.DatabaseURL,
		Host:     cfg.DBHost,
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Name:     cfg.DBName,
		Port:     cfg.DBPort,
		Quiet:    cfg.IsProduction(),
	})
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	if cfg.AppEnv == "development" {
		if err := bootstrap.SeedDemoProfiles(db, cfg.JWTSecret, log); err != nil {
			log.Fatal("failed to seed demo profiles", zap.Error(err))
		}
	}

	redisClient := connectRedis(ctx, cfg, log)
	var feed changefeed.Feed
	if redisClient != nil {
		defer redisClient.Close()
		feed = changefeed.NewRedisFeed(redisClient, log, changefeed.WithBackoff(200*time.Millisecond, cfg.FeedMaxBackoff))
	} else {
		log.Warn("redis not configured, using in-process change feed")
		feed = changefeed.NewMemoryFeed(log)
	}

	var classifier moderation.Classifier = moderation.Noop{}
	if cfg.GeminiAPIKey != "" {
		gemini, err := moderation.NewGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn("gemini classifier unavailable, moderation disabled", zap.Error(err))
		} else {
			defer gemini.Close()
			classifier = gemini
		}
	}

	var mediaStorage storage.MediaStorage
	if cfg.CloudinaryURL != "" {
		mediaStorage, err = storage.NewCloudinaryStorage(cfg.CloudinaryUploadFolder)
		if err != nil {
			log.Fatal("failed to initialize cloudinary storage", zap.Error(err))
		}
	} else {
		log.Warn("CLOUDINARY_URL not set, media uploads disabled")
	}

	var search searchService.SearchService
	if cfg.MeiliSearchHost != "" {
		meiliHost := cfg.MeiliSearchHost
		if !strings.HasPrefix(meiliHost, "http") {
			meiliHost = "http://" + meiliHost + ":7700"
		}
		search = searchService.NewMeiliSearchService(meilisearch.New(meiliHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey)), log)
	}

	srv := server.NewServer(server.Options{
		Config:     cfg,
		DB:         db,
		Redis:      redisClient,
		Feed:       feed,
		Storage:    mediaStorage,
		Classifier: classifier,
		Search:     search,
		Log:        log,
	})

	if err := srv.Run(ctx, ":"+cfg.Port); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}

// connectRedis returns nil when REDIS_URL is unset or unreachable; the
// service then runs single-instance without caches or cooldowns.
func connectRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL", zap.Error(err))
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable", zap.Error(err))
		_ = client.Close()
		return nil
	}
	log.Info("connected to redis")
	return client
}
