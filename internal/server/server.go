package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"anoa.com/friendline/internal/config"
	"anoa.com/friendline/internal/middleware"
	"anoa.com/friendline/internal/scheduler"
	"anoa.com/friendline/pkg/changefeed"
	"anoa.com/friendline/pkg/moderation"
	"anoa.com/friendline/pkg/storage"

	convHttp "anoa.com/friendline/internal/modules/conversation/delivery/http"
	convRepo "anoa.com/friendline/internal/modules/conversation/repository"
	convService "anoa.com/friendline/internal/modules/conversation/service"

	followHttp "anoa.com/friendline/internal/modules/follow/delivery/http"
	followRepo "anoa.com/friendline/internal/modules/follow/repository"
	followService "anoa.com/friendline/internal/modules/follow/service"

	msgHttp "anoa.com/friendline/internal/modules/message/delivery/http"
	msgRepo "anoa.com/friendline/internal/modules/message/repository"
	msgService "anoa.com/friendline/internal/modules/message/service"

	notiHttp "anoa.com/friendline/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	notifService "anoa.com/friendline/internal/modules/notification/service"

	postHttp "anoa.com/friendline/internal/modules/post/delivery/http"
	postRepo "anoa.com/friendline/internal/modules/post/repository"
	postService "anoa.com/friendline/internal/modules/post/service"

	presenceHttp "anoa.com/friendline/internal/modules/presence/delivery/http"
	presenceService "anoa.com/friendline/internal/modules/presence/service"

	profileHttp "anoa.com/friendline/internal/modules/profile/delivery/http"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	profileService "anoa.com/friendline/internal/modules/profile/service"

	realtimeHttp "anoa.com/friendline/internal/modules/realtime/delivery/http"
	realtimeService "anoa.com/friendline/internal/modules/realtime/service"

	searchHttp "anoa.com/friendline/internal/modules/search/delivery/http"
	searchService "anoa.com/friendline/internal/modules/search/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options carries the process-wide clients built in main. Redis, Storage,
// Classifier and Search are optional.
type Options struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Feed       changefeed.Feed
	Storage    storage.MediaStorage
	Classifier moderation.Classifier
	Search     searchService.SearchService
	Log        *zap.Logger
}

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	dispatcher  *notifService.Dispatcher
	scheduler   *scheduler.Scheduler
	log         *zap.Logger
}

func NewServer(o Options) *Server {
	cfg := o.Config
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	classifier := o.Classifier
	if classifier == nil {
		classifier = moderation.Noop{}
	}

	profileRepository := profileRepo.NewProfileRepository(o.DB)
	presenceSvc := presenceService.NewPresenceService(profileRepository, cfg.PresenceWindow)
	presenceHandler := presenceHttp.NewPresenceHandler(presenceSvc)

	// Notification Module
	notificationRepository := notifRepo.NewNotificationRepository(o.DB)
	dispatcher := notifService.NewDispatcher(notificationRepository, o.Feed, log, cfg.FanoutWorkers, cfg.FanoutQueue)
	notificationSvc := notifService.NewNotificationService(notificationRepository, presenceSvc, o.Feed, log)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc)

	// Maintenance jobs
	jobs := scheduler.New(log)
	if cfg.NotificationRetention > 0 {
		pruner := notifService.NewPruner(notificationRepository, cfg.NotificationRetention, cfg.PruneSchedule, log)
		if err := jobs.Register(pruner); err != nil {
			log.Warn("notification pruner not scheduled", zap.String("schedule", cfg.PruneSchedule), zap.Error(err))
		}
	}

	var indexer searchService.ProfileIndexer
	if o.Search != nil {
		indexer = o.Search
	}
	profileSvc := profileService.NewProfileService(profileRepository, presenceSvc, o.Storage, indexer, o.Feed, log)
	profileHandler := profileHttp.NewProfileHandler(profileSvc)

	followRepository := followRepo.NewFollowRepository(o.DB)
	followSvc := followService.NewFollowService(followRepository, profileRepository, presenceSvc, dispatcher, o.Feed, log)
	followHandler := followHttp.NewFollowHandler(followSvc)

	postSvc := postService.NewPostService(postService.Deps{
		Repo:       postRepo.NewPostRepository(o.DB),
		Profiles:   profileRepository,
		Presence:   presenceSvc,
		Fanout:     dispatcher,
		Classifier: classifier,
		Storage:    o.Storage,
		Redis:      o.Redis,
		Feed:       o.Feed,
		Log:        log,
	})
	postHandler := postHttp.NewPostHandler(postSvc)

	conversationRepository := convRepo.NewConversationRepository(o.DB)
	conversationSvc := convService.NewConversationService(conversationRepository, followRepository, notificationRepository, profileRepository, presenceSvc, o.Feed, log)
	conversationHandler := convHttp.NewConversationHandler(conversationSvc)

	messageSvc := msgService.NewMessageService(msgService.Deps{
		DB:         o.DB,
		Messages:   msgRepo.NewMessageRepository(o.DB),
		Convs:      conversationRepository,
		Profiles:   profileRepository,
		Fanout:     dispatcher,
		Classifier: classifier,
		Storage:    o.Storage,
		Redis:      o.Redis,
		RateLimit:  cfg.RateLimitMessage,
		Feed:       o.Feed,
		Log:        log,
	})
	messageHandler := msgHttp.NewMessageHandler(messageSvc)

	realtimeHandler := realtimeHttp.NewRealtimeHandler(realtimeService.Deps{
		Conversations: conversationSvc,
		Messages:      messageSvc,
		Notifications: notificationRepository,
		Presence:      presenceService.NewWorker(presenceSvc, cfg.HeartbeatInterval, log),
		Feed:          o.Feed,
		Log:           log,
	}, allowedOrigins(cfg), log)

	router := gin.New()

	setupCORS(router, cfg)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	s := &Server{
		engine:      router,
		db:          o.DB,
		redisClient: o.Redis,
		dispatcher:  dispatcher,
		scheduler:   jobs,
		log:         log,
	}

	router.GET("/healthz", s.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(profileRepository, cfg.JWTSecret)

	api := router.Group("/api")

	// Protected routes (apply auth middleware explicitly)
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth(), authMiddleware.RequireProfile())
	{
		// Profile routes
		protected.GET("/profile/:username", profileHandler.GetProfileByUsername)
		protected.GET("/profile/me", profileHandler.GetCurrentProfile)
		protected.PUT("/profile", profileHandler.UpdateProfile)
		protected.POST("/presence/heartbeat", presenceHandler.Heartbeat)

		if o.Search != nil {
			searchHandler := searchHttp.NewSearchHandler(o.Search)
			protected.GET("/search/profiles", searchHandler.SearchProfiles)
		}

		// Friend graph
		protected.GET("/friends", followHandler.ListFriends)
		protected.GET("/follows/incoming", followHandler.ListIncoming)
		protected.POST("/follows/:username", followHandler.Follow)
		protected.POST("/follows/:username/accept", followHandler.Accept)
		protected.POST("/follows/:username/reject", followHandler.Reject)
		protected.DELETE("/follows/:username", followHandler.Remove)

		// Post routes
		protected.POST("/posts", postHandler.CreatePost)
		protected.GET("/posts/:id", postHandler.GetPost)
		protected.POST("/posts/:id/like", postHandler.ToggleLike)
		protected.POST("/posts/:id/comments", postHandler.AddComment)
		protected.GET("/posts/:id/comments", postHandler.ListComments)

		// Conversations and messages
		protected.GET("/conversations", conversationHandler.List)
		protected.GET("/conversations/with/:username", conversationHandler.ResolveByUsername)
		protected.PUT("/conversations/:ref/read", conversationHandler.MarkRead)
		protected.GET("/conversations/:ref/messages", messageHandler.History)
		protected.POST("/messages", messageHandler.Send)
		protected.POST("/messages/media", messageHandler.UploadMedia)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.GET("/notifications/message-unread", notificationHandler.MessageUnread)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)

		protected.GET("/realtime/ws", realtimeHandler.HandleWebSocket)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves addr until ctx ends, then drains in-flight requests and the
// notification queue.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	s.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.scheduler.Stop(context.Background())
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.scheduler.Stop(shutdownCtx)
	s.Close()
	return err
}

// Close stops the fan-out workers after they drain.
func (s *Server) Close() {
	s.dispatcher.Close()
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"database": "ok", "redis": "disabled"}
	code := http.StatusOK

	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if s.redisClient != nil {
		status["redis"] = "ok"
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			status["redis"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, status)
}

func allowedOrigins(cfg *config.Config) []string {
	var origins []string
	for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}

func setupCORS(router *gin.Engine, cfg *config.Config) {
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(cfg),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
