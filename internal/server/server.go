package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentplan/apiserver/config"
	"github.com/agentplan/apiserver/internal/activity"
	"github.com/agentplan/apiserver/internal/db"
	"github.com/agentplan/apiserver/internal/handlers"
	"github.com/agentplan/apiserver/internal/logger"
	"github.com/agentplan/apiserver/internal/metrics"
	"github.com/agentplan/apiserver/internal/middleware"
	"github.com/agentplan/apiserver/internal/mq"
	"github.com/agentplan/apiserver/internal/oauth"
	"github.com/agentplan/apiserver/internal/services"
	"github.com/agentplan/apiserver/internal/storage"
	"github.com/agentplan/apiserver/internal/store"
	"github.com/agentplan/apiserver/internal/token"
)

// Server wraps the HTTP server, its router and the shared resources
// that need closing on shutdown.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.EventPublisher
	logger     *zap.Logger
}

// New assembles the full application: storage, services, handlers and
// the router.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	signer, err := token.NewSigner(cfg.Session.JWTSecret, cfg.Session.TTL)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	stateCodec, err := oauth.NewStateCodec(cfg.OAuth.StateSecret)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	sessionRepo := store.NewSessionRepository(dbConn)
	accountRepo := store.NewOAuthAccountRepository(dbConn)

	avatars, err := buildAvatarStore(ctx, cfg, log)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	events, err := buildEventPublisher(ctx, cfg, log)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	sessionService := services.NewSessionService(sessionRepo, signer, cfg.Session.TTL)
	userService := services.NewUserService(userRepo, accountRepo, sessionRepo, cfg.AdminEmail)
	oauthService := services.NewOAuthService(userRepo, accountRepo, avatars, cfg.AdminEmail, log)

	clients, err := buildOAuthClients(cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	activityService := activity.NewService(
		activity.NewClient(cfg.Activity.Owner, cfg.Activity.Repo, cfg.Activity.Branch, cfg.Activity.Token),
		activity.NewCache(cfg.Activity.CacheTTL),
		cfg.Activity.CacheTTL,
		log,
	)

	limiter := buildRateLimiter(cfg, log)

	metrics.MustRegister()

	authHandler := handlers.NewAuthHandler(userService, sessionService, events, avatars, cfg.Session.CookieSecure, log)
	oauthHandler := handlers.NewOAuthHandler(clients, stateCodec, oauthService, sessionService, events, cfg.AppURL, cfg.Session.CookieSecure, log)
	activityHandler := handlers.NewActivityHandler(activityService, log)

	router := chi.NewRouter()
	router.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		chimiddleware.Logger,
		chimiddleware.Timeout(60*time.Second),
		middleware.Metrics,
	)
	router.Get("/healthz", handlers.Healthz(dbConn))
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, limiter.Limit)
		handlers.OAuthRouter(r, oauthHandler)
	})
	router.Route("/api/activity", func(r chi.Router) {
		handlers.ActivityRouter(r, activityHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		events:     events,
		logger:     log,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and closes shared resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.events != nil {
		_ = s.events.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	_ = s.logger.Sync()
	return err
}

func buildOAuthClients(cfg config.Config) (map[oauth.Provider]*oauth.Client, error) {
	providers := map[oauth.Provider]config.ProviderConfig{
		oauth.ProviderGitHub:  cfg.OAuth.GitHub,
		oauth.ProviderGoogle:  cfg.OAuth.Google,
		oauth.ProviderDiscord: cfg.OAuth.Discord,
	}

	clients := make(map[oauth.Provider]*oauth.Client)
	for provider, creds := range providers {
		if creds.ClientID == "" {
			continue
		}
		client, err := oauth.NewClient(provider, creds, cfg.AppURL)
		if err != nil {
			return nil, fmt.Errorf("oauth client for %s: %w", provider, err)
		}
		clients[provider] = client
	}
	return clients, nil
}

func buildAvatarStore(ctx context.Context, cfg config.Config, log *zap.Logger) (*storage.AvatarStore, error) {
	var backend storage.ObjectStorage
	switch cfg.Storage.Backend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Storage.Minio)
		if err != nil {
			return nil, err
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.Storage.GCS)
		if err != nil {
			return nil, err
		}
		backend = client
	case "":
		log.Info("avatar storage disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	avatars := storage.NewAvatarStore(backend, cfg.Storage.PublicBaseURL)
	if err := avatars.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return avatars, nil
}

func buildEventPublisher(ctx context.Context, cfg config.Config, log *zap.Logger) (*mq.EventPublisher, error) {
	switch cfg.Events.Backend {
	case "rabbitmq":
		backend, err := mq.NewRabbitMQClient(cfg.Events.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.NewEventPublisher(backend, log), nil
	case "pubsub":
		backend, err := mq.NewPubSubClient(ctx, cfg.Events.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.NewEventPublisher(backend, log), nil
	case "":
		log.Info("auth events disabled")
		return mq.NewEventPublisher(nil, log), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

func buildRateLimiter(cfg config.Config, log *zap.Logger) *middleware.RateLimiter {
	if cfg.RateLimit.RedisAddr == "" {
		log.Info("rate limiting disabled")
		return middleware.NewRateLimiter(nil, 0, log)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
	return middleware.NewRateLimiter(rdb, cfg.RateLimit.PerMinute, log)
}
