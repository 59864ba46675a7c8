package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adamara/apiserver/config"
	"github.com/adamara/apiserver/internal/auth"
	"github.com/adamara/apiserver/internal/db"
	"github.com/adamara/apiserver/internal/handlers"
	"github.com/adamara/apiserver/internal/metrics"
	"github.com/adamara/apiserver/internal/mq"
	"github.com/adamara/apiserver/internal/notify"
	"github.com/adamara/apiserver/internal/ratelimit"
	"github.com/adamara/apiserver/internal/services"
	"github.com/adamara/apiserver/internal/storage"
	"github.com/adamara/apiserver/internal/store"
	"github.com/adamara/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	storage    *storage.Storage
	dispatcher *notify.Dispatcher
	mailer     *notify.MailSender
	queue      *mq.MQ
	redis      *redis.Client
	logger     *slog.Logger
	cancel     context.CancelFunc
}

// Deps are the collaborators the router is built from.
type Deps struct {
	Config      config.Config
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Tokens      *auth.TokenIssuer
	Users       *services.UserService
	Requests    *services.AdRequestService
	Attachments *services.AttachmentService
	Limiter     ratelimit.Limiter
}

// New connects every backing service and constructs a Server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (s *Server, err error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	srv := &Server{logger: logger, cancel: cancel}
	defer func() {
		if err != nil {
			srv.release(context.Background())
		}
	}()
	s = srv

	s.db, err = db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s.storage, err = storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err = s.storage.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	m := metrics.New()

	sender, err := s.notificationSender(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.dispatcher = notify.NewDispatcher(sender, cfg.Notify.Timeout, logger, m)

	limiter, err := s.rateLimiter(ctx, bgCtx, cfg, logger)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(s.db)
	requestRepo := store.NewAdRequestRepository(s.db)

	userService := services.NewUserService(userRepo, logger)
	attachments := services.NewAttachmentService(s.storage, services.AttachmentLimits{
		MaxFiles:     cfg.Storage.MaxFiles,
		MaxFileBytes: cfg.Storage.MaxFileBytes,
		PresignTTL:   cfg.Storage.PresignTTL,
	}, logger)

	var policy types.TransitionPolicy = types.PermissiveTransitions{}
	if cfg.Lifecycle.StrictTransitions {
		policy = types.StrictTransitions{}
	}
	requestService := services.NewAdRequestService(requestRepo, userRepo, attachments, s.dispatcher, logger,
		services.WithTransitionPolicy(policy),
		services.WithMetrics(m),
		services.WithExportBatchSize(cfg.Lifecycle.ExportBatchSize),
	)

	s.router = NewRouter(Deps{
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
		Tokens:      auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Users:       userService,
		Requests:    requestService,
		Attachments: attachments,
		Limiter:     limiter,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// NewRouter builds the HTTP surface.
func NewRouter(deps Deps) *chi.Mux {
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Tokens, deps.Logger)
	authMiddleware := authHandler.RequireAuth
	limiter := ratelimit.NewMiddleware(deps.Limiter, deps.Config.RateLimit, deps.Logger, deps.Metrics.RateLimited)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(requestTimeout),
		middleware.SetHeader("X-Content-Type-Options", "nosniff"),
		middleware.SetHeader("X-Frame-Options", "DENY"),
		middleware.SetHeader("Referrer-Policy", "no-referrer"),
		cors.Handler(cors.Options{
			AllowedOrigins:   deps.Config.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler)
		})
		r.Route("/requests", func(r chi.Router) {
			handlers.AdRequestRouter(r, handlers.NewAdRequestHandler(deps.Requests, deps.Attachments, deps.Logger), authMiddleware)
		})
		r.Route("/files", func(r chi.Router) {
			handlers.FileRouter(r, handlers.NewFileHandler(deps.Attachments, deps.Logger), authMiddleware)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, handlers.NewUserHandler(deps.Users, deps.Logger), authMiddleware)
		})
	})
	return router
}

func (s *Server) notificationSender(ctx context.Context, cfg config.Config) (notify.Sender, error) {
	switch cfg.Notify.Mode {
	case "smtp":
		client, err := notify.NewSMTPClient(cfg.Notify.SMTP)
		if err != nil {
			return nil, err
		}
		s.mailer = notify.NewMailSender(client, cfg.Notify.From, cfg.Notify.FromName)
		return s.mailer, nil
	case "queue":
		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return nil, fmt.Errorf("open message queue: %w", err)
		}
		s.queue = queue
		return notify.NewQueueSender(queue, cfg.Notify.Channel), nil
	case "log", "":
		return notify.NewLogSender(s.logger), nil
	default:
		return nil, fmt.Errorf("unknown notify mode %q", cfg.Notify.Mode)
	}
}

// rateLimiter shares buckets through Redis when REDIS_ADDR is set and
// keeps them in process otherwise.
func (s *Server) rateLimiter(ctx, bgCtx context.Context, cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	if cfg.Redis.Addr != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		s.redis = client
		logger.Info("rate limiting through redis", "addr", cfg.Redis.Addr)
		return ratelimit.NewRedisLimiter(client, cfg.RateLimit), nil
	}
	local := ratelimit.NewLocalLimiter(cfg.RateLimit)
	go local.Cleanup(bgCtx, time.Minute)
	logger.Info("rate limiting in process")
	return local, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight requests and
// notifications, then releases every backing connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.release(ctx)
	return err
}

func (s *Server) release(ctx context.Context) {
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(ctx); err != nil {
			s.logger.Warn("notifications still in flight at shutdown", "error", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.mailer != nil {
		_ = s.mailer.Close()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
