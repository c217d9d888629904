package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dailyjudge/apiserver/config"
	"github.com/dailyjudge/apiserver/internal/db"
	"github.com/dailyjudge/apiserver/internal/handlers"
	"github.com/dailyjudge/apiserver/internal/judge"
	"github.com/dailyjudge/apiserver/internal/leaderboard"
	"github.com/dailyjudge/apiserver/internal/metrics"
	"github.com/dailyjudge/apiserver/internal/mq"
	"github.com/dailyjudge/apiserver/internal/services"
	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// leaderboardWarmSize bounds how many users are loaded into the leaderboard
// cache at startup.
const leaderboardWarmSize = 10000

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	broker     *mq.MQ
	logger     *zap.Logger
}

// New constructs a Server with basic middleware and defaults. Redis and the
// message broker are optional; without them the leaderboard is read from the
// database and evaluation events are not published.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{db: dbConn, logger: logger}

	var rankCache services.RankCache
	var rankReader handlers.RankReader
	if cfg.Redis.Addr != "" {
		client, err := leaderboard.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			_ = s.Shutdown()
			return nil, err
		}
		s.redis = client
		board := leaderboard.NewBoard(client, cfg.Redis.LeaderboardKey)
		rankCache = board
		rankReader = board
	}

	broker, err := mq.Open(ctx, cfg.MQ, logger)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	s.broker = broker
	var events services.EventPublisher
	if broker != nil {
		events = services.NewBrokerEventPublisher(broker, cfg.MQ.EvaluatedChannel)
	}

	problemRepo := store.NewProblemRepository(dbConn)
	userRepo := store.NewUserRepository(dbConn)
	submissionRepo := store.NewSubmissionRepository(dbConn)
	challengeRepo := store.NewDailyChallengeRepository(dbConn)

	problemService := services.NewProblemService(problemRepo)
	userService := services.NewUserService(userRepo).WithRankCache(rankCache)
	submissionService := services.NewSubmissionService(submissionRepo)
	dailyChallengeService := services.NewDailyChallengeService(challengeRepo, problemRepo, logger)
	userStats := services.NewUserStatsService(userRepo, problemRepo, rankCache, logger)
	if rankCache != nil {
		// The sorted set only changes on new verdicts; rebuild it from the
		// users table so a fresh or flushed Redis starts complete.
		loaded, err := userStats.WarmCache(ctx, leaderboardWarmSize)
		if err != nil {
			logger.Warn("leaderboard cache warm-up failed", zap.Error(err))
		} else {
			logger.Info("leaderboard cache warmed", zap.Int("users", loaded))
		}
	}
	evaluationService := services.NewEvaluationService(services.EvaluationDeps{
		Problems:     problemRepo,
		Users:        userRepo,
		Submissions:  submissionRepo,
		Judge:        judge.NewClient(cfg.Judge),
		UserStats:    userStats,
		ProblemStats: services.NewProblemStatsService(problemRepo, logger),
		Challenges:   dailyChallengeService,
		Events:       events,
		Logger:       logger,
	})

	authMiddleware := handlers.RequireAuth(cfg.JWTSecret)
	metrics.Init()

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", metrics.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, cfg.JWTSecret)
	})
	router.Route("/problems", func(r chi.Router) {
		handlers.ProblemRouter(r, problemService, userService, submissionService, authMiddleware)
	})
	router.Route("/submissions", func(r chi.Router) {
		handlers.SubmissionRouter(r, evaluationService, submissionService, userService, authMiddleware, logger)
	})
	router.Route("/daily-challenge", func(r chi.Router) {
		handlers.DailyChallengeRouter(r, dailyChallengeService, authMiddleware)
	})
	router.Route("/leaderboard", func(r chi.Router) {
		handlers.LeaderboardRouter(r, rankReader, userService, logger)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and releases every connection the server opened.
func (s *Server) Shutdown() error {
	var errs []error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		errs = append(errs, s.httpServer.Shutdown(ctx))
	}
	if s.broker != nil {
		errs = append(errs, s.broker.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
