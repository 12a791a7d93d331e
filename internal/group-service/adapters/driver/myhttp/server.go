package myhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"group-ride/internal/config"
	"group-ride/internal/group-service/adapters/driven/bm"
	"group-ride/internal/group-service/adapters/driven/cache"
	"group-ride/internal/group-service/adapters/driven/db"
	"group-ride/internal/group-service/adapters/driven/memory"
	"group-ride/internal/group-service/adapters/driver/myhttp/handle"
	"group-ride/internal/group-service/adapters/driver/myhttp/middleware"
	"group-ride/internal/group-service/adapters/driver/myhttp/ws"
	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/group-service/core/services"
	"group-ride/internal/group-service/metric"
	"group-ride/internal/mylogger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const WaitTime = 10

type Server struct {
	mux    *http.ServeMux
	cfg    *config.Config
	srv    *http.Server
	mylog  mylogger.Logger
	ctx    context.Context
	appCtx context.Context
	mu     sync.Mutex

	// inMemory replaces PostgreSQL, Redis and RabbitMQ with process-local stores.
	inMemory bool

	db        *db.DB
	redis     *redis.Client
	publisher ports.IEventPublisher
	router    *services.Router
	registry  *prometheus.Registry
	metrics   *metric.Metrics
}

func NewServer(ctx, appCtx context.Context, mylog mylogger.Logger, cfg *config.Config, inMemory bool) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := metric.New(registry)

	return &Server{
		ctx:      ctx,
		appCtx:   appCtx,
		cfg:      cfg,
		mylog:    mylog,
		mux:      http.NewServeMux(),
		inMemory: inMemory,
		registry: registry,
		metrics:  metrics,
		router:   services.NewRouter(mylog, metrics, cfg.Srv.MaxGroupMembers),
	}
}

// Run connects the stores, registers routes and serves until ctx is done.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	var (
		members  ports.IMembershipRepo
		chats    ports.IChatRepo
		profiles ports.IProfileRepo
	)

	if s.inMemory {
		members = memory.NewMembershipRepo()
		chats = memory.NewChatRepo()
		profiles = memory.NewProfileRepo()
		s.publisher = memory.NewPublisher()
		mylog.Warn("running with in-memory stores, nothing is persisted")
	} else {
		database, err := db.New(s.ctx, s.cfg.DB, mylog)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = database
		if err := database.Migrate(s.ctx); err != nil {
			return err
		}
		mylog.Info("Successful database connection")

		members = db.NewMembershipRepo(database)
		chats = db.NewChatRepo(database)
		profiles = db.NewProfileRepo(database)

		if s.cfg.Redis.Addr != "" {
			client, err := cache.NewRedis(s.ctx, s.cfg.Redis)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			s.redis = client
			members = cache.NewMembershipCache(client, members, s.cfg.Redis.Prefix, s.cfg.Redis.TTL, s.mylog)
			mylog.Info("Successful redis connection")
		}

		mb, err := bm.New(s.appCtx, *s.cfg.RabbitMq, s.mylog)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		s.publisher = mb
		mylog.Info("Successful message broker connection")
	}

	go s.router.Run(s.ctx, s.cfg.WS.RebroadcastEvery)

	s.Configure(members, chats, profiles)

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%v", s.cfg.Srv.GroupServicePort),
		Handler: s.mux,
	}
	s.mu.Unlock()

	mylog.WithGroup("details").With("port", s.cfg.Srv.GroupServicePort).Info("server is running")
	return s.startHTTPServer()
}

// Stop provides a programmatic shutdown. Accepts a context for timeout control.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("Shutting down HTTP server...")

	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, WaitTime*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Error("Failed to shut down HTTP server gracefully", err)
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	// hijacked websocket connections are not covered by Shutdown
	s.router.CloseAll()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.mylog.Error("Failed to close message broker", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.mylog.Error("Failed to close redis", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.mylog.Error("Failed to close database", err)
			return fmt.Errorf("db close: %w", err)
		}
		s.mylog.Info("Database closed")
	}

	s.mylog.Info("HTTP server shut down gracefully")
	return nil
}

func (s *Server) startHTTPServer() error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Configure wires services and handlers onto the mux.
func (s *Server) Configure(members ports.IMembershipRepo, chats ports.IChatRepo, profiles ports.IProfileRepo) {
	// services
	authService := services.NewAuthService(s.cfg.App.PublicJwtSecret)
	groupService := services.NewGroupService(s.appCtx, s.mylog, authService, members, chats, profiles, s.publisher, s.router, s.metrics)
	overviewService := services.NewOverviewService(s.router)

	// handlers
	groupsHandler := handle.NewGroupsHandler(groupService, s.mylog)
	adminHandler := handle.NewAdminHandler(s.mylog, overviewService)
	dispatcher := ws.NewDispatcher(s.cfg.WS, groupService, s.mylog, s.metrics)
	authMiddleware := middleware.NewAuthMiddleware(authService)

	// Register routes
	s.mux.Handle("GET /groups/{group_id}/members", authMiddleware.Wrap(groupsHandler.Members()))
	s.mux.Handle("POST /groups/{group_id}/members/{user_id}/approve", authMiddleware.Wrap(groupsHandler.Approve()))
	s.mux.Handle("POST /groups/{group_id}/members/{user_id}/reject", authMiddleware.Wrap(groupsHandler.Reject()))
	s.mux.Handle("DELETE /groups/{group_id}", authMiddleware.Wrap(groupsHandler.EndRide()))
	s.mux.Handle("GET /groups/{group_id}/messages", authMiddleware.Wrap(groupsHandler.Messages()))
	s.mux.Handle("GET /admin/overview", authMiddleware.WrapAdmin(adminHandler.GetSystemOverview()))
	s.mux.Handle("GET /health", s.health())
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// websocket routes
	s.mux.Handle("GET /ws/groups", dispatcher.WsHandler())
}

func (s *Server) health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "broker": "up", "database": "up"}
		code := http.StatusOK

		if s.publisher != nil && !s.publisher.IsAlive() {
			status["broker"] = "down"
			status["status"] = "degraded"
		}
		if s.db != nil {
			if err := s.db.IsAlive(); err != nil {
				status["database"] = "down"
				status["status"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
