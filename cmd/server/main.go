package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/casework/events"
	"github.com/liamcoop/casework/internal/config"
	"github.com/liamcoop/casework/internal/logger"
	"github.com/liamcoop/casework/metrics"
	"github.com/liamcoop/casework/orchestrator"
	"github.com/liamcoop/casework/rules"
	"github.com/liamcoop/casework/storage"
	"github.com/liamcoop/casework/workflow"
)

const slowRequestThreshold = time.Second

// Server is the casework HTTP API
type Server struct {
	db       *storage.DB
	cases    *storage.CaseStore
	rules    *rules.RuleSetManager
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
	router   *chi.Mux
}

// ServerOptions selects the pluggable backends. Zero values get the SQL rule
// store, an in-memory rules cache, no event publishing and a fresh registry.
type ServerOptions struct {
	RuleStore rules.RuleStore
	Cache     rules.RulesCache
	Publisher events.Publisher
	Registry  *prometheus.Registry
}

// NewServer wires the API over an open, migrated database
func NewServer(db *storage.DB, opts ServerOptions) *Server {
	if opts.RuleStore == nil {
		opts.RuleStore = rules.NewSQLRuleStore(db)
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	cases := storage.NewCaseStore(db)
	ruleSets := rules.NewRuleSetManager(opts.RuleStore, opts.Cache)
	m := metrics.New(opts.Registry)

	s := &Server{
		db:       db,
		cases:    cases,
		rules:    ruleSets,
		registry: opts.Registry,
		orch: orchestrator.New(cases, ruleSets, workflow.NewAuthority(cases),
			orchestrator.WithPublisher(opts.Publisher),
			orchestrator.WithMetrics(m),
		),
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(slowRequests(slowRequestThreshold))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Ad-hoc evaluation
	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/cases", func(r chi.Router) {
		r.Post("/", s.handleCreateCase)

		r.Route("/{caseId}", func(r chi.Router) {
			r.Get("/", s.handleGetCase)
			r.Get("/audit", s.handleListAudit)
			r.Post("/evaluate", s.handleEvaluateCase)
			r.Post("/transitions", s.handleTransition)
		})
	})

	r.Route("/api/v1/case-types/{caseType}/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Get("/{ruleId}", s.handleGetRule)
		r.Put("/{ruleId}", s.handleUpdateRule)
		r.Delete("/{ruleId}", s.handleDeleteRule)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// slowRequests counts requests that take longer than threshold
func slowRequests(threshold time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if elapsed := time.Since(start); elapsed > threshold {
				logger.WarnSlowRequest()
				logger.Warn("slow request", "method", r.Method, "path", r.URL.Path, "duration", elapsed.String())
			}
		})
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	respondErrorWithResult(w, status, message, err, nil)
}

func respondErrorWithResult(w http.ResponseWriter, status int, message string, err error, result any) {
	response := ErrorResponse{
		Error:  message,
		Result: result,
	}
	if err != nil {
		response.Details = err.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorHttp5xx()
		logger.Error(message, "status", status, "err", err)
	} else {
		logger.WarnHttp4xx(status)
	}
	respondJSON(w, status, response)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.Dialect(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open database", "err", err)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := storage.Migrate(db); err != nil {
			logger.Fatal("failed to migrate database", "err", err)
		}
		logger.Info("database migrated", "driver", cfg.DatabaseDriver)
	}

	opts := ServerOptions{Registry: prometheus.NewRegistry()}
	opts.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if len(cfg.RuleFiles) > 0 {
		store, err := rules.NewFileRuleStore(cfg.DefaultCaseType, cfg.RuleFiles...)
		if err != nil {
			logger.Fatal("failed to load rule files", "err", err)
		}
		opts.RuleStore = store
		logger.Info("serving rules from files", "files", cfg.RuleFiles)
	}

	cacheConfig := rules.CacheConfig{TTL: cfg.RulesCacheTTL}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to reach redis", "addr", cfg.RedisAddr, "err", err)
		}
		cache := rules.NewRedisRulesCache(client, cacheConfig)
		defer cache.Close()
		opts.Cache = cache
	} else {
		opts.Cache = rules.NewInMemoryRulesCache(cacheConfig)
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		opts.Publisher = publisher
	}

	server := NewServer(db, opts)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "err", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}

	logger.Info("server stopped")
}
