// ABOUTME: Gateway composition root: wires pipeline, router, sessions, engine
// ABOUTME: Owns the HTTP server lifecycle with graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/breaker"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/config"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/dedupe"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/engine"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/pipeline"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/router"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/session"
)

// Gateway owns every major component and their lifecycles. All collaborators
// are explicitly constructed and injected here; there are no package-level
// singletons.
type Gateway struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *message.Registry
	pipeline *pipeline.Pipeline
	router   *router.Router
	sessions session.Store
	dedupe   *dedupe.Cache
	server   *http.Server
}

// Options allows tests and alternate binaries to substitute collaborators.
// Nil fields are built from configuration.
type Options struct {
	Engine   engine.Engine
	Sessions session.Store
	Sink     pipeline.AuditSink
}

// New builds a gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	registry := message.NewRegistry(logger)

	sessions := opts.Sessions
	if sessions == nil {
		var err error
		sessions, err = buildSessionStore(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("building session store: %w", err)
		}
	}

	eng := opts.Engine
	if eng == nil {
		eng = engine.NewHTTPEngine(cfg.Engine.BaseURL, cfg.Engine.Timeout, logger)
	}

	var deliveryCache *dedupe.Cache
	if cfg.Dedupe.Enabled {
		deliveryCache = dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxEntries)
	}

	var pipeOpts []pipeline.Option
	if cfg.Metrics.Enabled {
		pipeOpts = append(pipeOpts, pipeline.WithMetrics(pipeline.NewMetrics(prometheus.DefaultRegisterer)))
	}
	pipe, err := buildPipeline(cfg, registry, deliveryCache, opts.Sink, logger, pipeOpts...)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	rt := router.New(eng, sessions, routerConfig(cfg), breakerConfig(cfg), logger)

	g := &Gateway{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		pipeline: pipe,
		router:   rt,
		sessions: sessions,
		dedupe:   deliveryCache,
	}
	g.server = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", g.server.Addr)
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server and releases component resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("gateway shutting down")

	var firstErr error
	if err := g.server.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := g.sessions.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if g.dedupe != nil {
		g.dedupe.Close()
	}
	return firstErr
}

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/telegram", g.handleTelegramWebhook)
	mux.HandleFunc("POST /api/messages", g.handleMessage)
	mux.HandleFunc("GET /api/sessions", g.handleListSessions)
	mux.HandleFunc("GET /api/capabilities", g.handleCapabilities)
	mux.HandleFunc("GET /api/stats", g.handleStats)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	if g.cfg.Metrics.Enabled {
		mux.Handle("GET "+g.cfg.Metrics.Path, promhttp.Handler())
	}
	return mux
}

func buildSessionStore(cfg *config.Config, logger *slog.Logger) (session.Store, error) {
	sessCfg := session.Config{
		DefaultExpiration: cfg.Sessions.DefaultExpiration,
		MaxPerUser:        cfg.Sessions.MaxPerUser,
		CleanupInterval:   cfg.Sessions.CleanupInterval,
	}
	switch cfg.Sessions.Backend {
	case "sqlite":
		return session.NewSQLiteStore(cfg.Sessions.Path, sessCfg, logger)
	default:
		return session.NewMemoryStore(sessCfg, logger), nil
	}
}

// buildPipeline assembles the canonical stage chain from per-source policy.
func buildPipeline(cfg *config.Config, registry *message.Registry, deliveryCache *dedupe.Cache, sink pipeline.AuditSink, logger *slog.Logger, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	rateDefaults, ratePerSource := rateLimits(cfg, registry)

	authPerSource := make(map[message.Platform]pipeline.AuthConfig)
	validatePerSource := make(map[message.Platform]pipeline.ValidationRules)
	for name, src := range cfg.Sources {
		p := message.Platform(name)
		authPerSource[p] = pipeline.AuthConfig{
			Enabled: src.Auth.Enabled,
			Scheme:  src.Auth.Scheme,
			Secret:  src.Auth.Secret,
		}

		patterns, err := pipeline.CompilePatterns(src.Validation.BlockedPatterns)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", name, err)
		}
		validatePerSource[p] = pipeline.ValidationRules{
			MinLength:       src.Validation.MinLength,
			MaxLength:       src.Validation.MaxLength,
			BlockedPatterns: patterns,
		}
	}

	stages := []pipeline.Stage{
		pipeline.NewRateLimitStage(10, rateDefaults, ratePerSource, nil, logger),
		pipeline.NewAuthStage(20, authPerSource, logger),
		pipeline.NewValidateStage(30, defaultValidationRules(), validatePerSource, logger),
		pipeline.NewTransformStage(40, registry, logger),
		pipeline.NewAuditStage(50, sink, logger),
	}
	if deliveryCache != nil {
		// Dedupe runs after auth and validation so a rejected delivery is
		// never marked processed; its retry must still go through.
		stages = append(stages, pipeline.NewDedupeStage(45, deliveryCache, logger))
	}
	return pipeline.New(logger, stages, opts...), nil
}

// rateLimits derives per-source budgets, falling back to each platform's
// capability defaults when the config is silent.
func rateLimits(cfg *config.Config, registry *message.Registry) (pipeline.RateLimitConfig, map[message.Platform]pipeline.RateLimitConfig) {
	defaults := pipeline.RateLimitConfig{Window: time.Minute, MaxRequests: 60}
	perSource := make(map[message.Platform]pipeline.RateLimitConfig)

	for _, p := range registry.Platforms() {
		if caps, ok := registry.Capabilities(p); ok && caps.RateMax > 0 {
			perSource[p] = pipeline.RateLimitConfig{Window: caps.RateWindow, MaxRequests: caps.RateMax}
		}
	}
	for name, src := range cfg.Sources {
		if src.RateLimit.MaxRequests > 0 && src.RateLimit.Window > 0 {
			perSource[message.Platform(name)] = pipeline.RateLimitConfig{
				Window:      src.RateLimit.Window,
				MaxRequests: src.RateLimit.MaxRequests,
			}
		}
	}
	return defaults, perSource
}

func defaultValidationRules() pipeline.ValidationRules {
	return pipeline.ValidationRules{MinLength: 1, MaxLength: 8192}
}

func routerConfig(cfg *config.Config) router.Config {
	return router.Config{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialDelay:      cfg.Retry.InitialDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		AttemptTimeout:    cfg.Engine.Timeout,
	}
}

func breakerConfig(cfg *config.Config) breaker.Config {
	return breaker.Config{
		FailureThreshold:      cfg.Breaker.FailureThreshold,
		MinimumRequests:       cfg.Breaker.MinimumRequests,
		MonitoringPeriod:      cfg.Breaker.MonitoringPeriod,
		ResetTimeout:          cfg.Breaker.ResetTimeout,
		SlowCallThreshold:     cfg.Breaker.SlowCallThreshold,
		SlowCallRateThreshold: cfg.Breaker.SlowCallRateThreshold,
	}
}
