// Package server exposes the sentiment service over HTTP: batch analysis,
// per-ticker dashboards, token-level explanations and the ingestion trigger.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/wizanyx/finsent/config"
	"github.com/wizanyx/finsent/internal/classify"
	"github.com/wizanyx/finsent/internal/ingest"
	"github.com/wizanyx/finsent/internal/pipeline"
	"github.com/wizanyx/finsent/internal/store"
	"github.com/wizanyx/finsent/internal/telemetry"
)

// Run wires dependencies and serves until the listener fails.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	origins := cfg.Server.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	metrics := telemetry.New()
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	ctx := context.Background()

	// Persistence is optional: without postgres the service still answers
	// stateless /api/analyze and /api/explain calls.
	var st *store.Store
	if dsn, err := cfg.Storage.Postgres.DSN(); err != nil {
		baseLogger.Printf("postgres not configured, running without persistence: %v", err)
	} else {
		if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if st, err = store.NewWithDSN(ctx, dsn); err != nil {
			return err
		}
		defer st.Close()
	}

	var rdb *redis.Client
	if addr := cfg.Storage.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
	}

	clf, err := BuildClassifier(cfg, rdb)
	if err != nil {
		return err
	}
	if err := clf.Warmup(ctx); err != nil {
		baseLogger.Printf("classifier warmup failed, first request will be cold: %v", err)
	}

	pipe, err := pipeline.Default(cfg.Pipeline.MinTextLength, cfg.Pipeline.MaxTextLength)
	if err != nil {
		return err
	}

	h := &SentimentHandler{
		Pipe:       pipe,
		Classifier: clf,
		Store:      st,
		Metrics:    metrics,
		Cfg:        cfg,
		Logger:     log.New(log.Writer(), "[SENTIMENT] ", log.LstdFlags),
	}
	api := e.Group("/api")
	h.Register(api)

	svc, err := ingest.New(cfg, clf, st, rdb, metrics)
	if err != nil {
		return err
	}
	ih := &IngestHandler{Service: svc, Secret: []byte(cfg.Server.JWTSecret)}
	ih.Register(api.Group("/ingest"))
	go svc.Start(ctx)

	return e.Start(cfg.Server.Address)
}

// BuildClassifier selects the configured adapter and, when redis and a TTL
// are available, wraps it in the prediction cache.
func BuildClassifier(cfg *config.Config, rdb *redis.Client) (classify.Classifier, error) {
	var base classify.Classifier
	switch cfg.Classifier.Backend {
	case "mock":
		base = classify.NewMock()
	case "remote":
		base = classify.NewRemote(cfg.Classifier.BaseURL, cfg.Classifier.Timeout, cfg.Classifier.BatchSize)
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Classifier.Backend)
	}
	if rdb != nil && cfg.Classifier.CacheTTL > 0 {
		return classify.NewCached(base, rdb, cfg.Classifier.CacheTTL), nil
	}
	return base, nil
}
