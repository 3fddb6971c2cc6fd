package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hqtran/keyseek/config"
	"github.com/hqtran/keyseek/gateway"
	"github.com/hqtran/keyseek/gateway/offline"
	"github.com/hqtran/keyseek/internal/store"
	"github.com/hqtran/keyseek/session"
	"github.com/hqtran/keyseek/session/inmemory"
	"github.com/hqtran/keyseek/session/redisstore"
	"github.com/hqtran/keyseek/submission"
)

// Run wires the full service from config and serves until the listener
// stops.
func Run(cfg *config.Config) error {
	ctx := context.Background()
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", SessionHeader},
	}))

	offlineMode := cfg.Gateway.Mode == string(gateway.OfflineProvider)

	// Standalone archive: optional, offline mode only.
	var archive *store.Store
	if offlineMode && cfg.Storage.Postgres.Enabled() {
		dsn, err := cfg.Storage.Postgres.DSN()
		if err != nil {
			return err
		}
		if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		archive, err = store.NewWithDSN(ctx, dsn)
		if err != nil {
			return err
		}
		defer archive.Close()
	}

	offlineCfg := offline.Config{
		Mode:        cfg.Offline.Engine,
		CatalogPath: cfg.Offline.CatalogPath,
		Limit:       cfg.Offline.Limit,
		FPS:         cfg.Search.DefaultFPS,
		Logger:      log.New(log.Writer(), "[OFFLINE] ", log.LstdFlags),
	}
	if archive != nil {
		offlineCfg.Archive = archive
	}
	searcher, err := gateway.NewSearcher(gateway.Provider(cfg.Gateway.Mode), gateway.Options{
		BaseURL: cfg.Gateway.BaseURL,
		Timeout: cfg.Gateway.Timeout,
		Offline: offlineCfg,
	})
	if err != nil {
		return err
	}

	var sessions session.Store
	switch cfg.Session.Store {
	case "redis":
		client, err := redisstore.Conn(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
		if err != nil {
			return err
		}
		sessions = redisstore.New(client, cfg.Session.TTL)
	default:
		sessions = inmemory.New()
	}

	manager := session.NewManager(sessions, searcher, session.Options{
		CollapseOnSelect: offlineMode,
		Logger:           log.New(log.Writer(), "[SESSION] ", log.LstdFlags),
	})

	metrics := NewMetrics(prometheus.DefaultRegisterer, manager.Count)
	e.Use(metrics.Middleware())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	search := &SearchHandler{Manager: manager, Gateway: searcher, Metrics: metrics, Logger: logger}
	search.Register(api)

	submissions := &SubmissionHandler{Sessions: manager, Lists: submission.NewManager()}
	submissions.Register(api)

	if offlineMode {
		retrieval := &RetrievalHandler{Engine: searcher}
		retrieval.Register(e)
	}

	if cfg.Retention.SweepCron != "" && archive != nil {
		janitor, err := NewJanitor(cfg.Retention.SweepCron, cfg.Retention.MaxAge, archive,
			log.New(log.Writer(), "[JANITOR] ", log.LstdFlags))
		if err != nil {
			return err
		}
		janitor.Start()
		defer janitor.Stop()
	}

	return e.Start(cfg.Server.Address)
}

// errorHandler is the unified JSON error surface: one {"error": ...} shape,
// logged with method, path and caller.
func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}
}
