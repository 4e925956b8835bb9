package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/leadscope/leadscope/config"
	"github.com/leadscope/leadscope/internal/cache"
	"github.com/leadscope/leadscope/internal/enrich"
	"github.com/leadscope/leadscope/internal/learning"
	"github.com/leadscope/leadscope/internal/linkedin"
	"github.com/leadscope/leadscope/internal/runtime"
	"github.com/leadscope/leadscope/internal/scoring"
	"github.com/leadscope/leadscope/internal/search"
	"github.com/leadscope/leadscope/internal/store"
)

// Run wires everything together and serves the API until the process exits.
func Run(cfg *appconfig.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
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
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if err := cfg.Validate(); err != nil {
		return err
	}
	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := MigrateUp("file://migrations", dsn); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	// Redis is optional: without it the profile cache and the scheduler lock
	// degrade to per-process behavior.
	rdb, err := cache.Conn(ctx, cfg.Databases.Redis)
	if err != nil {
		log.Printf("[BOOT] redis unavailable, caching disabled: %v", err)
		rdb = nil
	}

	idx, err := search.Open(cfg.Search.IndexPath)
	if err != nil {
		return fmt.Errorf("search index: %w", err)
	}

	secret := []byte(cfg.General.JWTSecret)
	weights := scoring.Weights{
		Boost:              cfg.Scoring.BoostWeight,
		Down:               cfg.Scoring.DownWeight,
		EngagementCap:      cfg.Scoring.EngagementCap,
		CompletenessCap:    cfg.Scoring.CompletenessCap,
		PatternAdjustLimit: cfg.Scoring.PatternAdjustLimit,
	}.Normalize()

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret, Env: cfg.General.Env}
	auth.Register(api.Group("/auth"))

	me := api.Group("/me", runtime.EchoAuthMiddleware(secret))
	me.GET("", func(c echo.Context) error {
		return c.JSON(200, MeResponse{UserID: c.Get("user_id").(string)})
	})

	sessions := api.Group("/sessions", runtime.EchoAuthMiddleware(secret))
	commenters := api.Group("/commenters", runtime.EchoAuthMiddleware(secret))
	patterns := api.Group("/patterns", runtime.EchoAuthMiddleware(secret))
	feedback := api.Group("", runtime.EchoAuthMiddleware(secret))

	sh := &SessionsHandler{Store: st}
	sh.Register(sessions)

	ch := &CommentersHandler{
		Store:    st,
		LinkedIn: linkedin.NewClient(cfg.LinkedIn),
		Profiles: cache.NewProfileCache(rdb, 24*time.Hour),
		Index:    idx,
		Enricher: enrich.New(cfg.Enrich),
	}
	ch.Register(sessions, commenters)

	sch := &ScoringHandler{Store: st, Weights: weights, MinSupport: cfg.Learning.MinSupport}
	sch.Register(sessions, commenters)

	fh := &FeedbackHandler{Store: st}
	fh.Register(feedback, sessions)

	ph := &PatternsHandler{Store: st}
	ph.Register(patterns)

	ah := &AnalyticsHandler{Store: st}
	ah.Register(sessions)

	srh := &SearchHandler{Store: st, Index: idx}
	srh.Register(sessions)

	sched := &Scheduler{
		Processor: &learning.Processor{
			Store:      st,
			BatchSize:  cfg.Learning.BatchSize,
			MinSupport: cfg.Learning.MinSupport,
		},
		Rdb:  rdb,
		Cron: cfg.Learning.ScheduleCron,
		Stop: make(chan struct{}),
	}
	sched.Start()

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":10010"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
