package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/minjae-ko/turnvault/config"
	"github.com/minjae-ko/turnvault/internal/export"
	"github.com/minjae-ko/turnvault/internal/extract"
	"github.com/minjae-ko/turnvault/internal/render"
	"github.com/minjae-ko/turnvault/internal/store"
	"github.com/minjae-ko/turnvault/provider"
)

// Run wires the service together and starts the HTTP API.
func Run(cfg *config.Config) error {
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

	if err := cfg.Server.Validate(); err != nil {
		return err
	}

	docs := store.NewClient(cfg.Firestore.ProjectID, cfg.Firestore.APIKey, cfg.Firestore.Database, cfg.Firestore.BaseURL, cfg.Firestore.Timeout)
	repo := store.NewRepo(docs)

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	pipeline := extract.New(llm)

	var cache *SessionCache
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:        fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.Timeout,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Redis.Host, cfg.Redis.Port, err)
		}
		cache = NewSessionCache(rdb, cfg.Redis.CacheTTL)
	}

	auth := &AuthHandler{Secret: []byte(cfg.Server.JWTSecret), AdminHash: cfg.Server.AdminPasswordHash}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	sh := &SessionsHandler{
		Repo:     repo,
		Cache:    cache,
		Pipeline: pipeline,
		Export:   export.NewBuilder(repo),
		Extract:  cfg.Extract,
		Logger:   log.New(log.Writer(), "[SESSIONS] ", log.LstdFlags),
	}
	sh.Shell = render.NewShell(func(ctx context.Context, id, markup string) error {
		// re-save of the latest turn under its own number
		turns, err := repo.ListTurns(ctx, id)
		if err != nil || len(turns) == 0 {
			return err
		}
		last := turns[len(turns)-1]
		last.HTML = markup
		return repo.SaveTurn(ctx, "", "", last)
	})
	sh.Register(api.Group("/sessions"), auth.Secret)
	e.GET("/sessions/:id/view", sh.view)

	addr := cfg.Server.Listen
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}
	if addr == "" {
		addr = ":10021"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
