// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/briangreenhill/tickerscope/cache"
	"github.com/briangreenhill/tickerscope/internal/config"
	"github.com/briangreenhill/tickerscope/internal/db"
	"github.com/briangreenhill/tickerscope/internal/http/routes"
	"github.com/briangreenhill/tickerscope/internal/jobs"
	"github.com/briangreenhill/tickerscope/internal/logging"
	"github.com/briangreenhill/tickerscope/internal/notify"
	"github.com/briangreenhill/tickerscope/internal/stocks"
	"github.com/briangreenhill/tickerscope/polygon"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	// Logger
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		FilePath: cfg.Log.File,
		Service:  "tickerscope-api",
		Version:  version,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistent cache tier: Postgres when configured, files otherwise
	var persister cache.Persister
	var persisted routes.EntryCounter
	if cfg.HasDatabase() {
		pool, err := db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("db error")
		}
		defer pool.Close()
		q := db.New(pool)
		if err := q.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ensure schema")
		}
		store := db.NewCacheStore(q)
		persister = store
		persisted = store
	} else {
		fc, err := openFileCache(cfg.Cache.Dir)
		if err != nil {
			logger.Fatal().Err(err).Msg("file cache")
		}
		persister = fc
	}

	mem := cache.NewStore()
	client, err := polygon.New(cfg.Polygon.APIKey,
		polygon.WithBaseURL(cfg.Polygon.BaseURL),
		polygon.WithTimeout(cfg.Polygon.Timeout),
		polygon.WithCache(mem),
		polygon.WithPersister(persister),
		polygon.WithTTL(cfg.Cache.ReferenceTTL, cfg.Cache.EndpointTTL),
		polygon.WithOfflineFallback(cfg.Cache.OfflineFallback),
		polygon.WithPageSize(cfg.PageSize),
		polygon.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("polygon client")
	}

	registry := stocks.NewRegistry(stocks.DefaultFactory(client,
		[]notify.Option{
			notify.WithAutoHide(cfg.NotifyAutoHide),
			notify.WithLogger(logging.Component(logger, "notify")),
		},
		stocks.WithLogger(logging.Component(logger, "stocks")),
		stocks.WithPageSize(cfg.PageSize),
	))

	// Prefetch queue is optional
	var prefetch routes.Prefetcher
	if cfg.HasRedis() {
		qc := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := qc.Close(); err != nil {
				logger.Error().Err(err).Msg("close asynq client")
			}
		}()
		prefetch = jobs.NewPrefetcher(qc, logger)
	}

	// Sessions
	sess := scs.New()
	sess.Lifetime = cfg.SessionLifetime
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	sess.Cookie.Secure = false

	// Router / server
	s := routes.New(routes.ServerOptions{
		Sess:      sess,
		Sessions:  registry,
		Cache:     mem,
		Persisted: persisted,
		Prefetch:  prefetch,
		Logger:    logger,
	})
	h := hlog.NewHandler(logger)(s.Router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           sess.LoadAndSave(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go pruneSessions(ctx, registry, cfg.SessionLifetime, logger)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().Str("port", cfg.Port).Str("version", version).Msg("starting api")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func openFileCache(dir string) (*cache.FileCache, error) {
	if dir == "" {
		return cache.NewFileCache("")
	}
	return cache.NewFileCacheAt(dir)
}

// pruneSessions drops per-client state that has been idle longer than the
// session cookie lives
func pruneSessions(ctx context.Context, r *stocks.Registry, idle time.Duration, logger zerolog.Logger) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Prune(idle); n > 0 {
				logger.Debug().Int("pruned", n).Int("live", r.Len()).Msg("pruned idle sessions")
			}
		}
	}
}
