package main

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/briangreenhill/tickerscope/cache"
	"github.com/briangreenhill/tickerscope/internal/config"
	"github.com/briangreenhill/tickerscope/internal/db"
	"github.com/briangreenhill/tickerscope/internal/jobs"
	"github.com/briangreenhill/tickerscope/internal/logging"
	"github.com/briangreenhill/tickerscope/polygon"
)

var version = "dev"

// purgeSpec runs the expired cache purge hourly
const purgeSpec = "@every 1h"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if !cfg.HasRedis() {
		log.Fatal().Msg("REDIS_ADDR is required for the worker")
	}

	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		FilePath: cfg.Log.File,
		Service:  "tickerscope-worker",
		Version:  version,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	// Prefetched pages only help the api when both share the Postgres tier
	var persister cache.Persister
	var purger jobs.Purger
	if cfg.HasDatabase() {
		pool, err := db.Open(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("unable to connect to database")
		}
		defer pool.Close()
		q := db.New(pool)
		if err := q.EnsureSchema(context.Background()); err != nil {
			logger.Fatal().Err(err).Msg("ensure schema")
		}
		store := db.NewCacheStore(q)
		persister, purger = store, store
	} else {
		logger.Warn().Msg("DATABASE_URL not set, prefetched pages stay in this process")
	}

	client, err := polygon.New(cfg.Polygon.APIKey,
		polygon.WithBaseURL(cfg.Polygon.BaseURL),
		polygon.WithTimeout(cfg.Polygon.Timeout),
		polygon.WithPersister(persister),
		polygon.WithTTL(cfg.Cache.ReferenceTTL, cfg.Cache.EndpointTTL),
		polygon.WithPageSize(cfg.PageSize),
		polygon.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("polygon client")
	}

	redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency:    8,
		StrictPriority: false,
		Queues: map[string]int{
			jobs.QueuePrefetch: 10, // higher priority
			jobs.QueueDefault:  5,
		},
		Logger: logging.NewAsynqLogger(logger),
	})
	mux := asynq.NewServeMux()
	jobs.NewHandler(client, purger, logger).Register(mux)

	if purger != nil {
		scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{Logger: logging.NewAsynqLogger(logger)})
		if _, err := scheduler.Register(purgeSpec, jobs.NewPurgeTask(), asynq.Queue(jobs.QueueDefault)); err != nil {
			logger.Fatal().Err(err).Msg("register purge schedule")
		}
		if err := scheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start scheduler")
		}
		defer scheduler.Shutdown()
	}

	logger.Info().Str("version", version).Msg("Worker running...")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}
