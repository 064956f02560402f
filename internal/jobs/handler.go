package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/briangreenhill/tickerscope/polygon"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

type TickerFetcher interface {
	FetchTickers(ctx context.Context, q polygon.Query) (*polygon.TickersResponse, error)
}

// Purger drops expired persisted cache entries
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type Handler struct {
	fetcher TickerFetcher
	purger  Purger
	log     zerolog.Logger
	now     func() time.Time
}

// NewHandler builds the worker handlers. purger may be nil.
func NewHandler(f TickerFetcher, p Purger, log zerolog.Logger) *Handler {
	return &Handler{
		fetcher: f,
		purger:  p,
		log:     log.With().Str("component", "worker").Logger(),
		now:     time.Now,
	}
}

func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskPrefetch, h.HandlePrefetch)
	if h.purger != nil {
		mux.HandleFunc(TaskPurgeCache, h.HandlePurge)
	}
}

// HandlePrefetch fetches one page so it lands in the shared cache.
// Failures the user could not fix by retrying are not retried.
func (h *Handler) HandlePrefetch(ctx context.Context, t *asynq.Task) error {
	var p PrefetchPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.log.Error().Err(err).Msg("Bad prefetch payload")
		return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	resp, err := h.fetcher.FetchTickers(ctx, p.query())
	duration := time.Since(start)

	if err != nil {
		var re *polygon.RequestError
		if errors.As(err, &re) && !re.Info.Retryable {
			h.log.Warn().Err(err).Str("error_type", string(re.Info.Type)).Dur("duration", duration).Msg("Permanent prefetch failure, dropping job")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		h.log.Warn().Err(err).Dur("duration", duration).Msg("Retryable prefetch failure")
		return err
	}

	h.log.Info().
		Str("search", p.Search).
		Bool("cursor", p.NextURL != "").
		Int("results", len(resp.Results)).
		Bool("has_more", resp.NextURL != "").
		Dur("duration", duration).
		Msg("Prefetched page")
	return nil
}

func (h *Handler) HandlePurge(ctx context.Context, _ *asynq.Task) error {
	n, err := h.purger.Purge(ctx, h.now())
	if err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	h.log.Info().Int64("removed", n).Msg("Purged expired cache entries")
	return nil
}
