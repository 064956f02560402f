package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Enqueuer is the part of *asynq.Client used here
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Prefetcher queues background page fetches
type Prefetcher struct {
	client Enqueuer
	log    zerolog.Logger
}

func NewPrefetcher(client Enqueuer, log zerolog.Logger) *Prefetcher {
	return &Prefetcher{client: client, log: log.With().Str("component", "jobs").Logger()}
}

// Prefetch queues p. A prefetch already queued for the same payload is not
// an error.
func (p *Prefetcher) Prefetch(ctx context.Context, payload PrefetchPayload) error {
	task, err := NewPrefetchTask(payload)
	if err != nil {
		return err
	}
	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(QueuePrefetch),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Unique(5*time.Minute),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		p.log.Debug().Str("next_url", payload.NextURL).Msg("Prefetch already queued")
		return nil
	}
	if err != nil {
		p.log.Error().Err(err).Msg("Enqueue prefetch failed")
		return err
	}
	p.log.Debug().Str("id", info.ID).Str("queue", info.Queue).Msg("Enqueued prefetch")
	return nil
}
