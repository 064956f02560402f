package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/briangreenhill/tickerscope/internal/apierr"
	"github.com/briangreenhill/tickerscope/polygon"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	got  polygon.Query
	resp *polygon.TickersResponse
	err  error
}

func (s *stubFetcher) FetchTickers(_ context.Context, q polygon.Query) (*polygon.TickersResponse, error) {
	s.got = q
	return s.resp, s.err
}

type stubPurger struct {
	n   int64
	err error
}

func (s stubPurger) Purge(context.Context, time.Time) (int64, error) { return s.n, s.err }

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "1", Queue: QueuePrefetch}, nil
}

func TestHandlePrefetch(t *testing.T) {
	f := &stubFetcher{resp: &polygon.TickersResponse{Results: []polygon.Ticker{{Ticker: "MSFT"}}}}
	h := NewHandler(f, nil, zerolog.Nop())

	task, err := NewPrefetchTask(PrefetchPayload{NextURL: "https://api.polygon.io/v3/reference/tickers?cursor=p2"})
	require.NoError(t, err)

	require.NoError(t, h.HandlePrefetch(context.Background(), task))
	assert.Equal(t, "https://api.polygon.io/v3/reference/tickers?cursor=p2", f.got.NextURL)
}

func TestHandlePrefetchRetryPolicy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantSkip bool
	}{
		{"rate limited", &polygon.RequestError{Info: apierr.Info{Type: apierr.TypeRateLimit, Retryable: true}}, false},
		{"network", &polygon.RequestError{Info: apierr.Info{Type: apierr.TypeNetwork, Retryable: true}}, false},
		{"auth", &polygon.RequestError{Info: apierr.Info{Type: apierr.TypeAuth}}, true},
		{"unclassified", errors.New("decode tickers: unexpected EOF"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&stubFetcher{err: tt.err}, nil, zerolog.Nop())
			task, _ := NewPrefetchTask(PrefetchPayload{Search: "apple"})

			err := h.HandlePrefetch(context.Background(), task)
			require.Error(t, err)
			assert.Equal(t, tt.wantSkip, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestHandlePrefetchBadPayload(t *testing.T) {
	h := NewHandler(&stubFetcher{}, nil, zerolog.Nop())
	err := h.HandlePrefetch(context.Background(), asynq.NewTask(TaskPrefetch, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandlePurge(t *testing.T) {
	h := NewHandler(&stubFetcher{}, stubPurger{n: 3}, zerolog.Nop())
	assert.NoError(t, h.HandlePurge(context.Background(), NewPurgeTask()))

	h = NewHandler(&stubFetcher{}, stubPurger{err: errors.New("db down")}, zerolog.Nop())
	assert.Error(t, h.HandlePurge(context.Background(), NewPurgeTask()))
}

func TestPrefetcher(t *testing.T) {
	e := &stubEnqueuer{}
	p := NewPrefetcher(e, zerolog.Nop())
	yes := true

	require.NoError(t, p.Prefetch(context.Background(), PrefetchPayload{Search: "apple", Market: "stocks", Active: &yes}))
	require.Len(t, e.tasks, 1)
	assert.Equal(t, TaskPrefetch, e.tasks[0].Type())

	var got PrefetchPayload
	require.NoError(t, json.Unmarshal(e.tasks[0].Payload(), &got))
	assert.Equal(t, "apple", got.Search)
	assert.Equal(t, polygon.Query{Search: "apple", Market: "stocks", Active: &yes}, got.query())
}

func TestPrefetcherDuplicate(t *testing.T) {
	p := NewPrefetcher(&stubEnqueuer{err: asynq.ErrDuplicateTask}, zerolog.Nop())
	assert.NoError(t, p.Prefetch(context.Background(), PrefetchPayload{NextURL: "x"}))

	p = NewPrefetcher(&stubEnqueuer{err: errors.New("redis down")}, zerolog.Nop())
	assert.Error(t, p.Prefetch(context.Background(), PrefetchPayload{NextURL: "x"}))
}
