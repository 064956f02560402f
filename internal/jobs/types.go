package jobs

import (
	"encoding/json"

	"github.com/briangreenhill/tickerscope/polygon"
	"github.com/hibiken/asynq"
)

const (
	TaskPrefetch   = "tickers:prefetch"
	TaskPurgeCache = "cache:purge"

	QueuePrefetch = "prefetch"
	QueueDefault  = "default"
)

// PrefetchPayload names one page to warm: a cursor, or a search
type PrefetchPayload struct {
	NextURL string `json:"next_url,omitempty"`
	Search  string `json:"search,omitempty"`
	Market  string `json:"market,omitempty"`
	Order   string `json:"order,omitempty"`
	Sort    string `json:"sort,omitempty"`
	Active  *bool  `json:"active,omitempty"`
}

func (p PrefetchPayload) query() polygon.Query {
	return polygon.Query{
		NextURL: p.NextURL,
		Search:  p.Search,
		Market:  p.Market,
		Order:   p.Order,
		Sort:    p.Sort,
		Active:  p.Active,
	}
}

func NewPrefetchTask(p PrefetchPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPrefetch, payload), nil
}

func NewPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeCache, nil)
}
