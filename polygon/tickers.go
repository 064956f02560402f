package polygon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/briangreenhill/tickerscope/cache"
)

// FetchTickers returns one page of reference tickers. A query with NextURL
// follows the cursor; otherwise the tickers endpoint is queried with
// market=stocks, active=true, sort=ticker, order=asc and the client's page
// size, each overridable by q.
func (c *Client) FetchTickers(ctx context.Context, q Query) (*TickersResponse, error) {
	var (
		resp *Response
		err  error
	)
	if q.NextURL != "" {
		resp, err = c.Get(ctx, q.NextURL, nil)
	} else {
		resp, err = c.Get(ctx, TickersPath, c.tickerParams(q))
	}
	if err != nil {
		c.log.Debug().Err(err).Str("search", q.Search).Msg("Ticker fetch failed")
		return nil, err
	}

	var out TickersResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode tickers: %w", err)
	}
	out.Stale = resp.Stale
	return &out, nil
}

func (c *Client) tickerParams(q Query) cache.Params {
	p := cache.Params{
		"market": "stocks",
		"active": true,
		"limit":  c.pageSize,
		"sort":   "ticker",
		"order":  "asc",
	}
	set := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}
	set("search", q.Search)
	set("market", q.Market)
	set("cusip", q.CUSIP)
	set("cik", q.CIK)
	set("sort", q.Sort)
	set("order", q.Order)
	if q.Active != nil {
		p["active"] = *q.Active
	}
	if q.Limit > 0 {
		p["limit"] = q.Limit
	}
	return p
}
