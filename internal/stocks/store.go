// Package stocks keeps the ticker list state for one session: what was
// searched, what has been loaded, and how the last fetch ended.
package stocks

import (
	"context"
	"errors"
	"sync"

	"github.com/briangreenhill/tickerscope/internal/apierr"
	"github.com/briangreenhill/tickerscope/internal/notify"
	"github.com/briangreenhill/tickerscope/pagination"
	"github.com/briangreenhill/tickerscope/polygon"
	"github.com/rs/zerolog"
)

var (
	ErrNoCursor       = errors.New("no next page to load")
	ErrNothingToRetry = errors.New("no previous fetch to retry")
)

const (
	msgFetchFailed = "Failed to fetch stocks"
	msgFallback    = "An error occurred"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// Query identifies the search a list belongs to
type Query struct {
	Search           string `json:"search"`
	FiltersSignature string `json:"filters"`
}

// State is the full list state. Items are unique by ticker.
type State struct {
	Items       []polygon.Ticker `json:"items"`
	Status      Status           `json:"status"`
	Error       string           `json:"error,omitempty"`
	ErrorDetail *apierr.Info     `json:"errorDetails,omitempty"`
	Pagination  pagination.State `json:"pagination"`
	LastQuery   *Query           `json:"lastQuery,omitempty"`
}

// View is the read model handed to the UI
type View struct {
	Items        []polygon.Ticker `json:"items"`
	IsLoading    bool             `json:"isLoading"`
	HasError     bool             `json:"hasError"`
	Error        string           `json:"error,omitempty"`
	ErrorDetail  *apierr.Info     `json:"errorDetails,omitempty"`
	HasMoreItems bool             `json:"hasMoreItems"`
	NextPageURL  string           `json:"nextPageUrl,omitempty"`
}

// Args is one fetch request. With NextURL set it continues a list,
// otherwise it starts a search.
type Args struct {
	Search  string   `json:"search"`
	Filters *Filters `json:"filters,omitempty"`
	NextURL string   `json:"next_url,omitempty"`

	// continues is the list a cursor fetch belongs to
	continues *Query
}

func (a Args) query() Query {
	if a.continues != nil {
		return *a.continues
	}
	return Query{Search: a.Search, FiltersSignature: a.Filters.Signature()}
}

// upstream builds the request for a. limit applies to new searches only;
// a cursor already carries its page size.
func (a Args) upstream(limit int) polygon.Query {
	q := polygon.Query{Search: a.Search, NextURL: a.NextURL}
	if a.NextURL == "" {
		q.Limit = limit
	}
	a.Filters.apply(&q)
	return q
}

// Fetcher loads a page of tickers
type Fetcher interface {
	FetchTickers(ctx context.Context, q polygon.Query) (*polygon.TickersResponse, error)
}

// Notifier surfaces fetch errors to the user
type Notifier interface {
	ShowError(message string, retry notify.RetryFunc)
}

type Store struct {
	mu       sync.Mutex
	state    State
	gen      uint64
	lastArgs *Args

	fetcher  Fetcher
	engine   *pagination.Engine[polygon.Ticker]
	notifier Notifier
	log      zerolog.Logger
}

type Option func(*Store)

func WithEngine(e *pagination.Engine[polygon.Ticker]) Option {
	return func(s *Store) { s.engine = e }
}

// WithPageSize sets the number of tickers requested per new search
func WithPageSize(n int) Option {
	return func(s *Store) { s.engine = pagination.New[polygon.Ticker](pagination.Config{PageSize: n}) }
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func NewStore(f Fetcher, opts ...Option) *Store {
	s := &Store{
		state:   initialState(),
		fetcher: f,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.engine == nil {
		s.engine = pagination.New[polygon.Ticker](pagination.Config{})
	}
	return s
}

func initialState() State {
	return State{Items: []polygon.Ticker{}, Status: StatusIdle}
}

// Search starts a new search for term with filters
func (s *Store) Search(ctx context.Context, term string, filters *Filters) error {
	return s.Fetch(ctx, Args{Search: term, Filters: filters})
}

// LoadMore fetches the page at cursor and appends it to the current list.
// An empty cursor continues from the current pagination state.
func (s *Store) LoadMore(ctx context.Context, cursor string) error {
	s.mu.Lock()
	if cursor == "" && s.engine.HasMore(s.state.Pagination) {
		cursor = s.engine.NextPageURL(s.state.Pagination)
	}
	var tag *Query
	if s.state.LastQuery != nil {
		q := *s.state.LastQuery
		tag = &q
	}
	s.mu.Unlock()

	if cursor == "" {
		return ErrNoCursor
	}
	args := Args{NextURL: cursor, continues: tag}
	if tag != nil {
		args.Search = tag.Search
	}
	return s.Fetch(ctx, args)
}

// Retry re-dispatches the last fetch
func (s *Store) Retry(ctx context.Context) error {
	s.mu.Lock()
	last := s.lastArgs
	s.mu.Unlock()

	if last == nil {
		return ErrNothingToRetry
	}
	return s.Fetch(ctx, *last)
}

// Reset returns to the initial state. Fetches still in flight are ignored
// when they complete.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = initialState()
	s.lastArgs = nil
}

// Fetch runs one fetch and folds its outcome into the state. The returned
// error is the fetch failure, already recorded in the state.
func (s *Store) Fetch(ctx context.Context, args Args) error {
	s.mu.Lock()
	if args.NextURL == "" {
		s.gen++
	}
	gen := s.gen
	s.state.Status = StatusLoading
	s.state.Error = ""
	s.state.ErrorDetail = nil
	a := args
	s.lastArgs = &a
	s.mu.Unlock()

	resp, err := s.fetcher.FetchTickers(ctx, args.upstream(s.engine.PageSize()))

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.log.Debug().Uint64("gen", gen).Uint64("current", s.gen).Msg("Dropping stale fetch result")
		return err
	}
	if args.NextURL != "" && args.continues != nil && !sameQuery(args.continues, s.state.LastQuery) {
		s.log.Debug().Str("cursor", args.NextURL).Msg("Dropping page for a replaced list")
		return err
	}

	if err != nil {
		s.fail(err)
		return err
	}
	s.succeed(args, resp)
	return nil
}

func (s *Store) succeed(args Args, resp *polygon.TickersResponse) {
	s.state.Status = StatusIdle

	results := resp.Results
	if results == nil {
		results = []polygon.Ticker{}
	}
	q := args.query()
	p := pagination.Params{NextURL: resp.NextURL, Count: resp.Count}

	var last *string
	var lastFilters *string
	if s.state.LastQuery != nil {
		last = &s.state.LastQuery.Search
		lastFilters = &s.state.LastQuery.FiltersSignature
	}

	if s.engine.IsNewSearch(q.Search, q.FiltersSignature, last, lastFilters) {
		r := s.engine.UpdateForNewSearch(results, q.Search, q.FiltersSignature, p)
		s.state.Items = r.Items
		s.state.Pagination = r.Pagination
		s.state.LastQuery = &Query{Search: r.Search, FiltersSignature: r.FiltersSignature}
	} else {
		r := s.engine.UpdateForPagination(s.state.Items, results, p)
		s.state.Items = r.Items
		s.state.Pagination = r.Pagination
	}

	s.log.Debug().
		Str("search", q.Search).
		Int("items", len(s.state.Items)).
		Bool("has_more", s.state.Pagination.HasMore).
		Bool("stale", resp.Stale).
		Msg("Fetch applied")
}

func (s *Store) fail(err error) {
	s.state.Status = StatusError

	var detail apierr.Info
	var re *polygon.RequestError
	if errors.As(err, &re) {
		detail = re.Info
		if detail.Message == "" {
			detail.Message = msgFetchFailed
		}
		if detail.Type == "" {
			detail.Type = apierr.TypeOther
		}
	} else {
		msg := err.Error()
		if msg == "" {
			msg = msgFallback
		}
		detail = apierr.Info{Message: msg, Type: apierr.TypeOther}
	}
	detail.Cause = err

	s.state.Error = detail.Message
	s.state.ErrorDetail = &detail

	s.log.Warn().Err(err).Str("error_type", string(detail.Type)).Bool("retryable", detail.Retryable).Msg("Fetch failed")

	if s.notifier != nil {
		var retry notify.RetryFunc
		if detail.Retryable {
			retry = s.Retry
		}
		s.notifier.ShowError(detail.Message, retry)
	}
}

// State returns a snapshot of the list state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Items = append([]polygon.Ticker(nil), s.state.Items...)
	if st.ErrorDetail != nil {
		d := *st.ErrorDetail
		st.ErrorDetail = &d
	}
	if st.LastQuery != nil {
		q := *st.LastQuery
		st.LastQuery = &q
	}
	return st
}

func (s *Store) View() View {
	st := s.State()
	return View{
		Items:        st.Items,
		IsLoading:    st.Status == StatusLoading,
		HasError:     st.Status == StatusError,
		Error:        st.Error,
		ErrorDetail:  st.ErrorDetail,
		HasMoreItems: s.engine.HasMore(st.Pagination),
		NextPageURL:  s.engine.NextPageURL(st.Pagination),
	}
}

// ShouldLoadMore reports whether a reader at index is near the end of the list
func (s *Store) ShouldLoadMore(index int) bool {
	s.mu.Lock()
	total := len(s.state.Items)
	more := s.engine.HasMore(s.state.Pagination)
	s.mu.Unlock()
	return more && s.engine.ShouldLoadMore(index, total, pagination.DefaultThreshold)
}

func sameQuery(a, b *Query) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
