package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	scs "github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/tickerscope/cache"
	appmw "github.com/briangreenhill/tickerscope/internal/http/middleware"
	"github.com/briangreenhill/tickerscope/internal/jobs"
	"github.com/briangreenhill/tickerscope/internal/stocks"
)

const sessionClientID = "client_id"

// Prefetcher queues a background fetch of a page
type Prefetcher interface {
	Prefetch(ctx context.Context, p jobs.PrefetchPayload) error
}

// EntryCounter reports how many entries the persistent cache tier holds
type EntryCounter interface {
	Count(ctx context.Context) (int64, error)
}

type Server struct {
	Router    *chi.Mux
	Sess      *scs.SessionManager
	Sessions  *stocks.Registry
	Cache     *cache.Store
	Persisted EntryCounter // nil unless Postgres backs the cache
	Prefetch  Prefetcher   // nil when no queue is configured
	Log       zerolog.Logger
}

type ServerOptions struct {
	Sess      *scs.SessionManager
	Sessions  *stocks.Registry
	Cache     *cache.Store
	Persisted EntryCounter
	Prefetch  Prefetcher
	Logger    zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	s := &Server{
		Router:    r,
		Sess:      opts.Sess,
		Sessions:  opts.Sessions,
		Cache:     opts.Cache,
		Persisted: opts.Persisted,
		Prefetch:  opts.Prefetch,
		Log:       opts.Logger,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			s.Log.Error().Err(err).Msg("Error writing health check response")
		}
	})
	r.Get("/cache/stats", s.handleCacheStats)
	r.Delete("/cache", s.handleClearCache)

	r.Group(func(pr chi.Router) {
		pr.Use(s.sessionToContext)
		pr.Use(appmw.RequireClient)

		pr.Get("/stocks", s.handleStocks)
		pr.Post("/stocks/search", s.handleSearch)
		pr.Post("/stocks/more", s.handleLoadMore)
		pr.Post("/stocks/retry", s.handleRetry)
		pr.Post("/stocks/reset", s.handleReset)
		pr.Post("/stocks/visible", s.handleVisible)

		pr.Get("/filters", s.handleGetFilters)
		pr.Put("/filters", s.handleSetFilters)
		pr.Delete("/filters", s.handleResetFilters)

		pr.Delete("/toast", s.handleHideToast)
	})

	return s
}

// sessionToContext gives every browser session a client id and exposes it
// on the request context
func (s *Server) sessionToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.Sess.GetString(r.Context(), sessionClientID)
		if id == "" {
			id = uuid.NewString()
			s.Sess.Put(r.Context(), sessionClientID, id)
		}
		r = r.WithContext(appmw.WithClientID(r.Context(), id))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) session(r *http.Request) *stocks.Session {
	return s.Sessions.Get(appmw.ClientID(r.Context()))
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response failed")
	}
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.render(w, r, status, map[string]string{"error": msg})
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

type stocksResponse struct {
	Stocks  stocks.View    `json:"stocks"`
	Filters stocks.Filters `json:"filters"`
	Toast   toastView      `json:"toast"`
}

type toastView struct {
	Visible  bool   `json:"visible"`
	Message  string `json:"message,omitempty"`
	CanRetry bool   `json:"canRetry"`
}

func (s *Server) snapshot(sess *stocks.Session) stocksResponse {
	t := sess.Toast.Current()
	return stocksResponse{
		Stocks:  sess.Stocks.View(),
		Filters: sess.Filters.Current(),
		Toast:   toastView{Visible: t.Visible, Message: t.Message, CanRetry: t.CanRetry},
	}
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, s.snapshot(s.session(r)))
}

type searchRequest struct {
	Search  string          `json:"search"`
	Filters *stocks.Filters `json:"filters"`
}

// handleSearch runs a search. Fetch failures are part of the returned state,
// not an HTTP error.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := s.session(r)
	filters := sess.Filters.Current()
	if req.Filters != nil {
		f, err := sess.Filters.Set(*req.Filters)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		filters = f
	}

	if err := sess.Stocks.Search(r.Context(), req.Search, &filters); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Str("search", req.Search).Msg("search failed")
	}
	s.render(w, r, http.StatusOK, s.snapshot(sess))
}

type moreRequest struct {
	NextURL string `json:"next_url"`
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	var req moreRequest
	if err := decode(r, &req); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := s.session(r)
	err := sess.Stocks.LoadMore(r.Context(), req.NextURL)
	if errors.Is(err, stocks.ErrNoCursor) {
		s.renderError(w, r, http.StatusConflict, err.Error())
		return
	}
	s.render(w, r, http.StatusOK, s.snapshot(sess))
}

// handleRetry runs the retry offered by the visible toast, or re-runs the
// last fetch when no toast offers one
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if ran, _ := sess.Toast.Retry(r.Context()); !ran {
		err := sess.Stocks.Retry(r.Context())
		if errors.Is(err, stocks.ErrNothingToRetry) {
			s.renderError(w, r, http.StatusConflict, err.Error())
			return
		}
	}
	s.render(w, r, http.StatusOK, s.snapshot(sess))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	sess.Stocks.Reset()
	sess.Toast.Hide()
	s.render(w, r, http.StatusOK, s.snapshot(sess))
}

type visibleRequest struct {
	Index int `json:"index"`
}

type visibleResponse struct {
	LoadMore bool `json:"loadMore"`
	Queued   bool `json:"queued"`
}

// handleVisible is reported as the reader scrolls. Near the end of the list
// the next page is queued for prefetch so the following LoadMore is served
// from cache.
func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	var req visibleRequest
	if err := decode(r, &req); err != nil || req.Index < 0 {
		s.renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := s.session(r)
	if !sess.Stocks.ShouldLoadMore(req.Index) {
		s.render(w, r, http.StatusOK, visibleResponse{})
		return
	}

	resp := visibleResponse{LoadMore: true}
	if s.Prefetch != nil {
		view := sess.Stocks.View()
		if err := s.Prefetch.Prefetch(r.Context(), jobs.PrefetchPayload{NextURL: view.NextPageURL}); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("prefetch enqueue failed")
		} else {
			resp.Queued = true
		}
	}
	s.render(w, r, http.StatusOK, resp)
}

func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, s.session(r).Filters.Current())
}

func (s *Server) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	var patch stocks.Filters
	if err := decode(r, &patch); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	f, err := s.session(r).Filters.Set(patch)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.render(w, r, http.StatusOK, f)
}

func (s *Server) handleResetFilters(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, s.session(r).Filters.Reset())
}

func (s *Server) handleHideToast(w http.ResponseWriter, r *http.Request) {
	s.session(r).Toast.Hide()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"sessions": s.Sessions.Len()}
	if s.Cache != nil {
		out["cache"] = s.Cache.Stats()
	}
	if s.Persisted != nil {
		n, err := s.Persisted.Count(r.Context())
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("count persisted cache entries failed")
		} else {
			out["persisted"] = n
		}
	}
	s.render(w, r, http.StatusOK, out)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if s.Cache != nil {
		s.Cache.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}
