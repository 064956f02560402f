// Package pagination decides whether a page of results starts a new list or
// continues the current one, and derives cursor state from the upstream
// response.
package pagination

import "net/url"

// DefaultThreshold is the fraction of the list left unseen that triggers a prefetch
const DefaultThreshold = 0.2

// Identifiable items can be deduplicated across pages
type Identifiable interface {
	IdentityKey() string
}

// Config tunes the engine
type Config struct {
	// PageSize is the limit sent with a new search. Zero leaves the page
	// size to the fetcher.
	PageSize int `json:"pageSize"`
}

// Params is the cursor information carried by an upstream page
type Params struct {
	NextURL string `json:"next_url,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// State is the pagination state kept alongside the item list
type State struct {
	NextURL string `json:"next_url,omitempty"`
	Count   *int   `json:"count,omitempty"`
	HasMore bool   `json:"hasMore"`
}

// NewSearchResult is the outcome of a fetch that replaces the list
type NewSearchResult[T Identifiable] struct {
	Items            []T
	Search           string
	FiltersSignature string
	Pagination       State
}

// PageResult is the outcome of a fetch that continues the list
type PageResult[T Identifiable] struct {
	Items      []T
	Pagination State
}

// Engine holds immutable configuration only; every decision is a pure
// function of its arguments.
type Engine[T Identifiable] struct {
	cfg Config
}

// New creates an engine. A negative PageSize is treated as zero.
func New[T Identifiable](cfg Config) *Engine[T] {
	if cfg.PageSize < 0 {
		cfg.PageSize = 0
	}
	return &Engine[T]{cfg: cfg}
}

// Config returns the engine configuration
func (e *Engine[T]) Config() Config {
	return e.cfg
}

// PageSize is the limit to request for a new search, zero for the fetcher default
func (e *Engine[T]) PageSize() int {
	return e.cfg.PageSize
}

// IsNewSearch reports whether the (search, filters) pair differs from the
// last recorded one. A nil last value means nothing was recorded yet.
func (e *Engine[T]) IsNewSearch(search, filters string, lastSearch, lastFilters *string) bool {
	if lastSearch == nil || lastFilters == nil {
		return true
	}
	return *lastSearch != search || *lastFilters != filters
}

// MergeWithoutDuplicates appends next to existing, keeping the first item
// seen for each identity key.
func (e *Engine[T]) MergeWithoutDuplicates(existing, next []T) []T {
	return MergeWithoutDuplicates(existing, next)
}

// UpdateForNewSearch replaces the list outright
func (e *Engine[T]) UpdateForNewSearch(results []T, search, filters string, p Params) NewSearchResult[T] {
	return NewSearchResult[T]{
		Items:            results,
		Search:           search,
		FiltersSignature: filters,
		Pagination:       e.DeriveState(p),
	}
}

// UpdateForPagination merges the new page into the existing list
func (e *Engine[T]) UpdateForPagination(existing, next []T, p Params) PageResult[T] {
	return PageResult[T]{
		Items:      MergeWithoutDuplicates(existing, next),
		Pagination: e.DeriveState(p),
	}
}

func (e *Engine[T]) DeriveState(p Params) State {
	return State{
		NextURL: p.NextURL,
		Count:   p.Count,
		HasMore: p.NextURL != "",
	}
}

// HasMore is true only when the state says so and a cursor is present
func (e *Engine[T]) HasMore(s State) bool {
	return s.HasMore && s.NextURL != ""
}

func (e *Engine[T]) NextPageURL(s State) string {
	return s.NextURL
}

// ShouldLoadMore reports whether the reader at index is close enough to the
// end of total items to fetch the next page. A negative threshold uses
// DefaultThreshold; zero triggers only at the end of the list.
func (e *Engine[T]) ShouldLoadMore(index, total int, threshold float64) bool {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	remaining := total - index
	limit := int(float64(total) * threshold)
	return remaining <= limit
}

// ValidateParams rejects a negative count or a cursor that is not a URL
func (e *Engine[T]) ValidateParams(p Params) bool {
	if p.Count != nil && *p.Count < 0 {
		return false
	}
	if p.NextURL != "" {
		if _, err := url.Parse(p.NextURL); err != nil {
			return false
		}
	}
	return true
}

func (e *Engine[T]) Reset() State {
	return State{}
}

// MergeWithoutDuplicates is the package-level form of Engine.MergeWithoutDuplicates
func MergeWithoutDuplicates[T Identifiable](existing, next []T) []T {
	merged := make([]T, 0, len(existing)+len(next))
	seen := make(map[string]struct{}, len(existing)+len(next))

	for _, list := range [][]T{existing, next} {
		for _, item := range list {
			key := item.IdentityKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}
