package stocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/briangreenhill/tickerscope/polygon"
)

var ErrInvalidFilters = errors.New("invalid filters")

var (
	markets = map[string]bool{"stocks": true, "crypto": true, "fx": true, "otc": true, "indices": true}
	orders  = map[string]bool{"asc": true, "desc": true}
)

// Filters narrow a search. Empty fields mean "use the upstream default".
type Filters struct {
	Market string `json:"market,omitempty"`
	Order  string `json:"order,omitempty"`
	Sort   string `json:"sort,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

// DefaultFilters is the initial filter state
func DefaultFilters() Filters {
	return Filters{Market: "stocks"}
}

// Signature is the canonical JSON form used to tell searches apart.
// A nil receiver signs as "{}".
func (f *Filters) Signature() string {
	if f == nil {
		return "{}"
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (f Filters) Validate() error {
	if f.Market != "" && !markets[f.Market] {
		return fmt.Errorf("%w: unknown market %q", ErrInvalidFilters, f.Market)
	}
	if f.Order != "" && !orders[f.Order] {
		return fmt.Errorf("%w: order must be asc or desc, got %q", ErrInvalidFilters, f.Order)
	}
	return nil
}

// Merge returns f with every set field of patch applied
func (f Filters) Merge(patch Filters) Filters {
	if patch.Market != "" {
		f.Market = patch.Market
	}
	if patch.Order != "" {
		f.Order = patch.Order
	}
	if patch.Sort != "" {
		f.Sort = patch.Sort
	}
	if patch.Active != nil {
		v := *patch.Active
		f.Active = &v
	}
	return f
}

func (f *Filters) apply(q *polygon.Query) {
	if f == nil {
		return
	}
	q.Market = f.Market
	q.Order = f.Order
	q.Sort = f.Sort
	q.Active = f.Active
}

// FilterState is the session's current filter selection
type FilterState struct {
	mu  sync.Mutex
	cur Filters
}

func NewFilterState() *FilterState {
	return &FilterState{cur: DefaultFilters()}
}

// Set merges patch into the current filters
func (s *FilterState) Set(patch Filters) (Filters, error) {
	if err := patch.Validate(); err != nil {
		return Filters{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = s.cur.Merge(patch)
	return s.cur, nil
}

func (s *FilterState) Reset() Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = DefaultFilters()
	return s.cur
}

func (s *FilterState) Current() Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}
