package stocks

import (
	"sync"
	"time"

	"github.com/briangreenhill/tickerscope/internal/notify"
)

// Session bundles the per-client state
type Session struct {
	ID      string
	Stocks  *Store
	Filters *FilterState
	Toast   *notify.Notifier

	lastSeen time.Time
}

// SessionFactory builds the state for a new session id
type SessionFactory func(id string) *Session

// Registry hands out one Session per client id, creating it on first use
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  SessionFactory
	now      func() time.Time
}

// NewRegistry creates a registry. The factory must return a fully wired Session.
func NewRegistry(factory SessionFactory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		now:      time.Now,
	}
}

// DefaultFactory wires each session to fetcher with its own notifier
func DefaultFactory(fetcher Fetcher, notifyOpts []notify.Option, storeOpts ...Option) SessionFactory {
	return func(id string) *Session {
		toast := notify.New(notifyOpts...)
		opts := append([]Option{WithNotifier(toast)}, storeOpts...)
		return &Session{
			ID:      id,
			Stocks:  NewStore(fetcher, opts...),
			Filters: NewFilterState(),
			Toast:   toast,
		}
	}
}

// Get returns the session for id, creating it if needed
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = r.factory(id)
		s.ID = id
		r.sessions[id] = s
	}
	s.lastSeen = r.now()
	return s
}

// Prune drops sessions not seen for longer than idle and returns how many
// were removed.
func (r *Registry) Prune(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	n := 0
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
