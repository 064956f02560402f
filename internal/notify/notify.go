// Package notify holds the transient error notification shown next to the
// ticker list. A notification hides itself after a fixed delay.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultAutoHide is how long a notification stays visible
const DefaultAutoHide = 5 * time.Second

// RetryFunc is the action offered alongside a retryable error
type RetryFunc func(ctx context.Context) error

// Toast is the visible notification state
type Toast struct {
	Visible  bool      `json:"visible"`
	Message  string    `json:"message"`
	CanRetry bool      `json:"canRetry"`
	ShownAt  time.Time `json:"shownAt,omitempty"`
}

// Timer is the part of *time.Timer the notifier needs
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d
type AfterFunc func(d time.Duration, f func()) Timer

type Notifier struct {
	mu       sync.Mutex
	toast    Toast
	retry    RetryFunc
	timer    Timer
	seq      uint64
	autoHide time.Duration
	after    AfterFunc
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Notifier)

func WithAutoHide(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.autoHide = d
		}
	}
}

// WithAfterFunc replaces time.AfterFunc, for tests
func WithAfterFunc(fn AfterFunc) Option {
	return func(n *Notifier) { n.after = fn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(n *Notifier) { n.log = l }
}

func New(opts ...Option) *Notifier {
	n := &Notifier{
		autoHide: DefaultAutoHide,
		after: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now: time.Now,
		log: zerolog.Nop(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// ShowError replaces the current notification. retry may be nil.
func (n *Notifier) ShowError(message string, retry RetryFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopTimer()
	n.seq++
	seq := n.seq
	n.toast = Toast{
		Visible:  true,
		Message:  message,
		CanRetry: retry != nil,
		ShownAt:  n.now(),
	}
	n.retry = retry
	n.timer = n.after(n.autoHide, func() { n.expire(seq) })
	n.log.Debug().Str("message", message).Bool("retry", retry != nil).Msg("Showing notification")
}

// Hide dismisses the notification; the message is kept
func (n *Notifier) Hide() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopTimer()
	n.toast.Visible = false
}

func (n *Notifier) Current() Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.toast
}

// Retry hides the notification and runs its retry action. It reports
// whether an action was run.
func (n *Notifier) Retry(ctx context.Context) (bool, error) {
	n.mu.Lock()
	retry := n.retry
	visible := n.toast.Visible
	n.stopTimer()
	n.toast.Visible = false
	n.mu.Unlock()

	if !visible || retry == nil {
		return false, nil
	}
	return true, retry(ctx)
}

func (n *Notifier) expire(seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	// a newer notification owns its own timer
	if seq != n.seq {
		return
	}
	n.toast.Visible = false
	n.timer = nil
}

func (n *Notifier) stopTimer() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
