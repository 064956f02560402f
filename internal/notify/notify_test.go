package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTimer struct {
	d       time.Duration
	fire    func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type timers struct {
	mu  sync.Mutex
	all []*manualTimer
}

func (ts *timers) after(d time.Duration, f func()) Timer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &manualTimer{d: d, fire: f}
	ts.all = append(ts.all, t)
	return t
}

func (ts *timers) last() *manualTimer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.all[len(ts.all)-1]
}

func TestShowErrorAutoHides(t *testing.T) {
	ts := &timers{}
	n := New(WithAfterFunc(ts.after))

	n.ShowError("Network error. Please check your connection and try again.", nil)

	toast := n.Current()
	assert.True(t, toast.Visible)
	assert.False(t, toast.CanRetry)
	assert.Equal(t, DefaultAutoHide, ts.last().d)

	ts.last().fire()
	assert.False(t, n.Current().Visible)
}

func TestNewerToastKeepsItsTimer(t *testing.T) {
	ts := &timers{}
	n := New(WithAfterFunc(ts.after), WithAutoHide(time.Second))

	n.ShowError("first", nil)
	first := ts.last()
	n.ShowError("second", nil)

	assert.True(t, first.stopped)

	// a late fire from the replaced timer must not hide the newer toast
	first.fire()
	assert.True(t, n.Current().Visible)
	assert.Equal(t, "second", n.Current().Message)
}

func TestHide(t *testing.T) {
	ts := &timers{}
	n := New(WithAfterFunc(ts.after))

	n.ShowError("boom", nil)
	n.Hide()

	assert.False(t, n.Current().Visible)
	assert.Equal(t, "boom", n.Current().Message)
	assert.True(t, ts.last().stopped)
}

func TestRetry(t *testing.T) {
	ts := &timers{}
	n := New(WithAfterFunc(ts.after))
	ctx := context.Background()

	calls := 0
	n.ShowError("Rate limit exceeded.", func(context.Context) error {
		calls++
		return errors.New("still limited")
	})
	require.True(t, n.Current().CanRetry)

	ran, err := n.Retry(ctx)
	assert.True(t, ran)
	assert.EqualError(t, err, "still limited")
	assert.Equal(t, 1, calls)
	assert.False(t, n.Current().Visible)

	// hidden toast has nothing to retry
	ran, err = n.Retry(ctx)
	assert.False(t, ran)
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRealTimerHides(t *testing.T) {
	n := New(WithAutoHide(10 * time.Millisecond))
	n.ShowError("boom", nil)

	assert.Eventually(t, func() bool { return !n.Current().Visible }, time.Second, 5*time.Millisecond)
}
