package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the verdict of a single admission decision.
type Outcome int

const (
	// OutcomeAllowed means the request fit within the window's budget.
	OutcomeAllowed Outcome = iota
	// OutcomeRejected means the window is saturated.
	OutcomeRejected
	// OutcomeFailOpen means the store failed and the request was let through.
	OutcomeFailOpen
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailOpen:
		return "fail_open"
	default:
		return "unknown"
	}
}

// Decision describes how a request was admitted.
type Decision struct {
	Outcome Outcome
	// Key is the counter key consulted.
	Key string
	// Window is the fixed-window index (unix ms / window length).
	Window int64
	// Count is the counter value after this request was accounted for.
	Count int64
	// Limit is the per-window budget.
	Limit int64
	// RetryAfter is the time left until the next window starts.
	RetryAfter time.Duration
	// Err holds the store fault behind OutcomeFailOpen.
	Err error
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.Outcome != OutcomeRejected }

// Remaining is the budget left in the current window, never negative.
func (d Decision) Remaining() int64 {
	if d.Outcome == OutcomeFailOpen || d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// Controller admits at most Limit requests per client per fixed window.
type Controller struct {
	store  CounterStore
	window time.Duration
	max    int64
	prefix string
	now    func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithKeyPrefix namespaces counter keys, e.g. "ratelimit" gives
// "ratelimit:<client>:<window>".
func WithKeyPrefix(p string) Option {
	return func(c *Controller) { c.prefix = p }
}

// WithNow overrides the controller's time source.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController builds a controller over store. window is truncated to whole
// milliseconds and must be at least 1ms; maxPerWindow must be at least 1.
func NewController(store CounterStore, window time.Duration, maxPerWindow int, opts ...Option) *Controller {
	if window < time.Millisecond {
		window = time.Millisecond
	}
	if maxPerWindow < 1 {
		maxPerWindow = 1
	}
	c := &Controller{
		store:  store,
		window: window.Truncate(time.Millisecond),
		max:    int64(maxPerWindow),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Limit returns the per-window budget.
func (c *Controller) Limit() int64 { return c.max }

// Window returns the window length.
func (c *Controller) Window() time.Duration { return c.window }

// Store returns the backing counter store.
func (c *Controller) Store() CounterStore { return c.store }

// Decide accounts one request for clientID and returns the verdict. It never
// returns an error: store faults yield OutcomeFailOpen with Err set.
func (c *Controller) Decide(ctx context.Context, clientID string) Decision {
	nowMs := c.now().UnixMilli()
	winMs := c.window.Milliseconds()
	idx := nowMs / winMs

	d := Decision{
		Key:        c.key(clientID, idx),
		Window:     idx,
		Limit:      c.max,
		RetryAfter: time.Duration((idx+1)*winMs-nowMs) * time.Millisecond,
	}
	if c.store == nil {
		d.Outcome, d.Err = OutcomeFailOpen, ErrNoStore
		return d
	}
	ttl := 2 * c.window

	if inc, ok := c.store.(Incrementer); ok {
		n, err := inc.Increment(ctx, d.Key, ttl)
		if err != nil {
			d.Outcome, d.Err = OutcomeFailOpen, err
			return d
		}
		d.Count = n
		if n > c.max {
			d.Outcome = OutcomeRejected
		}
		return d
	}

	n, found, err := c.store.Get(ctx, d.Key)
	if err != nil {
		d.Outcome, d.Err = OutcomeFailOpen, err
		return d
	}
	if found && n >= c.max {
		d.Count = n
		d.Outcome = OutcomeRejected
		return d
	}
	if !found {
		n = 0
	}
	if err := c.store.Put(ctx, d.Key, n+1, ttl); err != nil {
		d.Outcome, d.Err = OutcomeFailOpen, err
		return d
	}
	d.Count = n + 1
	return d
}

func (c *Controller) key(clientID string, window int64) string {
	if c.prefix == "" {
		return fmt.Sprintf("%s:%d", clientID, window)
	}
	return fmt.Sprintf("%s:%s:%d", c.prefix, clientID, window)
}
