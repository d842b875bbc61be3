package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/imorning/chat/internal/metrics"
	"github.com/imorning/chat/internal/profile"
)

// Options configures the collaborators a Controller drives.
// Nil fields disable the corresponding effect.
type Options struct {
	// Receivers creates the background message receiver on authentication.
	// When nil, a no-op receiver stands in so the handle still tracks the
	// authenticated state.
	Receivers ReceiverFactory
	// Scheduler accepts reconnection requests after recoverable failures.
	Scheduler Scheduler
	// Relogin is invoked on the UI context when the user must sign in again.
	Relogin func(cause error)
	// Notifier shows user-visible notices.
	Notifier Notifier
	// Profiles receives the profile refreshed after authentication.
	Profiles *profile.Cache
	// Dispatch schedules a function on the UI context (e.g. glib.IdleAdd).
	// When nil, functions run on the calling goroutine.
	Dispatch func(func())
}

// Controller owns the connection state and the receiver handle.
// It subscribes to the connection's lifecycle events once, at construction,
// and is safe for concurrent use.
type Controller struct {
	conn Conn
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	handle Receiver

	onStateChange func(old, new State)
}

// NewController creates a lifecycle controller and subscribes it to conn.
func NewController(conn Conn, opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		conn:   conn,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		state:  StateDisconnected,
	}

	conn.OnLifecycle(c.HandleEvent)
	metrics.SetConnectionState(string(c.state), stateLabels())

	return c
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReceiverLive returns true if a receiver handle is held.
func (c *Controller) ReceiverLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

// Profile returns the last refreshed account profile, if any.
func (c *Controller) Profile() *profile.Profile {
	if c.opts.Profiles == nil {
		return nil
	}
	return c.opts.Profiles.Get()
}

// OnStateChange registers a callback for state changes.
// The callback is invoked outside the lock.
func (c *Controller) OnStateChange(callback func(old, new State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = callback
}

// HandleEvent applies a lifecycle event. Effects run in transition order
// while the lock is held, so teardown of the receiver is always observed
// before any reconnection or re-login is requested. User-facing effects
// (re-login and notices) are dispatched after the lock is released.
func (c *Controller) HandleEvent(e Event) {
	c.mu.Lock()
	old := c.state
	next, effects := Transition(old, e)
	if next != old && !IsValidTransition(old, next) {
		slog.Warn("Unexpected connection state transition", "from", old, "to", next, "event", e.Kind)
	}
	c.state = next
	var deferred []func()
	for _, effect := range effects {
		if fn := c.apply(effect); fn != nil {
			deferred = append(deferred, fn)
		}
	}
	callback := c.onStateChange
	c.mu.Unlock()

	for _, fn := range deferred {
		c.dispatch(fn)
	}

	metrics.LifecycleEventsTotal.WithLabelValues(string(e.Kind)).Inc()
	metrics.SetConnectionState(string(next), stateLabels())

	if e.Kind == EventClosedOnError {
		slog.Warn("Connection closed with error", "error", e.Err, "classification", Classify(e.Err))
	} else {
		slog.Debug("Connection lifecycle event", "event", e.Kind, "state", next, "resumed", e.Resumed)
	}

	// Call callback outside of lock to prevent deadlocks
	if callback != nil && next != old {
		callback(old, next)
	}
}

// apply executes a single effect. Must be called with c.mu held. Effects
// that call out to the user are returned for dispatch after unlocking.
func (c *Controller) apply(effect Effect) func() {
	switch effect.Kind {
	case EffectStartReceiver:
		c.startReceiver()

	case EffectStopReceiver:
		c.stopReceiver()

	case EffectRefreshProfile:
		if fetcher, ok := c.conn.(ProfileFetcher); ok && c.opts.Profiles != nil {
			go c.refreshProfile(fetcher)
		}

	case EffectScheduleReconnect:
		metrics.ClosureFailuresTotal.WithLabelValues(string(effect.Failure)).Inc()
		if c.opts.Scheduler == nil {
			slog.Warn("No reconnection scheduler configured, staying offline")
			return nil
		}
		c.opts.Scheduler.ScheduleOnce(effect.Request)

	case EffectRequireLogin:
		metrics.ClosureFailuresTotal.WithLabelValues(string(effect.Failure)).Inc()
		if c.opts.Profiles != nil {
			c.opts.Profiles.Clear()
		}
		if relogin := c.opts.Relogin; relogin != nil {
			cause := effect.Cause
			return func() { relogin(cause) }
		}

	case EffectNotice:
		if notifier := c.opts.Notifier; notifier != nil {
			title, body := effect.Title, effect.Body
			return func() { notifier.Notice(title, body) }
		}
	}
	return nil
}

// startReceiver starts a receiver unless one is already held. A failed start
// still records the handle: the receiver tolerates Stop when not started, and
// holding it keeps the handle in step with the authenticated state.
func (c *Controller) startReceiver() {
	if c.handle != nil {
		return
	}

	var receiver Receiver = noopReceiver{}
	if c.opts.Receivers != nil {
		receiver = c.opts.Receivers()
	}
	if err := receiver.Start(); err != nil {
		slog.Error("Failed to start message receiver", "error", err)
	} else {
		slog.Info("Message receiver started")
	}
	c.handle = receiver
}

func (c *Controller) stopReceiver() {
	if c.handle == nil {
		return
	}
	if err := c.handle.Stop(); err != nil {
		slog.Warn("Failed to stop message receiver", "error", err)
	} else {
		slog.Info("Message receiver stopped")
	}
	c.handle = nil
}

func (c *Controller) refreshProfile(fetcher ProfileFetcher) {
	p, err := fetcher.FetchProfile(c.ctx)
	if err != nil {
		slog.Warn("Failed to refresh account profile", "error", err)
		return
	}
	if p == nil {
		return
	}
	if err := p.Validate(); err != nil {
		slog.Warn("Discarding invalid account profile", "error", err)
		return
	}
	c.opts.Profiles.Set(p)
	slog.Debug("Account profile refreshed", "name", p.DisplayName())
}

func (c *Controller) dispatch(fn func()) {
	if c.opts.Dispatch != nil {
		c.opts.Dispatch(fn)
		return
	}
	fn()
}

// Close stops the receiver and releases the controller at process teardown.
// It does not close the connection itself.
func (c *Controller) Close() {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopReceiver()
	c.state = StateDisconnected
}

type noopReceiver struct{}

func (noopReceiver) Start() error { return nil }
func (noopReceiver) Stop() error  { return nil }

func stateLabels() []string {
	states := AllStates()
	labels := make([]string, len(states))
	for i, s := range states {
		labels[i] = string(s)
	}
	return labels
}
