// Package reconnect executes reconnection requests once their network and
// power constraints hold, retrying failed attempts with a fixed delay.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/imorning/chat/internal/login"
	"github.com/imorning/chat/internal/metrics"
	"github.com/imorning/chat/internal/session"
)

// ErrMaxAttempts is reported through Callbacks.OnFailed when every attempt failed.
var ErrMaxAttempts = errors.New("max reconnect attempts reached")

// Config holds reconnection configuration.
type Config struct {
	MaxAttempts  int
	DelaySeconds int
	// PollInterval is how often unmet constraints are re-checked.
	PollInterval time.Duration
	// MinSpacing is the minimum time between two attempts.
	MinSpacing time.Duration
}

// DefaultConfig returns default reconnection configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		DelaySeconds: 5,
		PollInterval: 10 * time.Second,
		MinSpacing:   2 * time.Second,
	}
}

// Action performs one reconnection attempt.
type Action func(ctx context.Context) error

// NetworkProbe reports whether the server can be reached.
type NetworkProbe interface {
	Reachable(ctx context.Context) bool
}

// PowerProbe reports whether the host runs on external power.
type PowerProbe interface {
	OnExternalPower() bool
}

// Callbacks contains optional callbacks for reconnection events.
type Callbacks struct {
	// OnReconnecting is called when a reconnect attempt is about to start.
	OnReconnecting func(attempt int)
	// OnSucceeded is called after a successful attempt.
	OnSucceeded func()
	// OnFailed is called when reconnect fails and cannot continue.
	OnFailed func(err error)
}

// Manager is the deferred-execution facility behind session.Scheduler.
// Requests are queued without blocking and executed by a single worker
// started with Start. It is safe for concurrent use.
type Manager struct {
	mu            sync.Mutex
	attemptCount  int
	running       bool
	attemptCancel context.CancelFunc

	config         Config
	action         Action
	network        NetworkProbe
	power          PowerProbe
	callbacks      Callbacks
	scheduleOnMain func(func()) // Schedules function to run on main/UI thread

	limiter  *rate.Limiter
	group    singleflight.Group
	requests chan session.ReconnectRequest

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ session.Scheduler = (*Manager)(nil)

// NewManager creates a new Manager running action for each request.
// scheduleOnMain should schedule the provided function to run on the main/UI thread
// (e.g., glib.IdleAdd in GTK applications).
func NewManager(cfg Config, action Action, scheduleOnMain func(func())) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}

	limit := rate.Inf
	if cfg.MinSpacing > 0 {
		limit = rate.Every(cfg.MinSpacing)
	}

	return &Manager{
		config:         cfg,
		action:         action,
		scheduleOnMain: scheduleOnMain,
		limiter:        rate.NewLimiter(limit, 1),
		requests:       make(chan session.ReconnectRequest, 1),
	}
}

// SetProbes sets the constraint probes. A nil probe treats its constraint as met.
func (m *Manager) SetProbes(network NetworkProbe, power PowerProbe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.network = network
	m.power = power
}

// SetCallbacks sets the event callbacks.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = cb
}

// Start launches the worker. It returns immediately; the worker exits when
// ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(ctx)
	}()
}

// Stop cancels any attempt in progress and waits for the worker to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// ScheduleOnce enqueues a reconnection request without blocking.
// A request arriving while another is queued is coalesced into it.
func (m *Manager) ScheduleOnce(req session.ReconnectRequest) {
	select {
	case m.requests <- req:
		metrics.ReconnectRequestsTotal.Inc()
		slog.Info("Reconnect requested",
			"requires_network", req.RequiresNetwork,
			"requires_power", req.RequiresPower)
	default:
		slog.Debug("Reconnect already pending, coalescing request")
	}
}

// Cancel drops the queued request and aborts the attempt in progress.
func (m *Manager) Cancel() {
	select {
	case <-m.requests:
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.attemptCount = 0
	if m.attemptCancel != nil {
		m.attemptCancel()
		m.attemptCancel = nil
		slog.Debug("Cancelled pending reconnect")
	}
}

// Pending returns true if a request is queued or being executed.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running || len(m.requests) > 0
}

// GetAttemptCount returns the current reconnection attempt count.
func (m *Manager) GetAttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attemptCount
}

func (m *Manager) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.requests:
			m.process(ctx, req)
		}
	}
}

func (m *Manager) process(parent context.Context, req session.ReconnectRequest) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	m.mu.Lock()
	m.running = true
	m.attemptCancel = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.attemptCancel = nil
		m.mu.Unlock()
	}()

	delay := time.Duration(m.config.DelaySeconds) * time.Second
	for attempt := 1; ; attempt++ {
		if !m.waitForConstraints(ctx, req) {
			return
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}

		m.mu.Lock()
		m.attemptCount = attempt
		callbacks := m.callbacks
		m.mu.Unlock()

		slog.Info("Performing reconnect attempt", "attempt", attempt, "max", m.config.MaxAttempts)
		if callbacks.OnReconnecting != nil {
			m.dispatch(func() { callbacks.OnReconnecting(attempt) })
		}

		_, err, _ := m.group.Do("reconnect", func() (any, error) {
			return nil, m.action(ctx)
		})

		if err == nil {
			metrics.ReconnectAttemptsTotal.WithLabelValues("success").Inc()
			m.mu.Lock()
			m.attemptCount = 0
			m.mu.Unlock()
			if callbacks.OnSucceeded != nil {
				m.dispatch(callbacks.OnSucceeded)
			}
			return
		}

		if ctx.Err() != nil {
			metrics.ReconnectAttemptsTotal.WithLabelValues("cancelled").Inc()
			return
		}

		if isTerminal(err) {
			metrics.ReconnectAttemptsTotal.WithLabelValues("terminal").Inc()
			slog.Error("Reconnect failed permanently", "attempt", attempt, "error", err)
			m.fail(callbacks, err)
			return
		}

		metrics.ReconnectAttemptsTotal.WithLabelValues("failure").Inc()
		slog.Error("Reconnect failed", "attempt", attempt, "error", err)

		if attempt >= m.config.MaxAttempts {
			slog.Warn("Max reconnect attempts reached", "attempts", attempt, "max", m.config.MaxAttempts)
			m.fail(callbacks, fmt.Errorf("%w: %w", ErrMaxAttempts, err))
			return
		}

		slog.Info("Scheduling reconnect attempt", "attempt", attempt+1, "max", m.config.MaxAttempts, "delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// waitForConstraints blocks until the request's constraints hold.
// It returns false if ctx is cancelled first.
func (m *Manager) waitForConstraints(ctx context.Context, req session.ReconnectRequest) bool {
	var ticker *time.Ticker
	for {
		unmet := m.unmetConstraint(ctx, req)
		if unmet == "" {
			if ticker != nil {
				ticker.Stop()
			}
			return true
		}

		if ticker == nil {
			slog.Info("Waiting for reconnect constraint", "constraint", unmet)
			ticker = time.NewTicker(m.config.PollInterval)
		}

		select {
		case <-ctx.Done():
			ticker.Stop()
			return false
		case <-ticker.C:
		}
	}
}

func (m *Manager) unmetConstraint(ctx context.Context, req session.ReconnectRequest) string {
	m.mu.Lock()
	network, power := m.network, m.power
	m.mu.Unlock()

	if req.RequiresNetwork && network != nil && !network.Reachable(ctx) {
		return "network"
	}
	if req.RequiresPower && power != nil && !power.OnExternalPower() {
		return "power"
	}
	return ""
}

func (m *Manager) fail(callbacks Callbacks, err error) {
	m.mu.Lock()
	m.attemptCount = 0
	m.mu.Unlock()

	if callbacks.OnFailed != nil {
		m.dispatch(func() { callbacks.OnFailed(err) })
	}
}

func (m *Manager) dispatch(fn func()) {
	if m.scheduleOnMain != nil {
		m.scheduleOnMain(fn)
		return
	}
	fn()
}

// isTerminal returns true for errors no retry can fix.
func isTerminal(err error) bool {
	return errors.Is(err, session.ErrAuthenticationRejected) ||
		errors.Is(err, session.ErrValidation) ||
		errors.Is(err, login.ErrNoSession)
}
