// Package app wires the session core, its collaborators and the local
// control socket into the running client.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imorning/chat/internal/config"
	"github.com/imorning/chat/internal/control"
	"github.com/imorning/chat/internal/credentials"
	"github.com/imorning/chat/internal/gateway"
	"github.com/imorning/chat/internal/inbox"
	"github.com/imorning/chat/internal/logging"
	"github.com/imorning/chat/internal/login"
	"github.com/imorning/chat/internal/metrics"
	"github.com/imorning/chat/internal/probe"
	"github.com/imorning/chat/internal/profile"
	"github.com/imorning/chat/internal/quickreply"
	"github.com/imorning/chat/internal/reconnect"
	"github.com/imorning/chat/internal/session"
)

// Version is the application version, set at build time via ldflags.
var Version = "dev"

// Notifier renders session notices and per-conversation message notifications.
type Notifier interface {
	session.Notifier
	inbox.Poster
	quickreply.Canceller
}

// Options configures an App.
type Options struct {
	// Notifier renders notices and notifications. Required.
	Notifier Notifier
	// Dispatch schedules a function on the UI context. When nil, functions
	// run on the calling goroutine.
	Dispatch func(func())
	// OnLoginRequired is called on the dispatch context when the user must
	// sign in again. The cause is ErrForcedRemoteClose after a forced
	// sign-out, ErrAuthenticationRejected for a stale stored session and
	// login.ErrNoSession when nothing is stored.
	OnLoginRequired func(cause error)
	// Dial opens the server stream. Defaults to gateway.DialXMPP.
	Dial gateway.Dialer
}

// App represents the running client.
// It owns every long-lived component and wires them together.
type App struct {
	configManager *config.Manager
	opts          Options

	store     credentials.Store
	gateway   *gateway.Client
	network   *probe.Network
	profiles  *profile.Cache
	session   *session.Controller
	login     *login.Controller
	relogin   *login.Reconnector
	reconnect *reconnect.Manager
	replies   *quickreply.Dispatcher
	control   *control.Server
}

// New creates the application from the current configuration.
func New(configManager *config.Manager, opts Options) (*App, error) {
	if opts.Notifier == nil {
		return nil, errors.New("app: notifier is required")
	}

	cfg := configManager.GetConfig()

	store, err := credentials.Open(cfg.CredentialBackend, configManager.GetDataDir())
	if err != nil {
		return nil, err
	}

	a := &App{
		configManager: configManager,
		opts:          opts,
		store:         store,
		gateway:       gateway.NewClient(cfg.Server, gateway.WithDialer(opts.Dial)),
		network:       probe.NewNetwork(cfg.Server),
		profiles:      profile.NewCache(),
	}

	a.relogin = login.NewReconnector(a.gateway, store)
	a.setNotificationsEnabled(cfg.ShowNotifications)

	a.reconnect = reconnect.NewManager(reconnect.Config{
		MaxAttempts:  cfg.MaxReconnectAttempts,
		DelaySeconds: cfg.ReconnectDelaySeconds,
		PollInterval: reconnect.DefaultConfig().PollInterval,
		MinSpacing:   reconnect.DefaultConfig().MinSpacing,
	}, a.relogin.Run, opts.Dispatch)
	a.reconnect.SetProbes(a.network, probe.NewPower())
	a.reconnect.SetCallbacks(reconnect.Callbacks{
		OnReconnecting: func(attempt int) {
			slog.Info("Reconnecting", "attempt", attempt)
		},
		OnFailed: a.onReconnectFailed,
	})

	a.session = session.NewController(a.gateway, session.Options{
		Receivers: inbox.Factory(a.gateway, opts.Notifier, inbox.Options{
			Pinger:       a.gateway,
			PingInterval: time.Duration(cfg.PingIntervalSeconds) * time.Second,
		}),
		Scheduler: a.reconnect,
		Relogin:   opts.OnLoginRequired,
		Notifier:  opts.Notifier,
		Profiles:  a.profiles,
		Dispatch:  opts.Dispatch,
	})

	a.login = login.NewController(a.gateway, login.Options{
		Store:        store,
		Reachability: a.network,
		Dispatch:     opts.Dispatch,
	})

	a.replies = quickreply.NewDispatcher(a.gateway, opts.Notifier)

	socketPath := cfg.ControlSocket
	if socketPath == "" {
		socketPath = control.DefaultSocketPath()
	}
	handler := &control.Handler{
		Replies:   a.replies,
		Session:   a.session,
		Reconnect: a.reconnect,
		Account:   a.gateway,
		Login:     a.login,
	}
	a.control = control.NewServer(socketPath, handler.HandleRequest)

	a.session.OnStateChange(func(old, new session.State) {
		event, err := control.StateEvent(old, new)
		if err != nil {
			slog.Warn("Failed to build state event", "error", err)
			return
		}
		a.control.Broadcast(event)
	})

	return a, nil
}

// Login returns the login controller.
func (a *App) Login() *login.Controller {
	return a.login
}

// Session returns the lifecycle controller.
func (a *App) Session() *session.Controller {
	return a.session
}

// Run starts every component and blocks until ctx is cancelled or a
// component fails. Components are torn down before it returns.
func (a *App) Run(ctx context.Context) error {
	cfg := a.configManager.GetConfig()
	slog.Info("Starting imorning-chat", "version", Version, "server", cfg.Server)

	if err := a.control.Start(); err != nil {
		return err
	}
	defer a.shutdown()

	g, ctx := errgroup.WithContext(ctx)

	a.reconnect.Start(ctx)

	// Config watcher is best-effort
	a.configManager.OnChange(a.applyConfig)
	if err := a.configManager.Watch(ctx, 0); err != nil {
		slog.Warn("Failed to start config watcher", "error", err)
	}

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.MetricsAddr, metrics.NewRouter(a.health))
		})
	}

	if cfg.AutoLogin {
		g.Go(func() error {
			a.signIn(ctx)
			return nil
		})
	} else {
		a.requireLogin(login.ErrNoSession)
	}

	<-ctx.Done()
	return g.Wait()
}

// signIn restores the stored session at startup.
func (a *App) signIn(ctx context.Context) {
	err := a.relogin.Run(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
	case errors.Is(err, login.ErrNoSession), errors.Is(err, session.ErrAuthenticationRejected):
		slog.Info("Sign-in required", "reason", err)
		a.requireLogin(err)
	default:
		slog.Warn("Startup sign-in failed, scheduling reconnect", "error", err)
		a.reconnect.ScheduleOnce(session.DefaultReconnectRequest())
	}
}

func (a *App) onReconnectFailed(err error) {
	if errors.Is(err, login.ErrNoSession) || errors.Is(err, session.ErrAuthenticationRejected) {
		a.requireLogin(err)
		return
	}
	slog.Error("Giving up reconnecting", "error", err)
	a.opts.Notifier.Notice("Offline", "Could not reconnect to the server.")
}

func (a *App) requireLogin(cause error) {
	if a.opts.OnLoginRequired == nil {
		return
	}
	if a.opts.Dispatch != nil {
		a.opts.Dispatch(func() { a.opts.OnLoginRequired(cause) })
		return
	}
	a.opts.OnLoginRequired(cause)
}

func (a *App) applyConfig(cfg *config.Config) {
	logging.SetLevel(logging.FromDebug(cfg.Debug))
	a.setNotificationsEnabled(cfg.ShowNotifications)
}

func (a *App) setNotificationsEnabled(enabled bool) {
	if n, ok := a.opts.Notifier.(interface{ SetEnabled(bool) }); ok {
		n.SetEnabled(enabled)
	}
}

func (a *App) health() (string, bool) {
	state := a.session.State()
	return string(state), state == session.StateAuthenticated
}

func (a *App) shutdown() {
	a.reconnect.Stop()
	a.session.Close()

	if err := a.gateway.Disconnect(); err != nil {
		slog.Warn("Failed to disconnect", "error", err)
	}
	if err := a.control.Stop(); err != nil {
		slog.Warn("Failed to stop control server", "error", err)
	}
	if closer, ok := a.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("Failed to close credential store", "error", err)
		}
	}

	slog.Info("imorning-chat stopped")
}
