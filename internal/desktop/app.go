package desktop

import (
	"log/slog"

	"github.com/diamondburned/gotk4-adwaita/pkg/adw"
	"github.com/diamondburned/gotk4/pkg/gio/v2"
)

// AppID is the application identifier following reverse DNS notation.
const AppID = "io.github.imorning.chat"

// App owns the libadwaita application that keeps the client running in the
// background and delivers its notifications.
type App struct {
	app      *adw.Application
	notifier *Notifier
}

// NewApp creates the application host.
func NewApp() *App {
	a := &App{app: adw.NewApplication(AppID, gio.ApplicationFlagsNone)}
	a.notifier = NewNotifier(a.app)
	return a
}

// Notifier returns the notifier bound to this application.
func (a *App) Notifier() *Notifier {
	return a.notifier
}

// Run starts the main loop and blocks until the application quits.
// onActivate runs once on the main thread; onShutdown runs before exit.
func (a *App) Run(args []string, onActivate, onShutdown func()) int {
	activated := false
	a.app.ConnectActivate(func() {
		if activated {
			return
		}
		activated = true

		// No window: keep running until Quit
		a.app.Hold()
		if onActivate != nil {
			onActivate()
		}
	})

	a.app.ConnectShutdown(func() {
		slog.Info("Application shutting down")
		if onShutdown != nil {
			onShutdown()
		}
	})

	return a.app.Run(args)
}

// Quit stops the main loop. It is safe to call from any goroutine.
func (a *App) Quit() {
	Dispatch(func() {
		a.app.Release()
		a.app.Quit()
	})
}
