// Package desktop hosts the client in a libadwaita application and renders
// notices and message notifications through GNotification.
package desktop

import (
	"log/slog"
	"sync/atomic"

	"github.com/diamondburned/gotk4-adwaita/pkg/adw"
	"github.com/diamondburned/gotk4/pkg/gio/v2"
	"github.com/diamondburned/gotk4/pkg/glib/v2"
)

const (
	// noticeID is shared by all session notices so they replace each other.
	noticeID = "session-notice"

	noticeIcon  = "dialog-warning-symbolic"
	messageIcon = "mail-unread-symbolic"
)

// Notifier manages desktop notifications.
// All methods are safe for concurrent access.
type Notifier struct {
	app     *adw.Application
	enabled atomic.Bool
}

// NewNotifier creates a new notification manager.
// The app parameter should be a GTK Application that supports sending notifications.
func NewNotifier(app *adw.Application) *Notifier {
	n := &Notifier{
		app: app,
	}
	n.enabled.Store(true)
	return n
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.enabled.Store(enabled)
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	return n.enabled.Load()
}

// Notice shows a session notice such as a forced sign-out.
func (n *Notifier) Notice(title, body string) {
	n.send(noticeID, title, body, noticeIcon)
}

// Post shows a message notification on channelID, replacing the previous one.
func (n *Notifier) Post(channelID, title, body string) {
	n.send(channelID, title, body, messageIcon)
}

// Cancel withdraws the notification on channelID.
// Withdrawal is not gated by SetEnabled so stale notifications still clear.
func (n *Notifier) Cancel(channelID string) {
	if n.app == nil {
		return
	}

	glib.IdleAdd(func() {
		n.app.WithdrawNotification(channelID)
		slog.Debug("Notification withdrawn", "id", channelID)
	})
}

func (n *Notifier) send(id, title, body, icon string) {
	if !n.enabled.Load() || n.app == nil {
		return
	}

	// Dispatch GTK operations to main thread - GTK is not thread-safe
	glib.IdleAdd(func() {
		notification := gio.NewNotification(title)
		notification.SetBody(body)
		notification.SetIcon(gio.NewThemedIcon(icon))

		n.app.SendNotification(id, notification)

		slog.Debug("Notification sent", "id", id, "title", title)
	})
}

// Dispatch runs fn on the GTK main loop.
func Dispatch(fn func()) {
	glib.IdleAdd(fn)
}
