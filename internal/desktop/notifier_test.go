package desktop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imorning/chat/internal/inbox"
	"github.com/imorning/chat/internal/quickreply"
	"github.com/imorning/chat/internal/session"
)

var (
	_ session.Notifier     = (*Notifier)(nil)
	_ inbox.Poster         = (*Notifier)(nil)
	_ quickreply.Canceller = (*Notifier)(nil)
)

func TestNewNotifier(t *testing.T) {
	// NewNotifier with nil app should work (used in tests)
	notifier := NewNotifier(nil)
	assert.NotNil(t, notifier)
	assert.True(t, notifier.IsEnabled(), "notifier should be enabled by default")
}

func TestNotifier_SetEnabled(t *testing.T) {
	notifier := NewNotifier(nil)

	notifier.SetEnabled(false)
	assert.False(t, notifier.IsEnabled())

	notifier.SetEnabled(true)
	assert.True(t, notifier.IsEnabled())
}

func TestNotifier_NilApp(t *testing.T) {
	notifier := NewNotifier(nil)

	// Should not panic with nil app
	notifier.Notice("Signed out", "Your account signed in elsewhere.")
	notifier.Post("conversation:bob", "New message from bob", "hi")
	notifier.Cancel("conversation:bob")
}

func TestNotifier_Disabled(t *testing.T) {
	notifier := NewNotifier(nil)
	notifier.SetEnabled(false)

	notifier.Notice("Signed out", "body")
	notifier.Post("conversation:bob", "title", "body")
}
