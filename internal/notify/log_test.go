package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imorning/chat/internal/inbox"
	"github.com/imorning/chat/internal/quickreply"
	"github.com/imorning/chat/internal/session"
)

var (
	_ session.Notifier     = (*Log)(nil)
	_ inbox.Poster         = (*Log)(nil)
	_ quickreply.Canceller = (*Log)(nil)
)

func TestLog_PostAndCancel(t *testing.T) {
	n := NewLog()
	assert.Empty(t, n.Active())

	n.Post("conversation:bob", "New message from bob", "hi")
	n.Post("conversation:alice", "New message from alice", "hello")
	n.Post("conversation:bob", "New message from bob", "again")
	assert.Equal(t, []string{"conversation:alice", "conversation:bob"}, n.Active())

	n.Cancel("conversation:bob")
	assert.Equal(t, []string{"conversation:alice"}, n.Active())

	// Unknown channel
	n.Cancel("conversation:nobody")
	assert.Equal(t, []string{"conversation:alice"}, n.Active())
}

func TestLog_Notice(t *testing.T) {
	n := NewLog()
	n.Notice("Signed out", "Your account signed in elsewhere.")
	assert.Empty(t, n.Active())
}
