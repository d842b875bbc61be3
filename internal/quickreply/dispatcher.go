// Package quickreply handles inline replies typed directly into an
// incoming-message notification.
package quickreply

import (
	"context"
	"log/slog"
	"strings"

	"github.com/imorning/chat/internal/metrics"
)

// channelPrefix namespaces notification channels per conversation.
const channelPrefix = "conversation:"

// MessageSender sends a chat message to a conversation.
type MessageSender interface {
	SendMessage(ctx context.Context, targetID, body string) error
}

// Canceller withdraws the notification shown for a channel.
type Canceller interface {
	Cancel(channelID string)
}

// ChannelID returns the notification channel used for a conversation.
func ChannelID(targetID string) string {
	return channelPrefix + targetID
}

// TargetFromChannel returns the conversation of a channel ID.
func TargetFromChannel(channelID string) (string, bool) {
	return strings.CutPrefix(channelID, channelPrefix)
}

// Dispatcher sends inline replies and clears their notifications.
type Dispatcher struct {
	sender    MessageSender
	canceller Canceller
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(sender MessageSender, canceller Canceller) *Dispatcher {
	return &Dispatcher{sender: sender, canceller: canceller}
}

// OnInlineReply sends text to targetID once and always clears the
// conversation's notification afterwards. Send failures are logged and
// never retried.
func (d *Dispatcher) OnInlineReply(ctx context.Context, targetID, text string) {
	defer d.canceller.Cancel(ChannelID(targetID))

	if targetID == "" || text == "" {
		slog.Debug("Ignoring empty inline reply", "target", targetID)
		metrics.QuickRepliesTotal.WithLabelValues("empty").Inc()
		return
	}

	if err := d.sender.SendMessage(ctx, targetID, text); err != nil {
		slog.Error("Failed to send inline reply", "target", targetID, "error", err)
		metrics.QuickRepliesTotal.WithLabelValues("error").Inc()
		return
	}

	slog.Info("Inline reply sent", "target", targetID)
	metrics.QuickRepliesTotal.WithLabelValues("sent").Inc()
}
