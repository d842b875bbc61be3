// Package notify provides a notifier for sessions without a desktop.
package notify

import (
	"log/slog"
	"sort"
	"sync"
)

// Log writes notices and notifications to the structured log and tracks which
// notification channels are showing. It is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	active map[string]string
}

// NewLog creates a log notifier.
func NewLog() *Log {
	return &Log{active: make(map[string]string)}
}

// Notice logs a user-visible notice.
func (l *Log) Notice(title, body string) {
	slog.Warn(title, "detail", body)
}

// Post shows a notification on channelID, replacing the previous one.
func (l *Log) Post(channelID, title, body string) {
	l.mu.Lock()
	l.active[channelID] = title
	l.mu.Unlock()

	slog.Info(title, "channel", channelID, "body", body)
}

// Cancel clears the notification on channelID. Unknown channels are ignored.
func (l *Log) Cancel(channelID string) {
	l.mu.Lock()
	_, ok := l.active[channelID]
	delete(l.active, channelID)
	l.mu.Unlock()

	if ok {
		slog.Debug("Notification cleared", "channel", channelID)
	}
}

// Active returns the channels with a notification showing, sorted.
func (l *Log) Active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	channels := make([]string, 0, len(l.active))
	for id := range l.active {
		channels = append(channels, id)
	}
	sort.Strings(channels)
	return channels
}
