// Package inbox receives chat messages while the session is authenticated and
// raises a notification per conversation.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/imorning/chat/internal/gateway"
	"github.com/imorning/chat/internal/metrics"
	"github.com/imorning/chat/internal/quickreply"
	"github.com/imorning/chat/internal/session"
)

const (
	// DefaultPingInterval is the default interval between keepalive pings.
	DefaultPingInterval = 60 * time.Second

	// queueSize bounds messages waiting to be posted.
	queueSize = 64

	// maxPreview is the longest message body shown in a notification, in runes.
	maxPreview = 200
)

// ErrNoSource is returned by Start when the receiver has no message source.
var ErrNoSource = errors.New("no message source")

// Source delivers incoming messages. Registering nil unsubscribes.
type Source interface {
	OnMessage(callback func(gateway.Message))
}

// Pinger keeps the stream alive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Poster shows a notification that replaces any previous one on the same channel.
type Poster interface {
	Post(channelID, title, body string)
}

// Options configures a Receiver.
type Options struct {
	// Pinger is pinged every PingInterval while running. Nil disables pings.
	Pinger       Pinger
	PingInterval time.Duration
}

// Receiver posts a notification for each incoming message.
// Start is idempotent and Stop tolerates being called when not started.
type Receiver struct {
	source       Source
	poster       Poster
	pinger       Pinger
	pingInterval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	messages chan gateway.Message
}

var _ session.Receiver = (*Receiver)(nil)

// NewReceiver creates a receiver reading from source and posting to poster.
func NewReceiver(source Source, poster Poster, opts Options) *Receiver {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	return &Receiver{
		source:       source,
		poster:       poster,
		pinger:       opts.Pinger,
		pingInterval: opts.PingInterval,
	}
}

// Factory returns a session.ReceiverFactory producing receivers with the same wiring.
func Factory(source Source, poster Poster, opts Options) session.ReceiverFactory {
	return func() session.Receiver {
		return NewReceiver(source, poster, opts)
	}
}

// Start subscribes to the source and begins posting notifications.
func (r *Receiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if r.source == nil {
		return ErrNoSource
	}

	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	r.messages = make(chan gateway.Message, queueSize)
	r.running = true

	messages := r.messages
	r.source.OnMessage(func(m gateway.Message) {
		select {
		case messages <- m:
		default:
			slog.Warn("Inbox queue full, dropping message", "from", m.From)
		}
	})

	go r.loop(r.stopChan, r.done, messages)

	slog.Info("Inbox receiver started")
	return nil
}

// Stop unsubscribes from the source and waits for the loop to exit.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.source.OnMessage(nil)
	close(r.stopChan)
	done := r.done
	r.mu.Unlock()

	<-done
	slog.Info("Inbox receiver stopped")
	return nil
}

// IsRunning returns true between Start and Stop.
func (r *Receiver) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Receiver) loop(stop <-chan struct{}, done chan<- struct{}, messages <-chan gateway.Message) {
	defer close(done)

	var tick <-chan time.Time
	if r.pinger != nil {
		ticker := time.NewTicker(r.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-stop:
			return
		case m := <-messages:
			r.post(m)
		case <-tick:
			if err := r.pinger.Ping(ctx); err != nil {
				slog.Debug("Keepalive ping failed", "error", err)
			}
		}
	}
}

func (r *Receiver) post(m gateway.Message) {
	metrics.MessagesReceivedTotal.Inc()
	if r.poster == nil || m.From == "" {
		return
	}
	r.poster.Post(quickreply.ChannelID(m.From), Title(m.From), Preview(m.Body))
	slog.Debug("New message notification posted", "from", m.From, "id", m.ID)
}

// Title returns the notification title for a message from sender.
func Title(sender string) string {
	return fmt.Sprintf("New message from %s", sender)
}

// Preview shortens body to a notification-sized preview.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= maxPreview {
		return body
	}
	runes := []rune(body)
	return string(runes[:maxPreview-1]) + "…"
}
