// Package notify carries transient user-facing notifications (toasts).
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level distinguishes success from error feedback.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// FallbackMessage is shown when a failure carries no server message.
const FallbackMessage = "Something went wrong"

// Notification is one toast.
type Notification struct {
	ID      uuid.UUID
	Level   Level
	Message string
	At      time.Time
}

// Notifier receives notifications.
type Notifier interface {
	Notify(Notification)
}

// Success builds a success notification.
func Success(msg string) Notification {
	return Notification{ID: uuid.New(), Level: LevelSuccess, Message: msg, At: time.Now()}
}

// Error builds an error notification. An empty message becomes FallbackMessage.
func Error(msg string) Notification {
	if msg == "" {
		msg = FallbackMessage
	}
	return Notification{ID: uuid.New(), Level: LevelError, Message: msg, At: time.Now()}
}

// Center keeps the visible notifications and fans them out to subscribers.
// Entries older than TTL are dropped by Active.
type Center struct {
	TTL    time.Duration
	Logger *slog.Logger

	mu     sync.Mutex
	items  []Notification
	subs   []chan Notification
	closed bool
}

// NewCenter returns a Center with the given auto-dismiss delay.
func NewCenter(ttl time.Duration, logger *slog.Logger) *Center {
	if logger == nil {
		logger = slog.Default()
	}
	return &Center{TTL: ttl, Logger: logger.With("component", "notify")}
}

// Notify records n and forwards it to every subscriber without blocking.
func (c *Center) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.items = append(c.items, n)
	for _, ch := range c.subs {
		select {
		case ch <- n:
		default:
			c.Logger.Warn("notification dropped for slow subscriber", "id", n.ID.String())
		}
	}
	lvl := slog.LevelInfo
	if n.Level == LevelError {
		lvl = slog.LevelWarn
	}
	c.Logger.Log(context.Background(), lvl, "notification", "level", n.Level.String(), "message", n.Message)
}

// Subscribe returns a channel that receives future notifications.
func (c *Center) Subscribe() <-chan Notification {
	ch := make(chan Notification, 16)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// Active returns the notifications younger than TTL, oldest first.
func (c *Center) Active(now time.Time) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := c.items[:0]
	for _, n := range c.items {
		if c.TTL <= 0 || now.Sub(n.At) < c.TTL {
			keep = append(keep, n)
		}
	}
	c.items = keep
	out := make([]Notification, len(keep))
	copy(out, keep)
	return out
}

// Last returns the most recent notification still held.
func (c *Center) Last() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return Notification{}, false
	}
	return c.items[len(c.items)-1], true
}

// Close stops delivery and closes subscriber channels.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}

// Recorder is a Notifier that only remembers what it received.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// All returns a copy of everything received.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}
