package nav

import (
	"context"
	"log/slog"
	"sync"

	"staffconsole/internal/identityapi"
	"staffconsole/internal/notify"
	"staffconsole/internal/screen"
	"staffconsole/internal/session"
)

// Change is published on every navigation.
type Change struct {
	Requested screen.Screen
	Decision  Decision
}

type RouterOptions struct {
	Guard      *Guard
	Controller *session.Controller
	Notifier   notify.Notifier
	Initial    screen.Screen
	Logger     *slog.Logger
}

// Router holds the requested screen and applies the guard on each move.
type Router struct {
	guard      *Guard
	controller *session.Controller
	notifier   notify.Notifier
	logger     *slog.Logger

	mu        sync.Mutex
	requested screen.Screen
	changes   chan Change
}

func NewRouter(opt RouterOptions) *Router {
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	n := opt.Notifier
	if n == nil {
		n = &notify.Recorder{}
	}
	initial := opt.Initial
	if initial == "" {
		initial = screen.Landing
	}
	return &Router{
		guard:      opt.Guard,
		controller: opt.Controller,
		notifier:   n,
		logger:     lg.With("component", "nav"),
		requested:  initial,
		changes:    make(chan Change, 16),
	}
}

// Changes delivers navigation results. Old entries are dropped when the
// reader falls behind.
func (r *Router) Changes() <-chan Change { return r.changes }

// Current re-evaluates the requested screen against the session as it is now.
func (r *Router) Current() Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settleLocked()
}

func (r *Router) settleLocked() Decision {
	d := r.guard.Resolve(r.requested)
	if d.Kind == Render {
		r.requested = d.Screen
	}
	return d
}

// Navigate requests a screen. While the probe is pending the request is kept
// and the decision is Loading.
func (r *Router) Navigate(to screen.Screen) {
	r.mu.Lock()
	r.requested = to
	d := r.settleLocked()
	c := Change{Requested: to, Decision: d}
	r.mu.Unlock()

	r.logger.Debug("navigate", "to", string(to), "decision", d.Kind.String(), "screen", string(d.Screen))
	r.publish(c)
}

func (r *Router) publish(c Change) {
	for {
		select {
		case r.changes <- c:
			return
		default:
		}
		select {
		case <-r.changes:
		default:
		}
	}
}

// Logout clears the local session whatever the service answers, surfaces a
// failed invalidation as an error notification, and moves to the login screen.
func (r *Router) Logout(ctx context.Context) error {
	msg, err := r.controller.Logout(ctx)
	if err != nil {
		r.notifier.Notify(notify.Error(identityapi.MessageOf(err)))
	} else {
		if msg == "" {
			msg = "Logged out"
		}
		r.notifier.Notify(notify.Success(msg))
	}
	r.Navigate(screen.Login)
	return err
}
