// Package nav decides which screen may render for the current session and
// keeps track of where the console is.
package nav

import (
	"context"
	"fmt"

	"staffconsole/internal/screen"
	"staffconsole/internal/session"
)

type Kind int

const (
	// Loading means the probe is still pending; only a neutral indicator
	// may be shown.
	Loading Kind = iota
	Render
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Decision is the guard's answer for one target. Screen is the screen to
// render, or the redirect destination.
type Decision struct {
	Kind   Kind
	Screen screen.Screen
}

type Guard struct {
	session *session.Session
}

func NewGuard(s *session.Session) *Guard {
	return &Guard{session: s}
}

// Decide evaluates target against the current session without blocking.
func (g *Guard) Decide(target screen.Screen) Decision {
	snap := g.session.Snapshot()
	if snap.Probe == session.ProbePending {
		return Decision{Kind: Loading, Screen: target}
	}
	if target.Privileged() && !snap.Authenticated {
		return Decision{Kind: Redirect, Screen: screen.Login}
	}
	if target == screen.Login && snap.Authenticated {
		return Decision{Kind: Redirect, Screen: screen.Landing}
	}
	return Decision{Kind: Render, Screen: target}
}

// Resolve follows at most one redirect. The result is Loading or Render.
func (g *Guard) Resolve(target screen.Screen) Decision {
	d := g.Decide(target)
	if d.Kind == Redirect {
		d = g.Decide(d.Screen)
	}
	return d
}

// Await blocks until the probe has resolved, then decides.
func (g *Guard) Await(ctx context.Context, target screen.Screen) (Decision, error) {
	select {
	case <-g.session.Resolved():
		return g.Decide(target), nil
	case <-ctx.Done():
		return Decision{Kind: Loading, Screen: target}, ctx.Err()
	}
}
