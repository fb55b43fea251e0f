package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"staffconsole/internal/identityapi"
	"staffconsole/internal/metrics"
	"staffconsole/internal/screen"
	"staffconsole/internal/validate"
)

// DefaultLoginRole is sent with every login.
const DefaultLoginRole = "Admin"

var ErrMissingCredentials = errors.New("please provide a valid email and password")

// Identity is the part of the identity service the controller needs.
// *identityapi.Client satisfies it.
type Identity interface {
	ProbeSession(ctx context.Context) (identityapi.Profile, error)
	Login(ctx context.Context, cred identityapi.Credentials) (identityapi.LoginResult, error)
	Logout(ctx context.Context) (string, error)
}

type ControllerOptions struct {
	Session   *Session
	API       Identity
	LoginRole string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

type Controller struct {
	session *Session
	api     Identity
	role    string
	logger  *slog.Logger
	metrics *metrics.Metrics

	probeOnce sync.Once
}

func NewController(opt ControllerOptions) *Controller {
	s := opt.Session
	if s == nil {
		s = New()
	}
	role := opt.LoginRole
	if role == "" {
		role = DefaultLoginRole
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Controller{
		session: s,
		api:     opt.API,
		role:    role,
		logger:  lg.With("component", "session"),
		metrics: opt.Metrics,
	}
}

func (c *Controller) Session() *Session { return c.session }

// Bootstrap resolves the session once per process. On the login screen no
// probe is sent and the session resolves unauthenticated immediately. Any
// probe failure counts as not logged in and is only logged.
func (c *Controller) Bootstrap(ctx context.Context, initial screen.Screen) Snapshot {
	c.probeOnce.Do(func() {
		if initial == screen.Login {
			c.session.set(nil)
			c.metrics.Probe("skipped")
			c.logger.Debug("probe skipped on login screen")
			return
		}
		p, err := c.api.ProbeSession(ctx)
		if err != nil {
			c.session.set(nil)
			c.metrics.Probe("anonymous")
			c.logger.Info("no active session", "err", err)
			return
		}
		c.session.set(&p)
		c.metrics.Probe("authenticated")
		c.logger.Info("session restored", "email", p.Email, "role", p.Role)
	})
	return c.session.Snapshot()
}

// Login authenticates with the configured role and returns the service's
// message. The session is unchanged on failure.
func (c *Controller) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if !validate.Email(email, nil) || password == "" {
		return "", ErrMissingCredentials
	}
	res, err := c.api.Login(ctx, identityapi.Credentials{Email: email, Password: password, Role: c.role})
	if err != nil {
		c.logger.Info("login failed", "email", email, "err", err)
		return "", err
	}
	p := res.User
	if p == nil || p.Email == "" {
		p = &Profile{Email: email, Role: c.role}
	}
	c.probeOnce.Do(func() {})
	c.session.set(p)
	c.logger.Info("logged in", "email", p.Email)
	return res.Message, nil
}

// Logout asks the service to invalidate the session and clears local state
// whatever the outcome. A failed invalidation is returned for display.
func (c *Controller) Logout(ctx context.Context) (string, error) {
	msg, err := c.api.Logout(ctx)
	c.session.set(nil)
	if err != nil {
		c.logger.Warn("logout invalidation failed", "err", err)
		return "", err
	}
	c.logger.Info("logged out")
	return msg, nil
}
