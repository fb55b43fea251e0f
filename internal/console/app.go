// Package console is the terminal front end. App is the application root:
// it owns the session and wires the controller, guard, router, and form
// pipelines. Model renders App's state with Bubble Tea.
package console

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"staffconsole/internal/attachment"
	"staffconsole/internal/config"
	"staffconsole/internal/form"
	"staffconsole/internal/identityapi"
	"staffconsole/internal/metrics"
	"staffconsole/internal/nav"
	"staffconsole/internal/notify"
	"staffconsole/internal/screen"
	"staffconsole/internal/session"
	"staffconsole/internal/submit"
)

// API is the identity service as the console uses it.
type API interface {
	session.Identity
	submit.Creator
}

type Deps struct {
	API     API
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Fs is where avatar paths are read from. Defaults to the OS filesystem.
	Fs      afero.Fs
	Initial screen.Screen
	// Addr is shown in the header.
	Addr string
	Now  func() time.Time
}

type App struct {
	Session    *session.Session
	Controller *session.Controller
	Guard      *nav.Guard
	Router     *nav.Router
	Notes      *notify.Center

	api     API
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	fs      afero.Fs
	initial screen.Screen
	addr    string
	now     func() time.Time
}

func NewApp(d Deps) (*App, error) {
	if d.API == nil {
		return nil, errors.New("api is required")
	}
	lg := d.Logger
	if lg == nil {
		lg = slog.Default()
	}
	fs := d.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	initial := d.Initial
	if initial == "" {
		initial = screen.Landing
	}

	sess := session.New()
	ctrl := session.NewController(session.ControllerOptions{
		Session:   sess,
		API:       d.API,
		LoginRole: d.Config.Session.LoginRole,
		Logger:    lg,
		Metrics:   d.Metrics,
	})
	guard := nav.NewGuard(sess)
	notes := notify.NewCenter(d.Config.Forms.NotifyTTL, lg)
	router := nav.NewRouter(nav.RouterOptions{
		Guard:      guard,
		Controller: ctrl,
		Notifier:   notes,
		Initial:    initial,
		Logger:     lg,
	})
	return &App{
		Session:    sess,
		Controller: ctrl,
		Guard:      guard,
		Router:     router,
		Notes:      notes,
		api:        d.API,
		cfg:        d.Config,
		logger:     lg.With("component", "console"),
		metrics:    d.Metrics,
		fs:         fs,
		initial:    initial,
		addr:       d.Addr,
		now:        now,
	}, nil
}

// Initial is the screen requested at start.
func (a *App) Initial() screen.Screen { return a.initial }

// Bootstrap runs the one-time session probe and returns where to go.
func (a *App) Bootstrap(ctx context.Context) nav.Decision {
	a.Controller.Bootstrap(ctx, a.initial)
	return a.Router.Current()
}

// FormSpec returns the field set of kind as configured.
func (a *App) FormSpec(kind form.Kind) form.Spec {
	if kind == form.KindStaff {
		opt := a.cfg.StaffFormOptions()
		opt.Now = a.now
		return form.StaffSpec(opt)
	}
	return form.AdminSpec(a.now)
}

// NewForm mounts a fresh form instance: empty draft, no attachment, idle.
func (a *App) NewForm(kind form.Kind) *submit.Machine {
	spec := a.FormSpec(kind)
	var enc *attachment.Encoder
	if spec.AcceptsAttachment() {
		enc = attachment.NewEncoder(attachment.EncoderOptions{
			Fs:        a.fs,
			ImageOnly: true,
			MaxBytes:  a.cfg.MaxAvatarBytes(),
			Logger:    a.logger,
			Metrics:   a.metrics,
		})
	}
	return submit.New(submit.Options{
		Draft:        form.NewDraft(spec),
		Encoder:      enc,
		Creator:      a.api,
		Notifier:     a.Notes,
		Navigator:    a.Router,
		SuccessDelay: a.cfg.Forms.SuccessDelay,
		Logger:       a.logger,
		Metrics:      a.metrics,
	})
}

// Login signs in and notifies the outcome. The move to the landing screen
// is left to the caller so the notification can be seen first.
func (a *App) Login(ctx context.Context, email, password string) error {
	msg, err := a.Controller.Login(ctx, email, password)
	if err != nil {
		text := identityapi.MessageOf(err)
		if errors.Is(err, session.ErrMissingCredentials) {
			text = err.Error()
		}
		a.Notes.Notify(notify.Error(text))
		return err
	}
	if msg == "" {
		msg = "Logged in"
	}
	a.Notes.Notify(notify.Success(msg))
	return nil
}

// LoginDelay is the pause between a successful login and the redirect.
func (a *App) LoginDelay() time.Duration { return a.cfg.Session.LoginDelay }

// Logout clears the session and moves to the login screen.
func (a *App) Logout(ctx context.Context) error {
	return a.Router.Logout(ctx)
}

// Close releases notification subscribers.
func (a *App) Close() { a.Notes.Close() }

// NewClient builds the identity service client described by cfg.
func NewClient(cfg config.Config, insecure bool, lg *slog.Logger, m *metrics.Metrics) (*identityapi.Client, error) {
	return identityapi.NewClient(identityapi.ClientOptions{
		Addr:      cfg.Server.Addr,
		Insecure:  insecure || cfg.Server.Insecure,
		Timeout:   cfg.Server.Timeout,
		UserAgent: cfg.Server.UserAgent,
		Endpoints: cfg.Endpoints,
		Logger:    lg,
		Metrics:   m,
	})
}
