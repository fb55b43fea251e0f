// Package devserver is a small identity and records service for local
// development and end-to-end tests. It speaks the same contract the console
// expects: cookie sessions, a "message" field on every answer, JSON admin
// creation and multipart staff creation.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"staffconsole/internal/auth"
	"staffconsole/internal/db"
	"staffconsole/internal/form"
	"staffconsole/internal/identityapi"
	"staffconsole/internal/metrics"
)

const cookieName = "adminToken"

type Options struct {
	DB        *db.DB
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Endpoints identityapi.Endpoints
	// Staff configures the staff form rules enforced server-side.
	Staff form.Options
	// MaxUploadBytes bounds multipart bodies.
	MaxUploadBytes int64
	SessionTTL     time.Duration
	// LoginAttempts is the number of failed logins per client and email
	// allowed within a minute.
	LoginAttempts int
	// Hash overrides the password hashing parameters.
	Hash *auth.Params
}

type Server struct {
	db        *db.DB
	logger    *slog.Logger
	metrics   *metrics.Metrics
	endpoints identityapi.Endpoints
	admin     form.Spec
	staff     form.Spec
	maxUpload int64
	ttl       time.Duration
	hash      auth.Params
	throttle  *loginThrottle
}

func New(opt Options) (*Server, error) {
	if opt.DB == nil {
		return nil, errors.New("db is required")
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	ep := opt.Endpoints
	def := identityapi.DefaultEndpoints()
	if ep == (identityapi.Endpoints{}) {
		ep = def
	}
	maxUpload := opt.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 8 << 20
	}
	ttl := opt.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	attempts := opt.LoginAttempts
	if attempts <= 0 {
		attempts = 20
	}
	hp := auth.DefaultParams()
	if opt.Hash != nil {
		hp = *opt.Hash
	}
	return &Server{
		db:        opt.DB,
		logger:    lg.With("component", "devserver"),
		metrics:   opt.Metrics,
		endpoints: ep,
		admin:     form.AdminSpec(opt.Staff.Now),
		staff:     form.StaffSpec(opt.Staff),
		maxUpload: maxUpload,
		ttl:       ttl,
		hash:      hp,
		throttle:  newLoginThrottle(attempts, time.Minute),
	}, nil
}

// Handler returns the routed service.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withRecover, s.withRequestLog, withSecurityHeaders)

	r.Post(s.endpoints.Login, s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.withAdmin)
		r.Get(s.endpoints.Probe, s.handleMe)
		r.Get(s.endpoints.Logout, s.handleLogout)
		r.Post(s.endpoints.CreateAdmin, s.handleCreateAdmin)
		r.Post(s.endpoints.CreateStaff, s.handleCreateStaff)
		r.Get("/api/v1/user/avatar/{id}", s.handleAvatar)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Seed creates the first admin account unless one with email exists.
func (s *Server) Seed(ctx context.Context, email, password string) error {
	if email == "" {
		return nil
	}
	if _, ok, err := s.db.GetAccountByEmail(ctx, email); err != nil || ok {
		return err
	}
	h, err := auth.Hash(password, s.hash)
	if err != nil {
		return err
	}
	_, err = s.db.CreateAccount(ctx, db.Account{
		Email:     email,
		FirstName: "Seed",
		LastName:  "Admin",
		Phone:     "0000000000",
		DOB:       "1970-01-01",
		Gender:    "Male",
		Role:      "Admin",
		PassHash:  h,
	}, nil)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.logger.Info("seeded admin account", "email", email)
	return nil
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev identity service listening", "addr", ln.Addr().String())
		errCh <- hs.Serve(ln)
	}()
	go s.sweepSessions(ctx)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("dev identity service stopped")
	return nil
}

func (s *Server) sweepSessions(ctx context.Context) {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n, err := s.db.DeleteExpiredSessions(ctx, now.Unix()); err != nil {
				s.logger.Warn("session sweep failed", "err", err)
			} else if n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
