package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"staffconsole/internal/identityapi"
	"staffconsole/internal/metrics"
	"staffconsole/internal/screen"
)

type fakeIdentity struct {
	probes  atomic.Int32
	logins  atomic.Int32
	logouts atomic.Int32

	profile   identityapi.Profile
	probeErr  error
	loginRes  identityapi.LoginResult
	loginErr  error
	logoutErr error
}

func (f *fakeIdentity) ProbeSession(context.Context) (identityapi.Profile, error) {
	f.probes.Add(1)
	return f.profile, f.probeErr
}

func (f *fakeIdentity) Login(_ context.Context, cred identityapi.Credentials) (identityapi.LoginResult, error) {
	f.logins.Add(1)
	if cred.Role != "Admin" {
		return identityapi.LoginResult{}, errors.New("wrong role")
	}
	return f.loginRes, f.loginErr
}

func (f *fakeIdentity) Logout(context.Context) (string, error) {
	f.logouts.Add(1)
	return "Logged out", f.logoutErr
}

func newController(api Identity, m *metrics.Metrics) *Controller {
	return NewController(ControllerOptions{
		API:     api,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: m,
	})
}

func TestNewSessionIsPending(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	require.Equal(t, ProbePending, snap.Probe)
	require.False(t, snap.Authenticated)
	require.Nil(t, snap.Principal)
	select {
	case <-s.Resolved():
		t.Fatal("resolved before probe")
	default:
	}
}

func TestBootstrapUnauthorizedOverHTTP(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Admin not authenticated"}`)
	}))
	defer srv.Close()
	client, err := identityapi.NewClient(identityapi.ClientOptions{Addr: srv.URL})
	require.NoError(t, err)

	m := metrics.New()
	c := newController(client, m)
	snap := c.Bootstrap(context.Background(), screen.Dashboard)
	require.False(t, snap.Authenticated)
	require.Nil(t, snap.Principal)
	require.Equal(t, ProbeResolved, snap.Probe)
	<-c.Session().Resolved()
	require.EqualValues(t, 1, hits.Load())
	require.Equal(t, 1.0, m.ProbeCount("anonymous"))
}

func TestBootstrapSkippedOnLogin(t *testing.T) {
	api := &fakeIdentity{}
	c := newController(api, nil)
	snap := c.Bootstrap(context.Background(), screen.Login)
	require.Equal(t, ProbeResolved, snap.Probe)
	require.False(t, snap.Authenticated)
	require.Zero(t, api.probes.Load())
	select {
	case <-c.Session().Resolved():
	default:
		t.Fatal("session not resolved synchronously")
	}
}

func TestBootstrapRunsOnce(t *testing.T) {
	api := &fakeIdentity{profile: identityapi.Profile{Email: "a@b.co", Role: "Admin"}}
	c := newController(api, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := c.Bootstrap(context.Background(), screen.AddStaff)
			require.True(t, snap.Authenticated)
		}()
	}
	wg.Wait()
	c.Bootstrap(context.Background(), screen.Dashboard)
	require.EqualValues(t, 1, api.probes.Load())
	require.Equal(t, "a@b.co", c.Session().Snapshot().Principal.Email)
}

func TestBootstrapTransportErrorIsAnonymous(t *testing.T) {
	api := &fakeIdentity{probeErr: &identityapi.TransportError{Op: "probe", Err: errors.New("dial tcp: refused")}}
	c := newController(api, nil)
	snap := c.Bootstrap(context.Background(), screen.Dashboard)
	require.False(t, snap.Authenticated)
	require.Equal(t, ProbeResolved, snap.Probe)
}

func TestLogin(t *testing.T) {
	api := &fakeIdentity{loginRes: identityapi.LoginResult{Message: "User logged in successfully"}}
	c := newController(api, nil)
	c.Bootstrap(context.Background(), screen.Login)

	_, err := c.Login(context.Background(), "not-an-email", "secret123")
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Zero(t, api.logins.Load())

	msg, err := c.Login(context.Background(), " ada@example.com ", "secret123")
	require.NoError(t, err)
	require.Equal(t, "User logged in successfully", msg)
	snap := c.Session().Snapshot()
	require.True(t, snap.Authenticated)
	require.Equal(t, "ada@example.com", snap.Principal.Email)
	require.Equal(t, "Admin", snap.Principal.Role)
}

func TestLoginFailureLeavesSession(t *testing.T) {
	api := &fakeIdentity{loginErr: &identityapi.ServerRejection{Op: "login", Status: 400, Message: "Invalid Email Or Password!"}}
	c := newController(api, nil)
	c.Bootstrap(context.Background(), screen.Login)
	_, err := c.Login(context.Background(), "ada@example.com", "wrongpass")
	require.Equal(t, "Invalid Email Or Password!", identityapi.MessageOf(err))
	require.False(t, c.Session().Snapshot().Authenticated)
}

func TestLogoutAlwaysClears(t *testing.T) {
	for _, failing := range []bool{false, true} {
		api := &fakeIdentity{profile: identityapi.Profile{Email: "a@b.co", Role: "Admin"}}
		if failing {
			api.logoutErr = &identityapi.ServerRejection{Op: "logout", Status: 500, Message: "boom"}
		}
		c := newController(api, nil)
		require.True(t, c.Bootstrap(context.Background(), screen.Dashboard).Authenticated)
		v := c.Session().Version()

		_, err := c.Logout(context.Background())
		require.Equal(t, failing, err != nil)
		snap := c.Session().Snapshot()
		require.False(t, snap.Authenticated)
		require.Nil(t, snap.Principal)
		require.Greater(t, c.Session().Version(), v)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	api := &fakeIdentity{profile: identityapi.Profile{Email: "a@b.co", Role: "Admin"}}
	c := newController(api, nil)
	snap := c.Bootstrap(context.Background(), screen.Dashboard)
	snap.Principal.Email = "changed@b.co"
	require.Equal(t, "a@b.co", c.Session().Snapshot().Principal.Email)
}
