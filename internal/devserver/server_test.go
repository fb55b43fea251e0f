package devserver

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"staffconsole/internal/auth"
	"staffconsole/internal/db"
	"staffconsole/internal/form"
	"staffconsole/internal/identityapi"
)

func newTestService(t *testing.T, staff form.Options) (*Server, *identityapi.Client, string) {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, t.TempDir()+"/dev.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fast := auth.FastParams()
	srv, err := New(Options{
		DB:            store,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Staff:         staff,
		Hash:          &fast,
		LoginAttempts: 5,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Seed(ctx, "root@example.com", "rootpass123"))

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	client, err := identityapi.NewClient(identityapi.ClientOptions{Addr: hs.URL})
	require.NoError(t, err)
	return srv, client, hs.URL
}

func staffFields() []form.Value {
	return []form.Value{
		{Name: form.FirstName, Value: "Ada"},
		{Name: form.LastName, Value: "Lovelace"},
		{Name: form.Email, Value: "ada@example.com"},
		{Name: form.Phone, Value: "0123456789"},
		{Name: form.DOB, Value: "1990-01-02"},
		{Name: form.Gender, Value: "Female"},
		{Name: form.Password, Value: "secret123"},
		{Name: "doctorDepartment", Value: "Cardiology"},
		{Name: "role", Value: "Doctor"},
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))
	return buf.Bytes()
}

func login(t *testing.T, c *identityapi.Client) {
	t.Helper()
	_, err := c.Login(context.Background(), identityapi.Credentials{Email: "root@example.com", Password: "rootpass123", Role: "Admin"})
	require.NoError(t, err)
}

func TestSessionFlow(t *testing.T) {
	_, c, _ := newTestService(t, form.Options{})
	ctx := context.Background()

	_, err := c.ProbeSession(ctx)
	require.True(t, identityapi.IsUnauthorized(err))

	_, err = c.Login(ctx, identityapi.Credentials{Email: "root@example.com", Password: "wrongpass1", Role: "Admin"})
	require.Equal(t, "Invalid Email Or Password!", identityapi.MessageOf(err))
	_, err = c.Login(ctx, identityapi.Credentials{Email: "root@example.com", Password: "rootpass123", Role: "Doctor"})
	require.Equal(t, "User with this role not found!", identityapi.MessageOf(err))

	res, err := c.Login(ctx, identityapi.Credentials{Email: "root@example.com", Password: "rootpass123", Role: "Admin"})
	require.NoError(t, err)
	require.Equal(t, "User logged in successfully", res.Message)
	require.Equal(t, "Admin", res.User.Role)

	p, err := c.ProbeSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "root@example.com", p.Email)

	msg, err := c.Logout(ctx)
	require.NoError(t, err)
	require.Equal(t, "Admin Logged Out Successfully.", msg)
	_, err = c.ProbeSession(ctx)
	require.True(t, identityapi.IsUnauthorized(err))
}

func TestCreateRequiresSession(t *testing.T) {
	_, c, _ := newTestService(t, form.Options{})
	_, err := c.CreateRecord(context.Background(), identityapi.CreateRequest{Kind: form.KindStaff, Fields: staffFields()})
	require.True(t, identityapi.IsUnauthorized(err))
}

func TestCreateStaffMultipartAndDuplicate(t *testing.T) {
	_, c, base := newTestService(t, form.Options{})
	login(t, c)
	ctx := context.Background()
	img := pngBytes(t)

	msg, err := c.CreateRecord(ctx, identityapi.CreateRequest{
		Kind:       form.KindStaff,
		Fields:     staffFields(),
		Attachment: &identityapi.FilePart{Field: "docAvatar", Filename: "ada.png", MimeType: "image/png", Data: img},
	})
	require.NoError(t, err)
	require.Equal(t, "New Doctor Registered", msg)

	_, err = c.CreateRecord(ctx, identityapi.CreateRequest{Kind: form.KindStaff, Fields: staffFields()})
	var sr *identityapi.ServerRejection
	require.ErrorAs(t, err, &sr)
	require.Equal(t, http.StatusConflict, sr.Status)
	require.Equal(t, "duplicate email", sr.Message)

	// The seeded admin is account 1, so the new doctor is 2.
	resp, err := http.Get(base + "/api/v1/user/avatar/2")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	jar, _ := cookiejar.New(nil)
	hc := &http.Client{Jar: jar}
	resp, err = hc.Post(base+"/api/v1/user/login", "application/json",
		strings.NewReader(`{"email":"root@example.com","password":"rootpass123","role":"Admin"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = hc.Get(base + "/api/v1/user/avatar/2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, img, got)
}

func TestCreateStaffServerValidation(t *testing.T) {
	_, c, _ := newTestService(t, form.Options{Departments: []string{"Cardiology"}, RequireAvatar: true})
	login(t, c)
	ctx := context.Background()

	fields := staffFields()
	fields[0].Value = "Al"
	_, err := c.CreateRecord(ctx, identityapi.CreateRequest{Kind: form.KindStaff, Fields: fields})
	require.Equal(t, "First Name must contain only letters and at least 3 characters", identityapi.MessageOf(err))

	_, err = c.CreateRecord(ctx, identityapi.CreateRequest{Kind: form.KindStaff, Fields: staffFields()})
	require.Equal(t, "Doctor avatar required!", identityapi.MessageOf(err))

	_, err = c.CreateRecord(ctx, identityapi.CreateRequest{
		Kind:       form.KindStaff,
		Fields:     staffFields(),
		Attachment: &identityapi.FilePart{Field: "docAvatar", Filename: "notes.txt", MimeType: "text/plain", Data: []byte("hello")},
	})
	require.Equal(t, "selected file must be a png, jpeg, gif, or webp image", identityapi.MessageOf(err))
}

func TestCreateAdminJSON(t *testing.T) {
	_, c, base := newTestService(t, form.Options{})
	login(t, c)
	fields := []form.Value{}
	for _, f := range staffFields() {
		if f.Name == "doctorDepartment" || f.Name == "role" {
			continue
		}
		fields = append(fields, f)
	}
	fields = append(fields, form.Value{Name: "role", Value: "Admin"})
	msg, err := c.CreateRecord(context.Background(), identityapi.CreateRequest{Kind: form.KindAdmin, Fields: fields})
	require.NoError(t, err)
	require.Equal(t, "New Admin Registered", msg)

	// The new admin can sign in.
	c2, err := identityapi.NewClient(identityapi.ClientOptions{Addr: base})
	require.NoError(t, err)
	res, err := c2.Login(context.Background(), identityapi.Credentials{Email: "ada@example.com", Password: "secret123", Role: "Admin"})
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", res.User.DisplayName())
}

func TestLoginThrottleIsPerAccount(t *testing.T) {
	_, c, _ := newTestService(t, form.Options{})
	ctx := context.Background()
	var last error
	for i := 0; i < 6; i++ {
		_, last = c.Login(ctx, identityapi.Credentials{Email: "root@example.com", Password: "wrong-guess", Role: "Admin"})
	}
	var sr *identityapi.ServerRejection
	require.ErrorAs(t, last, &sr)
	require.Equal(t, http.StatusTooManyRequests, sr.Status)

	// The blocked account stays blocked even with the right password.
	_, err := c.Login(ctx, identityapi.Credentials{Email: "ROOT@example.com", Password: "rootpass123", Role: "Admin"})
	require.ErrorAs(t, err, &sr)
	require.Equal(t, http.StatusTooManyRequests, sr.Status)

	// Another account from the same client is unaffected.
	_, err = c.Login(ctx, identityapi.Credentials{Email: "nobody@example.com", Password: "whatever1", Role: "Admin"})
	require.ErrorAs(t, err, &sr)
	require.Equal(t, http.StatusBadRequest, sr.Status)
}

func TestLoginThrottleWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th := newLoginThrottle(2, time.Minute)
	th.now = func() time.Time { return now }
	key := throttleKey("10.0.0.1", " Root@Example.com ")
	require.Equal(t, "10.0.0.1|root@example.com", key)

	th.Fail(key)
	blocked, _ := th.Blocked(key)
	require.False(t, blocked)
	th.Fail(key)
	blocked, wait := th.Blocked(key)
	require.True(t, blocked)
	require.Equal(t, time.Minute, wait)
	require.Equal(t, "61", retryAfterSeconds(wait))

	now = now.Add(time.Minute)
	blocked, _ = th.Blocked(key)
	require.False(t, blocked)
}

func TestLoginThrottleSuccessForgets(t *testing.T) {
	th := newLoginThrottle(2, time.Minute)
	key := throttleKey("10.0.0.1", "root@example.com")
	th.Fail(key)
	th.Succeed(key)
	th.Fail(key)
	blocked, _ := th.Blocked(key)
	require.False(t, blocked)
}
