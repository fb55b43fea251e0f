// Package identityapi is the credentialed HTTP client for the identity and
// records service. The session credential is a cookie kept in the client's
// jar; callers never handle tokens.
package identityapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"staffconsole/internal/form"
	"staffconsole/internal/metrics"
)

// Endpoints are the request paths, relative to the service address.
type Endpoints struct {
	Probe       string `yaml:"probe"`
	Login       string `yaml:"login"`
	Logout      string `yaml:"logout"`
	CreateAdmin string `yaml:"create_admin"`
	CreateStaff string `yaml:"create_staff"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Probe:       "/api/v1/user/admin/me",
		Login:       "/api/v1/user/login",
		Logout:      "/api/v1/user/admin/logout",
		CreateAdmin: "/api/v1/user/admin/addnew",
		CreateStaff: "/api/v1/user/doctor/addnew",
	}
}

// Create returns the create endpoint for a form kind.
func (e Endpoints) Create(kind form.Kind) (string, error) {
	switch kind {
	case form.KindAdmin:
		return e.CreateAdmin, nil
	case form.KindStaff:
		return e.CreateStaff, nil
	default:
		return "", fmt.Errorf("no create endpoint for kind %q", kind)
	}
}

func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.Probe == "" {
		e.Probe = d.Probe
	}
	if e.Login == "" {
		e.Login = d.Login
	}
	if e.Logout == "" {
		e.Logout = d.Logout
	}
	if e.CreateAdmin == "" {
		e.CreateAdmin = d.CreateAdmin
	}
	if e.CreateStaff == "" {
		e.CreateStaff = d.CreateStaff
	}
	return e
}

// Profile is the principal returned by the probe and login calls.
type Profile struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
}

// DisplayName prefers the full name and falls back to the email.
func (p Profile) DisplayName() string {
	n := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if n == "" {
		return p.Email
	}
	return n
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginResult struct {
	Message string
	// User is nil when the service did not return one.
	User *Profile
}

// FilePart is the binary part of a multipart create request.
type FilePart struct {
	Field    string
	Filename string
	MimeType string
	Data     []byte
}

// CreateRequest is one create call. A non-nil Attachment switches the body
// from JSON to multipart/form-data; the field set is the same either way.
type CreateRequest struct {
	Kind       form.Kind
	Fields     []form.Value
	Attachment *FilePart
}

type Client struct {
	baseURL   *url.URL
	hc        *http.Client
	endpoints Endpoints
	userAgent string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type ClientOptions struct {
	Addr      string
	Insecure  bool
	Timeout   time.Duration
	UserAgent string
	Endpoints Endpoints
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

func NewClient(opt ClientOptions) (*Client, error) {
	if opt.Addr == "" {
		return nil, errors.New("addr is required")
	}
	u, err := url.Parse(opt.Addr)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return nil, errors.New("invalid addr")
	}

	jar, _ := cookiejar.New(nil)
	rt := opt.Transport
	if rt == nil {
		t := &http.Transport{Proxy: http.ProxyFromEnvironment}
		if strings.EqualFold(u.Scheme, "https") {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: opt.Insecure} //nolint:gosec
		}
		rt = t
	}

	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	ua := opt.UserAgent
	if ua == "" {
		ua = "staffconsole"
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}

	return &Client{
		baseURL:   u,
		hc:        &http.Client{Transport: rt, Jar: jar, Timeout: timeout},
		endpoints: opt.Endpoints.withDefaults(),
		userAgent: ua,
		logger:    lg.With("component", "identityapi"),
		metrics:   opt.Metrics,
	}, nil
}

// Endpoints returns the resolved request paths.
func (c *Client) Endpoints() Endpoints { return c.endpoints }

// ProbeSession asks the service who the current session belongs to.
func (c *Client) ProbeSession(ctx context.Context) (Profile, error) {
	var resp struct {
		User *Profile `json:"user"`
	}
	if _, err := c.do(ctx, "probe", http.MethodGet, c.endpoints.Probe, nil, "", &resp); err != nil {
		return Profile{}, err
	}
	if resp.User == nil || resp.User.Email == "" {
		return Profile{}, &TransportError{Op: "probe", Err: errors.New("response carries no user")}
	}
	return *resp.User, nil
}

func (c *Client) Login(ctx context.Context, cred Credentials) (LoginResult, error) {
	b, err := json.Marshal(cred)
	if err != nil {
		return LoginResult{}, err
	}
	var resp struct {
		Message string   `json:"message"`
		User    *Profile `json:"user"`
	}
	if _, err := c.do(ctx, "login", http.MethodPost, c.endpoints.Login, bytes.NewReader(b), "application/json", &resp); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Message: resp.Message, User: resp.User}, nil
}

// Logout asks the service to invalidate the session cookie.
func (c *Client) Logout(ctx context.Context) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if _, err := c.do(ctx, "logout", http.MethodGet, c.endpoints.Logout, nil, "", &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// CreateRecord submits a new record and returns the service's message.
func (c *Client) CreateRecord(ctx context.Context, req CreateRequest) (string, error) {
	path, err := c.endpoints.Create(req.Kind)
	if err != nil {
		return "", err
	}
	body, contentType, err := EncodeBody(req)
	if err != nil {
		return "", err
	}
	var resp struct {
		Message string `json:"message"`
	}
	if _, err := c.do(ctx, "create_"+string(req.Kind), http.MethodPost, path, body, contentType, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// EncodeBody serializes a create request. Fields keep their order in both
// encodings.
func EncodeBody(req CreateRequest) (io.Reader, string, error) {
	if req.Attachment == nil {
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, f := range req.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(f.Name)
			v, _ := json.Marshal(f.Value)
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
		return &buf, "application/json", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range req.Fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return nil, "", err
		}
	}
	a := req.Attachment
	if a.Field == "" {
		return nil, "", errors.New("attachment field name is required")
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, a.Field, a.Filename))
	mime := a.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	h.Set("Content-Type", mime)
	pw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := pw.Write(a.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) (int, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, &TransportError{Op: op, Err: err}
	}
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	reqID := uuid.NewString()
	req.Header.Set("accept", "application/json")
	req.Header.Set("user-agent", c.userAgent)
	req.Header.Set("x-request-id", reqID)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(op, 0, time.Since(start))
		c.logger.Debug("request failed", "op", op, "request_id", reqID, "err", err)
		return 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.ObserveRequest(op, resp.StatusCode, time.Since(start))
	c.logger.Debug("request done", "op", op, "request_id", reqID, "status", resp.StatusCode, "dur_ms", time.Since(start).Milliseconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(raw, &er)
		msg := er.Message
		if msg == "" {
			msg = er.Error
		}
		return resp.StatusCode, &ServerRejection{Op: op, Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.StatusCode, nil
}
