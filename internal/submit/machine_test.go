package submit

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"staffconsole/internal/attachment"
	"staffconsole/internal/form"
	"staffconsole/internal/identityapi"
	"staffconsole/internal/metrics"
	"staffconsole/internal/notify"
	"staffconsole/internal/screen"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCreator struct {
	mu    sync.Mutex
	calls []identityapi.CreateRequest
	msg   string
	err   error
	// gate, when set, blocks CreateRecord until closed.
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeCreator) CreateRecord(_ context.Context, req identityapi.CreateRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.msg, f.err
}

func (f *fakeCreator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNav struct {
	mu  sync.Mutex
	got []screen.Screen
}

func (n *fakeNav) Navigate(to screen.Screen) {
	n.mu.Lock()
	n.got = append(n.got, to)
	n.mu.Unlock()
}

// manualClock records scheduled callbacks instead of running them.
type manualClock struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (c *manualClock) After(d time.Duration, f func()) {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.fns = append(c.fns, f)
	c.mu.Unlock()
}

func (c *manualClock) fire() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func fillStaff(t *testing.T, d *form.Draft) {
	t.Helper()
	for k, v := range map[string]string{
		form.FirstName:       "Ada",
		form.LastName:        "Lovelace",
		form.Email:           "ada@example.com",
		form.Phone:           "0123456789",
		form.DOB:             "1990-01-02",
		form.Gender:          "Female",
		form.Password:        "secret123",
		form.ConfirmPassword: "secret123",
		form.Department:      "Cardiology",
	} {
		if !d.Spec().Has(k) {
			continue
		}
		require.NoError(t, d.Set(k, v))
	}
}

type harness struct {
	machine *Machine
	draft   *form.Draft
	encoder *attachment.Encoder
	creator *fakeCreator
	notes   *notify.Recorder
	nav     *fakeNav
	clock   *manualClock
	metrics *metrics.Metrics
	fs      afero.Fs
}

func newHarness(t *testing.T, spec form.Spec, c Creator) *harness {
	t.Helper()
	h := &harness{
		draft:   form.NewDraft(spec),
		notes:   &notify.Recorder{},
		nav:     &fakeNav{},
		clock:   &manualClock{},
		metrics: metrics.New(),
		fs:      afero.NewMemMapFs(),
	}
	if fc, ok := c.(*fakeCreator); ok {
		h.creator = fc
	}
	h.encoder = attachment.NewEncoder(attachment.EncoderOptions{Fs: h.fs, ImageOnly: true, Logger: quietLogger()})
	h.machine = New(Options{
		Draft:        h.draft,
		Encoder:      h.encoder,
		Creator:      c,
		Notifier:     h.notes,
		Navigator:    h.nav,
		SuccessDelay: 1500 * time.Millisecond,
		After:        h.clock.After,
		Logger:       quietLogger(),
		Metrics:      h.metrics,
	})
	return h
}

func (h *harness) stageImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	require.NoError(t, afero.WriteFile(h.fs, "/avatar.png", buf.Bytes(), 0o600))
	out := h.encoder.Select("/avatar.png").Wait()
	require.NoError(t, out.Err)
	return buf.Bytes()
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from Status
		ev   Event
		to   Status
		ok   bool
	}{
		{StatusIdle, EventSubmit, StatusValidating, true},
		{StatusValidating, EventInvalid, StatusFailed, true},
		{StatusValidating, EventValid, StatusInFlight, true},
		{StatusInFlight, EventAccepted, StatusSucceeded, true},
		{StatusInFlight, EventRejected, StatusFailed, true},
		{StatusInFlight, EventSubmit, StatusInFlight, false},
		{StatusSucceeded, EventSubmit, StatusValidating, true},
		{StatusFailed, EventReset, StatusIdle, true},
		{StatusIdle, EventAccepted, StatusIdle, false},
	}
	for _, tc := range cases {
		got, ok := Transition(tc.from, tc.ev)
		require.Equal(t, tc.ok, ok, "%s + %s", tc.from, tc.ev)
		require.Equal(t, tc.to, got, "%s + %s", tc.from, tc.ev)
	}
}

func TestInvalidDraftMakesNoCall(t *testing.T) {
	breakers := map[string]func(d *form.Draft){
		"short first name": func(d *form.Draft) { _ = d.Set(form.FirstName, "Al") },
		"digits in last":   func(d *form.Draft) { _ = d.Set(form.LastName, "L0velace") },
		"bad email":        func(d *form.Draft) { _ = d.Set(form.Email, "ada@example") },
		"short phone":      func(d *form.Draft) { _ = d.Set(form.Phone, "12345") },
		"future dob":       func(d *form.Draft) { _ = d.Set(form.DOB, "2030-01-01") },
		"short password":   func(d *form.Draft) { _ = d.Set(form.Password, "short"); _ = d.Set(form.ConfirmPassword, "short") },
		"mismatch":         func(d *form.Draft) { _ = d.Set(form.ConfirmPassword, "secret124") },
		"no gender":        func(d *form.Draft) { _ = d.Set(form.Gender, "") },
		"no department":    func(d *form.Draft) { _ = d.Set(form.Department, "") },
	}
	for name, breakDraft := range breakers {
		t.Run(name, func(t *testing.T) {
			fc := &fakeCreator{msg: "Created"}
			h := newHarness(t, form.StaffSpec(form.Options{Now: fixedNow}), fc)
			fillStaff(t, h.draft)
			breakDraft(h.draft)
			before := h.draft.Values()

			st := h.machine.Submit(context.Background())
			require.Equal(t, StatusFailed, st.Status)
			require.NotEmpty(t, st.Message)
			require.Zero(t, fc.count())
			require.Equal(t, before, h.draft.Values())
			n, ok := h.notes.Last()
			require.True(t, ok)
			require.Equal(t, notify.LevelError, n.Level)
			require.Equal(t, st.Message, n.Message)
			require.Equal(t, 1.0, h.metrics.SubmissionCount("staff", "invalid"))
		})
	}
}

func TestShortFirstNameMessage(t *testing.T) {
	fc := &fakeCreator{}
	h := newHarness(t, form.StaffSpec(form.Options{Now: fixedNow}), fc)
	fillStaff(t, h.draft)
	require.NoError(t, h.draft.Set(form.FirstName, "Al"))

	st := h.machine.Submit(context.Background())
	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, form.FirstName, st.Field)
	require.Equal(t, "First Name must contain only letters and at least 3 characters", st.Message)
	require.Equal(t, "Al", h.draft.Get(form.FirstName))
	require.Equal(t, "Lovelace", h.draft.Get(form.LastName))
	require.Zero(t, fc.count())
}

func TestRequiredAttachmentMissing(t *testing.T) {
	fc := &fakeCreator{}
	h := newHarness(t, form.StaffSpec(form.Options{Now: fixedNow, RequireAvatar: true}), fc)
	fillStaff(t, h.draft)
	st := h.machine.Submit(context.Background())
	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, MissingAttachmentMessage, st.Message)
	require.Zero(t, fc.count())
}

func TestRejectedReselectionSendsNoAttachment(t *testing.T) {
	fc := &fakeCreator{msg: "New Doctor Registered"}
	h := newHarness(t, form.StaffSpec(form.Options{Now: fixedNow}), fc)
	fillStaff(t, h.draft)
	h.stageImage(t)

	require.NoError(t, afero.WriteFile(h.fs, "/resume.txt", []byte("curriculum vitae"), 0o600))
	out := h.encoder.Select("/resume.txt").Wait()
	require.ErrorIs(t, out.Err, attachment.ErrNotImage)
	require.Nil(t, h.encoder.Current())

	st := h.machine.Submit(context.Background())
	require.Equal(t, StatusSucceeded, st.Status)
	require.Equal(t, 1, fc.count())
	require.Nil(t, fc.calls[0].Attachment)
}

func TestRejectedReselectionFailsRequiredAttachment(t *testing.T) {
	fc := &fakeCreator{}
	h := newHarness(t, form.StaffSpec(form.Options{Now: fixedNow, RequireAvatar: true}), fc)
	fillStaff(t, h.draft)
	h.stageImage(t)

	require.NoError(t, afero.WriteFile(h.fs, "/resume.txt", []byte("curriculum vitae"), 0o600))
	require.Error(t, h.encoder.Select("/resume.txt").Wait().Err)

	st := h.machine.Submit(context.Background())
	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, MissingAttachmentMessage, st.Message)
	require.Zero(t, fc.count())
}

func TestResubmitWhileInFlightIsIgnored(t *testing.T) {
	fc := &fakeCreator{msg: "Created", gate: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newHarness(t, form.StaffSpec(form.Options{Now: fixedNow}), fc)
	fillStaff(t, h.draft)

	done := make(chan State, 1)
	go func() { done <- h.machine.Submit(context.Background()) }()
	<-fc.started
	require.Equal(t, StatusInFlight, h.machine.State().Status)

	second := h.machine.Submit(context.Background())
	require.Equal(t, StatusInFlight, second.Status)
	require.Equal(t, 1, fc.count())

	close(fc.gate)
	first := <-done
	require.Equal(t, StatusSucceeded, first.Status)
	require.Equal(t, 1, fc.count())
	require.Equal(t, 1.0, h.metrics.SubmissionCount("staff", "ignored"))
}

func TestSuccessClearsThenNavigatesAfterDelay(t *testing.T) {
	fc := &fakeCreator{msg: "Created"}
	h := newHarness(t, form.StaffSpec(form.Options{Now: fixedNow}), fc)
	fillStaff(t, h.draft)
	require.NoError(t, h.draft.Set(form.FirstName, "  Ada  "))
	raw := h.stageImage(t)

	st := h.machine.Submit(context.Background())
	require.Equal(t, StatusSucceeded, st.Status)
	require.Equal(t, "Created", st.Message)

	require.Equal(t, 1, fc.count())
	req := fc.calls[0]
	require.Equal(t, form.KindStaff, req.Kind)
	require.NotNil(t, req.Attachment)
	require.Equal(t, "docAvatar", req.Attachment.Field)
	require.Equal(t, raw, req.Attachment.Data)
	require.Contains(t, req.Fields, form.Value{Name: form.FirstName, Value: "Ada"})
	require.Contains(t, req.Fields, form.Value{Name: "doctorDepartment", Value: "Cardiology"})
	require.Contains(t, req.Fields, form.Value{Name: "role", Value: "Doctor"})
	require.NotContains(t, req.Fields, form.Value{Name: form.ConfirmPassword, Value: "secret123"})

	n, _ := h.notes.Last()
	require.Equal(t, notify.LevelSuccess, n.Level)
	require.Equal(t, "Created", n.Message)
	require.True(t, h.draft.Empty())
	require.Nil(t, h.encoder.Current())

	// Navigation waits for the display delay.
	require.Empty(t, h.nav.got)
	require.Equal(t, []time.Duration{1500 * time.Millisecond}, h.clock.delays)
	h.clock.fire()
	require.Equal(t, []screen.Screen{screen.Landing}, h.nav.got)
}

func TestSuccessWithoutMessageUsesDefault(t *testing.T) {
	fc := &fakeCreator{}
	h := newHarness(t, form.AdminSpec(fixedNow), fc)
	fillStaff(t, h.draft)
	st := h.machine.Submit(context.Background())
	require.Equal(t, StatusSucceeded, st.Status)
	require.Equal(t, DefaultSuccessMessage, st.Message)
	require.Nil(t, fc.calls[0].Attachment)
}

func TestFailurePreservesDraftAndAttachment(t *testing.T) {
	fc := &fakeCreator{err: &identityapi.ServerRejection{Op: "create_staff", Status: 500, Message: "duplicate email"}}
	h := newHarness(t, form.StaffSpec(form.Options{Now: fixedNow}), fc)
	fillStaff(t, h.draft)
	h.stageImage(t)
	before := h.draft.Values()

	st := h.machine.Submit(context.Background())
	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, "duplicate email", st.Message)
	n, _ := h.notes.Last()
	require.Equal(t, "duplicate email", n.Message)
	require.Equal(t, before, h.draft.Values())
	require.NotNil(t, h.encoder.Current())
	require.Empty(t, h.clock.delays)

	// A failed attempt permits a new one straight away.
	fc.err = nil
	fc.msg = "Created"
	st = h.machine.Submit(context.Background())
	require.Equal(t, StatusSucceeded, st.Status)
	require.Equal(t, 2, fc.count())
}

func TestTransportFailureUsesFallback(t *testing.T) {
	fc := &fakeCreator{err: &identityapi.TransportError{Op: "create_admin", Err: errors.New("connection refused")}}
	h := newHarness(t, form.AdminSpec(fixedNow), fc)
	fillStaff(t, h.draft)
	st := h.machine.Submit(context.Background())
	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, notify.FallbackMessage, st.Message)
}

func TestReset(t *testing.T) {
	h := newHarness(t, form.AdminSpec(fixedNow), &fakeCreator{})
	require.Equal(t, StatusIdle, h.machine.Reset().Status)
	h.machine.Submit(context.Background())
	st := h.machine.Reset()
	require.Equal(t, StatusIdle, st.Status)
	require.Empty(t, st.Message)
}

// The pipeline against a real HTTP client: multipart on success, verbatim
// message on failure.
func TestPipelineOverHTTP(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/api/v1/user/doctor/addnew", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Ada", r.FormValue(form.FirstName))
		_, fh, err := r.FormFile("docAvatar")
		require.NoError(t, err)
		require.Equal(t, "avatar.png", fh.Filename)
		w.Header().Set("Content-Type", "application/json")
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"message":"duplicate email"}`)
			return
		}
		_, _ = io.WriteString(w, `{"message":"Created"}`)
	}))
	defer srv.Close()
	client, err := identityapi.NewClient(identityapi.ClientOptions{Addr: srv.URL})
	require.NoError(t, err)

	h := newHarness(t, form.StaffSpec(form.Options{Now: fixedNow}), client)

	fail.Store(true)
	fillStaff(t, h.draft)
	h.stageImage(t)
	st := h.machine.Submit(context.Background())
	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, "duplicate email", st.Message)
	require.Equal(t, "Ada", h.draft.Get(form.FirstName))

	fail.Store(false)
	st = h.machine.Submit(context.Background())
	require.Equal(t, StatusSucceeded, st.Status)
	require.True(t, h.draft.Empty())
	h.clock.fire()
	require.Equal(t, []screen.Screen{screen.Landing}, h.nav.got)
	require.EqualValues(t, 2, calls.Load())
}
