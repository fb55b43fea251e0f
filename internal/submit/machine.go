package submit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"staffconsole/internal/attachment"
	"staffconsole/internal/form"
	"staffconsole/internal/identityapi"
	"staffconsole/internal/metrics"
	"staffconsole/internal/notify"
	"staffconsole/internal/screen"
)

// DefaultSuccessMessage is shown when the service accepts without a message.
const DefaultSuccessMessage = "Record created"

// MissingAttachmentMessage is the failure for a required but unstaged file.
const MissingAttachmentMessage = "Please select an avatar image!"

// Creator issues the create call. *identityapi.Client satisfies it.
type Creator interface {
	CreateRecord(ctx context.Context, req identityapi.CreateRequest) (string, error)
}

// Navigator moves the application to another screen.
type Navigator interface {
	Navigate(to screen.Screen)
}

type Options struct {
	Draft *form.Draft
	// Encoder holds the staged attachment; nil for forms without one.
	Encoder   *attachment.Encoder
	Creator   Creator
	Notifier  notify.Notifier
	Navigator Navigator
	// SuccessDelay separates the success notification from the redirect.
	SuccessDelay time.Duration
	// After schedules f after d. Defaults to time.AfterFunc.
	After   func(d time.Duration, f func())
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Machine owns one form instance's SubmissionAttempt.
type Machine struct {
	draft     *form.Draft
	encoder   *attachment.Encoder
	creator   Creator
	notifier  notify.Notifier
	navigator Navigator
	delay     time.Duration
	after     func(time.Duration, func())
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu    sync.Mutex
	state State
}

func New(opt Options) *Machine {
	after := opt.After
	if after == nil {
		after = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	n := opt.Notifier
	if n == nil {
		n = &notify.Recorder{}
	}
	return &Machine{
		draft:     opt.Draft,
		encoder:   opt.Encoder,
		creator:   opt.Creator,
		notifier:  n,
		navigator: opt.Navigator,
		delay:     opt.SuccessDelay,
		after:     after,
		logger:    lg.With("component", "submit", "form", string(opt.Draft.Spec().Kind)),
		metrics:   opt.Metrics,
	}
}

func (m *Machine) Draft() *form.Draft { return m.draft }
func (m *Machine) Encoder() *attachment.Encoder { return m.encoder }

// State returns the current attempt.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) fire(ev Event) bool {
	next, ok := Transition(m.state.Status, ev)
	if ok {
		m.state.Status = next
	}
	return ok
}

// Submit runs one attempt and returns the resulting state. While an attempt
// is in flight the call is ignored and returns the in-flight state.
func (m *Machine) Submit(ctx context.Context) State {
	kind := string(m.draft.Spec().Kind)

	m.mu.Lock()
	if !m.fire(EventSubmit) {
		st := m.state
		m.mu.Unlock()
		m.metrics.Submission(kind, "ignored")
		m.logger.Debug("submit ignored", "status", st.Status.String())
		return st
	}
	m.state.Message, m.state.Field = "", ""

	req, field, msg := m.prepare()
	if msg != "" {
		m.fire(EventInvalid)
		m.state.Message, m.state.Field = msg, field
		st := m.state
		m.mu.Unlock()
		m.metrics.Submission(kind, "invalid")
		m.logger.Info("submission rejected locally", "field", field)
		m.notifier.Notify(notify.Error(msg))
		return st
	}
	m.fire(EventValid)
	m.mu.Unlock()

	m.logger.Info("submitting", "multipart", req.Attachment != nil)
	serverMsg, err := m.creator.CreateRecord(ctx, req)

	if err != nil {
		msg := identityapi.MessageOf(err)
		if msg == "" {
			msg = notify.FallbackMessage
		}
		m.mu.Lock()
		m.fire(EventRejected)
		m.state.Message = msg
		st := m.state
		m.mu.Unlock()
		m.metrics.Submission(kind, "failed")
		m.logger.Warn("submission failed", "err", err)
		m.notifier.Notify(notify.Error(msg))
		return st
	}

	if serverMsg == "" {
		serverMsg = DefaultSuccessMessage
	}
	m.notifier.Notify(notify.Success(serverMsg))
	m.draft.Clear()
	if m.encoder != nil {
		m.encoder.Clear()
	}
	m.mu.Lock()
	m.fire(EventAccepted)
	m.state.Message = serverMsg
	st := m.state
	m.mu.Unlock()
	m.metrics.Submission(kind, "succeeded")
	m.logger.Info("submission accepted", "message", serverMsg)

	if m.navigator != nil {
		nav := m.navigator
		m.after(m.delay, func() { nav.Navigate(screen.Landing) })
	}
	return st
}

// prepare validates the draft and builds the request. A non-empty msg is a
// local failure.
func (m *Machine) prepare() (req identityapi.CreateRequest, field, msg string) {
	spec := m.draft.Spec()
	res := m.draft.Validate()
	if !res.OK {
		return req, res.Field, res.Message
	}

	var staged *attachment.Attachment
	if spec.AcceptsAttachment() && m.encoder != nil {
		staged = m.encoder.Current()
	}
	if spec.AttachmentRequired && staged == nil {
		return req, spec.AttachmentField, MissingAttachmentMessage
	}

	req = identityapi.CreateRequest{Kind: spec.Kind, Fields: spec.Submission(res.Values)}
	if staged != nil {
		req.Attachment = &identityapi.FilePart{
			Field:    spec.AttachmentField,
			Filename: staged.Filename,
			MimeType: staged.MimeType,
			Data:     staged.Raw,
		}
	}
	return req, "", ""
}

// Reset returns a terminal attempt to idle. Draft and attachment are kept.
func (m *Machine) Reset() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fire(EventReset) {
		m.state.Message, m.state.Field = "", ""
	}
	return m.state
}
