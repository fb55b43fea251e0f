package attachment

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/afero"

	"staffconsole/internal/metrics"
)

// DefaultMaxBytes bounds a single selection.
const DefaultMaxBytes = 5 << 20

// Outcome is the result of one selection.
type Outcome struct {
	Attachment *Attachment
	Err        error
	// Stale is set when a newer selection (or a Clear) superseded this one;
	// the result was discarded and the staged attachment left untouched.
	Stale bool
}

// Pending is a started encode.
type Pending struct {
	done chan struct{}
	out  Outcome
}

// Done is closed once the encode has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the encode finishes and returns its outcome.
func (p *Pending) Wait() Outcome {
	<-p.done
	return p.out
}

// EncoderOptions configures an Encoder.
type EncoderOptions struct {
	Fs        afero.Fs
	ImageOnly bool
	MaxBytes  int64
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Encoder owns the staged attachment of one form instance.
type Encoder struct {
	fs        afero.Fs
	imageOnly bool
	maxBytes  int64
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	gen     uint64
	current *Attachment
}

// NewEncoder returns an Encoder reading from opt.Fs (the OS filesystem when nil).
func NewEncoder(opt EncoderOptions) *Encoder {
	fs := opt.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	limit := opt.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Encoder{
		fs:        fs,
		imageOnly: opt.ImageOnly,
		maxBytes:  limit,
		logger:    lg.With("component", "attachment"),
		metrics:   opt.Metrics,
	}
}

// Select starts encoding the file at path. Only the most recently started
// selection may replace the staged attachment; earlier ones that finish later
// are reported Stale. A rejected selection clears the staged attachment.
func (e *Encoder) Select(path string) *Pending {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		a, err := e.read(path)

		e.mu.Lock()
		defer e.mu.Unlock()
		if gen != e.gen {
			p.out = Outcome{Stale: true}
			e.metrics.Encode("stale")
			e.logger.Debug("discarding stale encode", "path", path)
			return
		}
		if err != nil {
			// The rejected file is the latest choice; nothing older may stand in for it.
			e.current = nil
			p.out = Outcome{Err: err}
			e.metrics.Encode("error")
			return
		}
		e.current = a
		p.out = Outcome{Attachment: a}
		e.metrics.Encode("ok")
	}()
	return p
}

func (e *Encoder) read(path string) (*Attachment, error) {
	if path == "" {
		return nil, &Error{Err: ErrNoFile}
	}
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, &Error{Filename: path, Err: err}
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, e.maxBytes+1))
	if err != nil {
		return nil, &Error{Filename: path, Err: err}
	}
	if int64(len(raw)) > e.maxBytes {
		return nil, &Error{Filename: path, Err: ErrTooLarge}
	}
	return Encode(path, raw, e.imageOnly)
}

// Current returns the staged attachment, or nil.
func (e *Encoder) Current() *Attachment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Clear discards the staged attachment and any in-flight selection.
func (e *Encoder) Clear() {
	e.mu.Lock()
	e.gen++
	e.current = nil
	e.mu.Unlock()
}

// IsAttachmentError reports whether err is a rejected selection.
func IsAttachmentError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}
