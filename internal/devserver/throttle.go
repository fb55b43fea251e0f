package devserver

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// loginThrottle blocks a client from guessing one account's password. Only
// failed logins count; a successful one forgets the key. A key is blocked
// once it has failed limit times inside span of its first failure.
type loginThrottle struct {
	limit int
	span  time.Duration
	now   func() time.Time

	mu       sync.Mutex
	failures map[string]*failureRun
}

type failureRun struct {
	count   int
	resetAt time.Time
}

// pruneAbove is the map size past which expired runs are dropped on write.
const pruneAbove = 1024

func newLoginThrottle(limit int, span time.Duration) *loginThrottle {
	return &loginThrottle{
		limit:    limit,
		span:     span,
		now:      time.Now,
		failures: make(map[string]*failureRun),
	}
}

// throttleKey pairs the client address with the normalized email, so one
// client hammering one account does not lock out other accounts.
func throttleKey(ip, email string) string {
	return ip + "|" + strings.ToLower(strings.TrimSpace(email))
}

// Blocked reports whether key is out of attempts and how long until it may
// try again.
func (t *loginThrottle) Blocked(key string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run := t.failures[key]
	if run == nil {
		return false, 0
	}
	now := t.now()
	if !now.Before(run.resetAt) {
		delete(t.failures, key)
		return false, 0
	}
	if run.count < t.limit {
		return false, 0
	}
	return true, run.resetAt.Sub(now)
}

// Fail records a failed login for key.
func (t *loginThrottle) Fail(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	run := t.failures[key]
	if run == nil || !now.Before(run.resetAt) {
		if len(t.failures) >= pruneAbove {
			t.pruneLocked(now)
		}
		run = &failureRun{resetAt: now.Add(t.span)}
		t.failures[key] = run
	}
	run.count++
}

// Succeed clears key after a good login.
func (t *loginThrottle) Succeed(key string) {
	t.mu.Lock()
	delete(t.failures, key)
	t.mu.Unlock()
}

func (t *loginThrottle) pruneLocked(now time.Time) {
	for k, run := range t.failures {
		if !now.Before(run.resetAt) {
			delete(t.failures, k)
		}
	}
}

func retryAfterSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.Itoa(int(d.Seconds()) + 1)
}
