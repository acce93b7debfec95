// Package badge holds the student-facing side of the QR flow: it obtains a
// time-bound payload from the attendance API, renders it as a QR code, and
// tracks a coarse validity countdown.
package badge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"campusqr/internal/qrclient"
)

// State of the issuer.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
	StateExpired State = "expired"
)

// ErrClosed is returned when the session has been shut down.
var ErrClosed = errors.New("badge session closed")

// Generator is the slice of the API client the issuer needs.
type Generator interface {
	Generate(ctx context.Context) (*qrclient.GenerateResult, error)
}

// Session is the issuer state machine. Once a payload has been obtained it is
// never dropped: a refresh keeps the previous payload visible until the new
// one arrives, and expiry only changes the reported state.
type Session struct {
	gen   Generator
	now   func() time.Time
	local time.Duration // fallback validity window when the server sends none

	mu        sync.Mutex
	closed    bool
	reqSeq    uint64 // request generation; stale responses are discarded
	state     State
	payload   string
	holder    qrclient.UserInfo
	expiresAt time.Time
	lastErr   error
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLocalWindow overrides the fallback validity window.
func WithLocalWindow(d time.Duration) Option {
	return func(s *Session) { s.local = d }
}

// NewSession creates an issuer session in the loading state.
func NewSession(gen Generator, opts ...Option) *Session {
	s := &Session{
		gen:   gen,
		now:   time.Now,
		local: 24 * time.Hour,
		state: StateLoading,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestPayload fetches a fresh payload. On failure the session moves to the
// error state but keeps any previously obtained payload. There is no
// automatic retry; the caller re-invokes on user action.
func (s *Session) RequestPayload(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.reqSeq++
	generation := s.reqSeq
	s.state = StateLoading
	s.mu.Unlock()

	res, err := s.gen.Generate(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || generation != s.reqSeq {
		return ErrClosed // superseded or torn down; discard the result
	}
	if err != nil {
		s.lastErr = err
		if s.payload == "" {
			s.state = StateError
		} else {
			s.state = StateReady // last-known payload stays usable
		}
		return err
	}

	s.payload = res.QRData
	s.holder = res.UserInfo
	s.lastErr = nil
	s.state = StateReady

	// Prefer the server-declared window; fall back to the local default when
	// the server does not send one.
	if res.ExpiresIn > 0 {
		s.expiresAt = s.now().Add(time.Duration(res.ExpiresIn) * time.Second)
	} else {
		s.expiresAt = s.now().Add(s.local)
	}
	return nil
}

// Refresh re-requests a payload on demand. Identical to RequestPayload; the
// separate name mirrors the user-facing control.
func (s *Session) Refresh(ctx context.Context) error {
	return s.RequestPayload(ctx)
}

// Close tears the session down; in-flight results are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// State reports the current state, folding in expiry. Expiry is display-only
// and never triggers a refresh.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReady && !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return StateExpired
	}
	return s.state
}

// Payload returns the last obtained payload, which survives refreshes and
// errors once set.
func (s *Session) Payload() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload
}

// Holder returns the identity block for display next to the code.
func (s *Session) Holder() qrclient.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder
}

// Err returns the last request error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Remaining returns the time left on the payload, clamped at zero.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiresAt.IsZero() {
		return 0
	}
	rem := s.expiresAt.Sub(s.now())
	if rem < 0 {
		return 0
	}
	return rem
}

// CountdownLabel renders the remaining validity at minute granularity, e.g.
// "24h 0m". Callers re-render once per minute, not per second.
func (s *Session) CountdownLabel() string {
	rem := s.Remaining()
	if rem <= 0 {
		return "Expired"
	}
	hours := int(rem.Hours())
	minutes := int(rem.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// PNG encodes the current payload as a QR image.
func (s *Session) PNG(size int) ([]byte, error) {
	payload := s.Payload()
	if payload == "" {
		return nil, errors.New("no payload to encode")
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

// Terminal renders the current payload as a QR block for terminal display.
func (s *Session) Terminal() (string, error) {
	payload := s.Payload()
	if payload == "" {
		return "", errors.New("no payload to encode")
	}
	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return code.ToSmallString(false), nil
}
