// Package scanner holds the staff-facing side of the QR flow: capture frames,
// decode a payload, resolve it through the server, and record attendance on
// explicit confirmation. Decoding never implies recording; the two are
// separate, separately confirmable steps.
package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	log "github.com/sirupsen/logrus"

	"campusqr/internal/qrclient"
)

// State of the scanner.
type State string

const (
	StateIdle          State = "idle"
	StateCapturing     State = "capturing"
	StateVerifying     State = "verifying"
	StateVerified      State = "verified"
	StateVerifyFailed  State = "verify_failed"
	StateConfirming    State = "confirming"
	StateConfirmed     State = "confirmed"
	StateConfirmFailed State = "confirm_failed"
)

// Camera acquisition failures, surfaced distinctly. FrameSource
// implementations return these from Open; anything else is "other".
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device found")
)

// Flow misuse and termination errors.
var (
	ErrNotVerified   = errors.New("no verified identity to confirm")
	ErrBusy          = errors.New("scanner is busy")
	ErrClosed        = errors.New("scanner session closed")
	ErrCaptureEnded  = errors.New("capture ended before a code was found")
	ErrCaptureCancel = errors.New("capture stopped")
)

// API is the slice of the attendance client the scanner needs.
type API interface {
	Verify(ctx context.Context, qrData string) (*qrclient.VerifyResult, error)
	ScanAttendance(ctx context.Context, qrData, purpose, location string) (*qrclient.ScanResult, error)
}

// Session drives the capture → verify → confirm state machine. The camera is
// held exclusively while capturing and released on the first decode, on stop,
// and on teardown.
type Session struct {
	api        API
	source     FrameSource
	resetDelay time.Duration

	mu         sync.Mutex
	closed     bool
	generation uint64 // bumped on every reset; stale responses are discarded
	state      State
	rawPayload string // decoded payload, forwarded byte-identical to both calls
	identity   *qrclient.Student
	lastScan   *qrclient.ScanResult
	lastErr    error
	cancelCap  context.CancelFunc
	resetTimer *time.Timer
}

// Option configures a Session.
type Option func(*Session)

// WithResetDelay overrides the post-confirmation auto-reset delay.
func WithResetDelay(d time.Duration) Option {
	return func(s *Session) { s.resetDelay = d }
}

// NewSession creates an idle scanner session.
func NewSession(apiClient API, source FrameSource, opts ...Option) *Session {
	s := &Session{
		api:        apiClient,
		source:     source,
		resetDelay: 2 * time.Second,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCapture acquires the camera and blocks until a payload is decoded and
// verified, the frame stream ends, or the capture is stopped. It is
// single-shot: the first decoded payload stops capture and goes straight to
// verification. Frames with no decodable code are skipped silently; decoder
// faults are logged and skipped. Each failed attempt is terminal — the caller
// invokes StartCapture again.
func (s *Session) StartCapture(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	capCtx, cancel := context.WithCancel(ctx)
	s.state = StateCapturing
	s.cancelCap = cancel
	s.lastErr = nil
	generation := s.generation
	s.mu.Unlock()

	payload, err := s.capture(capCtx)

	s.mu.Lock()
	s.cancelCap = nil
	if s.closed || generation != s.generation {
		s.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		s.state = StateIdle
		if !errors.Is(err, ErrCaptureCancel) {
			s.lastErr = err
		}
		s.mu.Unlock()
		return err
	}
	s.state = StateVerifying
	s.rawPayload = payload
	s.mu.Unlock()

	return s.verify(ctx, generation, payload)
}

// capture owns the camera for the duration of the loop.
func (s *Session) capture(ctx context.Context) (string, error) {
	if err := s.source.Open(ctx); err != nil {
		switch {
		case errors.Is(err, ErrPermissionDenied):
			return "", ErrPermissionDenied
		case errors.Is(err, ErrNoDevice):
			return "", ErrNoDevice
		default:
			return "", err
		}
	}
	defer s.source.Close()

	reader := zxqr.NewQRCodeReader()
	for {
		frame, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ErrCaptureCancel
			}
			if errors.Is(err, ErrNoMoreFrames) {
				return "", ErrCaptureEnded
			}
			return "", err
		}

		bmp, err := gozxing.NewBinaryBitmapFromImage(frame)
		if err != nil {
			log.WithError(err).Debug("frame conversion fault")
			continue
		}
		result, err := reader.Decode(bmp, nil)
		if err != nil {
			// No code in frame is the normal case, not an error.
			if _, notFound := err.(gozxing.NotFoundException); !notFound {
				log.WithError(err).Debug("qr decode fault")
			}
			continue
		}
		return result.GetText(), nil
	}
}

func (s *Session) verify(ctx context.Context, generation uint64, payload string) error {
	res, err := s.api.Verify(ctx, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || generation != s.generation {
		return ErrClosed
	}
	if err != nil {
		s.state = StateVerifyFailed
		s.lastErr = err
		return err
	}
	if !res.Valid {
		s.state = StateVerifyFailed
		s.lastErr = errors.New("payload rejected by server")
		return s.lastErr
	}
	s.state = StateVerified
	s.identity = &res.Student
	s.lastErr = nil
	return nil
}

// StopCapture cancels an in-progress capture and releases the camera. It is
// the only explicit cancellation path in the flow.
func (s *Session) StopCapture() {
	s.mu.Lock()
	cancel := s.cancelCap
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ConfirmAttendance records attendance for the verified identity. Only
// reachable once a verify has succeeded in this scan session; the original
// raw payload is sent again, never the parsed identity. On success the
// session auto-resets to idle after the fixed display delay. On failure the
// verified identity is kept so the operator may retry.
func (s *Session) ConfirmAttendance(ctx context.Context, purpose, location string) (*qrclient.ScanResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.state != StateVerified && s.state != StateConfirmFailed {
		s.mu.Unlock()
		return nil, ErrNotVerified
	}
	s.state = StateConfirming
	generation := s.generation
	payload := s.rawPayload
	s.mu.Unlock()

	res, err := s.api.ScanAttendance(ctx, payload, purpose, location)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || generation != s.generation {
		return nil, ErrClosed
	}
	if err != nil {
		s.state = StateConfirmFailed
		s.lastErr = err
		return nil, err
	}
	s.state = StateConfirmed
	s.lastScan = res
	s.lastErr = nil

	// Deliberate UX delay before the scanner is capture-ready again.
	s.resetTimer = time.AfterFunc(s.resetDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || generation != s.generation || s.state != StateConfirmed {
			return
		}
		s.resetLocked()
	})
	return res, nil
}

// ScanAnother discards the held identity and payload and returns the session
// to idle so capture can restart. Safe to call from any state; an in-flight
// capture is stopped first.
func (s *Session) ScanAnother() {
	s.mu.Lock()
	cancel := s.cancelCap
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.resetLocked()
}

// resetLocked clears per-scan state. Callers hold s.mu.
func (s *Session) resetLocked() {
	s.generation++
	s.state = StateIdle
	s.rawPayload = ""
	s.identity = nil
	s.lastScan = nil
	s.lastErr = nil
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

// Close tears the session down; late responses are discarded and the camera
// is released if still held.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancelCap
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

// State reports the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the verified identity summary, nil unless verified.
func (s *Session) Identity() *qrclient.Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Payload returns the raw decoded payload held by the current scan session.
func (s *Session) Payload() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rawPayload
}

// LastScan returns the most recent confirmation result.
func (s *Session) LastScan() *qrclient.ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

// Err returns the last failure, already user-presentable.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
