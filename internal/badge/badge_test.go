package badge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campusqr/internal/qrclient"
)

type fakeGen struct {
	mu    sync.Mutex
	res   *qrclient.GenerateResult
	err   error
	calls int
}

func (f *fakeGen) Generate(context.Context) (*qrclient.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *fakeGen) set(res *qrclient.GenerateResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res, f.err = res, err
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestSession(gen Generator) (*Session, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	return NewSession(gen, WithClock(clock.now)), clock
}

func TestRequestPayloadReady(t *testing.T) {
	gen := &fakeGen{res: &qrclient.GenerateResult{
		QRData:    "abc123",
		ExpiresIn: 86400,
		UserInfo:  qrclient.UserInfo{Name: "Jane Doe", UserType: "student", ID: "STU1"},
	}}
	s, _ := newTestSession(gen)

	require.Equal(t, StateLoading, s.State())
	require.NoError(t, s.RequestPayload(context.Background()))

	require.Equal(t, StateReady, s.State())
	require.Equal(t, "abc123", s.Payload())
	require.Equal(t, "Jane Doe", s.Holder().Name)
	require.Equal(t, "24h 0m", s.CountdownLabel())
}

func TestCountdownDecreasesThenExpires(t *testing.T) {
	gen := &fakeGen{res: &qrclient.GenerateResult{QRData: "abc123", ExpiresIn: 86400}}
	s, clock := newTestSession(gen)
	require.NoError(t, s.RequestPayload(context.Background()))

	prev := s.Remaining()
	for i := 0; i < 5; i++ {
		clock.advance(time.Hour)
		rem := s.Remaining()
		require.Less(t, rem, prev)
		prev = rem
	}
	require.Equal(t, "19h 0m", s.CountdownLabel())

	clock.advance(20 * time.Hour)
	require.Equal(t, time.Duration(0), s.Remaining())
	require.Equal(t, "Expired", s.CountdownLabel())
	require.Equal(t, StateExpired, s.State())

	// Never goes negative, and expiry does not trigger a refresh.
	clock.advance(time.Hour)
	require.Equal(t, time.Duration(0), s.Remaining())
	require.Equal(t, 1, gen.calls)
}

func TestLocalWindowFallback(t *testing.T) {
	gen := &fakeGen{res: &qrclient.GenerateResult{QRData: "abc123"}} // no expiresIn
	s, _ := newTestSession(gen)
	require.NoError(t, s.RequestPayload(context.Background()))
	require.Equal(t, "24h 0m", s.CountdownLabel())
}

func TestInitialFailure(t *testing.T) {
	gen := &fakeGen{err: errors.New("boom")}
	s, _ := newTestSession(gen)

	require.Error(t, s.RequestPayload(context.Background()))
	require.Equal(t, StateError, s.State())
	require.Empty(t, s.Payload())
	require.Error(t, s.Err())
}

func TestRefreshKeepsLastKnownPayload(t *testing.T) {
	gen := &fakeGen{res: &qrclient.GenerateResult{QRData: "abc123", ExpiresIn: 86400}}
	s, _ := newTestSession(gen)
	require.NoError(t, s.RequestPayload(context.Background()))

	gen.set(nil, errors.New("network down"))
	require.Error(t, s.Refresh(context.Background()))

	// The displayed credential is never blank after a failed refresh.
	require.Equal(t, "abc123", s.Payload())
	require.Equal(t, StateReady, s.State())
	require.Error(t, s.Err())

	gen.set(&qrclient.GenerateResult{QRData: "def456", ExpiresIn: 86400}, nil)
	require.NoError(t, s.Refresh(context.Background()))
	require.Equal(t, "def456", s.Payload())
	require.NoError(t, s.Err())
}

func TestClosedSessionRejectsRequests(t *testing.T) {
	gen := &fakeGen{res: &qrclient.GenerateResult{QRData: "abc123"}}
	s, _ := newTestSession(gen)
	s.Close()
	require.ErrorIs(t, s.RequestPayload(context.Background()), ErrClosed)
}

func TestRenderNeedsPayload(t *testing.T) {
	gen := &fakeGen{err: errors.New("boom")}
	s, _ := newTestSession(gen)
	_, err := s.PNG(256)
	require.Error(t, err)
	_, err = s.Terminal()
	require.Error(t, err)
}

func TestRenderRoundTrip(t *testing.T) {
	gen := &fakeGen{res: &qrclient.GenerateResult{QRData: "abc123", ExpiresIn: 86400}}
	s, _ := newTestSession(gen)
	require.NoError(t, s.RequestPayload(context.Background()))

	png, err := s.PNG(256)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	art, err := s.Terminal()
	require.NoError(t, err)
	require.NotEmpty(t, art)
}
