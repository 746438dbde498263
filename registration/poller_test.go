package registration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdsurfer/shaka-bootstrap/config"
)

type scriptedResponse struct {
	token string
	err   error
}

// scriptedClient returns its scripted responses in order, then keeps
// returning the fallback. It records every call so tests can assert
// exact call counts.
type scriptedClient struct {
	mu       sync.Mutex
	script   []scriptedResponse
	fallback scriptedResponse
	calls    int
}

func (s *scriptedClient) Register(ctx context.Context, serial string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.script) {
		r := s.script[s.calls-1]
		return r.token, r.err
	}
	return s.fallback.token, s.fallback.err
}

func (s *scriptedClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func pending(n int) []scriptedResponse {
	return make([]scriptedResponse, n)
}

func newTestPoller(t *testing.T, client RegistrationProvider, maxAttempts int) (*Poller, *clock.Mock, string) {
	t.Helper()
	recordPath := filepath.Join(t.TempDir(), "device.conf")
	clk := clock.NewMock()
	p := &Poller{
		Client:      client,
		Store:       &config.Store{Path: recordPath, Log: testLogger()},
		BackendURL:  "https://backend.example",
		Interval:    10 * time.Second,
		MaxAttempts: maxAttempts,
		Clock:       clk,
		Log:         testLogger(),
	}
	return p, clk, recordPath
}

// waitDriven runs Wait in a goroutine and advances the mock clock
// until it returns.
func waitDriven(t *testing.T, p *Poller, clk *clock.Mock, serial string) (string, error) {
	t.Helper()
	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		token, err := p.Wait(context.Background(), serial)
		done <- result{token, err}
	}()

	deadline := time.After(30 * time.Second)
	for {
		select {
		case r := <-done:
			return r.token, r.err
		case <-deadline:
			t.Fatal("poller did not finish")
		default:
			clk.Add(p.Interval)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestWaitGrantOnFirstAttempt(t *testing.T) {
	client := &scriptedClient{script: []scriptedResponse{{token: "tok123"}}}
	p, _, _ := newTestPoller(t, client, 360)

	token, err := p.Wait(context.Background(), "CS-SHAKA-V1-A1B2")
	require.NoError(t, err)
	assert.Equal(t, "tok123", token)
	assert.Equal(t, 1, client.callCount())
}

func TestWaitGrantOnLaterAttempt(t *testing.T) {
	script := append(pending(4), scriptedResponse{token: "tok123"})
	client := &scriptedClient{script: script}
	p, clk, _ := newTestPoller(t, client, 360)

	token, err := waitDriven(t, p, clk, "CS-SHAKA-V1-A1B2")
	require.NoError(t, err)
	assert.Equal(t, "tok123", token)
	assert.Equal(t, 5, client.callCount())

	// The grant ends the loop: further time must not trigger calls.
	for i := 0; i < 5; i++ {
		clk.Add(p.Interval)
	}
	assert.Equal(t, 5, client.callCount())
}

func TestWaitCeilingReached(t *testing.T) {
	client := &scriptedClient{}
	p, clk, recordPath := newTestPoller(t, client, 360)

	token, err := waitDriven(t, p, clk, "CS-SHAKA-V1-A1B2")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Empty(t, token)
	assert.Equal(t, 360, client.callCount())

	// No record may exist without a grant.
	_, statErr := os.Stat(recordPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWaitAbsorbsTransientErrors(t *testing.T) {
	script := []scriptedResponse{
		{err: errors.New("connection refused")},
		{err: errors.New("gateway timeout")},
		{token: "tok123"},
	}
	client := &scriptedClient{script: script}
	p, clk, _ := newTestPoller(t, client, 360)

	token, err := waitDriven(t, p, clk, "CS-SHAKA-V1-A1B2")
	require.NoError(t, err)
	assert.Equal(t, "tok123", token)
	assert.Equal(t, 3, client.callCount())
}

func TestWaitPersistsRecordOnGrant(t *testing.T) {
	client := &scriptedClient{script: []scriptedResponse{{token: "tok123"}}}
	p, _, recordPath := newTestPoller(t, client, 360)

	_, err := p.Wait(context.Background(), "CS-SHAKA-V1-A1B2")
	require.NoError(t, err)

	store := &config.Store{Path: recordPath, Log: testLogger()}
	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, config.DeviceRecord{
		DeviceSerial: "CS-SHAKA-V1-A1B2",
		DeviceToken:  "tok123",
		BackendURL:   "https://backend.example",
	}, rec)
}

func TestWaitContextCanceled(t *testing.T) {
	client := &scriptedClient{}
	p, _, _ := newTestPoller(t, client, 360)
	p.Clock = clock.New()
	p.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := p.Wait(ctx, "CS-SHAKA-V1-A1B2")
	assert.ErrorIs(t, err, context.Canceled)
}
