package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/logging"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func testPolicy(rec *sleepRecorder) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = rec.sleep
	return p
}

func TestClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-cg-pro-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "usd-coin"})
	}))
	defer server.Close()

	c := NewClient(WithHeader("x-cg-pro-api-key", "secret"), WithLogger(logging.Discard()))
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.GetJSON(context.Background(), server.URL, &out))
	assert.Equal(t, "usd-coin", out.ID)
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	rec := &sleepRecorder{}
	c := NewClient(WithRetryPolicy(testPolicy(rec)), WithLogger(logging.Discard()))

	var out map[string]bool
	require.NoError(t, c.GetJSON(context.Background(), server.URL, &out))
	assert.True(t, out["ok"])
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.waits)
}

func TestClient_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	rec := &sleepRecorder{}
	c := NewClient(WithRetryPolicy(testPolicy(rec)), WithLogger(logging.Discard()))

	err := c.GetJSON(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, int32(DefaultMaxRetries+1), calls.Load())
	assert.Len(t, rec.waits, DefaultMaxRetries)
}

func TestClient_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := &sleepRecorder{}
	c := NewClient(WithRetryPolicy(testPolicy(rec)), WithLogger(logging.Discard()))

	err := c.GetJSON(context.Background(), server.URL, nil)
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, rec.waits)
}

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["query"]})
	}))
	defer server.Close()

	c := NewClient(WithLogger(logging.Discard()))
	var out map[string]string
	require.NoError(t, c.PostJSON(context.Background(), server.URL, map[string]string{"query": "{ markets }"}, &out))
	assert.Equal(t, "{ markets }", out["echo"])
}

func TestClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewClient(WithLogger(logging.Discard()))
	var out map[string]any
	err := c.GetJSON(context.Background(), server.URL, &out)
	assert.True(t, domain.IsTransport(err))
}

func TestClient_Pacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(WithPacing(20*time.Millisecond), WithLogger(logging.Discard()))
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.GetJSON(context.Background(), server.URL, nil))
	}
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := DefaultRetryPolicy()
	p.Backoff = func(int) time.Duration { return time.Hour }
	err := p.Do(ctx, func(context.Context) error {
		return &domain.TransportError{URL: "u", StatusCode: http.StatusTooManyRequests}
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(time.Second, 5*time.Second)
	assert.Equal(t, 2*time.Second, b(0))
	assert.Equal(t, 4*time.Second, b(1))
	assert.Equal(t, 5*time.Second, b(2))
}
