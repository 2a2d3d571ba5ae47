package ratelimit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neighborsos/internal/client"
	redisrepo "neighborsos/internal/repository/redis"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) *Limiter {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := &client.RedisClient{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
	}
	t.Cleanup(func() { _ = rc.Client.Close() })

	return New("test", limit, window, redisrepo.NewRateLimitCache(rc))
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	limiter := newTestLimiter(t, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Check(ctx, "donor@example.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 3-(i+1), res.Remaining)
	}

	res, err := limiter.Check(ctx, "donor@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.False(t, res.Reset.IsZero())
	assert.True(t, res.Reset.After(time.Now()))
}

func TestLimiterDenialDoesNotConsume(t *testing.T) {
	limiter := newTestLimiter(t, 1, time.Hour)
	ctx := context.Background()

	res, err := limiter.Check(ctx, "k")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// Denied attempts must not extend the window.
	first, err := limiter.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, first.Allowed)

	second, err := limiter.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, second.Allowed)
	assert.Equal(t, first.Reset.UnixMilli(), second.Reset.UnixMilli())
}

func TestLimiterWindowSlides(t *testing.T) {
	limiter := newTestLimiter(t, 2, 200*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Check(ctx, "k")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := limiter.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	time.Sleep(250 * time.Millisecond)

	res, err = limiter.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "window should have slid past the old entries")
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := newTestLimiter(t, 1, time.Hour)
	ctx := context.Background()

	res, err := limiter.Check(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = limiter.Check(ctx, "a@example.com")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = limiter.Check(ctx, "b@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a second key must have its own window")
}

func TestResetFreesBlockedCaller(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := &client.RedisClient{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
	}
	t.Cleanup(func() { _ = rc.Client.Close() })
	cache := redisrepo.NewRateLimitCache(rc)
	limiter := New("claim", 1, time.Hour, cache)
	ctx := context.Background()

	res, err := limiter.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = limiter.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, cache.Reset(ctx, "claim:203.0.113.7"))

	res, err = limiter.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a cleared window starts fresh")
}

func TestLimiterStoreErrorIsNotADenial(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := &client.RedisClient{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
	}
	limiter := New("test", 5, time.Hour, redisrepo.NewRateLimitCache(rc))

	mr.Close()

	_, err := limiter.Check(context.Background(), "k")
	require.Error(t, err)
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{name: "forwarded first hop wins", xff: "203.0.113.7, 10.0.0.1", realIP: "10.0.0.2", remoteAddr: "10.0.0.3:1234", want: "203.0.113.7"},
		{name: "real ip fallback", realIP: "203.0.113.8", remoteAddr: "10.0.0.3:1234", want: "203.0.113.8"},
		{name: "socket peer fallback", remoteAddr: "203.0.113.9:5678", want: "203.0.113.9"},
		{name: "unparseable remote addr", remoteAddr: "bogus", want: "bogus"},
		{name: "nothing known", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/v1/send-email", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, ClientKey(r))
		})
	}
}
