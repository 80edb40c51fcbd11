package server

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(5)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d should be allowed", i)
	}
	assert.False(t, rl.Allow("1.2.3.4"))
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "limits are tracked per IP")
}

func TestRateLimiterZeroLimitDisables(t *testing.T) {
	rl := NewRateLimiter(0)
	defer rl.Stop()

	for i := 0; i < 1000; i++ {
		assert.True(t, rl.Allow("1.2.3.4"))
	}
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	assert.Equal(t, 0, rl.RetryAfter("9.9.9.9"), "unknown IP has no wait")

	rl.Allow("9.9.9.9")
	retry := rl.RetryAfter("9.9.9.9")
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, 60)
}

func TestRateLimiterStopTwice(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.Stop()
	rl.Stop() // must not panic
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name     string
		remote   string
		headers  map[string]string
		expected string
	}{
		{"remote addr", "10.0.0.1:5000", nil, "10.0.0.1"},
		{"x-forwarded-for", "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
		{"x-real-ip", "10.0.0.1:5000", map[string]string{"X-Real-IP": "203.0.113.8"}, "203.0.113.8"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.expected, clientIP(req))
		})
	}
}

func TestRateLimiterManyIPs(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()

	for i := 0; i < 50; i++ {
		ip := fmt.Sprintf("10.1.1.%d", i)
		assert.True(t, rl.Allow(ip))
		assert.True(t, rl.Allow(ip))
		assert.False(t, rl.Allow(ip))
	}
}
