package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterFromEnv(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "")
	assert.Nil(t, rateLimiterFromEnv())

	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "bogus")
	rl := rateLimiterFromEnv()
	require.NotNil(t, rl)
	assert.Equal(t, int64(5), rl.limit)
	assert.Equal(t, time.Minute, rl.window)
}

func TestCorrelationIdIsEchoed(t *testing.T) {
	r := newRouter(config.GetLogger(), func() bool { return true })

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	req.Header.Set("x-correlation-id", "cid-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "cid-123", w.Header().Get("x-correlation-id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.NotEmpty(t, w.Header().Get("x-correlation-id"))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitAndTrim(" https://a.example , ,https://b.example"))
	assert.Nil(t, splitAndTrim("  "))
}
