package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func limitedRequest(h http.Handler, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestRateLimiter_BurstThenLimited(t *testing.T) {
	rl := NewRateLimiter(context.Background(), rate.Limit(1), 2)
	h := rl.Limit(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(h, "10.0.0.1:1000"))
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	rl := NewRateLimiter(context.Background(), rate.Limit(1), 1)
	h := rl.Limit(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(h, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.2:1000"), "one client cannot exhaust another's budget")
}
