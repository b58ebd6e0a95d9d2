package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedEngine(cfg RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(RateLimit(cfg))
	e.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return e
}

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	e := newLimitedEngine(RateLimitConfig{RequestsPerSecond: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	e := newLimitedEngine(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})

	var rejected int
	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code == http.StatusTooManyRequests {
			rejected++
		}
	}
	assert.NotZero(t, rejected)
}

func TestRateLimitSpawnsNoGoroutines(t *testing.T) {
	// The limiter reaps idle clients on the request path; building many
	// middleware instances must not accumulate background goroutines.
	before := runtime.NumGoroutine()
	for i := 0; i < 64; i++ {
		_ = RateLimit(DefaultRateLimitConfig())
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+4)
}
