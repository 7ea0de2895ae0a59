package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nurture_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testSecret = "test-secret"

type jwtConfig struct{}

func (jwtConfig) GetJWTAccessSecret() string { return testSecret }

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, typ, subject string, exp time.Time, method jwt.SigningMethod, key any) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, OperatorClaims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	raw, err := tok.SignedString(key)
	require.NoError(t, err)
	return raw
}

func authEngine() *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", AuthRequired(jwtConfig{}), func(c *gin.Context) {
		OK(c, gin.H{"operator": OperatorID(c)})
	})
	return r
}

func get(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	future := time.Now().Add(time.Hour)
	r := authEngine()

	w := get(r, "Bearer "+signToken(t, "access", "op-1", future, jwt.SigningMethodHS256, []byte(testSecret)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"operator":"op-1"}`, w.Body.String())

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", errMissingToken},
		{"not bearer", "Basic abc", errMissingToken},
		{"refresh token", "Bearer " + signToken(t, "refresh", "op-1", future, jwt.SigningMethodHS256, []byte(testSecret)), errInvalidToken},
		{"no subject", "Bearer " + signToken(t, "access", "", future, jwt.SigningMethodHS256, []byte(testSecret)), errInvalidToken},
		{"expired", "Bearer " + signToken(t, "access", "op-1", time.Now().Add(-time.Minute), jwt.SigningMethodHS256, []byte(testSecret)), errInvalidToken},
		{"wrong secret", "Bearer " + signToken(t, "access", "op-1", future, jwt.SigningMethodHS256, []byte("other")), errInvalidToken},
		{"wrong alg", "Bearer " + signToken(t, "access", "op-1", future, jwt.SigningMethodHS512, []byte(testSecret)), errInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(r, tc.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.want, body.Error)
		})
	}
}

func TestRequestIDEchoesOrGenerates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { HandleError(c, apperr.NotFound("lead not found")) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"lead not found","requestId":"abc-123"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestHandleErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.Busy("running"), http.StatusConflict},
		{apperr.Unavailable("off"), http.StatusServiceUnavailable},
		{apperr.Wrap(apperr.KindConflict, "closed", errors.New("db")), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/x", func(c *gin.Context) {
			if !HandleError(c, tc.err) {
				OK(c, gin.H{})
			}
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, tc.want, w.Code, "%v", tc.err)
	}
}

func TestIPRateLimiterRejectsOverBurst(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 2, nil)
	r := gin.New()
	r.Use(l.RateLimit())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestIPRateLimiterPrunesIdleBuckets(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(rate.Inf, 1, nil)
	l.now = func() time.Time { return now }

	l.allow("10.0.0.1")
	now = now.Add(limiterIdleTTL + time.Minute)
	for range limiterPruneEvery - 1 {
		l.allow("10.0.0.2")
	}

	var ips []string
	l.limiters.Range(func(key, _ any) bool {
		ips = append(ips, key.(string))
		return true
	})
	assert.Equal(t, []string{"10.0.0.2"}, ips)
}
