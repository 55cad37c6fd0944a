package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scancodes/config"
	"scancodes/internal/auth"
	"scancodes/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtCfg = &config.JWTConfig{AccessSecret: "middleware-test", AccessExpiry: time.Hour, Issuer: "scancodes"}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "role": GetRole(c)})
	})
	r.GET("/x", handlers...)
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := newEngine(AuthRequired(jwtCfg))
	tok, err := auth.GenerateAccessToken(jwtCfg, 7, "ada@example.com", domain.RoleCustomer)
	require.NoError(t, err)

	w := get(r, "Bearer "+tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"CUSTOMER"}`, w.Body.String())

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic " + tok,
		"empty token":  "Bearer  ",
		"bad token":    "Bearer not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, get(r, header).Code)
		})
	}

	other := &config.JWTConfig{AccessSecret: "other", AccessExpiry: time.Hour, Issuer: "scancodes"}
	forged, err := auth.GenerateAccessToken(other, 7, "ada@example.com", domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+forged).Code)
}

func TestAdminRequired(t *testing.T) {
	r := newEngine(AuthRequired(jwtCfg), AdminRequired())

	customer, err := auth.GenerateAccessToken(jwtCfg, 1, "ada@example.com", domain.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, "Bearer "+customer).Code)

	admin, err := auth.GenerateAccessToken(jwtCfg, 2, "root@example.com", domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(r, "Bearer "+admin).Code)
}

func TestInMemoryRateLimiter(t *testing.T) {
	l := NewInMemoryRateLimiter(2, time.Minute)
	defer l.Stop()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("a"), "window slid past earlier hits")
}

func TestRateLimit(t *testing.T) {
	l := NewInMemoryRateLimiter(1, time.Minute)
	defer l.Stop()
	r := newEngine(RateLimit(l))

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	w := get(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}
