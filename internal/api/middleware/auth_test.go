package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"printbridge/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func guardedRouter(auth *Auth) *gin.Engine {
	r := gin.New()
	r.GET("/keyed", auth.RequireAPIKey(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	r.GET("/restricted", auth.RequireAPIKey(), auth.RequireAllowedIP(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	return r
}

func TestRequireAPIKey(t *testing.T) {
	auth := NewAuth(config.APIConfig{Key: "sekrit"})
	r := guardedRouter(auth)

	cases := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusForbidden},
		{"valid key", "sekrit", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/keyed", nil)
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequireAPIKeyRejectsAllWhenUnconfigured(t *testing.T) {
	auth := NewAuth(config.APIConfig{})
	r := guardedRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/keyed", nil)
	req.Header.Set("X-API-Key", "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/keyed", nil)
	req.Header.Set("X-API-Key", "anything")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAPIKeyWithHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewAuth(config.APIConfig{KeyHash: string(hash)})
	r := guardedRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/keyed", nil)
	req.Header.Set("X-API-Key", "sekrit")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/keyed", nil)
	req.Header.Set("X-API-Key", "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAllowedIP(t *testing.T) {
	auth := NewAuth(config.APIConfig{Key: "sekrit", AllowedIPs: []string{"10.0.0.5"}})
	r := guardedRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/restricted", nil)
	req.Header.Set("X-API-Key", "sekrit")
	req.RemoteAddr = "10.0.0.5:41234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/restricted", nil)
	req.Header.Set("X-API-Key", "sekrit")
	req.RemoteAddr = "192.168.1.9:41234"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEmptyAllowlistAllowsAll(t *testing.T) {
	auth := NewAuth(config.APIConfig{Key: "sekrit"})
	r := guardedRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/restricted", nil)
	req.Header.Set("X-API-Key", "sekrit")
	req.RemoteAddr = "203.0.113.77:9999"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
