package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"printbridge/internal/config"
)

const apiKeyHeader = "X-API-Key"

// Auth guards the API with the shared key from the config and an
// optional source-IP allowlist for the agent-facing endpoints.
type Auth struct {
	key        string
	keyHash    []byte
	allowedIPs map[string]bool
}

func NewAuth(cfg config.APIConfig) *Auth {
	a := &Auth{
		key:        cfg.Key,
		allowedIPs: make(map[string]bool, len(cfg.AllowedIPs)),
	}
	if cfg.KeyHash != "" {
		a.keyHash = []byte(cfg.KeyHash)
	}
	for _, ip := range cfg.AllowedIPs {
		a.allowedIPs[ip] = true
	}
	return a
}

func (a *Auth) keyValid(presented string) bool {
	if len(a.keyHash) > 0 {
		return bcrypt.CompareHashAndPassword(a.keyHash, []byte(presented)) == nil
	}
	if a.key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.key), []byte(presented)) == 1
}

// RequireAPIKey rejects requests without a valid X-API-Key header:
// 401 when the header is absent, 403 when the key does not match.
func (a *Auth) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(apiKeyHeader)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "API key required",
			})
			return
		}
		if !a.keyValid(presented) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"status":  "error",
				"message": "Invalid API key",
			})
			return
		}
		c.Next()
	}
}

// RequireAllowedIP restricts a route to the configured source IPs. An
// empty allowlist disables the check.
func (a *Auth) RequireAllowedIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(a.allowedIPs) == 0 {
			c.Next()
			return
		}
		if !a.allowedIPs[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"status":  "error",
				"message": "IP address not allowed",
			})
			return
		}
		c.Next()
	}
}
