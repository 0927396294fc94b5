package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Tiburon07/adnks/pkg/response"
)

// StaffToken guards staff-only endpoints with a single opaque bearer token.
// Only the SHA-256 hash of the token (base64) is configured; the presented
// token is hashed and compared in constant time.
func StaffToken(tokenSHA256B64 string) gin.HandlerFunc {
	known, err := base64.StdEncoding.DecodeString(tokenSHA256B64)
	misconfigured := err != nil || len(known) != sha256.Size

	return func(c *gin.Context) {
		if misconfigured {
			response.Internal(c, "staff token not configured")
			c.Abort()
			return
		}
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Header("WWW-Authenticate", `Bearer realm="api", error="invalid_request"`)
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		sum := sha256.Sum256([]byte(token))
		if subtle.ConstantTimeCompare(known, sum[:]) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
