package webhook

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const keyHeader = "X-Webhook-API-Key"

// HashKey digests a key so comparisons run over fixed-length values.
func HashKey(plaintext string) [sha256.Size]byte {
	return sha256.Sum256([]byte(plaintext))
}

// APIKeyAuthMiddleware accepts the shared key from the X-Webhook-API-Key
// header or, for providers that cannot set headers, the "key" query param.
func APIKeyAuthMiddleware(expected string) gin.HandlerFunc {
	want := HashKey(expected)
	return func(c *gin.Context) {
		apiKey := c.GetHeader(keyHeader)
		if apiKey == "" {
			apiKey = c.Query("key")
		}
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		got := HashKey(apiKey)
		if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}
