package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsearch/internal/pkg/errcode"
	"github.com/xxxsen/docsearch/internal/pkg/response"
)

// APIKey rejects requests whose X-API-Key header does not match the
// configured key. An empty configured key disables the check.
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			response.Error(c, errcode.ErrUnauthorized, "invalid api key")
			c.Abort()
			return
		}
		c.Next()
	}
}
