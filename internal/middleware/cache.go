package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// CacheControl lets browsers reuse catalogue responses for maxAgeSeconds.
// Responses are per learner, so shared caches must not store them.
func CacheControl(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAgeSeconds))
		c.Next()
	}
}

// NoStore marks live attempt responses as uncacheable.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
