package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/mockexam-backend/internal/response"
)

// CheckSingleDeviceSession validates the JWT's JTI against the active session
// in Redis. A newer login or a logout invalidates older tokens.
func CheckSingleDeviceSession(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := auth.ValidateSession(c.Request.Context(), claims.LearnerID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
