package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "auth_user_id"

// authRequired validates the bearer token and stashes the user id in the
// request context.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header is required"})
			c.Abort()
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token format"})
			c.Abort()
			return
		}

		userID, err := s.authSvc.ParseToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// currentUserID reads the id the middleware stored.
func currentUserID(c *gin.Context) uint64 {
	return c.GetUint64(userIDKey)
}
