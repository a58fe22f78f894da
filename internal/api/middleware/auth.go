package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/popup-village/portal-backend/internal/service"
)

const citizenIDKey = "citizenID"

// AuthMiddleware validates JWT tokens and sets the citizen context
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Printf("❌ [Auth] Missing Authorization header - Path: %s", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			log.Printf("❌ [Auth] Invalid header format - Path: %s", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		tokenString := parts[1]

		// Validate token
		token, err := authService.ValidateToken(tokenString)
		if err != nil || !token.Valid {
			log.Printf("❌ [Auth] Invalid token - Path: %s, Error: %v", c.Request.URL.Path, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// Extract citizen ID from token
		citizenID, err := authService.GetCitizenIDFromToken(token)
		if err != nil {
			log.Printf("❌ [Auth] Failed to extract citizenID - Path: %s, Error: %v", c.Request.URL.Path, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			c.Abort()
			return
		}

		// Set citizen ID in context for handlers
		c.Set(citizenIDKey, citizenID)
		c.Next()
	}
}

// GetCitizenID reads the authenticated citizen id set by AuthMiddleware.
func GetCitizenID(c *gin.Context) (int64, bool) {
	value, exists := c.Get(citizenIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}

// SetCitizenID is used by tests to inject an authenticated citizen.
func SetCitizenID(c *gin.Context, id int64) {
	c.Set(citizenIDKey, id)
}
