package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Origin validation hook for the /ws upgrade: adjust to your own domain logic.
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && c.Request.URL.Path == "/ws" {
			// Example: validate Header/Cookie here before the upgrade.
			// token := c.GetHeader("X-Token")
			// if token == "" { c.AbortWithStatus(401); return }
		}
		c.Next()
	}
}
