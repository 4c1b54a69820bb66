package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware libera CORS para as origens configuradas. "*" (ou lista
// vazia) libera qualquer origem, como em dev.
func CORSMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()
		origin := c.GetHeader("Origin")

		switch {
		case allowAll && origin != "":
			header.Set("Access-Control-Allow-Origin", origin)
			header.Add("Vary", "Origin")
		case allowAll:
			header.Set("Access-Control-Allow-Origin", "*")
		case origins[strings.TrimRight(origin, "/")]:
			header.Set("Access-Control-Allow-Origin", origin)
			header.Add("Vary", "Origin")
		}
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Application-Version")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
