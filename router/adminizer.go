package router

import (
	"net/http"

	"chatbridge/controllers"

	"github.com/gin-gonic/gin"
)

// Adminizer blocks access when the CRM user is not an admin.
func Adminizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := controllers.GetUserLogged(c)
		if !ok {
			controllers.RespondError(c, "unauthorized", http.StatusUnauthorized)
			c.Abort()
			return
		}
		if !user.IsAdmin() {
			controllers.RespondError(c, "admin required", http.StatusForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
