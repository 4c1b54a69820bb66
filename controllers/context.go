package controllers

import (
	"chatbridge/realtime"
	"chatbridge/services"

	"github.com/gin-gonic/gin"
)

const appKey = "app"
const hubKey = "hub"

// Use este middleware no setup do gin
func SetAppToContext(app *services.App, hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(appKey, app)
		if hub != nil {
			c.Set(hubKey, hub)
		}
		c.Next()
	}
}

func AppInstance(c *gin.Context) *services.App {
	v, ok := c.Get(appKey)
	if !ok {
		return nil
	}
	app, _ := v.(*services.App)
	return app
}

func HubInstance(c *gin.Context) *realtime.Hub {
	v, ok := c.Get(hubKey)
	if !ok {
		return nil
	}
	hub, _ := v.(*realtime.Hub)
	return hub
}

// requireApp answers 500 when the router was wired without services.
func requireApp(c *gin.Context) (*services.App, bool) {
	app := AppInstance(c)
	if app == nil {
		RespondError(c, "services não configurados no contexto", 500)
		return nil, false
	}
	return app, true
}
