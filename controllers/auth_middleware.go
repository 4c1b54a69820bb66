package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"chatbridge/models"
	"chatbridge/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Tokens are issued by the CRM login service with the user id in "sub":
//   { "sub": <userId>, "email": "...", "iat": ..., "exp": ... }

const ctxUserKey = "auth_user"

// AuthRequired validates the Bearer token and loads the user into context.
// Browsers cannot set headers on a websocket handshake, so ?token= is
// accepted as well.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, ok := requireApp(c)
		if !ok {
			c.Abort()
			return
		}

		raw := bearerToken(c)
		if raw == "" {
			RespondError(c, "missing bearer token", http.StatusUnauthorized)
			c.Abort()
			return
		}

		userID, err := parseUserToken(raw, app.Config.Security.JwtSecret)
		if err != nil {
			RespondError(c, "invalid token", http.StatusUnauthorized)
			c.Abort()
			return
		}

		user, err := app.Directory.Get(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				RespondError(c, "user not found", http.StatusUnauthorized)
			} else {
				RespondServiceError(c, err)
			}
			c.Abort()
			return
		}

		c.Set(ctxUserKey, *user)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}

// parseUserToken verifies an HS256 token and returns its numeric subject.
func parseUserToken(raw, secret string) (int64, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}

	// sub may come as a JSON number or a string
	switch sub := claims["sub"].(type) {
	case float64:
		if sub > 0 {
			return int64(sub), nil
		}
	case string:
		if id, err := strconv.ParseInt(sub, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, errors.New("token without a valid sub")
}

// GetUserLogged returns the user loaded by AuthRequired.
func GetUserLogged(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}
