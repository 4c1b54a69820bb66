package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"chatbridge/config"
	"chatbridge/db"
	"chatbridge/models"
	"chatbridge/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T, mutate func(*config.Configuration)) *services.App {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	var conf config.Configuration
	conf.Security.JwtSecret = testSecret
	conf.WhatsApp = config.WhatsApp{
		ApiVersion:            "v24.0",
		RequestTimeoutSeconds: 2,
		MaxAttempts:           1,
		RetryBaseMillis:       1,
		AutoReplyTimeoutSecs:  2,
	}
	if mutate != nil {
		mutate(&conf)
	}
	return services.NewApp(database, conf, nil)
}

func newEngine(app *services.App) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SetAppToContext(app, nil))
	return r
}

func seedUser(t *testing.T, app *services.App, name, role string) models.User {
	t.Helper()
	u := models.User{Name: name, Email: name + "@example.com", Role: role}
	require.NoError(t, app.DB.Create(&u).Error)
	return u
}

func signToken(t *testing.T, secret string, sub any) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "exp": time.Now().Add(time.Hour).Unix()}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
