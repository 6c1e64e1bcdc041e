// middleware/auth_test.go
package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atlas-iam/gatekeeper/codec"
	"github.com/atlas-iam/gatekeeper/config"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/middleware"
	"github.com/atlas-iam/gatekeeper/model"
	gk_mock "github.com/atlas-iam/gatekeeper/test/mock"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.InitLogger()
	m.Run()
}

func authSettings() *config.Settings {
	return &config.Settings{
		Scheme:              "Bearer",
		Issuer:              "urn:gatekeeper",
		SessionTimeout:      time.Hour,
		CredentialsRequired: true,
		SessionCookie:       "gatekeeper_session",
		ExcludeList:         []string{"/api/v1/login", "/static/"},
	}
}

func authEngine(t *testing.T, settings *config.Settings, sessions *gk_mock.MockSessionStore, authorizers ...middleware.Authorizer) (*gin.Engine, *codec.JWT) {
	t.Helper()
	tokens, err := codec.NewJWT("HS256", "test-secret", settings.Issuer, settings.SessionTimeout)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(middleware.NewAuthMiddleware(settings, sessions, tokens, authorizers...).Handler())
	engine.GET("/api/v1/protected", func(c *gin.Context) {
		principal, _ := c.Get(model.ContextUser)
		c.JSON(http.StatusOK, gin.H{
			"authenticated": c.GetBool(model.ContextAuthenticated),
			"has_principal": principal != nil,
		})
	})
	engine.GET("/api/v1/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"login": true})
	})
	return engine, tokens
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("OptionsBypass", func(t *testing.T) {
		engine, _ := authEngine(t, authSettings(), new(gk_mock.MockSessionStore))
		engine.OPTIONS("/api/v1/protected", func(c *gin.Context) { c.Status(http.StatusNoContent) })

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodOptions, "/api/v1/protected", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("ExcludedPathBypass", func(t *testing.T) {
		engine, _ := authEngine(t, authSettings(), new(gk_mock.MockSessionStore))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/login", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("UnroutedPathIs404Not401", func(t *testing.T) {
		engine, _ := authEngine(t, authSettings(), new(gk_mock.MockSessionStore))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/no/such/route", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		engine, _ := authEngine(t, authSettings(), new(gk_mock.MockSessionStore))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/protected", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-AUTH"))
		assert.NotEmpty(t, w.Header().Get("X-ERROR"))
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.EqualValues(t, http.StatusUnauthorized, body["status"])
		assert.NotEmpty(t, body["reason"])
	})

	t.Run("CredentialsNotRequired", func(t *testing.T) {
		settings := authSettings()
		settings.CredentialsRequired = false
		engine, _ := authEngine(t, settings, new(gk_mock.MockSessionStore))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/protected", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["authenticated"])
		assert.Equal(t, false, body["has_principal"])
	})

	t.Run("InvalidScheme", func(t *testing.T) {
		engine, _ := authEngine(t, authSettings(), new(gk_mock.MockSessionStore))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/protected", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("HappyPath", func(t *testing.T) {
		sessions := new(gk_mock.MockSessionStore)
		sessions.On("Load", mock.Anything, "jdoe").Return(model.SessionData{
			"session":  "jdoe",
			"username": "jdoe",
			"user": map[string]any{
				"id":       float64(42),
				"username": "jdoe",
				"groups":   []any{"staff"},
			},
		}, nil)
		engine, tokens := authEngine(t, authSettings(), sessions)

		token, err := tokens.Create(map[string]any{"session": "jdoe"})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, true, body["authenticated"])
		assert.Equal(t, true, body["has_principal"])
	})

	t.Run("SessionExpired", func(t *testing.T) {
		sessions := new(gk_mock.MockSessionStore)
		sessions.On("Load", mock.Anything, "jdoe").Return(nil, nil)
		engine, tokens := authEngine(t, authSettings(), sessions)

		token, err := tokens.Create(map[string]any{"session": "jdoe"})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		engine, tokens := authEngine(t, authSettings(), new(gk_mock.MockSessionStore))

		token, err := tokens.CreateWithExpiration(map[string]any{"session": "jdoe"}, -2*time.Minute)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("SessionCookieFallback", func(t *testing.T) {
		sessions := new(gk_mock.MockSessionStore)
		sessions.On("Load", mock.Anything, "jdoe").Return(model.SessionData{"session": "jdoe"}, nil)
		settings := authSettings()
		settings.SecureCookies = true
		engine, tokens := authEngine(t, settings, sessions)

		token, err := tokens.Create(map[string]any{"session": "jdoe"})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/protected", nil)
		req.AddCookie(&http.Cookie{Name: settings.SessionCookie, Value: token})
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("AllowedHostSkipsCredentials", func(t *testing.T) {
		engine, _ := authEngine(t, authSettings(), new(gk_mock.MockSessionStore),
			middleware.NewAllowHosts([]string{"trusted.internal"}))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/protected", nil)
		req.Host = "trusted.internal"
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAllowHosts(t *testing.T) {
	hosts := middleware.NewAllowHosts([]string{"localhost*", "admin.example.com"})

	check := func(host string) bool {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		req, _ := http.NewRequest("GET", "/", nil)
		req.Host = host
		c.Request = req
		return hosts.Allowed(c)
	}

	assert.True(t, check("localhost:8080"))
	assert.True(t, check("localhost"))
	assert.True(t, check("admin.example.com"))
	assert.False(t, check("evil.example.com"))
}
