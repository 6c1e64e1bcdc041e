// controller/auth_controller_test.go
package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atlas-iam/gatekeeper/backend"
	"github.com/atlas-iam/gatekeeper/codec"
	"github.com/atlas-iam/gatekeeper/config"
	"github.com/atlas-iam/gatekeeper/controller"
	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/model"
	gk_mock "github.com/atlas-iam/gatekeeper/test/mock"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.InitLogger()
	m.Run()
}

// scriptedBackend returns a canned result or error from Authenticate.
type scriptedBackend struct {
	name   string
	result *backend.Result
	err    error
}

func (s *scriptedBackend) Name() string { return s.name }
func (s *scriptedBackend) Info() backend.Info {
	return backend.Info{Name: s.name, URI: "/api/v1/login"}
}
func (s *scriptedBackend) OnStartup(ctx context.Context) error { return nil }
func (s *scriptedBackend) OnCleanup(ctx context.Context) error { return nil }
func (s *scriptedBackend) GetPayload(c *gin.Context) (*backend.Credential, error) {
	return nil, nil
}
func (s *scriptedBackend) Authenticate(c *gin.Context) (*backend.Result, error) {
	return s.result, s.err
}
func (s *scriptedBackend) CheckCredentials(c *gin.Context) bool { return s.err == nil }

func controllerSettings() *config.Settings {
	return &config.Settings{
		Scheme:         "Bearer",
		Issuer:         "urn:gatekeeper",
		SessionTimeout: time.Hour,
		SessionCookie:  "gatekeeper_session",
	}
}

func authRouter(t *testing.T, sessions *gk_mock.MockSessionStore, backends ...backend.Backend) (*gin.Engine, *codec.JWT) {
	t.Helper()
	settings := controllerSettings()
	tokens, err := codec.NewJWT("HS256", "test-secret", settings.Issuer, settings.SessionTimeout)
	require.NoError(t, err)

	ac := controller.NewAuthController(settings, backend.NewRegistry(backends...), sessions, tokens, nil)
	engine := gin.New()
	api := engine.Group("/api/v1")
	ac.RegisterRoutes(api)
	return engine, tokens
}

func loginResult(token string) *backend.Result {
	return &backend.Result{
		Principal: &model.Principal{ID: int64(42), Username: "jdoe", IsAuthenticated: true},
		Token:     token,
		Payload:   map[string]any{"token": token, "username": "jdoe"},
	}
}

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		engine, _ := authRouter(t, new(gk_mock.MockSessionStore),
			&scriptedBackend{name: "basic", result: loginResult("tok-123")})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/login", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "tok-123", body["token"])
		assert.Equal(t, "jdoe", body["username"])
	})

	t.Run("AuditsFailuresOnly", func(t *testing.T) {
		// Successful logins are audited by the login event subscriber,
		// so the controller records failures only. A second entry here
		// would double-count every authentication.
		settings := controllerSettings()
		tokens, err := codec.NewJWT("HS256", "test-secret", settings.Issuer, settings.SessionTimeout)
		require.NoError(t, err)
		auditor := new(gk_mock.MockAuditService)
		auditor.On("LogEvent", mock.Anything, mock.Anything).Return(nil)

		registry := backend.NewRegistry(&scriptedBackend{name: "basic", result: loginResult("tok-123")})
		ac := controller.NewAuthController(settings, registry, new(gk_mock.MockSessionStore), tokens, auditor)
		engine := gin.New()
		ac.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/login", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		auditor.AssertNotCalled(t, "LogEvent", mock.Anything, mock.Anything)

		failRegistry := backend.NewRegistry(&scriptedBackend{name: "basic", err: gk_errors.Wrap(gk_errors.ErrFailedAuth, "bad password")})
		ac = controller.NewAuthController(settings, failRegistry, new(gk_mock.MockSessionStore), tokens, auditor)
		engine = gin.New()
		ac.RegisterRoutes(engine.Group("/api/v1"))

		w = httptest.NewRecorder()
		req, _ = http.NewRequest("POST", "/api/v1/login", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		auditor.AssertNumberOfCalls(t, "LogEvent", 1)
	})

	t.Run("PinnedMethod", func(t *testing.T) {
		engine, _ := authRouter(t, new(gk_mock.MockSessionStore),
			&scriptedBackend{name: "basic", err: gk_errors.Wrap(gk_errors.ErrFailedAuth, "bad password")},
			&scriptedBackend{name: "partner", result: loginResult("tok-partner")})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/login", nil)
		req.Header.Set(backend.MethodHeader, "partner")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "tok-partner", body["token"])
	})

	t.Run("UnknownPinnedMethod", func(t *testing.T) {
		engine, _ := authRouter(t, new(gk_mock.MockSessionStore),
			&scriptedBackend{name: "basic", result: loginResult("tok")})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/login", nil)
		req.Header.Set(backend.MethodHeader, "saml")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body["reason"], "unacceptable auth method")
	})

	t.Run("AllBackendsFail", func(t *testing.T) {
		engine, _ := authRouter(t, new(gk_mock.MockSessionStore),
			&scriptedBackend{name: "basic", err: gk_errors.Wrap(gk_errors.ErrInvalidAuth, "no credentials")},
			&scriptedBackend{name: "apikey", err: gk_errors.Wrap(gk_errors.ErrFailedAuth, "bad token")})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/login", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "login failure in all auth methods", w.Header().Get("X-AUTH"))
	})
}

func TestLogout(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		sessions := new(gk_mock.MockSessionStore)
		sessions.On("Forget", mock.Anything, "jdoe").Return(nil)
		engine, tokens := authRouter(t, sessions,
			&scriptedBackend{name: "basic", result: loginResult("tok")})

		token, err := tokens.Create(map[string]any{"session": "jdoe"})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.EqualValues(t, http.StatusAccepted, body["state"])
		sessions.AssertExpectations(t)
	})

	t.Run("WithoutSession", func(t *testing.T) {
		engine, _ := authRouter(t, new(gk_mock.MockSessionStore),
			&scriptedBackend{name: "basic", result: loginResult("tok")})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/logout", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetSession(t *testing.T) {
	t.Run("StripsStoredPrincipal", func(t *testing.T) {
		sessions := new(gk_mock.MockSessionStore)
		sessions.On("Load", mock.Anything, "jdoe").Return(model.SessionData{
			"session":  "jdoe",
			"username": "jdoe",
			"user":     map[string]any{"id": float64(42)},
		}, nil)
		engine, tokens := authRouter(t, sessions,
			&scriptedBackend{name: "basic", result: loginResult("tok")})

		token, err := tokens.Create(map[string]any{"session": "jdoe"})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/user/session", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "jdoe", body["username"])
		assert.NotContains(t, body, "user")
	})

	t.Run("ProgramSlice", func(t *testing.T) {
		sessions := new(gk_mock.MockSessionStore)
		sessions.On("Load", mock.Anything, "jdoe").Return(model.SessionData{
			"session":   "jdoe",
			"navigator": map[string]any{"theme": "dark"},
		}, nil)
		engine, tokens := authRouter(t, sessions,
			&scriptedBackend{name: "basic", result: loginResult("tok")})

		token, err := tokens.Create(map[string]any{"session": "jdoe"})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/session/navigator", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, map[string]any{"theme": "dark"}, body)
	})

	t.Run("NoSessionIsEmptyObject", func(t *testing.T) {
		engine, _ := authRouter(t, new(gk_mock.MockSessionStore),
			&scriptedBackend{name: "basic", result: loginResult("tok")})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/user/session", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "{}", w.Body.String())
	})
}

func TestAuthMethods(t *testing.T) {
	engine, _ := authRouter(t, new(gk_mock.MockSessionStore),
		&scriptedBackend{name: "basic"},
		&scriptedBackend{name: "partner"})

	t.Run("ListAll", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/auth/methods", nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Methods []backend.Info `json:"methods"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Methods, 2)
		assert.Equal(t, "basic", body.Methods[0].Name)
		assert.Equal(t, "partner", body.Methods[1].Name)
	})

	t.Run("FilterByName", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/auth/methods", jsonBody(`{"name":"partner"}`))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Methods []backend.Info `json:"methods"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Methods, 1)
		assert.Equal(t, "partner", body.Methods[0].Name)
	})

	t.Run("UnknownName", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/auth/methods", jsonBody(`{"name":"saml"}`))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
