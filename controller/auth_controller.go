// controller/auth_controller.go
package controller

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atlas-iam/gatekeeper/audit"
	"github.com/atlas-iam/gatekeeper/backend"
	"github.com/atlas-iam/gatekeeper/codec"
	"github.com/atlas-iam/gatekeeper/config"
	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/model"
	"github.com/atlas-iam/gatekeeper/store"
	"github.com/atlas-iam/gatekeeper/util"
)

// AuthController exposes login, logout, session inspection and backend
// discovery.
type AuthController struct {
	settings *config.Settings
	registry *backend.Registry
	sessions store.SessionStore
	tokens   *codec.JWT
	auditor  audit.Service
}

func NewAuthController(
	settings *config.Settings,
	registry *backend.Registry,
	sessions store.SessionStore,
	tokens *codec.JWT,
	auditor audit.Service,
) *AuthController {
	return &AuthController{
		settings: settings,
		registry: registry,
		sessions: sessions,
		tokens:   tokens,
		auditor:  auditor,
	}
}

// RegisterRoutes registers the API routes
func (ac *AuthController) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", ac.Login)
	r.GET("/login", ac.Login)
	r.POST("/logout", ac.Logout)
	r.GET("/logout", ac.Logout)
	r.GET("/user/session", ac.GetSession)
	r.GET("/session/:program", ac.GetSession)
	r.GET("/auth/methods", ac.AuthMethods)
	r.POST("/auth/methods", ac.AuthMethods)
}

// Login authenticates the request. An X-Auth-Method header pins a
// single backend; without it every backend is tried in order.
func (ac *AuthController) Login(c *gin.Context) {
	var result *backend.Result
	var err error

	if method := c.GetHeader(backend.MethodHeader); method != "" {
		var b backend.Backend
		b, err = ac.registry.Resolve(method)
		if err == nil {
			result, err = b.Authenticate(c)
		}
	} else {
		result, err = ac.registry.TryAll(c)
	}

	if err != nil {
		ac.record(c, audit.AuthEvent{
			Action:     audit.ActionLoginFailed,
			Resource:   c.Request.URL.Path,
			Method:     c.Request.Method,
			RemoteAddr: c.ClientIP(),
			Reason:     gk_errors.ReasonOf(err),
		})
		util.AbortWithAuthError(c, err)
		return
	}

	if ac.settings.SecureCookies {
		c.SetCookie(
			ac.settings.SessionCookie,
			result.Token,
			int(ac.settings.SessionTimeout.Seconds()),
			"/", "", true, true,
		)
	}
	// Successful logins are audited by the EventLogin subscriber; only
	// failures are recorded here.
	c.JSON(http.StatusOK, result.Payload)
}

// Logout drops the session and clears the session cookie.
func (ac *AuthController) Logout(c *gin.Context) {
	key := ac.sessionKey(c)
	if key == "" {
		util.AbortWithAuthError(c, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "logout without a session"))
		return
	}
	if err := ac.sessions.Forget(c.Request.Context(), key); err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to close session", err)
		return
	}
	if ac.settings.SecureCookies {
		c.SetCookie(ac.settings.SessionCookie, "", -1, "/", "", true, true)
	}
	ac.record(c, audit.AuthEvent{
		Action:     audit.ActionLogout,
		RemoteAddr: c.ClientIP(),
	})
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Logout successful",
		"state":   http.StatusAccepted,
	})
}

// GetSession returns the current session payload. With a program
// parameter only that program's slice of the session is returned. The
// stored principal never leaves the server.
func (ac *AuthController) GetSession(c *gin.Context) {
	key := ac.sessionKey(c)
	if key == "" {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	session, err := ac.sessions.Load(c.Request.Context(), key)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to load session", err)
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	if program := c.Param("program"); program != "" {
		if slice, ok := session[program].(map[string]any); ok {
			c.JSON(http.StatusOK, slice)
		} else {
			c.JSON(http.StatusOK, gin.H{})
		}
		return
	}

	payload := make(map[string]any, len(session))
	for k, v := range session {
		if k == model.ContextUser {
			continue
		}
		payload[k] = v
	}
	c.JSON(http.StatusOK, payload)
}

// AuthMethods describes the configured backends. A POST body with a
// name filters the listing to one backend.
func (ac *AuthController) AuthMethods(c *gin.Context) {
	var filter struct {
		Name string `json:"name"`
	}
	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindJSON(&filter); err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid filter", err)
			return
		}
	}

	var methods []backend.Info
	for _, b := range ac.registry.Backends() {
		if filter.Name != "" && b.Name() != filter.Name {
			continue
		}
		methods = append(methods, b.Info())
	}
	if filter.Name != "" && len(methods) == 0 {
		util.RespondWithError(c, http.StatusNotFound, "Unknown auth method", gk_errors.ErrInvalidAuth)
		return
	}
	c.JSON(http.StatusOK, gin.H{"methods": methods})
}

// sessionKey resolves the session key from the request context or,
// when the auth middleware did not run, from the bearer token.
func (ac *AuthController) sessionKey(c *gin.Context) string {
	if key := c.GetString(model.ContextSessionKey); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return ""
	}
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, ac.settings.Scheme) {
		return ""
	}
	claims, err := ac.tokens.Decode(strings.TrimSpace(token))
	if err != nil {
		return ""
	}
	key, _ := claims[model.ContextSessionKey].(string)
	return key
}

// record writes the event to the audit trail, best effort.
func (ac *AuthController) record(c *gin.Context, event audit.AuthEvent) {
	if ac.auditor == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	if event.Resource == "" {
		event.Resource = c.Request.URL.Path
	}
	if event.Method == "" {
		event.Method = c.Request.Method
	}
	if err := ac.auditor.LogEvent(c.Request.Context(), event); err != nil {
		logger.Warn("Failed to write audit event", zap.Error(err))
	}
}
