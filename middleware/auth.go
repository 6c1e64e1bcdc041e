// middleware/auth.go
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atlas-iam/gatekeeper/codec"
	"github.com/atlas-iam/gatekeeper/config"
	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/model"
	"github.com/atlas-iam/gatekeeper/store"
	"github.com/atlas-iam/gatekeeper/util"
)

// Authorizer may grant a request before credential checks run. The
// allow-hosts authorizer is the stock implementation.
type Authorizer interface {
	Allowed(c *gin.Context) bool
}

// AuthMiddleware restores the session for every protected request. The
// decision order is fixed: CORS preflight, then the exclude list, then
// unrouted paths, then authorizers, then credential verification.
type AuthMiddleware struct {
	settings    *config.Settings
	sessions    store.SessionStore
	tokens      *codec.JWT
	authorizers []Authorizer
}

func NewAuthMiddleware(settings *config.Settings, sessions store.SessionStore, tokens *codec.JWT, authorizers ...Authorizer) *AuthMiddleware {
	return &AuthMiddleware{
		settings:    settings,
		sessions:    sessions,
		tokens:      tokens,
		authorizers: authorizers,
	}
}

func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if m.excluded(c.Request.URL.Path) {
			c.Next()
			return
		}
		// Unrouted paths fall through to gin's 404 instead of a 401.
		if c.FullPath() == "" {
			c.Next()
			return
		}
		for _, a := range m.authorizers {
			if a.Allowed(c) {
				c.Set(model.ContextAuthenticated, true)
				c.Next()
				return
			}
		}
		if c.GetBool(model.ContextAuthenticated) {
			c.Next()
			return
		}

		if err := m.restoreSession(c); err != nil {
			util.AbortWithAuthError(c, err)
			return
		}
		c.Next()
	}
}

// excluded reports whether the path bypasses authentication. Entries
// ending in "/" or "*" are prefix matches.
func (m *AuthMiddleware) excluded(path string) bool {
	for _, entry := range m.settings.ExcludeList {
		switch {
		case strings.HasSuffix(entry, "*"):
			if strings.HasPrefix(path, strings.TrimSuffix(entry, "*")) {
				return true
			}
		case strings.HasSuffix(entry, "/"):
			if strings.HasPrefix(path, entry) {
				return true
			}
		default:
			if path == entry {
				return true
			}
		}
	}
	return false
}

// restoreSession resolves the session key from the bearer token or the
// session cookie, loads the session and attaches the principal.
func (m *AuthMiddleware) restoreSession(c *gin.Context) error {
	key, err := m.sessionKey(c)
	if err != nil {
		return err
	}
	if key == "" {
		if m.settings.CredentialsRequired {
			return gk_errors.WithStatus(gk_errors.ErrInvalidAuth, http.StatusUnauthorized, "missing credentials")
		}
		return nil
	}

	session, err := m.sessions.Load(c.Request.Context(), key)
	if err != nil {
		return gk_errors.Wrapf(gk_errors.ErrAuth, "error loading session: %v", err)
	}
	if session == nil {
		if m.settings.CredentialsRequired {
			return gk_errors.WithStatus(gk_errors.ErrAuthExpired, http.StatusUnauthorized, "session expired or not found")
		}
		return nil
	}

	principal := principalFromSession(session)
	c.Set(model.ContextSessionKey, key)
	c.Set(model.ContextUser, principal)
	c.Set(model.ContextAuthenticated, true)
	logger.Debug("Session restored", zap.String("key", key))
	return nil
}

// sessionKey extracts the session key from the Authorization header,
// falling back to the session cookie when secure cookies are enabled.
// An empty key with nil error means no credentials were presented.
func (m *AuthMiddleware) sessionKey(c *gin.Context) (string, error) {
	if auth := c.GetHeader("Authorization"); auth != "" {
		scheme, token, found := strings.Cut(auth, " ")
		if !found || !strings.EqualFold(scheme, m.settings.Scheme) {
			return "", gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "invalid authorization scheme: %s", scheme)
		}
		token = strings.TrimSpace(token)
		// Tenant-prefixed tokens carry "tenant:token".
		if tenant, rest, tenanted := strings.Cut(token, ":"); tenanted {
			c.Set("tenant", tenant)
			token = rest
		}
		claims, err := m.tokens.Decode(token)
		if err != nil {
			return "", err
		}
		key, _ := claims[model.ContextSessionKey].(string)
		if key == "" {
			return "", gk_errors.Wrap(gk_errors.ErrInvalidAuth, "token carries no session key")
		}
		return key, nil
	}

	if m.settings.SecureCookies {
		if cookie, err := c.Cookie(m.settings.SessionCookie); err == nil && cookie != "" {
			claims, err := m.tokens.Decode(cookie)
			if err != nil {
				return "", err
			}
			key, _ := claims[model.ContextSessionKey].(string)
			if key == "" {
				return "", gk_errors.Wrap(gk_errors.ErrInvalidAuth, "cookie carries no session key")
			}
			return key, nil
		}
	}
	return "", nil
}

// principalFromSession rebuilds the request principal from the stored
// session payload. Sessions round-trip through JSON, so the stored
// principal comes back as a generic map.
func principalFromSession(session model.SessionData) *model.Principal {
	principal := &model.Principal{IsAuthenticated: true}
	if raw, ok := session[model.ContextUser]; ok {
		if encoded, err := json.Marshal(raw); err == nil {
			_ = json.Unmarshal(encoded, principal)
			principal.IsAuthenticated = true
		}
	}
	if principal.Username == "" {
		if name, ok := session["username"].(string); ok {
			principal.Username = name
		}
	}
	return principal
}
