// backend/basic.go
package backend

import (
	"context"
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

// BasicAuth verifies user/password credentials taken from the query
// string, a form body or a JSON body, depending on content type. On
// success it issues a fresh JWT and stores a session keyed by username.
type BasicAuth struct {
	base
	hasher       *codec.PasswordHasher
	usernameAttr string
	passwordAttr string
	useridAttr   string
}

func NewBasicAuth(
	settings *config.Settings,
	users store.UserStore,
	sessions store.SessionStore,
	tokens *codec.JWT,
	hasher *codec.PasswordHasher,
	events *util.EventBus,
) *BasicAuth {
	return &BasicAuth{
		base: base{
			settings: settings,
			users:    users,
			sessions: sessions,
			tokens:   tokens,
			events:   events,
		},
		hasher:       hasher,
		usernameAttr: "username",
		passwordAttr: "password",
		useridAttr:   "user_id",
	}
}

func (b *BasicAuth) Name() string { return "basic" }

func (b *BasicAuth) Info() Info {
	return Info{
		Name:        b.Name(),
		URI:         "/api/v1/login",
		Description: "Basic user/password authentication",
		Headers:     map[string]string{"x-auth-method": b.Name()},
	}
}

func (b *BasicAuth) OnStartup(ctx context.Context) error { return nil }
func (b *BasicAuth) OnCleanup(ctx context.Context) error { return nil }

// GetPayload extracts login and password without verifying them. It
// returns nil when the request carries no basic credentials.
func (b *BasicAuth) GetPayload(c *gin.Context) (*Credential, error) {
	var login, password string
	switch {
	case c.Request.Method == "GET":
		login = c.Query(b.usernameAttr)
		password = c.Query(b.passwordAttr)
	case isFormContent(c.ContentType()):
		login = c.PostForm(b.usernameAttr)
		password = c.PostForm(b.passwordAttr)
	case c.ContentType() == "application/json":
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			return nil, nil
		}
		login = body[b.usernameAttr]
		password = body[b.passwordAttr]
	}
	if login == "" && password == "" {
		return nil, nil
	}
	return &Credential{Mech: "form", Login: login, Password: password}, nil
}

func (b *BasicAuth) Authenticate(c *gin.Context) (*Result, error) {
	cred, err := b.GetPayload(c)
	if err != nil {
		return nil, gk_errors.Wrapf(gk_errors.ErrAuth, "error reading credentials: %v", err)
	}
	if cred == nil || cred.Login == "" || cred.Password == "" {
		return nil, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "basic auth: invalid credentials")
	}

	user, err := b.validateUser(c, cred.Login, cred.Password)
	if err != nil {
		return nil, err
	}

	userdata := b.userData(user)
	userdata[b.usernameAttr] = user.Username
	principal := &model.Principal{
		ID:         user.UserID,
		Username:   user.Username,
		Issuer:     b.settings.Issuer,
		Groups:     user.Groups,
		Attributes: map[string]any{},
	}
	for k, v := range userdata {
		principal.Set(k, v)
	}

	token, err := b.tokens.Create(map[string]any{
		b.useridAttr:           user.UserID,
		b.usernameAttr:         user.Username,
		model.ContextSessionKey: user.Username,
	})
	if err != nil {
		return nil, err
	}
	principal.AccessToken = token

	if err := b.remember(c, b.Name(), user.Username, userdata, principal); err != nil {
		return nil, err
	}
	return &Result{
		Principal: principal,
		Token:     token,
		Payload:   loginPayload(token, userdata),
	}, nil
}

func (b *BasicAuth) CheckCredentials(c *gin.Context) bool {
	cred, err := b.GetPayload(c)
	return err == nil && cred != nil && cred.Login != "" && cred.Password != ""
}

// validateUser looks the account up and verifies the password.
func (b *BasicAuth) validateUser(c *gin.Context, login, password string) (*model.UserRecord, error) {
	user, err := b.users.Find(c.Request.Context(), map[string]any{b.usernameAttr: login})
	if err != nil {
		return nil, err
	}
	ok, err := b.hasher.Verify(user.Password, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Debug("Password mismatch", zap.String("username", login))
		return nil, gk_errors.Wrap(gk_errors.ErrFailedAuth, "basic auth: invalid credentials")
	}
	return user, nil
}

func isFormContent(contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "multipart/mixed"),
		strings.HasPrefix(contentType, "multipart/form-data"),
		strings.HasPrefix(contentType, "application/x-www-form-urlencoded"):
		return true
	}
	return false
}
