// backend/base.go
package backend

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atlas-iam/gatekeeper/codec"
	"github.com/atlas-iam/gatekeeper/config"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/model"
	"github.com/atlas-iam/gatekeeper/store"
	"github.com/atlas-iam/gatekeeper/util"
)

// LoginEvent is the payload published on util.EventLogin after a
// successful authentication.
type LoginEvent struct {
	Backend   string
	Principal *model.Principal
	UserData  model.SessionData
}

// base carries the wiring every backend variant shares: configuration,
// stores, token codec and the success-callback bus.
type base struct {
	settings *config.Settings
	users    store.UserStore
	sessions store.SessionStore
	tokens   *codec.JWT
	events   *util.EventBus
}

// userData builds the session payload from a user record through the
// configured attribute mapping. The password column is always excluded.
func (b *base) userData(user *model.UserRecord) model.SessionData {
	data := make(model.SessionData, len(b.settings.UserMapping))
	for name, column := range b.settings.UserMapping {
		if column == "password" {
			continue
		}
		if value := user.Column(column); value != nil {
			data[name] = value
		}
	}
	if len(user.Groups) > 0 {
		data["groups"] = user.Groups
	}
	return data
}

// remember persists the session and attaches the principal to the
// request. A cancelled request aborts before the session write, so a
// dead request never leaves a partial session behind. The stored
// session is a copy: the caller's userdata is never given the session
// key or the principal, so login responses built from it cannot leak
// the stored principal.
func (b *base) remember(c *gin.Context, backendName, key string, userdata model.SessionData, principal *model.Principal) error {
	ctx := c.Request.Context()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("request cancelled before session write: %w", err)
	}
	session := make(model.SessionData, len(userdata)+2)
	for k, v := range userdata {
		session[k] = v
	}
	session[model.ContextSessionKey] = key
	session[model.ContextUser] = principal
	if err := b.sessions.Save(ctx, key, session, b.settings.SessionTimeout); err != nil {
		return fmt.Errorf("error creating user session: %w", err)
	}
	principal.IsAuthenticated = true
	c.Set(model.ContextSessionKey, key)
	c.Set(model.ContextUser, principal)
	c.Set(model.ContextAuthenticated, true)

	if b.events != nil {
		b.events.Publish(ctx, util.EventLogin, LoginEvent{
			Backend:   backendName,
			Principal: principal,
			UserData:  userdata,
		})
	}
	logger.Debug("Session remembered",
		zap.String("backend", backendName),
		zap.String("key", key))
	return nil
}

// loginPayload assembles the {token, ...userdata} login response body.
func loginPayload(token string, userdata model.SessionData) map[string]any {
	payload := make(map[string]any, len(userdata)+1)
	for k, v := range userdata {
		payload[k] = v
	}
	payload["token"] = token
	return payload
}
