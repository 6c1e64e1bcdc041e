// backend/apikey.go
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atlas-iam/gatekeeper/codec"
	"github.com/atlas-iam/gatekeeper/config"
	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	"github.com/atlas-iam/gatekeeper/model"
	"github.com/atlas-iam/gatekeeper/store"
	"github.com/atlas-iam/gatekeeper/util"
)

// APIKeyAuth authenticates device tokens. A token is presented either
// as a Bearer JWT or as a cipher token in the "apikey" query parameter;
// both decode to a {user_id, device_id} pair that must match a live,
// non-revoked key on record.
type APIKeyAuth struct {
	base
	keys   store.APIKeyStore
	cipher *codec.Cipher
}

func NewAPIKeyAuth(
	settings *config.Settings,
	users store.UserStore,
	keys store.APIKeyStore,
	sessions store.SessionStore,
	tokens *codec.JWT,
	cipher *codec.Cipher,
	events *util.EventBus,
) *APIKeyAuth {
	return &APIKeyAuth{
		base: base{
			settings: settings,
			users:    users,
			sessions: sessions,
			tokens:   tokens,
			events:   events,
		},
		keys:   keys,
		cipher: cipher,
	}
}

func (a *APIKeyAuth) Name() string { return "apikey" }

func (a *APIKeyAuth) Info() Info {
	return Info{
		Name:        a.Name(),
		URI:         "/api/v1/login",
		Description: "API key (device token) authentication",
		Headers:     map[string]string{"x-auth-method": a.Name()},
	}
}

func (a *APIKeyAuth) OnStartup(ctx context.Context) error { return nil }
func (a *APIKeyAuth) OnCleanup(ctx context.Context) error { return nil }

// GetPayload pulls the raw token from the Authorization header or the
// apikey query parameter. It does not decode it.
func (a *APIKeyAuth) GetPayload(c *gin.Context) (*Credential, error) {
	if auth := c.GetHeader("Authorization"); auth != "" {
		scheme, token, found := strings.Cut(auth, " ")
		if !found || !strings.EqualFold(scheme, a.settings.Scheme) {
			return nil, gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "invalid authorization scheme: %s", scheme)
		}
		return &Credential{Mech: "bearer", Token: strings.TrimSpace(token)}, nil
	}
	if token := c.Query("apikey"); token != "" {
		return &Credential{Mech: "query", Token: token}, nil
	}
	return nil, nil
}

func (a *APIKeyAuth) Authenticate(c *gin.Context) (*Result, error) {
	cred, err := a.GetPayload(c)
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.Token == "" {
		return nil, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "apikey auth: missing token")
	}

	claims, err := a.decodeToken(cred)
	if err != nil {
		return nil, err
	}
	userID, err := claimInt64(claims, "user_id")
	if err != nil {
		return nil, err
	}
	deviceID, _ := claims["device_id"].(string)
	if deviceID == "" {
		return nil, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "apikey auth: token carries no device id")
	}

	key, err := a.keys.GetKey(c.Request.Context(), userID, deviceID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "unknown or revoked api key for device %s", deviceID)
	}

	user, err := a.users.Find(c.Request.Context(), map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	userdata := a.userData(user)
	userdata["device_id"] = deviceID
	principal := &model.Principal{
		ID:          user.UserID,
		Username:    user.Username,
		Issuer:      a.settings.Issuer,
		Groups:      user.Groups,
		Attributes:  map[string]any{},
		AccessToken: cred.Token,
	}
	for k, v := range userdata {
		principal.Set(k, v)
	}

	if err := a.remember(c, a.Name(), deviceID, userdata, principal); err != nil {
		return nil, err
	}
	// The presented token stays valid; no new token is minted.
	return &Result{
		Principal: principal,
		Token:     cred.Token,
		Payload:   loginPayload(cred.Token, userdata),
	}, nil
}

func (a *APIKeyAuth) CheckCredentials(c *gin.Context) bool {
	cred, err := a.GetPayload(c)
	return err == nil && cred != nil && cred.Token != ""
}

// decodeToken dispatches on how the token was presented: bearer tokens
// must be signed JWTs, query tokens must be cipher blobs. Keeping the
// two mechs separate preserves the JWT error class, in particular an
// expired bearer token surfaces as ErrAuthExpired.
func (a *APIKeyAuth) decodeToken(cred *Credential) (map[string]any, error) {
	if cred.Mech == "bearer" {
		return a.tokens.Decode(cred.Token)
	}
	var claims map[string]any
	if err := a.cipher.Decode(cred.Token, &claims); err != nil {
		return nil, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "apikey auth: undecodable token")
	}
	return claims, nil
}

func claimInt64(claims map[string]any, key string) (int64, error) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "token claim %q is not numeric: %v", key, fmt.Sprintf("%T", v))
	}
}
