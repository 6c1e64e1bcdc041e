// backend/partner.go
package backend

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atlas-iam/gatekeeper/codec"
	"github.com/atlas-iam/gatekeeper/config"
	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	"github.com/atlas-iam/gatekeeper/model"
	"github.com/atlas-iam/gatekeeper/store"
	"github.com/atlas-iam/gatekeeper/util"
)

// PartnerAuth accepts opaque cipher tokens issued to trusted partners.
// The token decrypts with the shared partner key into a payload that
// must carry the partner user's email; the account is then resolved by
// that email and a first-party JWT is issued for the session.
type PartnerAuth struct {
	base
	cipher *codec.Cipher
}

func NewPartnerAuth(
	settings *config.Settings,
	users store.UserStore,
	sessions store.SessionStore,
	tokens *codec.JWT,
	events *util.EventBus,
) (*PartnerAuth, error) {
	if settings.PartnerKey == "" {
		return nil, gk_errors.Wrap(gk_errors.ErrConfig, "partner auth: missing partner key")
	}
	cipher, err := codec.NewCipher(settings.PartnerKey)
	if err != nil {
		return nil, err
	}
	return &PartnerAuth{
		base: base{
			settings: settings,
			users:    users,
			sessions: sessions,
			tokens:   tokens,
			events:   events,
		},
		cipher: cipher,
	}, nil
}

func (p *PartnerAuth) Name() string { return "partner" }

func (p *PartnerAuth) Info() Info {
	return Info{
		Name:        p.Name(),
		URI:         "/api/v1/login",
		Description: "Partner token authentication",
		External:    true,
		Headers:     map[string]string{"x-auth-method": p.Name()},
	}
}

func (p *PartnerAuth) OnStartup(ctx context.Context) error { return nil }
func (p *PartnerAuth) OnCleanup(ctx context.Context) error { return nil }

// GetPayload reads the partner token from the Authorization header or
// the auth query parameter.
func (p *PartnerAuth) GetPayload(c *gin.Context) (*Credential, error) {
	if auth := c.GetHeader("Authorization"); auth != "" {
		scheme, token, found := strings.Cut(auth, " ")
		if !found || !strings.EqualFold(scheme, p.settings.Scheme) {
			return nil, gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "invalid authorization scheme: %s", scheme)
		}
		return &Credential{Mech: "bearer", Token: strings.TrimSpace(token)}, nil
	}
	if token := c.Query("auth"); token != "" {
		return &Credential{Mech: "query", Token: token}, nil
	}
	return nil, nil
}

func (p *PartnerAuth) Authenticate(c *gin.Context) (*Result, error) {
	cred, err := p.GetPayload(c)
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.Token == "" {
		return nil, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "partner auth: missing token")
	}

	var payload map[string]any
	if err := p.cipher.Decode(cred.Token, &payload); err != nil {
		return nil, err
	}
	email, _ := payload["email"].(string)
	if email == "" {
		return nil, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "partner auth: token carries no email")
	}

	user, err := p.users.Find(c.Request.Context(), map[string]any{"email": email})
	if err != nil {
		return nil, err
	}

	userdata := p.userData(user)
	for k, v := range payload {
		userdata[k] = v
	}
	principal := &model.Principal{
		ID:         user.UserID,
		Username:   user.Username,
		Issuer:     p.settings.Issuer,
		Groups:     user.Groups,
		Attributes: map[string]any{},
	}
	for k, v := range userdata {
		principal.Set(k, v)
	}

	token, err := p.tokens.Create(map[string]any{
		"user_id":               user.UserID,
		"username":              user.Username,
		model.ContextSessionKey: email,
	})
	if err != nil {
		return nil, err
	}
	principal.AccessToken = token

	if err := p.remember(c, p.Name(), email, userdata, principal); err != nil {
		return nil, err
	}
	return &Result{
		Principal: principal,
		Token:     token,
		Payload:   loginPayload(token, userdata),
	}, nil
}

func (p *PartnerAuth) CheckCredentials(c *gin.Context) bool {
	cred, err := p.GetPayload(c)
	return err == nil && cred != nil && cred.Token != ""
}
