// guardian/guardian.go
package guardian

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/model"
	"github.com/atlas-iam/gatekeeper/pdp"
	"github.com/atlas-iam/gatekeeper/util"
)

// Guardian is the enforcement façade endpoints call to ask whether the
// current request may proceed. It owns the no-match interpretation:
// default deny unless configured otherwise.
type Guardian struct {
	pdp          *pdp.PDP
	defaultAllow bool
	events       *util.EventBus
}

// DecisionEvent is published on util.EventDecision after every Authorize
// call, granted or not.
type DecisionEvent struct {
	Path      string
	Method    string
	Principal *model.Principal
	Decision  pdp.Decision
	Granted   bool
}

// New builds the enforcement facade. events may be nil when no decision
// subscribers are wanted.
func New(decisionPoint *pdp.PDP, defaultAllow bool, events *util.EventBus) *Guardian {
	return &Guardian{pdp: decisionPoint, defaultAllow: defaultAllow, events: events}
}

// Principal extracts the authenticated principal attached by the auth
// middleware, or nil when the request is unauthenticated.
func Principal(c *gin.Context) *model.Principal {
	if v, ok := c.Get(model.ContextUser); ok {
		if principal, ok := v.(*model.Principal); ok {
			return principal
		}
	}
	return nil
}

// Authorize evaluates the stored policies against the request and the
// current principal. Deny — and no-match under default deny — fail with
// ErrForbidden; the decision is returned either way.
func (g *Guardian) Authorize(c *gin.Context) (pdp.Decision, error) {
	if !c.GetBool(model.ContextAuthenticated) {
		return pdp.Decision{Effect: pdp.DecisionDeny}, gk_errors.Wrap(gk_errors.ErrForbidden, "request is not authenticated")
	}
	ctx := g.evalContext(c)
	decision := g.pdp.Evaluate(ctx)
	switch decision.Effect {
	case pdp.DecisionDeny:
		logger.Debug("Access denied by policy",
			zap.String("policy", decision.Policy),
			zap.String("path", ctx.Path))
		g.publish(c, decision, false)
		return decision, gk_errors.Wrapf(gk_errors.ErrForbidden, "denied by policy %q", decision.Policy)
	case pdp.DecisionNoMatch:
		if !g.defaultAllow {
			g.publish(c, decision, false)
			return decision, gk_errors.Wrap(gk_errors.ErrForbidden, "no policy grants access")
		}
	}
	g.publish(c, decision, true)
	return decision, nil
}

func (g *Guardian) publish(c *gin.Context, decision pdp.Decision, granted bool) {
	if g.events == nil {
		return
	}
	g.events.Publish(c.Request.Context(), util.EventDecision, DecisionEvent{
		Path:      c.Request.URL.Path,
		Method:    c.Request.Method,
		Principal: Principal(c),
		Decision:  decision,
		Granted:   granted,
	})
}

// Middleware enforces Authorize on every request that reaches it. The
// auth middleware must run first so the principal is in place.
func (g *Guardian) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := g.Authorize(c); err != nil {
			util.AbortWithAuthError(c, err)
			return
		}
		c.Next()
	}
}

// AllowedGroups checks group membership through a synthetic one-off
// policy; the stored policy set is untouched.
func (g *Guardian) AllowedGroups(c *gin.Context, groups ...string) error {
	if !c.GetBool(model.ContextAuthenticated) {
		return gk_errors.Wrap(gk_errors.ErrForbidden, "request is not authenticated")
	}
	check := &pdp.Policy{Groups: groups}
	if !check.Matches(g.evalContext(c)) {
		return gk_errors.Wrap(gk_errors.ErrForbidden, "access denied: group membership required")
	}
	return nil
}

// HasPermission checks whether the principal carries one of the requested
// permissions in its attributes.
func (g *Guardian) HasPermission(c *gin.Context, permissions ...string) error {
	principal := Principal(c)
	if principal == nil || !c.GetBool(model.ContextAuthenticated) {
		return gk_errors.Wrap(gk_errors.ErrForbidden, "request is not authenticated")
	}
	granted := permissionSet(principal.Attribute("permissions"))
	for _, p := range permissions {
		if granted[p] {
			return nil
		}
	}
	return gk_errors.Wrap(gk_errors.ErrForbidden, "access denied: missing permission")
}

func (g *Guardian) evalContext(c *gin.Context) *pdp.EvalContext {
	return pdp.NewEvalContext(
		c.Request.URL.Path,
		c.Request.Method,
		c.ClientIP(),
		c.Request.Referer(),
		Principal(c),
		nil,
	)
}

func permissionSet(v any) map[string]bool {
	set := make(map[string]bool)
	switch values := v.(type) {
	case []string:
		for _, p := range values {
			set[p] = true
		}
	case []any:
		for _, p := range values {
			if s, ok := p.(string); ok {
				set[s] = true
			}
		}
	}
	return set
}
