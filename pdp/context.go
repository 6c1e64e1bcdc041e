// pdp/context.go
package pdp

import (
	"time"

	"github.com/atlas-iam/gatekeeper/model"
)

// EvalContext is the request snapshot a policy is evaluated against:
// resource path, method, caller groups and an attribute map merging the
// request environment with the principal's attributes. Built once per
// evaluation, never shared.
type EvalContext struct {
	Path       string
	Method     string
	Groups     []string
	Attributes map[string]any
}

// NewEvalContext assembles the context for a request handled on behalf of
// principal. Extra attributes override derived ones.
func NewEvalContext(path, method, remoteAddr, referer string, principal *model.Principal, extra map[string]any) *EvalContext {
	now := time.Now()
	attrs := map[string]any{
		"path":        path,
		"method":      method,
		"ip_addr":     remoteAddr,
		"referer":     referer,
		"time":        now.Unix(),
		"day_of_week": int(now.Weekday()),
	}
	var groups []string
	if principal != nil {
		groups = principal.Groups
		attrs["user_id"] = principal.ID
		attrs["username"] = principal.Username
		for k, v := range principal.Attributes {
			attrs[k] = v
		}
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &EvalContext{
		Path:       path,
		Method:     method,
		Groups:     groups,
		Attributes: attrs,
	}
}

// Attribute looks up a context attribute by name.
func (c *EvalContext) Attribute(key string) (any, bool) {
	v, ok := c.Attributes[key]
	return v, ok
}
