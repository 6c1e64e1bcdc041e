// pdp/policy.go
package pdp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Effect is the outcome a policy applies when it matches.
type Effect int

const (
	EffectAllow Effect = iota // default when unspecified
	EffectDeny
)

func (e Effect) String() string {
	if e == EffectDeny {
		return "deny"
	}
	return "allow"
}

func (e Effect) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *Effect) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch strings.ToLower(raw) {
	case "", "allow":
		*e = EffectAllow
	case "deny":
		*e = EffectDeny
	default:
		return fmt.Errorf("policy effect must be either 'allow' or 'deny', got %q", raw)
	}
	return nil
}

// Condition is one context predicate: either an equality check or a
// negated-set check (the attribute value must be absent from the set).
type Condition struct {
	Equals any      `json:"equals,omitempty"`
	NotIn  []string `json:"not_in,omitempty"`
}

// Equals builds an equality predicate.
func Equals(v any) Condition {
	return Condition{Equals: v}
}

// NotIn builds a negated-set predicate.
func NotIn(values ...string) Condition {
	return Condition{NotIn: values}
}

// UnmarshalJSON accepts either a literal value (equality) or an object
// with a "not_in" list.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var obj struct {
		Equals json.RawMessage `json:"equals"`
		NotIn  []string        `json:"not_in"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && (obj.NotIn != nil || obj.Equals != nil) {
		c.NotIn = obj.NotIn
		if obj.Equals != nil {
			var v any
			if err := json.Unmarshal(obj.Equals, &v); err != nil {
				return err
			}
			c.Equals = v
		}
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.Equals = v
	return nil
}

func (c Condition) holds(value any, present bool) bool {
	if len(c.NotIn) > 0 {
		if !present {
			return true
		}
		current := fmt.Sprint(value)
		for _, excluded := range c.NotIn {
			if current == excluded {
				return false
			}
		}
		return true
	}
	if !present {
		return false
	}
	return fmt.Sprint(value) == fmt.Sprint(c.Equals)
}

// Policy is a named, immutable access rule. The zero Effect is allow.
type Policy struct {
	Name        string               `json:"name" binding:"required"`
	Description string               `json:"description,omitempty"`
	Resource    string               `json:"resource"`
	Methods     []string             `json:"methods,omitempty"`
	Groups      []string             `json:"groups,omitempty"`
	Context     map[string]Condition `json:"context,omitempty"`
	Effect      Effect               `json:"effect"`
	Priority    int                  `json:"priority"`

	seq int // insertion order, tiebreak for equal priorities
}

// Matches reports whether the policy applies to the evaluation context:
// resource pattern AND method filter AND group intersection AND every
// context predicate.
func (p *Policy) Matches(ctx *EvalContext) bool {
	if !matchResource(p.Resource, ctx.Path) {
		return false
	}
	if len(p.Methods) > 0 {
		matched := false
		for _, m := range p.Methods {
			if strings.EqualFold(m, ctx.Method) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(p.Groups) > 0 && !intersects(p.Groups, ctx.Groups) {
		return false
	}
	for key, condition := range p.Context {
		value, present := ctx.Attribute(key)
		if !condition.holds(value, present) {
			return false
		}
	}
	return true
}

// matchResource matches a path against an exact pattern or a glob with a
// single leading or trailing "*".
func matchResource(pattern, path string) bool {
	switch {
	case pattern == "" || pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(path, strings.TrimPrefix(pattern, "*"))
	default:
		return path == pattern
	}
}

func intersects(required, actual []string) bool {
	for _, r := range required {
		for _, a := range actual {
			if r == a {
				return true
			}
		}
	}
	return false
}
