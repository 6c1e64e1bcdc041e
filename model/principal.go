package model

// Request context keys shared between middleware, backends and handlers.
const (
	ContextAuthenticated = "authenticated"
	ContextUser          = "user"
	ContextSessionKey    = "session"
)

// Principal is the authenticated identity attached to a request. It is
// created by a backend on successful verification and lives for the
// duration of the request; sessions are persisted separately.
type Principal struct {
	ID              any            `json:"id"`
	Username        string         `json:"username"`
	Issuer          string         `json:"issuer,omitempty"`
	Groups          []string       `json:"groups,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
	AccessToken     string         `json:"access_token,omitempty"`
	IsAuthenticated bool           `json:"-"`
}

// Attribute returns a named attribute, or nil when absent.
func (p *Principal) Attribute(key string) any {
	if p == nil || p.Attributes == nil {
		return nil
	}
	return p.Attributes[key]
}

// InGroup reports whether the principal belongs to the given group.
func (p *Principal) InGroup(group string) bool {
	if p == nil {
		return false
	}
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Set stores an attribute on the principal.
func (p *Principal) Set(key string, value any) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]any)
	}
	p.Attributes[key] = value
}
