// backend/backend.go
package backend

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/atlas-iam/gatekeeper/model"
)

// Info describes a configured backend for the auth-methods endpoint.
type Info struct {
	Name        string            `json:"name"`
	URI         string            `json:"uri"`
	Description string            `json:"description"`
	External    bool              `json:"external"`
	Headers     map[string]string `json:"headers"`
}

// Credential is the transient, backend-specific representation of what
// the caller presented. It exists only during one authentication attempt.
type Credential struct {
	Mech     string // "bearer", "api", "form", ...
	Token    string
	Tenant   string
	Login    string
	Password string
}

// Result is a successful authentication: the principal, the access token
// and the login response payload ({token, ...userdata}).
type Result struct {
	Principal *model.Principal
	Token     string
	Payload   map[string]any
}

// Backend verifies one credential kind and produces a Principal.
// GetPayload only extracts, it never verifies; Authenticate fails with
// the class errors of the errors package so the registry can classify
// soft and hard failures.
type Backend interface {
	Name() string
	Info() Info
	OnStartup(ctx context.Context) error
	OnCleanup(ctx context.Context) error
	GetPayload(c *gin.Context) (*Credential, error)
	Authenticate(c *gin.Context) (*Result, error)
	CheckCredentials(c *gin.Context) bool
}
