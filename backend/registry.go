// backend/registry.go
package backend

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	logger "github.com/atlas-iam/gatekeeper/logging"
)

// MethodHeader selects a single backend by name for a login attempt.
const MethodHeader = "X-Auth-Method"

// Registry holds the configured backends in their configured order.
// The order matters: TryAll walks it front to back and the first
// backend to fully succeed wins.
type Registry struct {
	backends []Backend
	byName   map[string]Backend
}

func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{byName: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.backends = append(r.backends, b)
		r.byName[b.Name()] = b
	}
	return r
}

// Backends returns the backends in registration order.
func (r *Registry) Backends() []Backend {
	out := make([]Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// Resolve returns the backend registered under name.
func (r *Registry) Resolve(name string) (Backend, error) {
	b, ok := r.byName[name]
	if !ok {
		return nil, gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "unacceptable auth method: %s", name)
	}
	return b, nil
}

// TryAll attempts authentication against every backend in order. A
// soft failure (wrong or missing credentials for that backend) moves
// on to the next one; a hard failure aborts immediately. When every
// backend fails softly the caller gets a Forbidden.
func (r *Registry) TryAll(c *gin.Context) (*Result, error) {
	for _, b := range r.backends {
		res, err := b.Authenticate(c)
		if err == nil {
			return res, nil
		}
		if gk_errors.Soft(err) {
			logger.Debug("Backend declined, trying next",
				zap.String("backend", b.Name()), zap.Error(err))
			continue
		}
		return nil, err
	}
	return nil, gk_errors.Wrap(gk_errors.ErrForbidden, "login failure in all auth methods")
}

// OnStartup runs every backend's startup hook. The first error stops
// the rollout.
func (r *Registry) OnStartup(ctx context.Context) error {
	for _, b := range r.backends {
		if err := b.OnStartup(ctx); err != nil {
			return gk_errors.Wrapf(err, "backend %s startup failed", b.Name())
		}
	}
	return nil
}

// OnCleanup runs every cleanup hook, best effort.
func (r *Registry) OnCleanup(ctx context.Context) {
	for _, b := range r.backends {
		if err := b.OnCleanup(ctx); err != nil {
			logger.Warn("Backend cleanup failed",
				zap.String("backend", b.Name()), zap.Error(err))
		}
	}
}
