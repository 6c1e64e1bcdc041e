// guardian/guardian_test.go
package guardian_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	"github.com/atlas-iam/gatekeeper/guardian"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/model"
	"github.com/atlas-iam/gatekeeper/pdp"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.InitLogger()
	m.Run()
}

func requestContext(t *testing.T, method, path string, principal *model.Principal) *gin.Context {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	c.Request = req
	if principal != nil {
		c.Set(model.ContextUser, principal)
		c.Set(model.ContextAuthenticated, true)
	}
	return c
}

func analyst() *model.Principal {
	return &model.Principal{
		ID:       int64(3),
		Username: "analyst",
		Groups:   []string{"analysts"},
		Attributes: map[string]any{
			"permissions": []string{"reports.read"},
		},
		IsAuthenticated: true,
	}
}

func TestAuthorize(t *testing.T) {
	decisionPoint, err := pdp.NewPDP(
		&pdp.Policy{Name: "reports", Resource: "/reports/*", Groups: []string{"analysts"}},
		&pdp.Policy{Name: "no-exports", Resource: "/reports/export", Effect: pdp.EffectDeny},
	)
	require.NoError(t, err)
	guard := guardian.New(decisionPoint, false, nil)

	t.Run("Allowed", func(t *testing.T) {
		c := requestContext(t, "GET", "/reports/daily", analyst())
		decision, err := guard.Authorize(c)
		require.NoError(t, err)
		assert.Equal(t, pdp.DecisionAllow, decision.Effect)
		assert.Equal(t, "reports", decision.Policy)
	})

	t.Run("DeniedByPolicy", func(t *testing.T) {
		c := requestContext(t, "GET", "/reports/export", analyst())
		decision, err := guard.Authorize(c)
		assert.True(t, errors.Is(err, gk_errors.ErrForbidden))
		assert.Equal(t, pdp.DecisionDeny, decision.Effect)
	})

	t.Run("NoMatchIsDeniedByDefault", func(t *testing.T) {
		c := requestContext(t, "GET", "/somewhere/else", analyst())
		_, err := guard.Authorize(c)
		assert.True(t, errors.Is(err, gk_errors.ErrForbidden))
	})

	t.Run("NoMatchWithDefaultAllow", func(t *testing.T) {
		permissive := guardian.New(decisionPoint, true, nil)
		c := requestContext(t, "GET", "/somewhere/else", analyst())
		decision, err := permissive.Authorize(c)
		require.NoError(t, err)
		assert.Equal(t, pdp.DecisionNoMatch, decision.Effect)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		c := requestContext(t, "GET", "/reports/daily", nil)
		_, err := guard.Authorize(c)
		assert.True(t, errors.Is(err, gk_errors.ErrForbidden))
	})
}

func TestAllowedGroups(t *testing.T) {
	decisionPoint, err := pdp.NewPDP()
	require.NoError(t, err)
	guard := guardian.New(decisionPoint, false, nil)

	t.Run("Member", func(t *testing.T) {
		c := requestContext(t, "GET", "/anything", analyst())
		assert.NoError(t, guard.AllowedGroups(c, "analysts", "admins"))
	})

	t.Run("NotAMember", func(t *testing.T) {
		c := requestContext(t, "GET", "/anything", analyst())
		err := guard.AllowedGroups(c, "admins")
		assert.True(t, errors.Is(err, gk_errors.ErrForbidden))
	})
}

func TestHasPermission(t *testing.T) {
	decisionPoint, err := pdp.NewPDP()
	require.NoError(t, err)
	guard := guardian.New(decisionPoint, false, nil)

	t.Run("Granted", func(t *testing.T) {
		c := requestContext(t, "GET", "/anything", analyst())
		assert.NoError(t, guard.HasPermission(c, "reports.read"))
	})

	t.Run("Missing", func(t *testing.T) {
		c := requestContext(t, "GET", "/anything", analyst())
		err := guard.HasPermission(c, "reports.write")
		assert.True(t, errors.Is(err, gk_errors.ErrForbidden))
	})
}
