// controller/policy_controller.go
package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atlas-iam/gatekeeper/audit"
	gk_errors "github.com/atlas-iam/gatekeeper/errors"
	"github.com/atlas-iam/gatekeeper/guardian"
	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/pdp"
	"github.com/atlas-iam/gatekeeper/util"
)

// PolicyController administers the in-memory policy set of the PDP.
type PolicyController struct {
	decisionPoint *pdp.PDP
	validator     *util.ValidationUtil
	auditor       audit.Service
}

func NewPolicyController(decisionPoint *pdp.PDP, validator *util.ValidationUtil, auditor audit.Service) *PolicyController {
	return &PolicyController{
		decisionPoint: decisionPoint,
		validator:     validator,
		auditor:       auditor,
	}
}

// RegisterRoutes registers the API routes
func (pc *PolicyController) RegisterRoutes(r *gin.RouterGroup) {
	policies := r.Group("/policies")
	{
		policies.POST("", pc.CreatePolicy)
		policies.DELETE("/:name", pc.DeletePolicy)
		policies.GET("/:name", pc.GetPolicy)
		policies.GET("", pc.ListPolicies)
	}
}

// CreatePolicy endpoint
func (pc *PolicyController) CreatePolicy(c *gin.Context) {
	var policy pdp.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", gk_errors.ErrInvalidPolicyData)
		return
	}
	if err := pc.validator.ValidatePolicy(policy); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, err.Error(), gk_errors.ErrInvalidPolicyData)
		return
	}

	if err := pc.decisionPoint.AddPolicy(&policy); err != nil {
		if errors.Is(err, gk_errors.ErrPolicyConflict) {
			util.RespondWithError(c, http.StatusConflict, "Policy already exists", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create policy", err)
		}
		return
	}

	pc.recordChange(c, "policy added: "+policy.Name)
	c.JSON(http.StatusCreated, policy)
}

// DeletePolicy endpoint
func (pc *PolicyController) DeletePolicy(c *gin.Context) {
	name := c.Param("name")
	if err := pc.decisionPoint.RemovePolicy(name); err != nil {
		if errors.Is(err, gk_errors.ErrPolicyNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to delete policy", err)
		}
		return
	}
	pc.recordChange(c, "policy removed: "+name)
	c.Status(http.StatusNoContent)
}

// GetPolicy endpoint
func (pc *PolicyController) GetPolicy(c *gin.Context) {
	name := c.Param("name")
	for _, policy := range pc.decisionPoint.Policies() {
		if policy.Name == name {
			c.JSON(http.StatusOK, policy)
			return
		}
	}
	util.RespondWithError(c, http.StatusNotFound, "Policy not found", gk_errors.ErrPolicyNotFound)
}

// ListPolicies endpoint
func (pc *PolicyController) ListPolicies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"policies": pc.decisionPoint.Policies()})
}

// recordChange writes a policy mutation to the audit trail, best effort.
func (pc *PolicyController) recordChange(c *gin.Context, reason string) {
	if pc.auditor == nil {
		return
	}
	event := audit.AuthEvent{
		Timestamp: time.Now().UTC(),
		Action:    audit.ActionPolicyChange,
		Resource:  c.Request.URL.Path,
		Method:    c.Request.Method,
		Reason:    reason,
	}
	if principal := guardian.Principal(c); principal != nil {
		event.Username = principal.Username
	}
	if err := pc.auditor.LogEvent(c.Request.Context(), event); err != nil {
		logger.Warn("Failed to write audit event", zap.Error(err))
	}
}
