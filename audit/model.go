// audit/model.go
package audit

import (
	"time"
)

// Event kinds recorded in the audit trail.
const (
	ActionLogin        = "login"
	ActionLoginFailed  = "login_failed"
	ActionLogout       = "logout"
	ActionAccessGrant  = "access_granted"
	ActionAccessDenied = "access_denied"
	ActionPolicyChange = "policy_change"
)

type AuthEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	UserID        string    `json:"user_id"`
	Username      string    `json:"username,omitempty"`
	Action        string    `json:"action"`
	Backend       string    `json:"backend,omitempty"`
	Resource      string    `json:"resource,omitempty"`
	Method        string    `json:"method,omitempty"`
	AccessGranted bool      `json:"access_granted"`
	PolicyName    string    `json:"policy_name,omitempty"`
	RemoteAddr    string    `json:"remote_addr,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}
