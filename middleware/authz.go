// middleware/authz.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// AllowHosts grants requests coming from an allow-listed host before
// credential checks run. Patterns ending in "*" are prefix matches.
type AllowHosts struct {
	hosts []string
}

func NewAllowHosts(hosts []string) *AllowHosts {
	return &AllowHosts{hosts: hosts}
}

func (a *AllowHosts) Allowed(c *gin.Context) bool {
	host := c.Request.Host
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	for _, pattern := range a.hosts {
		if strings.HasSuffix(pattern, "*") {
			if strings.HasPrefix(host, strings.TrimSuffix(pattern, "*")) {
				return true
			}
			continue
		}
		if strings.EqualFold(host, pattern) {
			return true
		}
	}
	return false
}
