// util/validation_util.go

package util

import (
	"fmt"

	"github.com/atlas-iam/gatekeeper/pdp"
)

type ValidationUtil struct{}

func NewValidationUtil() *ValidationUtil {
	return &ValidationUtil{}
}

func (v *ValidationUtil) ValidatePolicy(policy pdp.Policy) error {
	if policy.Name == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	if policy.Priority < 0 {
		return fmt.Errorf("policy priority cannot be negative")
	}
	if policy.Resource == "" {
		return fmt.Errorf("policy must name a resource pattern")
	}
	for key, condition := range policy.Context {
		if key == "" {
			return fmt.Errorf("context predicate key cannot be empty")
		}
		if condition.Equals == nil && len(condition.NotIn) == 0 {
			return fmt.Errorf("context predicate %q must carry a value or a not_in set", key)
		}
	}
	return nil
}
