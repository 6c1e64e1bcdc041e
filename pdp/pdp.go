// pdp/pdp.go
package pdp

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	gk_errors "github.com/atlas-iam/gatekeeper/errors"
)

// DecisionEffect is the outcome of one evaluation.
type DecisionEffect int

const (
	DecisionNoMatch DecisionEffect = iota
	DecisionAllow
	DecisionDeny
)

func (d DecisionEffect) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	default:
		return "no_match"
	}
}

// Decision is the PDP's verdict plus the name of the deciding policy, if
// any. Interpreting a no-match verdict is the caller's policy.
type Decision struct {
	Effect DecisionEffect `json:"effect"`
	Policy string         `json:"policy,omitempty"`
}

// PDP is the policy decision point. The policy set is copy-on-write:
// Evaluate reads an immutable snapshot, so admin mutation never blocks
// the hot path and readers never observe a half-updated set.
type PDP struct {
	mu       sync.Mutex // serializes administrative mutation
	policies atomic.Pointer[[]*Policy]
	seq      int
}

func NewPDP(policies ...*Policy) (*PDP, error) {
	p := &PDP{}
	empty := []*Policy{}
	p.policies.Store(&empty)
	for _, policy := range policies {
		if err := p.AddPolicy(policy); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddPolicy registers a policy. Names are unique within a PDP; an unnamed
// policy gets a generated one.
func (p *PDP) AddPolicy(policy *Policy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if policy.Name == "" {
		policy.Name = uuid.NewString()
	}
	current := *p.policies.Load()
	for _, existing := range current {
		if existing.Name == policy.Name {
			return gk_errors.Wrapf(gk_errors.ErrPolicyConflict, "policy %q already exists", policy.Name)
		}
	}
	p.seq++
	policy.seq = p.seq

	next := make([]*Policy, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, policy)
	sortPolicies(next)
	p.policies.Store(&next)
	return nil
}

// RemovePolicy drops a policy by name.
func (p *PDP) RemovePolicy(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := *p.policies.Load()
	next := make([]*Policy, 0, len(current))
	found := false
	for _, policy := range current {
		if policy.Name == name {
			found = true
			continue
		}
		next = append(next, policy)
	}
	if !found {
		return gk_errors.Wrapf(gk_errors.ErrPolicyNotFound, "policy %q not found", name)
	}
	p.policies.Store(&next)
	return nil
}

// Policies returns a snapshot of the ordered policy set.
func (p *PDP) Policies() []*Policy {
	current := *p.policies.Load()
	out := make([]*Policy, len(current))
	copy(out, current)
	return out
}

// Evaluate scans the policy set in priority order and combines with
// deny-overrides: any matching deny policy wins immediately; otherwise
// the first matching allow policy wins; otherwise no policy applied.
func (p *PDP) Evaluate(ctx *EvalContext) Decision {
	var allowed *Policy
	for _, policy := range *p.policies.Load() {
		if !policy.Matches(ctx) {
			continue
		}
		if policy.Effect == EffectDeny {
			return Decision{Effect: DecisionDeny, Policy: policy.Name}
		}
		if allowed == nil {
			allowed = policy
		}
	}
	if allowed != nil {
		return Decision{Effect: DecisionAllow, Policy: allowed.Name}
	}
	return Decision{Effect: DecisionNoMatch}
}

// sortPolicies orders by ascending priority, insertion order as tiebreak.
func sortPolicies(policies []*Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority < policies[j].Priority
		}
		return policies[i].seq < policies[j].seq
	})
}
