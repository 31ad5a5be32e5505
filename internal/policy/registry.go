package policy

import (
	"errors"
	"fmt"
	"os"
	"time"

	"hostplane/internal/approvals"

	"gopkg.in/yaml.v3"
)

var (
	ErrorPolicyNotFound = errors.New("policy_not_found")
	ErrorPolicyInvalid  = errors.New("policy_invalid")
)

// Policy is the per-operation-type configuration captured into every
// request at submission time
type Policy struct {
	RiskLevel         approvals.RiskLevel `json:"riskLevel" yaml:"riskLevel"`
	RequiredApprovals int                 `json:"requiredApprovals" yaml:"requiredApprovals"`
	Timeout           time.Duration       `json:"timeout" yaml:"timeout"`
	ApproverRoles     []string            `json:"approverRoles" yaml:"approverRoles"`
}

// UnmarshalYAML accepts timeouts in Go duration notation ("30m", "1h")
func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		RiskLevel         approvals.RiskLevel `yaml:"riskLevel"`
		RequiredApprovals int                 `yaml:"requiredApprovals"`
		Timeout           string              `yaml:"timeout"`
		ApproverRoles     []string            `yaml:"approverRoles"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	timeout, err := time.ParseDuration(raw.Timeout)
	if err != nil {
		return fmt.Errorf("failed to parse timeout[%s]: %w", raw.Timeout, err)
	}
	p.RiskLevel = raw.RiskLevel
	p.RequiredApprovals = raw.RequiredApprovals
	p.Timeout = timeout
	p.ApproverRoles = raw.ApproverRoles
	return nil
}

// AllowsRole reports whether any of the caller's roles is permitted to
// decide on requests governed by this policy
func (p *Policy) AllowsRole(roles []string) bool {
	for _, role := range roles {
		for _, allowed := range p.ApproverRoles {
			if role == allowed {
				return true
			}
		}
	}
	return false
}

// Registry is the static operation-type allowlist; it is loaded once at
// process start and read-only thereafter so concurrent lookups need no
// locking
type Registry struct {
	policies map[approvals.OperationType]Policy
}

type registryFile struct {
	Policies map[approvals.OperationType]Policy `yaml:"policies"`
}

// LoadFromFile reads the policy registry from a YAML file
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file at path[%s]: %w", path, err)
	}
	var parsed registryFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse policy file at path[%s]: %w", path, err)
	}
	return New(parsed.Policies)
}

// New validates the provided policies and returns a Registry; operation
// types absent from the map fail closed on lookup
func New(policies map[approvals.OperationType]Policy) (*Registry, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("failed to receive any policies: %w", ErrorPolicyInvalid)
	}
	for operationType, p := range policies {
		if !operationType.IsValid() {
			return nil, fmt.Errorf("failed to recognise operation[%s]: %w", operationType, ErrorPolicyInvalid)
		}
		if p.RequiredApprovals < 1 {
			return nil, fmt.Errorf("failed to validate policy for operation[%s]: requiredApprovals must be at least 1: %w", operationType, ErrorPolicyInvalid)
		}
		if p.Timeout <= 0 {
			return nil, fmt.Errorf("failed to validate policy for operation[%s]: timeout must be positive: %w", operationType, ErrorPolicyInvalid)
		}
		if len(p.ApproverRoles) == 0 {
			return nil, fmt.Errorf("failed to validate policy for operation[%s]: at least one approver role is required: %w", operationType, ErrorPolicyInvalid)
		}
		switch p.RiskLevel {
		case approvals.RiskLevelLow, approvals.RiskLevelMedium, approvals.RiskLevelHigh, approvals.RiskLevelCritical:
		default:
			return nil, fmt.Errorf("failed to validate policy for operation[%s]: unknown risk level[%s]: %w", operationType, p.RiskLevel, ErrorPolicyInvalid)
		}
	}
	registry := &Registry{policies: map[approvals.OperationType]Policy{}}
	for operationType, p := range policies {
		registry.policies[operationType] = p
	}
	return registry, nil
}

// Lookup returns the policy governing the given operation type; unknown
// operation types return ErrorPolicyNotFound
func (r *Registry) Lookup(operationType approvals.OperationType) (*Policy, error) {
	p, ok := r.policies[operationType]
	if !ok {
		return nil, fmt.Errorf("failed to find a policy for operation[%s]: %w", operationType, ErrorPolicyNotFound)
	}
	return &p, nil
}
