package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hostplane/internal/approvals"
)

func TestLoadFromFile(t *testing.T) {
	policyYaml := `
policies:
  service_stop:
    riskLevel: medium
    requiredApprovals: 1
    timeout: 30m
    approverRoles:
      - operator
      - admin
  shutdown:
    riskLevel: critical
    requiredApprovals: 2
    timeout: 15m
    approverRoles:
      - admin
`
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(policyYaml), 0o600); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	registry, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile returned error: %v", err)
	}
	p, err := registry.Lookup(approvals.OperationServiceStop)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if p.RequiredApprovals != 1 {
		t.Errorf("expected requiredApprovals of 1, got %v", p.RequiredApprovals)
	}
	if p.Timeout != 30*time.Minute {
		t.Errorf("expected timeout of 30m, got %v", p.Timeout)
	}
	if !p.AllowsRole([]string{"operator"}) {
		t.Errorf("expected role[operator] to be allowed")
	}
	if p.AllowsRole([]string{"viewer"}) {
		t.Errorf("expected role[viewer] to be denied")
	}
}

func TestLookupFailsClosed(t *testing.T) {
	registry, err := New(map[approvals.OperationType]Policy{
		approvals.OperationServiceStop: {
			RiskLevel:         approvals.RiskLevelMedium,
			RequiredApprovals: 1,
			Timeout:           time.Hour,
			ApproverRoles:     []string{"admin"},
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := registry.Lookup(approvals.OperationShutdown); !errors.Is(err, ErrorPolicyNotFound) {
		t.Fatalf("expected ErrorPolicyNotFound, got: %v", err)
	}
}

func TestNewRejectsInvalidPolicies(t *testing.T) {
	base := Policy{
		RiskLevel:         approvals.RiskLevelHigh,
		RequiredApprovals: 1,
		Timeout:           time.Hour,
		ApproverRoles:     []string{"admin"},
	}

	zeroApprovals := base
	zeroApprovals.RequiredApprovals = 0
	if _, err := New(map[approvals.OperationType]Policy{approvals.OperationShutdown: zeroApprovals}); err == nil {
		t.Errorf("expected zero requiredApprovals to be rejected")
	}

	zeroTimeout := base
	zeroTimeout.Timeout = 0
	if _, err := New(map[approvals.OperationType]Policy{approvals.OperationShutdown: zeroTimeout}); err == nil {
		t.Errorf("expected zero timeout to be rejected")
	}

	noRoles := base
	noRoles.ApproverRoles = nil
	if _, err := New(map[approvals.OperationType]Policy{approvals.OperationShutdown: noRoles}); err == nil {
		t.Errorf("expected empty approver roles to be rejected")
	}

	if _, err := New(map[approvals.OperationType]Policy{approvals.OperationType("disk_format"): base}); err == nil {
		t.Errorf("expected unknown operation type to be rejected")
	}
}
