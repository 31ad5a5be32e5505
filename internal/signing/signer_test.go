package signing

import (
	"strings"
	"testing"
	"time"

	"hostplane/internal/approvals"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	signer, err := New([]byte(strings.Repeat("s", 32)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return signer
}

func TestSignAndVerify(t *testing.T) {
	signer := newTestSigner(t)
	now := time.Now()
	decision := approvals.Decision{
		ApproverId: "approver-1",
		Decision:   approvals.DecisionApprove,
		Timestamp:  now,
	}
	decision.Signature = signer.SignDecision("req-1", decision.ApproverId, decision.Decision, decision.Timestamp)
	if !signer.VerifyDecision("req-1", decision) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	signer := newTestSigner(t)
	now := time.Now()
	decision := approvals.Decision{
		ApproverId: "approver-1",
		Decision:   approvals.DecisionReject,
		Timestamp:  now,
	}
	decision.Signature = signer.SignDecision("req-1", decision.ApproverId, decision.Decision, decision.Timestamp)

	tampered := decision
	tampered.Decision = approvals.DecisionApprove
	if signer.VerifyDecision("req-1", tampered) {
		t.Fatalf("expected flipped decision to fail verification")
	}

	tampered = decision
	tampered.ApproverId = "approver-2"
	if signer.VerifyDecision("req-1", tampered) {
		t.Fatalf("expected swapped approver to fail verification")
	}

	if signer.VerifyDecision("req-2", decision) {
		t.Fatalf("expected signature to be bound to the request id")
	}
}

func TestVerifyAcrossTimezones(t *testing.T) {
	signer := newTestSigner(t)
	loc := time.FixedZone("UTC+8", 8*60*60)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 123456789, loc)
	decision := approvals.Decision{
		ApproverId: "approver-1",
		Decision:   approvals.DecisionApprove,
		Timestamp:  ts,
	}
	decision.Signature = signer.SignDecision("req-1", decision.ApproverId, decision.Decision, decision.Timestamp)
	decision.Timestamp = ts.UTC()
	if !signer.VerifyDecision("req-1", decision) {
		t.Fatalf("expected canonical encoding to be timezone independent")
	}
}

func TestNewRejectsShortSecret(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Fatalf("expected short master secret to be rejected")
	}
}

func TestDifferentSecretsProduceDifferentSignatures(t *testing.T) {
	signerA := newTestSigner(t)
	signerB, err := New([]byte(strings.Repeat("x", 32)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	now := time.Now()
	sigA := signerA.SignDecision("req-1", "approver-1", approvals.DecisionApprove, now)
	sigB := signerB.SignDecision("req-1", "approver-1", approvals.DecisionApprove, now)
	if sigA == sigB {
		t.Fatalf("expected signatures under different secrets to differ")
	}
}
