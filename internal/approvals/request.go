package approvals

import (
	"encoding/json"
	"time"
)

// Request is the central record of the approval workflow. Policy values
// are captured at submission time and stay fixed for the lifetime of the
// record even if the policy registry is reloaded with different values.
type Request struct {
	Id                string          `json:"id"`
	OperationType     OperationType   `json:"operationType"`
	Payload           json.RawMessage `json:"payload"`
	RequesterId       string          `json:"requesterId"`
	RiskLevel         RiskLevel       `json:"riskLevel"`
	RequiredApprovals int             `json:"requiredApprovals"`
	TimeoutAt         time.Time       `json:"timeoutAt"`
	Status            Status          `json:"status"`
	Decisions         []Decision      `json:"decisions"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"createdAt"`
	ExecutedBy        *string         `json:"executedBy,omitempty"`
	ExecutedAt        *time.Time      `json:"executedAt,omitempty"`
	ExecutionResult   *string         `json:"executionResult,omitempty"`
}

type Decision struct {
	ApproverId string       `json:"approverId"`
	Decision   DecisionType `json:"decision"`
	Timestamp  time.Time    `json:"timestamp"`
	Signature  string       `json:"signature"`
}

// DecisionOf returns the decision recorded by the given approver, or nil
// when the approver has not decided on this request yet
func (r *Request) DecisionOf(approverId string) *Decision {
	for i := range r.Decisions {
		if r.Decisions[i].ApproverId == approverId {
			return &r.Decisions[i]
		}
	}
	return nil
}

// ApprovalCount returns the number of distinct approvers that recorded an
// `approve` decision
func (r *Request) ApprovalCount() int {
	seen := map[string]bool{}
	for _, decision := range r.Decisions {
		if decision.Decision == DecisionApprove {
			seen[decision.ApproverId] = true
		}
	}
	return len(seen)
}

// Clone returns a deep copy so that callers can compute the next state
// without mutating the copy they read
func (r *Request) Clone() *Request {
	next := *r
	if r.Payload != nil {
		next.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	next.Decisions = append([]Decision(nil), r.Decisions...)
	if r.ExecutedBy != nil {
		executedBy := *r.ExecutedBy
		next.ExecutedBy = &executedBy
	}
	if r.ExecutedAt != nil {
		executedAt := *r.ExecutedAt
		next.ExecutedAt = &executedAt
	}
	if r.ExecutionResult != nil {
		executionResult := *r.ExecutionResult
		next.ExecutionResult = &executionResult
	}
	return &next
}
