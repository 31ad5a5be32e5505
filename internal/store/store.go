package store

import (
	"time"

	"hostplane/internal/approvals"
)

// RequestStore is the single authoritative store for approval requests.
// All mutation goes through CompareAndSwap guarded by the record version;
// records are never deleted so the audit trail stays intact.
type RequestStore interface {
	Create(record *approvals.Request) error
	Get(id string) (*approvals.Request, error)
	// CompareAndSwap persists record when the stored version still equals
	// expectedVersion; on success record.Version is updated in place to
	// the newly stored version
	CompareAndSwap(id string, expectedVersion int64, record *approvals.Request) error
	List(filter ListFilter) ([]*approvals.Request, error)
}

// ListFilter narrows List results; zero values match everything.
// TimeoutNotAfter is inclusive so a request exactly at its deadline is
// already expirable
type ListFilter struct {
	Status          approvals.Status
	RequesterId     string
	TimeoutNotAfter time.Time
}

// Matches applies the filter to a single record
func (f ListFilter) Matches(record *approvals.Request) bool {
	if f.Status != "" && record.Status != f.Status {
		return false
	}
	if f.RequesterId != "" && record.RequesterId != f.RequesterId {
		return false
	}
	if !f.TimeoutNotAfter.IsZero() && record.TimeoutAt.After(f.TimeoutNotAfter) {
		return false
	}
	return true
}
