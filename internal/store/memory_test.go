package store

import (
	"errors"
	"testing"
	"time"

	"hostplane/internal/approvals"
)

func newPendingRequest(id string) *approvals.Request {
	return &approvals.Request{
		Id:                id,
		OperationType:     approvals.OperationServiceStop,
		Payload:           []byte(`{"service":"nginx"}`),
		RequesterId:       "requester-1",
		RiskLevel:         approvals.RiskLevelMedium,
		RequiredApprovals: 1,
		TimeoutAt:         time.Now().Add(time.Hour),
		Status:            approvals.StatusPending,
		Version:           0,
		CreatedAt:         time.Now(),
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	memory := NewMemory()
	record := newPendingRequest("req-1")
	if err := memory.Create(record); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := memory.Create(record); !errors.Is(err, ErrorDuplicateEntry) {
		t.Fatalf("expected ErrorDuplicateEntry on second create, got: %v", err)
	}
	stored, err := memory.Get("req-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.Status != approvals.StatusPending {
		t.Errorf("expected status pending, got %s", stored.Status)
	}
	if _, err := memory.Get("missing"); !errors.Is(err, ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound for missing id, got: %v", err)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	memory := NewMemory()
	if err := memory.Create(newPendingRequest("req-1")); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	first, _ := memory.Get("req-1")
	first.Status = approvals.StatusCancelled
	first.Decisions = append(first.Decisions, approvals.Decision{ApproverId: "x"})
	second, _ := memory.Get("req-1")
	if second.Status != approvals.StatusPending {
		t.Errorf("mutating a returned record changed the stored record")
	}
	if len(second.Decisions) != 0 {
		t.Errorf("mutating a returned record's decisions changed the stored record")
	}
}

func TestMemoryCompareAndSwap(t *testing.T) {
	memory := NewMemory()
	if err := memory.Create(newPendingRequest("req-1")); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	record, _ := memory.Get("req-1")
	record.Status = approvals.StatusCancelled
	if err := memory.CompareAndSwap("req-1", record.Version, record); err != nil {
		t.Fatalf("CompareAndSwap returned error: %v", err)
	}
	if record.Version != 1 {
		t.Errorf("expected the swapped record's version to be bumped to 1, got %v", record.Version)
	}

	stored, _ := memory.Get("req-1")
	if stored.Version != 1 {
		t.Errorf("expected version to be bumped to 1, got %v", stored.Version)
	}
	if stored.Status != approvals.StatusCancelled {
		t.Errorf("expected status cancelled, got %s", stored.Status)
	}

	// the stale writer must lose
	if err := memory.CompareAndSwap("req-1", 0, record); !errors.Is(err, ErrorConflict) {
		t.Fatalf("expected ErrorConflict for stale version, got: %v", err)
	}
	if err := memory.CompareAndSwap("missing", 0, record); !errors.Is(err, ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound for missing id, got: %v", err)
	}
}

func TestMemoryList(t *testing.T) {
	memory := NewMemory()
	pending := newPendingRequest("req-1")
	pending.CreatedAt = time.Now().Add(-2 * time.Minute)
	expired := newPendingRequest("req-2")
	expired.TimeoutAt = time.Now().Add(-time.Hour)
	expired.CreatedAt = time.Now().Add(-time.Minute)
	cancelled := newPendingRequest("req-3")
	cancelled.Status = approvals.StatusCancelled
	for _, record := range []*approvals.Request{pending, expired, cancelled} {
		if err := memory.Create(record); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	pendingOnly, err := memory.List(ListFilter{Status: approvals.StatusPending})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(pendingOnly) != 2 {
		t.Fatalf("expected 2 pending records, got %d", len(pendingOnly))
	}
	if pendingOnly[0].Id != "req-1" {
		t.Errorf("expected results ordered by creation time, got %s first", pendingOnly[0].Id)
	}

	dueForExpiry, err := memory.List(ListFilter{
		Status:          approvals.StatusPending,
		TimeoutNotAfter: time.Now(),
	})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(dueForExpiry) != 1 || dueForExpiry[0].Id != "req-2" {
		t.Fatalf("expected only the timed-out pending record, got %d records", len(dueForExpiry))
	}
}

func TestMemoryListIncludesDeadlineBoundary(t *testing.T) {
	memory := NewMemory()
	deadline := time.Now().Add(-time.Minute)
	atDeadline := newPendingRequest("req-1")
	atDeadline.TimeoutAt = deadline
	stillLive := newPendingRequest("req-2")
	stillLive.TimeoutAt = deadline.Add(time.Second)
	for _, record := range []*approvals.Request{atDeadline, stillLive} {
		if err := memory.Create(record); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	// a request exactly at its deadline is already expirable
	dueForExpiry, err := memory.List(ListFilter{
		Status:          approvals.StatusPending,
		TimeoutNotAfter: deadline,
	})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(dueForExpiry) != 1 || dueForExpiry[0].Id != "req-1" {
		t.Fatalf("expected the record at its deadline to be listed, got %d records", len(dueForExpiry))
	}
}
