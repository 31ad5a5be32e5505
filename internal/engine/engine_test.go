package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hostplane/internal/approvals"
	"hostplane/internal/audit"
	"hostplane/internal/dispatch"
	"hostplane/internal/identity"
	"hostplane/internal/policy"
	"hostplane/internal/signing"
	"hostplane/internal/store"
)

var testSigningSecret = []byte("0123456789abcdef0123456789abcdef")

type recordingAudit struct {
	mutex   sync.Mutex
	entries []audit.LogEntry
}

func (a *recordingAudit) Record(entry audit.LogEntry) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) get() []audit.LogEntry {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return append([]audit.LogEntry(nil), a.entries...)
}

type testFixture struct {
	engine     *Engine
	store      *store.Memory
	auditor    *recordingAudit
	executions *int64
}

func newTestFixture(t *testing.T, handler dispatch.Handler) *testFixture {
	t.Helper()
	memory := store.NewMemory()
	auditor := &recordingAudit{}
	executions := new(int64)

	if handler == nil {
		handler = dispatch.HandlerFunc(func(ctx context.Context, payload json.RawMessage) (*dispatch.Result, error) {
			atomic.AddInt64(executions, 1)
			return &dispatch.Result{Success: true, Detail: "done"}, nil
		})
	} else {
		inner := handler
		handler = dispatch.HandlerFunc(func(ctx context.Context, payload json.RawMessage) (*dispatch.Result, error) {
			atomic.AddInt64(executions, 1)
			return inner.Handle(ctx, payload)
		})
	}

	handlers := map[approvals.OperationType]dispatch.Handler{}
	for _, operationType := range approvals.OperationTypes {
		handlers[operationType] = handler
	}
	dispatcher, err := dispatch.NewDispatcher(dispatch.NewDispatcherOpts{
		Store:    memory,
		Handlers: handlers,
		Audit:    auditor,
	})
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}

	policies, err := policy.New(map[approvals.OperationType]policy.Policy{
		approvals.OperationServiceStop: {
			RiskLevel:         approvals.RiskLevelMedium,
			RequiredApprovals: 2,
			Timeout:           30 * time.Minute,
			ApproverRoles:     []string{"operator", "admin"},
		},
		approvals.OperationShutdown: {
			RiskLevel:         approvals.RiskLevelCritical,
			RequiredApprovals: 1,
			Timeout:           10 * time.Minute,
			ApproverRoles:     []string{"admin"},
		},
	})
	if err != nil {
		t.Fatalf("policy.New returned error: %v", err)
	}

	signer, err := signing.New(testSigningSecret)
	if err != nil {
		t.Fatalf("signing.New returned error: %v", err)
	}

	roles := identity.NewStatic(map[string][]string{
		"alice": {"operator"},
		"bob":   {"operator"},
		"carol": {"admin"},
		"dave":  {"viewer"},
	})

	approvalEngine, err := NewEngine(NewEngineOpts{
		Store:      memory,
		Policies:   policies,
		Signer:     signer,
		Dispatcher: dispatcher,
		Roles:      roles,
		Audit:      auditor,
	})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	return &testFixture{
		engine:     approvalEngine,
		store:      memory,
		auditor:    auditor,
		executions: executions,
	}
}

func submitServiceStop(t *testing.T, f *testFixture, requesterId string) *approvals.Request {
	t.Helper()
	record, err := f.engine.Submit(SubmitOpts{
		RequesterId:   requesterId,
		OperationType: approvals.OperationServiceStop,
		Payload:       json.RawMessage(`{"service":"nginx"}`),
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	return record
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	if record.Status != approvals.StatusPending {
		t.Errorf("expected status pending, got %s", record.Status)
	}
	if record.RiskLevel != approvals.RiskLevelMedium {
		t.Errorf("expected risk level medium, got %s", record.RiskLevel)
	}
	if record.RequiredApprovals != 2 {
		t.Errorf("expected 2 required approvals, got %d", record.RequiredApprovals)
	}
	if record.Version != 0 {
		t.Errorf("expected version 0, got %d", record.Version)
	}
	expectedTimeout := record.CreatedAt.Add(30 * time.Minute)
	if !record.TimeoutAt.Equal(expectedTimeout) {
		t.Errorf("expected timeout at %s, got %s", expectedTimeout, record.TimeoutAt)
	}

	entries := f.auditor.get()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Verb != audit.Submit || entries[0].ToState != approvals.StatusPending {
		t.Errorf("unexpected audit entry: %+v", entries[0])
	}
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	f := newTestFixture(t, nil)
	_, err := f.engine.Submit(SubmitOpts{
		RequesterId:   "requester",
		OperationType: approvals.OperationServiceStop,
		Payload:       json.RawMessage(`{"service":"nginx","extra":true}`),
	})
	if !errors.Is(err, ErrorValidation) {
		t.Fatalf("expected ErrorValidation, got %v", err)
	}
	records, err := f.store.List(store.ListFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected nothing persisted, found %d records", len(records))
	}
}

func TestSubmitWithoutPolicyIsRefused(t *testing.T) {
	f := newTestFixture(t, nil)
	_, err := f.engine.Submit(SubmitOpts{
		RequesterId:   "requester",
		OperationType: approvals.OperationUserDelete,
		Payload:       json.RawMessage(`{"username":"mallory"}`),
	})
	if !errors.Is(err, policy.ErrorPolicyNotFound) {
		t.Fatalf("expected ErrorPolicyNotFound, got %v", err)
	}
}

func TestApproveBelowQuorumStaysPending(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	updated, err := f.engine.Approve(record.Id, "alice")
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if updated.Status != approvals.StatusPending {
		t.Errorf("expected status pending, got %s", updated.Status)
	}
	if updated.ApprovalCount() != 1 {
		t.Errorf("expected 1 approval, got %d", updated.ApprovalCount())
	}
	if updated.Version != 1 {
		t.Errorf("expected version 1, got %d", updated.Version)
	}
	if atomic.LoadInt64(f.executions) != 0 {
		t.Errorf("expected no executions, got %d", atomic.LoadInt64(f.executions))
	}
}

func TestQuorumTriggersExecution(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	if _, err := f.engine.Approve(record.Id, "alice"); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	updated, err := f.engine.Approve(record.Id, "bob")
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if updated.Status != approvals.StatusExecuted {
		t.Fatalf("expected status executed, got %s", updated.Status)
	}
	if updated.ExecutedBy == nil || *updated.ExecutedBy != "bob" {
		t.Errorf("expected execution attributed to bob, got %v", updated.ExecutedBy)
	}
	if atomic.LoadInt64(f.executions) != 1 {
		t.Errorf("expected exactly 1 execution, got %d", atomic.LoadInt64(f.executions))
	}
	stored, err := f.store.Get(record.Id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if updated.Version != stored.Version {
		t.Errorf("expected returned version %v to match stored version %v", updated.Version, stored.Version)
	}
	for _, decision := range updated.Decisions {
		if !f.engine.signer.VerifyDecision(updated.Id, decision) {
			t.Errorf("decision by %s failed signature verification", decision.ApproverId)
		}
	}

	var toStates []approvals.Status
	for _, entry := range f.auditor.get() {
		toStates = append(toStates, entry.ToState)
	}
	expected := []approvals.Status{approvals.StatusPending, approvals.StatusApproved, approvals.StatusExecuted}
	if len(toStates) != len(expected) {
		t.Fatalf("expected transitions %v, got %v", expected, toStates)
	}
	for i := range expected {
		if toStates[i] != expected[i] {
			t.Fatalf("expected transitions %v, got %v", expected, toStates)
		}
	}
}

func TestRejectIsVeto(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	if _, err := f.engine.Approve(record.Id, "alice"); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	updated, err := f.engine.Reject(record.Id, "carol")
	if err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if updated.Status != approvals.StatusRejected {
		t.Fatalf("expected status rejected, got %s", updated.Status)
	}
	if atomic.LoadInt64(f.executions) != 0 {
		t.Errorf("expected no executions, got %d", atomic.LoadInt64(f.executions))
	}

	// a later approval must be refused, terminal states are final
	if _, err := f.engine.Approve(record.Id, "bob"); !errors.Is(err, ErrorNotPending) {
		t.Fatalf("expected ErrorNotPending, got %v", err)
	}
}

func TestSelfApprovalIsForbidden(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "alice")

	_, err := f.engine.Approve(record.Id, "alice")
	if !errors.Is(err, ErrorForbidden) || !errors.Is(err, ErrorSelfApproval) {
		t.Fatalf("expected self approval to be forbidden, got %v", err)
	}
}

func TestDuplicateDecisionIsForbidden(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	if _, err := f.engine.Approve(record.Id, "alice"); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	_, err := f.engine.Approve(record.Id, "alice")
	if !errors.Is(err, ErrorForbidden) || !errors.Is(err, ErrorDuplicateDecision) {
		t.Fatalf("expected duplicate decision to be forbidden, got %v", err)
	}
}

func TestApproverRoleIsEnforced(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	_, err := f.engine.Approve(record.Id, "dave")
	if !errors.Is(err, ErrorForbidden) || !errors.Is(err, ErrorRoleNotAllowed) {
		t.Fatalf("expected role check to refuse dave, got %v", err)
	}
}

func TestDecisionAfterDeadlineIsExpired(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	f.engine.now = func() time.Time {
		return record.TimeoutAt.Add(time.Second)
	}
	_, err := f.engine.Approve(record.Id, "alice")
	if !errors.Is(err, ErrorExpired) {
		t.Fatalf("expected ErrorExpired, got %v", err)
	}

	// the record itself is untouched until the sweeper gets to it
	fresh, err := f.store.Get(record.Id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fresh.Status != approvals.StatusPending {
		t.Errorf("expected status pending, got %s", fresh.Status)
	}
}

func TestCancelByRequester(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	if _, err := f.engine.Cancel(record.Id, "mallory"); !errors.Is(err, ErrorNotRequester) {
		t.Fatalf("expected ErrorNotRequester, got %v", err)
	}

	updated, err := f.engine.Cancel(record.Id, "requester")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if updated.Status != approvals.StatusCancelled {
		t.Fatalf("expected status cancelled, got %s", updated.Status)
	}

	if _, err := f.engine.Cancel(record.Id, "requester"); !errors.Is(err, ErrorNotPending) {
		t.Fatalf("expected ErrorNotPending, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	f := newTestFixture(t, nil)
	expiring := submitServiceStop(t, f, "requester")

	f.engine.now = func() time.Time {
		return expiring.TimeoutAt.Add(time.Minute)
	}
	fresh := submitServiceStop(t, f, "requester")

	f.engine.now = func() time.Time {
		return expiring.TimeoutAt.Add(2 * time.Minute)
	}
	expired, err := f.engine.SweepExpired()
	if err != nil {
		t.Fatalf("SweepExpired returned error: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired request, got %d", expired)
	}

	first, _ := f.store.Get(expiring.Id)
	if first.Status != approvals.StatusExpired {
		t.Errorf("expected status expired, got %s", first.Status)
	}
	second, _ := f.store.Get(fresh.Id)
	if second.Status != approvals.StatusPending {
		t.Errorf("expected status pending, got %s", second.Status)
	}

	var sweepEntry *audit.LogEntry
	for _, entry := range f.auditor.get() {
		if entry.Verb == audit.Expire {
			sweepEntry = &entry
			break
		}
	}
	if sweepEntry == nil {
		t.Fatal("expected an expire audit entry")
	}
	if sweepEntry.Actor != "sweeper" {
		t.Errorf("expected actor sweeper, got %s", sweepEntry.Actor)
	}
}

func TestRacingApproversExecuteOnce(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	if _, err := f.engine.Approve(record.Id, "alice"); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	var waiter sync.WaitGroup
	results := make([]error, 2)
	for i, approverId := range []string{"bob", "carol"} {
		waiter.Add(1)
		go func(slot int, approver string) {
			defer waiter.Done()
			_, err := f.engine.Approve(record.Id, approver)
			results[slot] = err
		}(i, approverId)
	}
	waiter.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrorNotPending) {
			t.Errorf("unexpected error from racing approver: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly 1 winning approver, got %d", successes)
	}
	if atomic.LoadInt64(f.executions) != 1 {
		t.Errorf("expected exactly 1 execution, got %d", atomic.LoadInt64(f.executions))
	}

	final, err := f.store.Get(record.Id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if final.Status != approvals.StatusExecuted {
		t.Errorf("expected status executed, got %s", final.Status)
	}
}

func TestExecutionFailureIsRecorded(t *testing.T) {
	failing := dispatch.HandlerFunc(func(ctx context.Context, payload json.RawMessage) (*dispatch.Result, error) {
		return &dispatch.Result{Success: false, Detail: "unit not found"}, nil
	})
	f := newTestFixture(t, failing)
	record, err := f.engine.Submit(SubmitOpts{
		RequesterId:   "requester",
		OperationType: approvals.OperationShutdown,
		Payload:       json.RawMessage(`{"mode":"reboot","delayMinutes":5}`),
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	updated, err := f.engine.Approve(record.Id, "carol")
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if updated.Status != approvals.StatusExecutionFailed {
		t.Fatalf("expected status execution_failed, got %s", updated.Status)
	}
	if updated.ExecutionResult == nil || *updated.ExecutionResult != "unit not found" {
		t.Errorf("expected execution result detail, got %v", updated.ExecutionResult)
	}

	// execution failures are terminal, the request cannot be retried
	if _, err := f.engine.Approve(record.Id, "alice"); !errors.Is(err, ErrorNotPending) {
		t.Fatalf("expected ErrorNotPending, got %v", err)
	}
}

func TestVerifyDecisionsDetectsTampering(t *testing.T) {
	f := newTestFixture(t, nil)
	record := submitServiceStop(t, f, "requester")

	if _, err := f.engine.Approve(record.Id, "alice"); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	_, invalid, err := f.engine.VerifyDecisions(record.Id)
	if err != nil {
		t.Fatalf("VerifyDecisions returned error: %v", err)
	}
	if len(invalid) != 0 {
		t.Fatalf("expected all signatures valid, got invalid %v", invalid)
	}

	// tamper with the stored decision through the persistence layer
	stored, err := f.store.Get(record.Id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	tampered := stored.Clone()
	tampered.Decisions[0].Decision = approvals.DecisionReject
	if err := f.store.CompareAndSwap(record.Id, stored.Version, tampered); err != nil {
		t.Fatalf("CompareAndSwap returned error: %v", err)
	}

	_, invalid, err = f.engine.VerifyDecisions(record.Id)
	if err != nil {
		t.Fatalf("VerifyDecisions returned error: %v", err)
	}
	if len(invalid) != 1 || invalid[0] != "alice" {
		t.Fatalf("expected alice's signature to fail verification, got %v", invalid)
	}
}
