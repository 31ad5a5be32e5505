package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"hostplane/internal/approvals"
	"hostplane/internal/audit"
	"hostplane/internal/dispatch"
	"hostplane/internal/events"
	"hostplane/internal/identity"
	"hostplane/internal/notify"
	"hostplane/internal/policy"
	"hostplane/internal/signing"
	"hostplane/internal/store"
	"hostplane/internal/validate"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultMaxCasRetries = 3

// Engine drives the approval request lifecycle. Every mutation is a
// compare-and-swap against the record version; on conflict the full
// precondition set is re-evaluated against the fresh record before the
// write is retried.
type Engine struct {
	store         store.RequestStore
	policies      *policy.Registry
	signer        *signing.Signer
	validator     *validate.Validator
	dispatcher    *dispatch.Dispatcher
	roles         identity.RoleProvider
	auditor       audit.Recorder
	publisher     events.Publisher
	notifiers     notify.Notifiers
	maxCasRetries int
	now           func() time.Time
}

type NewEngineOpts struct {
	Store      store.RequestStore
	Policies   *policy.Registry
	Signer     *signing.Signer
	Validator  *validate.Validator
	Dispatcher *dispatch.Dispatcher
	Roles      identity.RoleProvider
	Audit      audit.Recorder
	Events     events.Publisher
	Notifiers  notify.Notifiers
}

func NewEngine(opts NewEngineOpts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("failed to receive a request store")
	}
	if opts.Policies == nil {
		return nil, fmt.Errorf("failed to receive a policy registry")
	}
	if opts.Signer == nil {
		return nil, fmt.Errorf("failed to receive a decision signer")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("failed to receive a dispatcher")
	}
	if opts.Roles == nil {
		return nil, fmt.Errorf("failed to receive a role provider")
	}
	engine := &Engine{
		store:         opts.Store,
		policies:      opts.Policies,
		signer:        opts.Signer,
		validator:     opts.Validator,
		dispatcher:    opts.Dispatcher,
		roles:         opts.Roles,
		auditor:       opts.Audit,
		publisher:     opts.Events,
		notifiers:     opts.Notifiers,
		maxCasRetries: defaultMaxCasRetries,
		now:           time.Now,
	}
	if engine.validator == nil {
		engine.validator = validate.New()
	}
	if engine.auditor == nil {
		engine.auditor = audit.NewNoopRecorder()
	}
	if engine.publisher == nil {
		engine.publisher = events.NewNoopPublisher()
	}
	return engine, nil
}

type SubmitOpts struct {
	RequesterId   string
	OperationType approvals.OperationType
	Payload       json.RawMessage
}

// Submit validates the payload against the operation schema, snapshots
// the matching policy into a new pending record and persists it. Policy
// lookup is fail-closed: an operation without a policy is refused.
func (e *Engine) Submit(opts SubmitOpts) (*approvals.Request, error) {
	if opts.RequesterId == "" {
		return nil, fmt.Errorf("%w: missing requester id", ErrorValidation)
	}
	if !opts.OperationType.IsValid() {
		return nil, fmt.Errorf("%w: unknown operation type '%s'", ErrorValidation, opts.OperationType)
	}
	if err := e.validator.Payload(opts.OperationType, opts.Payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrorValidation, err)
	}
	requestPolicy, err := e.policies.Lookup(opts.OperationType)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy for operation[%s]: %w", opts.OperationType, err)
	}

	now := e.now().UTC()
	record := &approvals.Request{
		Id:                uuid.NewString(),
		OperationType:     opts.OperationType,
		Payload:           append(json.RawMessage{}, opts.Payload...),
		RequesterId:       opts.RequesterId,
		RiskLevel:         requestPolicy.RiskLevel,
		RequiredApprovals: requestPolicy.RequiredApprovals,
		TimeoutAt:         now.Add(requestPolicy.Timeout),
		Status:            approvals.StatusPending,
		Decisions:         []approvals.Decision{},
		Version:           0,
		CreatedAt:         now,
	}
	if err := e.store.Create(record); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	e.recordTransition(record, "", approvals.StatusPending, audit.Submit, opts.RequesterId)
	if e.notifiers != nil {
		e.notifiers.NotifySubmitted(context.Background(), record)
	}
	return record, nil
}

// Get returns a single request by id
func (e *Engine) Get(requestId string) (*approvals.Request, error) {
	return e.store.Get(requestId)
}

// List returns requests matching the filter
func (e *Engine) List(filter store.ListFilter) ([]*approvals.Request, error) {
	return e.store.List(filter)
}

// Approve records an approval decision; when the decision reaches the
// policy quorum the request transitions to approved in the same write
// and this caller triggers execution
func (e *Engine) Approve(requestId, approverId string) (*approvals.Request, error) {
	return e.decide(requestId, approverId, approvals.DecisionApprove)
}

// Reject records a rejection; a single rejection is a veto and resolves
// the request immediately regardless of prior approvals
func (e *Engine) Reject(requestId, approverId string) (*approvals.Request, error) {
	return e.decide(requestId, approverId, approvals.DecisionReject)
}

func (e *Engine) decide(requestId, approverId string, decision approvals.DecisionType) (*approvals.Request, error) {
	approverRoles, err := e.roles.GetRoles(approverId)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles for approver[%s]: %w", approverId, err)
	}

	for attempt := 0; attempt <= e.maxCasRetries; attempt++ {
		record, err := e.store.Get(requestId)
		if err != nil {
			return nil, fmt.Errorf("failed to get request[%s]: %w", requestId, err)
		}
		if err := e.checkDecisionPreconditions(record, approverId, approverRoles); err != nil {
			return nil, err
		}

		timestamp := e.now().UTC()
		next := record.Clone()
		next.Decisions = append(next.Decisions, approvals.Decision{
			ApproverId: approverId,
			Decision:   decision,
			Timestamp:  timestamp,
			Signature:  e.signer.SignDecision(record.Id, approverId, decision, timestamp),
		})

		// quorum evaluation and the decision append land in the same
		// swap so no reader ever observes one without the other
		transitioned := false
		if decision == approvals.DecisionReject {
			next.Status = approvals.StatusRejected
			transitioned = true
		} else if next.ApprovalCount() >= next.RequiredApprovals {
			next.Status = approvals.StatusApproved
			transitioned = true
		}
		if transitioned && !record.Status.CanTransitionTo(next.Status) {
			return nil, fmt.Errorf("%w: request[%s] cannot move from %s to %s", ErrorNotPending, requestId, record.Status, next.Status)
		}

		if err := e.store.CompareAndSwap(record.Id, record.Version, next); err != nil {
			if errors.Is(err, store.ErrorConflict) {
				casConflictsCounter.Inc()
				e.backoff(attempt)
				continue
			}
			return nil, fmt.Errorf("failed to record decision on request[%s]: %w", requestId, err)
		}

		decisionsCounter.WithLabelValues(string(decision)).Inc()
		verb := audit.Approve
		if decision == approvals.DecisionReject {
			verb = audit.Reject
		}
		if transitioned {
			e.recordTransition(next, record.Status, next.Status, verb, approverId)
		} else {
			logrus.Debugf("recorded %s by approver[%s] on request[%s] (%d/%d)", decision, approverId, requestId, next.ApprovalCount(), next.RequiredApprovals)
		}

		// only the writer that won the pending->approved swap reaches
		// this branch, which keeps dispatch exactly-once
		if next.Status == approvals.StatusApproved {
			return e.dispatch(next, approverId)
		}
		if next.Status == approvals.StatusRejected && e.notifiers != nil {
			e.notifiers.NotifyResolved(context.Background(), next)
		}
		return next, nil
	}
	return nil, fmt.Errorf("failed to record decision on request[%s]: %w", requestId, store.ErrorConflict)
}

func (e *Engine) checkDecisionPreconditions(record *approvals.Request, approverId string, approverRoles []string) error {
	if record.Status != approvals.StatusPending {
		if record.Status == approvals.StatusExpired {
			return fmt.Errorf("%w: request[%s]", ErrorExpired, record.Id)
		}
		return fmt.Errorf("%w: request[%s] is %s", ErrorNotPending, record.Id, record.Status)
	}
	if !e.now().Before(record.TimeoutAt) {
		return fmt.Errorf("%w: request[%s] timed out at %s", ErrorExpired, record.Id, record.TimeoutAt.Format(time.RFC3339))
	}
	if approverId == record.RequesterId {
		return fmt.Errorf("%w: %w: approver[%s] submitted request[%s]", ErrorForbidden, ErrorSelfApproval, approverId, record.Id)
	}
	if record.DecisionOf(approverId) != nil {
		return fmt.Errorf("%w: %w: approver[%s] already decided on request[%s]", ErrorForbidden, ErrorDuplicateDecision, approverId, record.Id)
	}
	requestPolicy, err := e.policies.Lookup(record.OperationType)
	if err != nil {
		return fmt.Errorf("failed to resolve policy for operation[%s]: %w", record.OperationType, err)
	}
	if !requestPolicy.AllowsRole(approverRoles) {
		return fmt.Errorf("%w: %w: approver[%s] on request[%s]", ErrorForbidden, ErrorRoleNotAllowed, approverId, record.Id)
	}
	return nil
}

func (e *Engine) dispatch(record *approvals.Request, triggeredBy string) (*approvals.Request, error) {
	updated, err := e.dispatcher.Execute(record, triggeredBy)
	if err != nil {
		if updated == nil {
			return nil, fmt.Errorf("failed to execute request[%s]: %w", record.Id, err)
		}
		// the approval itself succeeded, the failure is recorded on
		// the request and surfaced through its terminal state
		logrus.Warnf("execution of request[%s] failed: %s", record.Id, err)
	}
	if e.notifiers != nil {
		e.notifiers.NotifyResolved(context.Background(), updated)
	}
	return updated, nil
}

// Cancel lets the original requester withdraw a still-pending request
func (e *Engine) Cancel(requestId, requesterId string) (*approvals.Request, error) {
	for attempt := 0; attempt <= e.maxCasRetries; attempt++ {
		record, err := e.store.Get(requestId)
		if err != nil {
			return nil, fmt.Errorf("failed to get request[%s]: %w", requestId, err)
		}
		if record.Status != approvals.StatusPending {
			return nil, fmt.Errorf("%w: request[%s] is %s", ErrorNotPending, requestId, record.Status)
		}
		if record.RequesterId != requesterId {
			return nil, fmt.Errorf("%w: %w: user[%s] did not submit request[%s]", ErrorForbidden, ErrorNotRequester, requesterId, requestId)
		}

		next := record.Clone()
		next.Status = approvals.StatusCancelled
		if err := e.store.CompareAndSwap(record.Id, record.Version, next); err != nil {
			if errors.Is(err, store.ErrorConflict) {
				casConflictsCounter.Inc()
				e.backoff(attempt)
				continue
			}
			return nil, fmt.Errorf("failed to cancel request[%s]: %w", requestId, err)
		}

		e.recordTransition(next, approvals.StatusPending, approvals.StatusCancelled, audit.Cancel, requesterId)
		if e.notifiers != nil {
			e.notifiers.NotifyResolved(context.Background(), next)
		}
		return next, nil
	}
	return nil, fmt.Errorf("failed to cancel request[%s]: %w", requestId, store.ErrorConflict)
}

// SweepExpired transitions every pending request whose deadline has
// passed to expired and returns the number of requests it moved. Losing
// a swap to a concurrent decision is not an error, the fresh record is
// simply skipped.
func (e *Engine) SweepExpired() (int, error) {
	now := e.now().UTC()
	candidates, err := e.store.List(store.ListFilter{
		Status:          approvals.StatusPending,
		TimeoutNotAfter: now,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list expirable requests: %w", err)
	}

	expired := 0
	for _, candidate := range candidates {
		for attempt := 0; attempt <= e.maxCasRetries; attempt++ {
			record, err := e.store.Get(candidate.Id)
			if err != nil {
				logrus.Warnf("failed to get request[%s] during sweep: %s", candidate.Id, err)
				break
			}
			if record.Status != approvals.StatusPending || e.now().Before(record.TimeoutAt) {
				break
			}
			next := record.Clone()
			next.Status = approvals.StatusExpired
			if err := e.store.CompareAndSwap(record.Id, record.Version, next); err != nil {
				if errors.Is(err, store.ErrorConflict) {
					casConflictsCounter.Inc()
					continue
				}
				logrus.Warnf("failed to expire request[%s]: %s", record.Id, err)
				break
			}
			expired++
			e.recordTransition(next, approvals.StatusPending, approvals.StatusExpired, audit.Expire, "sweeper")
			if e.notifiers != nil {
				e.notifiers.NotifyResolved(context.Background(), next)
			}
			break
		}
	}
	return expired, nil
}

// VerifyDecisions re-checks every decision signature of a request and
// returns the approver ids whose signatures no longer verify
func (e *Engine) VerifyDecisions(requestId string) (*approvals.Request, []string, error) {
	record, err := e.store.Get(requestId)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get request[%s]: %w", requestId, err)
	}
	invalid := []string{}
	for _, decision := range record.Decisions {
		if !e.signer.VerifyDecision(record.Id, decision) {
			invalid = append(invalid, decision.ApproverId)
		}
	}
	return record, invalid, nil
}

func (e *Engine) recordTransition(record *approvals.Request, from, to approvals.Status, verb audit.Verb, actor string) {
	timestamp := e.now().UTC()
	transitionsCounter.WithLabelValues(string(from), string(to)).Inc()
	if err := e.auditor.Record(audit.LogEntry{
		RequestId: record.Id,
		FromState: from,
		ToState:   to,
		Verb:      verb,
		Actor:     actor,
		Timestamp: timestamp,
	}); err != nil {
		logrus.Warnf("failed to record audit entry for request[%s]: %s", record.Id, err)
	}
	if err := e.publisher.PublishTransition(events.TransitionEvent{
		RequestId:     record.Id,
		OperationType: record.OperationType,
		FromState:     from,
		ToState:       to,
		Actor:         actor,
		Timestamp:     timestamp,
	}); err != nil {
		logrus.Warnf("failed to publish transition event for request[%s]: %s", record.Id, err)
	}
}

func (e *Engine) backoff(attempt int) {
	time.Sleep(time.Duration(rand.Intn(10*(attempt+1))) * time.Millisecond)
}
