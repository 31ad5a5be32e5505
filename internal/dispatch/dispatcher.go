package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"hostplane/internal/approvals"
	"hostplane/internal/audit"
	"hostplane/internal/events"
	"hostplane/internal/store"
)

var (
	ErrorHandlerNotFound = errors.New("handler_not_found")
	ErrorExecution       = errors.New("execution_error")
)

const (
	DefaultExecutionTimeout = 60 * time.Second
	defaultMaxCasRetries    = 3
)

// Result is the outcome reported by an execution handler
type Result struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// Handler performs the real-world side effect for one operation type; it
// must be safe to invoke at most once per approved request
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) (*Result, error)
}

// HandlerFunc adapts a plain function into a Handler
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (*Result, error)

func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) (*Result, error) {
	return f(ctx, payload)
}

// Dispatcher invokes the operation-specific handler exactly once per
// approved request and records the terminal outcome; execution failures
// are never retried, a fresh submission is required instead
type Dispatcher struct {
	store            store.RequestStore
	handlers         map[approvals.OperationType]Handler
	auditor          audit.Recorder
	publisher        events.Publisher
	executionTimeout time.Duration
	maxCasRetries    int
	now              func() time.Time
}

type NewDispatcherOpts struct {
	Store            store.RequestStore
	Handlers         map[approvals.OperationType]Handler
	Audit            audit.Recorder
	Events           events.Publisher
	ExecutionTimeout time.Duration
}

func NewDispatcher(opts NewDispatcherOpts) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("failed to receive a request store")
	}
	if len(opts.Handlers) == 0 {
		return nil, fmt.Errorf("failed to receive any execution handlers")
	}
	dispatcher := &Dispatcher{
		store:            opts.Store,
		handlers:         map[approvals.OperationType]Handler{},
		auditor:          opts.Audit,
		publisher:        opts.Events,
		executionTimeout: opts.ExecutionTimeout,
		maxCasRetries:    defaultMaxCasRetries,
		now:              time.Now,
	}
	for operationType, handler := range opts.Handlers {
		dispatcher.handlers[operationType] = handler
	}
	if dispatcher.executionTimeout <= 0 {
		dispatcher.executionTimeout = DefaultExecutionTimeout
	}
	if dispatcher.auditor == nil {
		dispatcher.auditor = audit.NewNoopRecorder()
	}
	if dispatcher.publisher == nil {
		dispatcher.publisher = events.NewNoopPublisher()
	}
	return dispatcher, nil
}

// Execute runs the handler for an approved request and records the
// outcome; triggeredBy identifies the approver whose decision reached
// quorum
func (d *Dispatcher) Execute(request *approvals.Request, triggeredBy string) (*approvals.Request, error) {
	result, err := d.invokeHandler(request)

	nextStatus := approvals.StatusExecuted
	detail := ""
	if err != nil {
		nextStatus = approvals.StatusExecutionFailed
		detail = err.Error()
	} else if !result.Success {
		nextStatus = approvals.StatusExecutionFailed
		detail = result.Detail
	} else {
		detail = result.Detail
	}
	executionsCounter.WithLabelValues(string(request.OperationType), string(nextStatus)).Inc()

	updated, recordErr := d.recordOutcome(request.Id, nextStatus, detail, triggeredBy)
	if recordErr != nil {
		return nil, recordErr
	}
	if nextStatus == approvals.StatusExecutionFailed {
		return updated, fmt.Errorf("failed to execute request[%s]: %w: %s", request.Id, ErrorExecution, detail)
	}
	return updated, nil
}

func (d *Dispatcher) invokeHandler(request *approvals.Request) (*Result, error) {
	handler, ok := d.handlers[request.OperationType]
	if !ok {
		return nil, fmt.Errorf("failed to find a handler for operation[%s]: %w", request.OperationType, ErrorHandlerNotFound)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.executionTimeout)
	defer cancel()
	result, err := handler.Handle(ctx, request.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to run handler for operation[%s]: %w", request.OperationType, err)
	}
	if result == nil {
		return nil, fmt.Errorf("failed to receive a result from handler for operation[%s]", request.OperationType)
	}
	return result, nil
}

func (d *Dispatcher) recordOutcome(requestId string, nextStatus approvals.Status, detail, triggeredBy string) (*approvals.Request, error) {
	for attempt := 0; attempt <= d.maxCasRetries; attempt++ {
		record, err := d.store.Get(requestId)
		if err != nil {
			return nil, err
		}
		if record.Status.IsTerminal() {
			// another writer already finalised this record, the outcome
			// write becomes a no-op
			return record, nil
		}
		if !record.Status.CanTransitionTo(nextStatus) {
			return nil, fmt.Errorf("failed to transition request[%s] from status[%s] to status[%s]", requestId, record.Status, nextStatus)
		}
		fromState := record.Status
		next := record.Clone()
		next.Status = nextStatus
		executedAt := d.now()
		next.ExecutedBy = &triggeredBy
		next.ExecutedAt = &executedAt
		next.ExecutionResult = &detail
		if err := d.store.CompareAndSwap(requestId, record.Version, next); err != nil {
			if errors.Is(err, store.ErrorConflict) {
				time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
				continue
			}
			return nil, err
		}
		d.recordTransition(next, fromState, triggeredBy)
		return next, nil
	}
	return nil, fmt.Errorf("failed to record outcome of request[%s]: %w", requestId, store.ErrorConflict)
}

func (d *Dispatcher) recordTransition(record *approvals.Request, fromState approvals.Status, actor string) {
	verb := audit.Execute
	if record.Status == approvals.StatusExecutionFailed {
		verb = audit.Fail
	}
	timestamp := d.now()
	d.auditor.Record(audit.LogEntry{
		RequestId: record.Id,
		FromState: fromState,
		ToState:   record.Status,
		Verb:      verb,
		Actor:     actor,
		Timestamp: timestamp,
	})
	d.publisher.PublishTransition(events.TransitionEvent{
		RequestId:     record.Id,
		OperationType: record.OperationType,
		FromState:     fromState,
		ToState:       record.Status,
		Actor:         actor,
		Timestamp:     timestamp,
	})
}
