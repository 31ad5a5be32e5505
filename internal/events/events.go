package events

import (
	"time"

	"hostplane/internal/approvals"
)

// TransitionEvent mirrors the audit entry shape on the event bus so
// downstream consumers (notification fan-out, SIEM forwarders) can react
// to workflow progress without polling the store
type TransitionEvent struct {
	RequestId     string                  `json:"requestId"`
	OperationType approvals.OperationType `json:"operationType"`
	FromState     approvals.Status        `json:"fromState"`
	ToState       approvals.Status        `json:"toState"`
	Actor         string                  `json:"actor"`
	Timestamp     time.Time               `json:"timestamp"`
}

type Publisher interface {
	PublishTransition(event TransitionEvent) error
}

// NoopPublisher drops events; used when no event bus is configured
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (p *NoopPublisher) PublishTransition(event TransitionEvent) error {
	return nil
}

var _ Publisher = (*NoopPublisher)(nil)
