package audit

import (
	"time"

	"hostplane/internal/approvals"
)

type Verb string

const (
	Submit  Verb = "submit"
	Approve Verb = "approve"
	Reject  Verb = "reject"
	Cancel  Verb = "cancel"
	Expire  Verb = "expire"
	Execute Verb = "execute"
	Fail    Verb = "fail"
)

type LogEntries []LogEntry

// LogEntry is the immutable event emitted for every state transition
type LogEntry struct {
	RequestId string           `bson:"requestId"`
	FromState approvals.Status `bson:"fromState"`
	ToState   approvals.Status `bson:"toState"`
	Verb      Verb             `bson:"verb"`
	Actor     string           `bson:"actor"`
	Timestamp time.Time        `bson:"timestamp"`
	Data      map[string]any   `bson:"data,omitempty"`
}

// Recorder is the write-only audit sink; the engine never reads back
// through this interface
type Recorder interface {
	Record(entry LogEntry) error
}
