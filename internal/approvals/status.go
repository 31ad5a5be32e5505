package approvals

// IsTerminal indicates whether no further transition may happen from the
// receiver status; only `pending` and `approved` have outgoing transitions
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusCancelled, StatusExecuted, StatusExecutionFailed:
		return true
	}
	return false
}

var statusTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired, StatusCancelled},
	StatusApproved: {StatusExecuted, StatusExecutionFailed},
}

// CanTransitionTo enforces the monotonic lifecycle; a status can never
// move backwards
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsValid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func (o OperationType) IsValid() bool {
	for _, known := range OperationTypes {
		if o == known {
			return true
		}
	}
	return false
}
