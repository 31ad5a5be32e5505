package engine

import "errors"

var (
	// ErrorValidation covers malformed payloads; surfaced synchronously,
	// nothing is persisted
	ErrorValidation = errors.New("validation_failed")

	// ErrorForbidden covers wrong role, self approval and duplicate
	// decisions; the specific cause is wrapped alongside it
	ErrorForbidden = errors.New("forbidden")

	ErrorSelfApproval      = errors.New("self_approval")
	ErrorDuplicateDecision = errors.New("duplicate_decision")
	ErrorRoleNotAllowed    = errors.New("role_not_allowed")
	ErrorNotRequester      = errors.New("not_requester")

	// ErrorExpired is returned for decisions attempted on or after the
	// request deadline, whether or not the sweeper got there first
	ErrorExpired = errors.New("request_expired")

	// ErrorNotPending is returned for decisions on requests that have
	// already left the pending state
	ErrorNotPending = errors.New("request_not_pending")
)
