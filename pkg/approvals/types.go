package approvals

import "encoding/json"

type SubmitRequestInput struct {
	// OperationType selects the privileged operation, one of the
	// server's known operation types
	OperationType string `json:"operationType"`

	// Payload is the operation-specific parameter object
	Payload json.RawMessage `json:"payload"`
}

type ListRequestsInput struct {
	// Status narrows results to a single lifecycle state when set
	Status string

	// RequesterId narrows results to a single submitter when set
	RequesterId string
}

type VerifyRequestOutput struct {
	RequestId         string   `json:"requestId"`
	Valid             bool     `json:"valid"`
	InvalidSignatures []string `json:"invalidSignatures"`
}
