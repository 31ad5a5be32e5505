package engine

import "encoding/json"

type submitRequestBody struct {
	OperationType string          `json:"operationType"`
	Payload       json.RawMessage `json:"payload"`
}

type verifyResponse struct {
	RequestId         string   `json:"requestId"`
	Valid             bool     `json:"valid"`
	InvalidSignatures []string `json:"invalidSignatures"`
}
