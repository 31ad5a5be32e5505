package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"hostplane/internal/approvals"

	"github.com/go-playground/validator/v10"
)

var (
	ErrorPayloadMalformed  = errors.New("payload_malformed")
	ErrorPayloadInvalid    = errors.New("payload_invalid")
	ErrorUnknownOperation  = errors.New("unknown_operation")
	ErrorPayloadFieldUnset = errors.New("payload_field_unset")
)

var (
	unitNamePattern = regexp.MustCompile(`^[a-zA-Z0-9:_.@\-]+$`)
	unixNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_\-]*\$?$`)
)

// Validator checks operation payloads against the schema of their
// operation type before any record is created
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterValidation("unitname", func(fl validator.FieldLevel) bool {
		return unitNamePattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("unixname", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return len(name) <= 32 && unixNamePattern.MatchString(name)
	})
	return &Validator{validate: v}
}

// Payload parses and validates the raw payload for the given operation
// type; unknown operation types and unknown payload fields fail closed
func (v *Validator) Payload(operationType approvals.OperationType, payload json.RawMessage) error {
	schema, err := payloadSchemaOf(operationType)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(schema); err != nil {
		return fmt.Errorf("failed to parse payload for operation[%s]: %w: %s", operationType, ErrorPayloadMalformed, err)
	}
	if err := v.validate.Struct(schema); err != nil {
		return fmt.Errorf("failed to validate payload for operation[%s]: %w: %s", operationType, ErrorPayloadInvalid, err)
	}
	return nil
}

func payloadSchemaOf(operationType approvals.OperationType) (any, error) {
	switch operationType {
	case approvals.OperationServiceStop:
		return &approvals.ServiceStopPayload{}, nil
	case approvals.OperationServiceRestart:
		return &approvals.ServiceRestartPayload{}, nil
	case approvals.OperationUserDelete:
		return &approvals.UserDeletePayload{}, nil
	case approvals.OperationGroupModify:
		return &approvals.GroupModifyPayload{}, nil
	case approvals.OperationFirewallModify:
		return &approvals.FirewallModifyPayload{}, nil
	case approvals.OperationShutdown:
		return &approvals.ShutdownPayload{}, nil
	}
	return nil, fmt.Errorf("failed to find a schema for operation[%s]: %w", operationType, ErrorUnknownOperation)
}
