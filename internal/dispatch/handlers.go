package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"hostplane/internal/approvals"
	"hostplane/internal/validate"
)

// SystemHandlers builds the handler registry backed by narrowly-scoped
// shell wrappers invoked via sudo. Payloads are re-validated against
// their schema immediately before execution so a record tampered with at
// the storage layer can never smuggle arguments into a shell command.
type SystemHandlersOpts struct {
	SudoPath  string
	Validator *validate.Validator
}

func NewSystemHandlers(opts SystemHandlersOpts) (map[approvals.OperationType]Handler, error) {
	if opts.Validator == nil {
		return nil, fmt.Errorf("failed to receive a payload validator")
	}
	sudoPath := opts.SudoPath
	if sudoPath == "" {
		sudoPath = "/usr/bin/sudo"
	}
	runner := &commandRunner{sudoPath: sudoPath, validator: opts.Validator}
	return map[approvals.OperationType]Handler{
		approvals.OperationServiceStop:    HandlerFunc(runner.serviceStop),
		approvals.OperationServiceRestart: HandlerFunc(runner.serviceRestart),
		approvals.OperationUserDelete:     HandlerFunc(runner.userDelete),
		approvals.OperationGroupModify:    HandlerFunc(runner.groupModify),
		approvals.OperationFirewallModify: HandlerFunc(runner.firewallModify),
		approvals.OperationShutdown:       HandlerFunc(runner.shutdown),
	}, nil
}

type commandRunner struct {
	sudoPath  string
	validator *validate.Validator
}

func (r *commandRunner) serviceStop(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed approvals.ServiceStopPayload
	if err := r.parse(approvals.OperationServiceStop, payload, &parsed); err != nil {
		return nil, err
	}
	return r.run(ctx, "systemctl", "stop", parsed.Service)
}

func (r *commandRunner) serviceRestart(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed approvals.ServiceRestartPayload
	if err := r.parse(approvals.OperationServiceRestart, payload, &parsed); err != nil {
		return nil, err
	}
	return r.run(ctx, "systemctl", "restart", parsed.Service)
}

func (r *commandRunner) userDelete(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed approvals.UserDeletePayload
	if err := r.parse(approvals.OperationUserDelete, payload, &parsed); err != nil {
		return nil, err
	}
	args := []string{"userdel"}
	if parsed.RemoveHome {
		args = append(args, "-r")
	}
	args = append(args, parsed.Username)
	return r.run(ctx, args...)
}

func (r *commandRunner) groupModify(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed approvals.GroupModifyPayload
	if err := r.parse(approvals.OperationGroupModify, payload, &parsed); err != nil {
		return nil, err
	}
	flag := "-a"
	if parsed.Action == "remove" {
		flag = "-d"
	}
	return r.run(ctx, "gpasswd", flag, parsed.Username, parsed.Group)
}

func (r *commandRunner) firewallModify(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed approvals.FirewallModifyPayload
	if err := r.parse(approvals.OperationFirewallModify, payload, &parsed); err != nil {
		return nil, err
	}
	operation := "-A"
	if parsed.Operation == "delete" {
		operation = "-D"
	}
	target := strings.ToUpper(parsed.Action)
	return r.run(ctx, "iptables", operation, parsed.Chain, "-s", parsed.SourceCidr, "-j", target)
}

func (r *commandRunner) shutdown(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed approvals.ShutdownPayload
	if err := r.parse(approvals.OperationShutdown, payload, &parsed); err != nil {
		return nil, err
	}
	flag := "-P"
	if parsed.Mode == "reboot" {
		flag = "-r"
	}
	return r.run(ctx, "shutdown", flag, fmt.Sprintf("+%d", parsed.DelayMinutes))
}

func (r *commandRunner) parse(operationType approvals.OperationType, payload json.RawMessage, into any) error {
	if err := r.validator.Payload(operationType, payload); err != nil {
		return fmt.Errorf("failed to re-validate payload before execution: %w", err)
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return nil
}

func (r *commandRunner) run(ctx context.Context, args ...string) (*Result, error) {
	command := exec.CommandContext(ctx, r.sudoPath, args...)
	output, err := command.CombinedOutput()
	detail := strings.TrimSpace(string(output))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("failed to run command[%s]: timed out", strings.Join(args, " "))
		}
		if detail == "" {
			detail = err.Error()
		}
		return &Result{Success: false, Detail: detail}, nil
	}
	return &Result{Success: true, Detail: detail}, nil
}
