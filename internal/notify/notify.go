package notify

import (
	"context"
	"fmt"

	"hostplane/internal/approvals"

	"github.com/sirupsen/logrus"
)

// Notifier delivers outbound-only messages about approval requests;
// decisions never flow back through this interface
type Notifier interface {
	// NotifySubmitted announces a newly created approval request
	NotifySubmitted(ctx context.Context, request *approvals.Request) error

	// NotifyResolved announces a request reaching a terminal state
	NotifyResolved(ctx context.Context, request *approvals.Request) error
}

// Notifiers fans a notification out to every configured channel,
// logging failures without failing the caller
type Notifiers []Notifier

func (n Notifiers) NotifySubmitted(ctx context.Context, request *approvals.Request) error {
	for _, notifier := range n {
		if err := notifier.NotifySubmitted(ctx, request); err != nil {
			logrus.Warnf("failed to notify about request[%s]: %s", request.Id, err)
		}
	}
	return nil
}

func (n Notifiers) NotifyResolved(ctx context.Context, request *approvals.Request) error {
	for _, notifier := range n {
		if err := notifier.NotifyResolved(ctx, request); err != nil {
			logrus.Warnf("failed to notify about request[%s]: %s", request.Id, err)
		}
	}
	return nil
}

func summaryOf(request *approvals.Request) string {
	return fmt.Sprintf(
		"request[%s]: %s by %s (risk: %s, approvals: %d/%d, status: %s)",
		request.Id,
		request.OperationType,
		request.RequesterId,
		request.RiskLevel,
		request.ApprovalCount(),
		request.RequiredApprovals,
		request.Status,
	)
}
