package approvals

const (
	StatusPending         Status = "pending"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
	StatusCancelled       Status = "cancelled"
	StatusExecuted        Status = "executed"
	StatusExecutionFailed Status = "execution_failed"
)

const (
	DecisionApprove DecisionType = "approve"
	DecisionReject  DecisionType = "reject"
)

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

const (
	OperationUserDelete     OperationType = "user_delete"
	OperationGroupModify    OperationType = "group_modify"
	OperationFirewallModify OperationType = "firewall_modify"
	OperationServiceStop    OperationType = "service_stop"
	OperationServiceRestart OperationType = "service_restart"
	OperationShutdown       OperationType = "shutdown"
)

type Status string
type DecisionType string
type RiskLevel string
type OperationType string

var Statuses = []Status{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusExpired,
	StatusCancelled,
	StatusExecuted,
	StatusExecutionFailed,
}

var OperationTypes = []OperationType{
	OperationUserDelete,
	OperationGroupModify,
	OperationFirewallModify,
	OperationServiceStop,
	OperationServiceRestart,
	OperationShutdown,
}
