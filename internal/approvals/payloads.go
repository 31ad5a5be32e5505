package approvals

// Operation payloads are the only part of a request the engine does not
// interpret; schema conformance is checked at submission time and the
// execution handlers re-parse them when a request reaches quorum.

type ServiceStopPayload struct {
	Service string `json:"service" validate:"required,max=256,unitname"`
}

type ServiceRestartPayload struct {
	Service string `json:"service" validate:"required,max=256,unitname"`
}

type UserDeletePayload struct {
	Username   string `json:"username" validate:"required,unixname"`
	RemoveHome bool   `json:"removeHome"`
}

type GroupModifyPayload struct {
	Group    string `json:"group" validate:"required,unixname"`
	Username string `json:"username" validate:"required,unixname"`
	Action   string `json:"action" validate:"required,oneof=add remove"`
}

type FirewallModifyPayload struct {
	Chain      string `json:"chain" validate:"required,oneof=INPUT OUTPUT FORWARD"`
	Action     string `json:"action" validate:"required,oneof=accept drop reject"`
	SourceCidr string `json:"sourceCidr" validate:"required,cidr"`
	Operation  string `json:"operation" validate:"required,oneof=append delete"`
}

type ShutdownPayload struct {
	Mode         string `json:"mode" validate:"required,oneof=poweroff reboot"`
	DelayMinutes int    `json:"delayMinutes" validate:"gte=0,lte=60"`
}
