package request

import (
	"encoding/json"
	"fmt"
	"os"

	"hostplane/internal/cli"
	approvalsApi "hostplane/pkg/approvals"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var flags cli.Flags = cli.Flags{
	{
		Name:         "engine-url",
		Short:        'u',
		DefaultValue: "http://localhost:12345",
		Usage:        "defines the url where the approval engine is accessible at",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "token",
		Short:        't',
		DefaultValue: "",
		Usage:        "defines the bearer token used to authenticate with the engine",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "operation",
		DefaultValue: "",
		Usage:        "defines the operation type of the request (eg. service_stop)",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "payload",
		DefaultValue: "",
		Usage:        "defines the operation payload as a json object",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "payload-path",
		DefaultValue: "",
		Usage:        "defines the path to a file containing the operation payload, takes precedence over --payload",
		Type:         cli.FlagTypeString,
	},
}

func init() {
	flags.AddToCommand(Command)
}

var Command = &cobra.Command{
	Use:     "request",
	Aliases: []string{"req", "r"},
	Short:   "Submits a new approval request",
	PreRun: func(cmd *cobra.Command, args []string) {
		flags.BindViper(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		engineUrl := viper.GetString("engine-url")
		logrus.Infof("using approval engine at url[%s]", engineUrl)

		payload := []byte(viper.GetString("payload"))
		if payloadPath := viper.GetString("payload-path"); payloadPath != "" {
			payloadData, err := os.ReadFile(payloadPath)
			if err != nil {
				return fmt.Errorf("failed to read payload from path[%s]: %w", payloadPath, err)
			}
			payload = payloadData
		}
		if len(payload) == 0 {
			return fmt.Errorf("failed to receive a payload, specify one of --payload or --payload-path")
		}

		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		client, err := approvalsApi.NewClient(approvalsApi.NewClientOpts{
			EngineUrl:   engineUrl,
			BearerToken: viper.GetString("token"),
			Id:          fmt.Sprintf("%s/hostplane-create-request", hostname),
		})
		if err != nil {
			return fmt.Errorf("failed to create client for approval engine: %w", err)
		}

		record, err := client.SubmitRequest(approvalsApi.SubmitRequestInput{
			OperationType: viper.GetString("operation"),
			Payload:       payload,
		})
		if err != nil {
			return fmt.Errorf("failed to submit approval request: %s", err)
		}

		fmt.Printf("✅ Submitted request[%s] requiring %v approval(s) before %s\n", record.Id, record.RequiredApprovals, record.TimeoutAt.Local().Format(cli.TimestampHuman))
		o, _ := json.MarshalIndent(record, "", "  ")
		fmt.Println(string(o))
		return nil
	},
}
