package requests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"hostplane/internal/cli"
	approvalsApi "hostplane/pkg/approvals"

	"github.com/olekukonko/tablewriter"
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
		Name:         "status",
		DefaultValue: "",
		Usage:        "when specified, only requests in this state are listed (eg. pending)",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "requester",
		DefaultValue: "",
		Usage:        "when specified, only requests submitted by this user are listed",
		Type:         cli.FlagTypeString,
	},
}

func init() {
	flags.AddToCommand(Command)
}

var Command = &cobra.Command{
	Use:     "requests",
	Aliases: []string{"req", "r"},
	Short:   "Lists approval requests",
	PreRun: func(cmd *cobra.Command, args []string) {
		flags.BindViper(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		engineUrl := viper.GetString("engine-url")
		logrus.Infof("using approval engine at url[%s]", engineUrl)

		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		client, err := approvalsApi.NewClient(approvalsApi.NewClientOpts{
			EngineUrl:   engineUrl,
			BearerToken: viper.GetString("token"),
			Id:          fmt.Sprintf("%s/hostplane-list-requests", hostname),
		})
		if err != nil {
			return fmt.Errorf("failed to create client for approval engine: %w", err)
		}

		records, err := client.ListRequests(approvalsApi.ListRequestsInput{
			Status:      viper.GetString("status"),
			RequesterId: viper.GetString("requester"),
		})
		if err != nil {
			return fmt.Errorf("failed to list approval requests: %s", err)
		}

		switch viper.GetString("output") {
		case "json":
			o, _ := json.MarshalIndent(records, "", "  ")
			fmt.Println(string(o))
		case "text":
			fallthrough
		default:
			if len(records) == 0 {
				fmt.Println("No approval requests found")
				return nil
			}
			var tableData bytes.Buffer
			table := tablewriter.NewWriter(&tableData)
			table.Header([]any{"id", "operation", "requester", "risk", "approvals", "status", "times out at"}...)
			for _, record := range records {
				table.Append([]string{
					record.Id,
					string(record.OperationType),
					record.RequesterId,
					string(record.RiskLevel),
					fmt.Sprintf("%v/%v", record.ApprovalCount(), record.RequiredApprovals),
					string(record.Status),
					record.TimeoutAt.Local().Format(cli.TimestampHuman),
				})
			}
			table.Render()
			fmt.Println(tableData.String())
		}
		return nil
	},
}
