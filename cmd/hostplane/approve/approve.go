package approve

import (
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
}

func init() {
	flags.AddToCommand(Command)
}

var Command = &cobra.Command{
	Use:     "approve <request-id>",
	Aliases: []string{"a"},
	Short:   "Records an approval on a pending request",
	PreRun: func(cmd *cobra.Command, args []string) {
		flags.BindViper(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("failed to receive <request-id>")
		}
		requestId := args[0]

		engineUrl := viper.GetString("engine-url")
		logrus.Infof("using approval engine at url[%s]", engineUrl)

		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		client, err := approvalsApi.NewClient(approvalsApi.NewClientOpts{
			EngineUrl:   engineUrl,
			BearerToken: viper.GetString("token"),
			Id:          fmt.Sprintf("%s/hostplane-approve", hostname),
		})
		if err != nil {
			return fmt.Errorf("failed to create client for approval engine: %w", err)
		}

		record, err := client.ApproveRequest(requestId)
		if err != nil {
			return fmt.Errorf("failed to approve request[%s]: %s", requestId, err)
		}

		fmt.Printf("✅ Recorded approval on request[%s] (%v/%v approvals, status: %s)\n", record.Id, record.ApprovalCount(), record.RequiredApprovals, record.Status)
		return nil
	},
}
