package hostplane

import (
	"fmt"
	"strings"

	"hostplane/cmd/hostplane/approve"
	"hostplane/cmd/hostplane/cancel"
	"hostplane/cmd/hostplane/create"
	"hostplane/cmd/hostplane/get"
	"hostplane/cmd/hostplane/list"
	"hostplane/cmd/hostplane/reject"
	"hostplane/cmd/hostplane/start"
	"hostplane/internal/cli"
	"hostplane/internal/common"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var availableOutputs = []string{
	"text",
	"json",
}

var availableLogLevels = []string{
	string(common.LogLevelTrace),
	string(common.LogLevelDebug),
	string(common.LogLevelInfo),
	string(common.LogLevelWarn),
	string(common.LogLevelError),
}

var persistentFlags cli.Flags = cli.Flags{
	{
		Name:         "log-level",
		Short:        'l',
		DefaultValue: "info",
		Usage:        fmt.Sprintf("Sets the log level (one of [%s])", strings.Join(availableLogLevels, ", ")),
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "output",
		Short:        'o',
		DefaultValue: "text",
		Usage:        fmt.Sprintf("Sets the output format where applicable (one of [%s])", strings.Join(availableOutputs, ", ")),
		Type:         cli.FlagTypeString,
	},
}

func init() {
	Command.AddCommand(approve.Command)
	Command.AddCommand(cancel.Command)
	Command.AddCommand(create.Command)
	Command.AddCommand(get.Command)
	Command.AddCommand(list.Command)
	Command.AddCommand(reject.Command)
	Command.AddCommand(start.Command)
	Command.SilenceErrors = true
	Command.SilenceUsage = true

	persistentFlags.AddToCommand(Command, true)

	logrus.SetOutput(os.Stderr)
	cobra.OnInitialize(func() {
		persistentFlags.BindViper(Command, true)
		cli.InitLogging(viper.GetString("log-level"))
	})

	cli.InitConfig()
}

var Command = &cobra.Command{
	Use:   "hostplane",
	Short: "Approval-gated control plane for privileged Linux host operations",
	Long:  "Approval-gated control plane for privileged Linux host operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}
