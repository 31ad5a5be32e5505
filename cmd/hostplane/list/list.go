package list

import (
	"hostplane/cmd/hostplane/list/requests"

	"github.com/spf13/cobra"
)

func init() {
	Command.AddCommand(requests.Command)
}

var Command = &cobra.Command{
	Use:   "list",
	Short: "Lists hostplane resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}
