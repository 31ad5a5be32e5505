package create

import (
	"hostplane/cmd/hostplane/create/request"

	"github.com/spf13/cobra"
)

func init() {
	Command.AddCommand(request.Command)
}

var Command = &cobra.Command{
	Use:   "create",
	Short: "Creates hostplane resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}
