package get

import (
	"hostplane/cmd/hostplane/get/request"

	"github.com/spf13/cobra"
)

func init() {
	Command.AddCommand(request.Command)
}

var Command = &cobra.Command{
	Use:   "get",
	Short: "Retrieves hostplane resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}
