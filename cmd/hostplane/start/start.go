package start

import (
	"hostplane/cmd/hostplane/start/engine"

	"github.com/spf13/cobra"
)

func init() {
	Command.AddCommand(engine.Command)
}

var Command = &cobra.Command{
	Use:   "start",
	Short: "Starts hostplane services",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}
