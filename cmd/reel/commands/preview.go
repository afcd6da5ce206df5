package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [script]",
		Short: "Play an output start to finish, reloading when the script changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script := ""
			if len(args) > 0 {
				script = args[0]
			}
			output, _ := cmd.Flags().GetInt("output")
			return c.app.Preview(cmd.Context(), output, script)
		},
	}
	cmd.Flags().IntP("output", "o", 0, "Output index to play")
	return cmd
}
