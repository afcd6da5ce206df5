package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (c *CLI) newBenchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Render every output as fast as possible and report throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := c.app.Bench(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "output %d: %d frames in %s (%.2f fps) digest %016x\n",
					r.Output, r.Frames, r.Elapsed.Round(time.Millisecond), r.FPS, r.Digest)
			}
			return nil
		},
	}
}
