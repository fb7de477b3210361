package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Prints the recorded progress of the latest sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			rep, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			keys := make([]string, 0, len(rep.Values))
			for k := range rep.Values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s\t%d\n", k, rep.Values[k])
			}
			if rep.Checkpoint >= 0 {
				fmt.Fprintf(out, "checkpoint\t%d\n", rep.Checkpoint)
			} else {
				fmt.Fprintln(out, "checkpoint\tnone")
			}
			return nil
		},
	}
}
