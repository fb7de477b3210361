package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/resource-existence/internal/catalog"
)

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Evaluates a single resource without recording anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid resource id %q", args[0])
			}
			svc, err := c.service()
			if err != nil {
				return err
			}

			res := svc.Check(cmd.Context(), catalog.ResourceID(id))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "resource:  %d\n", res.ID)
			fmt.Fprintf(out, "url:       %s\n", res.URL)
			fmt.Fprintf(out, "outcome:   %s\n", res.Outcome)
			if res.StatusCode != 0 {
				fmt.Fprintf(out, "http:      %d\n", res.StatusCode)
			}
			tr := res.Transition()
			if tr.Suspect() {
				fmt.Fprintf(out, "verdict:   probably deleted (status %d)\n", int(tr.Status))
			} else if res.Downloads > 0 {
				fmt.Fprintf(out, "verdict:   exists (%d downloads)\n", res.Downloads)
			} else {
				fmt.Fprintln(out, "verdict:   no change")
			}
			if res.Err != nil {
				fmt.Fprintf(out, "error:     %v\n", res.Err)
			}
			fmt.Fprintf(out, "took:      %s\n", res.Duration)
			return nil
		},
	}
}
