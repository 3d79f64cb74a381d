package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func statusCmd(dbPath, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List registered instances and their heartbeat age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _, err := resolveDBPath(*dbPath, *configPath)
			if err != nil {
				return err
			}
			mgr, err := openManager(path)
			if err != nil {
				return err
			}
			defer mgr.Close()

			instances, err := mgr.ListInstances()
			if err != nil {
				return fmt.Errorf("list instances: %w", err)
			}
			if len(instances) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no instances registered")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTANCE\tHOST\tLAST HEARTBEAT")
			for _, inst := range instances {
				fmt.Fprintf(w, "%s\t%s\t%s ago\n",
					inst.InstanceAddress,
					inst.HostAddress,
					time.Since(inst.LockedAt).Round(time.Second),
				)
			}
			return w.Flush()
		},
	}
}
