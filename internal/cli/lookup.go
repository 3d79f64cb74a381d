package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func lookupCmd(dbPath, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <port>",
		Short: "Resolve which instance serves a port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil || port <= 0 || port > 65535 {
				return fmt.Errorf("invalid port %q", args[0])
			}
			path, _, err := resolveDBPath(*dbPath, *configPath)
			if err != nil {
				return err
			}
			mgr, err := openManager(path)
			if err != nil {
				return err
			}
			defer mgr.Close()

			inst, err := mgr.GetInstanceByPort(port)
			if err != nil {
				return fmt.Errorf("lookup port %d: %w", port, err)
			}
			if inst == nil {
				return fmt.Errorf("no instance registered for port %d", port)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", inst.InstanceAddress, inst.HostAddress)
			return nil
		},
	}
}
