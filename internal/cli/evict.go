package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func evictCmd(dbPath, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <instance-address>",
		Short: "Remove a dead peer's registration",
		Long: `Remove another instance's registry row, for cleanup after that
process died without unregistering. Confirm the peer is actually dead
first; evicting a live instance only removes its row, not the process.`,
		Args: cobra.ExactArgs(1),
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

			if err := mgr.RemoveInstanceByAddress(args[0]); err != nil {
				return fmt.Errorf("evict %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evicted %s\n", args[0])
			return nil
		},
	}
}
