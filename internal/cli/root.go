// Package cli implements the peerlock command line: inspect the shared
// instance registry, evict dead peers, and run a registered instance.
package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mistakeknot/peerlock/pkg/lockmgr"
)

// NewRootCmd builds the peerlock command tree.
func NewRootCmd() *cobra.Command {
	var (
		dbPath     string
		configPath string
	)

	root := &cobra.Command{
		Use:           "peerlock",
		Short:         "Cross-process instance registry backed by a shared SQLite file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "registry database path (default ~/.peerlock/locks.db)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $PEERLOCK_CONFIG, then ~/.peerlock/config.yaml)")

	root.AddCommand(
		statusCmd(&dbPath, &configPath),
		lookupCmd(&dbPath, &configPath),
		evictCmd(&dbPath, &configPath),
		serveCmd(&dbPath, &configPath),
	)
	return root
}

// resolveDBPath picks the registry path: flag, then config file, then the
// default under the home directory.
func resolveDBPath(flagValue, configPath string) (string, Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return "", Config{}, err
	}
	if flagValue != "" {
		return flagValue, cfg, nil
	}
	if cfg.DBPath != "" {
		return cfg.DBPath, cfg, nil
	}
	path, err := DefaultDBPath()
	if err != nil {
		return "", Config{}, err
	}
	return path, cfg, nil
}

// openManager constructs a Manager for administrative commands, which act
// on other instances' rows and never register themselves.
func openManager(dbPath string) (*lockmgr.Manager, error) {
	mgr, err := lockmgr.New(lockmgr.Config{
		InstanceAddress: fmt.Sprintf("cli-%s", uuid.NewString()),
		DBPath:          dbPath,
	})
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return mgr, nil
}
