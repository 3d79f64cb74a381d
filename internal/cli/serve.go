package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mistakeknot/peerlock/internal/core"
	"github.com/mistakeknot/peerlock/internal/storage/sqlite"
	"github.com/mistakeknot/peerlock/pkg/lockmgr"
)

func serveCmd(dbPath, configPath *string) *cobra.Command {
	var (
		host     string
		instance string
		sweep    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bind a host address, register it, and heartbeat until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, cfg, err := resolveDBPath(*dbPath, *configPath)
			if err != nil {
				return err
			}
			interval, err := cfg.heartbeatInterval()
			if err != nil {
				return err
			}
			ttl, err := cfg.instanceTTL()
			if err != nil {
				return err
			}
			if instance == "" {
				instance = fmt.Sprintf("inst-%s", uuid.NewString())
			}

			mgr, err := lockmgr.New(lockmgr.Config{InstanceAddress: instance, DBPath: path})
			if err != nil {
				return err
			}
			defer mgr.Close()

			// A port that already has a live registration means another
			// instance owns it; discover, don't double-bind.
			if port := portOf(host); port > 0 {
				peer, err := mgr.GetInstanceByPort(port)
				if err != nil {
					return fmt.Errorf("check port %d: %w", port, err)
				}
				if peer != nil {
					return fmt.Errorf("port %d already registered to %s (%s); evict it first if that instance is dead",
						port, peer.InstanceAddress, peer.HostAddress)
				}
			}

			ln, err := net.Listen("tcp", host)
			if err != nil {
				return fmt.Errorf("bind %s: %w", host, err)
			}
			defer ln.Close()
			hostAddr := ln.Addr().String()

			if err := mgr.RegisterInstance(hostAddr); err != nil {
				return fmt.Errorf("register %s: %w", hostAddr, err)
			}
			log.Info().Str("instance", instance).Str("host", hostAddr).Msg("registered")

			hb := lockmgr.NewHeartbeater(mgr, interval)
			hb.Start(cmd.Context())
			defer hb.Stop()

			if sweep {
				sw := sqlite.NewSweeper(mgr.Registry(), interval, ttl, func(inst core.Instance) {
					log.Info().Str("instance", inst.InstanceAddress).Str("host", inst.HostAddress).Msg("evicted stale peer")
				})
				sw.Start(cmd.Context())
				defer sw.Stop()
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case s := <-sig:
				log.Info().Str("signal", s.String()).Msg("shutting down")
			case <-cmd.Context().Done():
			}

			if err := mgr.UnregisterInstance(); err != nil {
				return fmt.Errorf("unregister: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1:0", "address to bind and register")
	cmd.Flags().StringVar(&instance, "instance", "", "instance address to register under (default inst-<uuid>)")
	cmd.Flags().BoolVar(&sweep, "sweep", false, "also evict peers whose heartbeat exceeds the instance TTL")
	return cmd
}

// portOf extracts the numeric port from a host:port string, 0 when absent
// or when the port is "0" (ephemeral, nothing to collide with yet).
func portOf(host string) int {
	_, portStr, err := net.SplitHostPort(host)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
