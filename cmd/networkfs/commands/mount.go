package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/internal/metrics"
	"github.com/fruitsalade/networkfs/internal/winclient"
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the filesystem",
	Long: `Mount the remote directory service at mountpoint and serve it until
interrupted. The mountpoint defaults to client.mount_point.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMount,
}

func init() {
	f := mountCmd.Flags()
	f.String("backend", "", "mount backend (auto|fuse|cgofuse)")
	f.Bool("allow-other", false, "allow other users to access the mount")
	f.Bool("debug", false, "log every FUSE request")
	f.Int("max-nodes", 0, "cap on materialized nodes (0 = unlimited)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
}

func runMount(cmd *cobra.Command, args []string) error {
	mountPoint := cfg.Client.MountPoint
	if len(args) == 1 {
		mountPoint = args[0]
	}
	if mountPoint == "" {
		return errors.New("no mountpoint given")
	}
	if err := checkMountPoint(mountPoint); err != nil {
		return err
	}

	backend, err := winclient.SelectBackend(cfg.Client.Backend, mountPoint)
	if err != nil {
		return err
	}

	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	log := logging.Named("mount")
	if err := core.Client.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("server %s unreachable: %w", cfg.Client.ServerURL, err)
	}
	if addr := cfg.Client.MetricsAddr; addr != "" {
		ms := &http.Server{Addr: addr, Handler: metrics.Handler()}
		go func() {
			log.Info("metrics server listening", zap.String("addr", addr))
			if err := ms.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
		defer ms.Close()
	}

	log.Info("mounting",
		zap.String("server", cfg.Client.ServerURL),
		zap.String("mountpoint", mountPoint),
		zap.String("backend", backend.Name()),
		zap.String("format", string(cfg.Client.Format)),
	)
	fmt.Fprintf(cmd.ErrOrStderr(), "Mounted at %s. Press Ctrl+C to unmount.\n", mountPoint)

	err = backend.Start(cmd.Context(), core)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("unmounted",
		zap.Int64("resolves", core.Stats.Resolves.Load()),
		zap.Int64("failed_ops", core.Stats.FailedOps.Load()),
	)
	return err
}
