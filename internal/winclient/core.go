// Package winclient provides the backend-agnostic mount core shared by the
// go-fuse and cgofuse backends.
package winclient

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/pkg/client"
	"github.com/fruitsalade/networkfs/pkg/netfs"
	"github.com/fruitsalade/networkfs/pkg/protocol"
	"github.com/fruitsalade/networkfs/pkg/retry"
)

// CoreConfig holds configuration for the ClientCore.
type CoreConfig struct {
	ServerURL         string
	Token             string
	MountPoint        string
	Format            protocol.Format
	XDRListingLimit   int
	Timeout           time.Duration
	Retry             retry.Config
	MaxNodes          int
	RootID            uint64
	HealthCheckPeriod time.Duration
	AllowOther        bool
	Debug             bool
}

// CoreStats holds client statistics for path-based backends.
type CoreStats struct {
	Resolves     atomic.Int64
	DirReads     atomic.Int64
	FilesCreated atomic.Int64
	DirsCreated  atomic.Int64
	FilesDeleted atomic.Int64
	DirsDeleted  atomic.Int64
	FailedOps    atomic.Int64
}

// ClientCore owns the session a backend serves.
type ClientCore struct {
	Client  *client.Client
	Session *netfs.Session
	Config  CoreConfig
	Stats   CoreStats

	log          *zap.Logger
	healthCancel context.CancelFunc
}

// NewClientCore builds the transport and opens a session with cfg.Token.
func NewClientCore(cfg CoreConfig) (*ClientCore, error) {
	codec, err := protocol.NewCodec(cfg.Format, cfg.XDRListingLimit)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := client.New(client.Config{
		BaseURL:     strings.TrimSuffix(cfg.ServerURL, "/"),
		Timeout:     cfg.Timeout,
		RetryConfig: cfg.Retry,
		Codec:       codec,
	})

	var opts []netfs.Option
	if cfg.MaxNodes > 0 {
		opts = append(opts, netfs.WithMaxNodes(cfg.MaxNodes))
	}
	if cfg.RootID != 0 {
		opts = append(opts, netfs.WithRootID(cfg.RootID))
	}
	s, err := netfs.Open(cfg.Token, c, codec, opts...)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	return &ClientCore{
		Client:  c,
		Session: s,
		Config:  cfg,
		log:     logging.Named("winclient"),
	}, nil
}

// IsOnline reports the last known reachability of the service.
func (c *ClientCore) IsOnline() bool {
	return c.Client.IsOnline()
}

// Close stops background work and releases the credential.
func (c *ClientCore) Close() error {
	c.StopBackgroundLoops()
	return c.Session.Close()
}

// StartBackgroundLoops starts the health check loop.
func (c *ClientCore) StartBackgroundLoops(ctx context.Context) {
	c.startHealthCheck(ctx)
}

// StopBackgroundLoops stops all background loops.
func (c *ClientCore) StopBackgroundLoops() {
	if c.healthCancel != nil {
		c.healthCancel()
		c.healthCancel = nil
	}
}

func (c *ClientCore) startHealthCheck(ctx context.Context) {
	if c.Config.HealthCheckPeriod <= 0 {
		return
	}

	healthCtx, cancel := context.WithCancel(ctx)
	c.healthCancel = cancel

	go func() {
		ticker := time.NewTicker(c.Config.HealthCheckPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				wasOnline := c.Client.IsOnline()
				if err := c.Client.Ping(healthCtx); err == nil && !wasOnline {
					c.log.Info("directory service reachable again")
				}
			case <-healthCtx.Done():
				return
			}
		}
	}()

	c.log.Info("health check enabled", zap.Duration("period", c.Config.HealthCheckPeriod))
}

// Resolve walks path from the root.
func (c *ClientCore) Resolve(ctx context.Context, path string) (*netfs.Node, error) {
	c.Stats.Resolves.Add(1)
	node, _, err := c.Session.Walk(ctx, path)
	return node, err
}

// ResolveParent returns the directory holding the last element of path.
func (c *ClientCore) ResolveParent(ctx context.Context, path string) (*netfs.Node, string, error) {
	return c.Session.WalkParent(ctx, path)
}
