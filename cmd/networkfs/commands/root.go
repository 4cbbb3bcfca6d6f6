// Package commands implements the networkfs client CLI.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fruitsalade/networkfs/internal/config"
	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

// Version is injected at build time.
var Version = "dev"

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "networkfs",
	Short: "Network filesystem client",
	Long: `networkfs exposes a remote directory service as a mountable filesystem.

Entries are files or directories. Files carry no content. Use
"networkfs [command] --help" for more information about a command.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd.Flags(), loaded); err != nil {
			return err
		}
		cfg = loaded
		return logging.Init(cfg.Logging.Logger())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultPath()+")")
	pf.String("server", "", "directory service URL")
	pf.String("token", "", "mount credential")
	pf.String("format", "", "wire format (fixed|xdr)")
	pf.String("log-level", "", "log level (debug|info|warn|error)")

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(lsCmd, statCmd, touchCmd, mkdirCmd, rmCmd, rmdirCmd)
	rootCmd.AddCommand(loginCmd, logoutCmd)
	rootCmd.AddCommand(configCmd)
}

// applyFlags overlays explicitly set flags on the loaded configuration.
func applyFlags(fs *pflag.FlagSet, c *config.Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "server":
			c.Client.ServerURL = f.Value.String()
		case "token":
			c.Client.Token = f.Value.String()
		case "format":
			c.Client.Format, err = protocol.ParseFormat(f.Value.String())
		case "log-level":
			c.Logging.Level = strings.ToLower(f.Value.String())
		case "backend":
			c.Client.Backend = f.Value.String()
		case "allow-other":
			c.Client.AllowOther = f.Value.String() == "true"
		case "debug":
			c.Client.Debug = f.Value.String() == "true"
		case "metrics-addr":
			c.Client.MetricsAddr = f.Value.String()
		case "max-nodes":
			_, err = fmt.Sscan(f.Value.String(), &c.Client.MaxNodes)
		}
	})
	if err != nil {
		return err
	}
	return config.Validate(c)
}
