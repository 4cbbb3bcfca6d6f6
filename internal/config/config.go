// Package config loads networkfs configuration from a YAML file, the
// environment and defaults.
//
// Precedence, highest first:
//  1. Environment variables (NETWORKFS_*, e.g. NETWORKFS_CLIENT_SERVER_URL)
//  2. Configuration file
//  3. Defaults
//
// Command-line flags are applied on top by the commands themselves.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/protocol"
	"github.com/fruitsalade/networkfs/pkg/retry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NETWORKFS"

// Config is the full networkfs configuration. The client and the server
// binaries each read the sections they need.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=json console" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ClientConfig configures the mount side.
type ClientConfig struct {
	ServerURL  string `mapstructure:"server_url" validate:"required,url" yaml:"server_url"`
	Token      string `mapstructure:"token" yaml:"token,omitempty"`
	Credential string `mapstructure:"credential" yaml:"credential"`

	Format          protocol.Format `mapstructure:"format" yaml:"format"`
	XDRListingLimit int             `mapstructure:"xdr_listing_limit" validate:"gte=0" yaml:"xdr_listing_limit"`
	Timeout         time.Duration   `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`

	RetryAttempts    int           `mapstructure:"retry_attempts" validate:"gte=1" yaml:"retry_attempts"`
	RetryInitialWait time.Duration `mapstructure:"retry_initial_wait" validate:"gte=0" yaml:"retry_initial_wait"`
	RetryMaxWait     time.Duration `mapstructure:"retry_max_wait" validate:"gte=0" yaml:"retry_max_wait"`

	MaxNodes          int           `mapstructure:"max_nodes" validate:"gte=0" yaml:"max_nodes"`
	RootID            uint64        `mapstructure:"root_id" validate:"gt=0" yaml:"root_id"`
	MetricsAddr       string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	MountPoint        string        `mapstructure:"mount_point" yaml:"mount_point"`
	Backend           string        `mapstructure:"backend" validate:"oneof=auto fuse cgofuse" yaml:"backend"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" validate:"gte=0" yaml:"health_check_period"`
	AllowOther        bool          `mapstructure:"allow_other" yaml:"allow_other"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
}

// ServerConfig configures the directory service.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`

	Store       string `mapstructure:"store" validate:"oneof=memory badger postgres" yaml:"store"`
	BadgerPath  string `mapstructure:"badger_path" yaml:"badger_path"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url,omitempty"`

	XDRListingLimit int `mapstructure:"xdr_listing_limit" validate:"gte=0" yaml:"xdr_listing_limit"`
}

var validate = validator.New()

// Load reads configuration from path (or the default location when path is
// empty), the environment and defaults, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.token", "")
	v.SetDefault("client.credential", "")
	v.SetDefault("client.format", string(protocol.FormatFixed))
	v.SetDefault("client.xdr_listing_limit", 0)
	v.SetDefault("client.timeout", "30s")
	v.SetDefault("client.retry_attempts", 3)
	v.SetDefault("client.retry_initial_wait", "100ms")
	v.SetDefault("client.retry_max_wait", "10s")
	v.SetDefault("client.max_nodes", 0)
	v.SetDefault("client.root_id", models.RootID)
	v.SetDefault("client.metrics_addr", "")
	v.SetDefault("client.mount_point", "")
	v.SetDefault("client.backend", "auto")
	v.SetDefault("client.health_check_period", "30s")
	v.SetDefault("client.allow_other", false)
	v.SetDefault("client.debug", false)

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.store", "memory")
	v.SetDefault("server.badger_path", "")
	v.SetDefault("server.database_url", "")
	v.SetDefault("server.xdr_listing_limit", 0)
}

// Validate checks struct tags plus the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: failed on '%s' (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}
	if cfg.Server.Store == "postgres" && cfg.Server.DatabaseURL == "" {
		return errors.New("server.database_url is required for the postgres store")
	}
	return nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		formatDecodeHook(),
	)
}

// durationDecodeHook accepts "30s" style strings and raw nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		}
		return data, nil
	}
}

func formatDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(protocol.Format("")) {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		return protocol.ParseFormat(s)
	}
}

// Dir returns the configuration directory.
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "networkfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "networkfs")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Show renders cfg as YAML with secrets redacted.
func Show(cfg *Config) ([]byte, error) {
	c := *cfg
	if c.Client.Token != "" {
		c.Client.Token = protocol.RedactToken(c.Client.Token)
	}
	if c.Server.DatabaseURL != "" {
		c.Server.DatabaseURL = "<redacted>"
	}
	return yaml.Marshal(&c)
}

// Save writes cfg to path as YAML with owner-only permissions.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Logger converts the section to the logging package's form.
func (l LoggingConfig) Logger() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format, OutputPath: l.Output}
}

// Retry builds the retry policy for idempotent calls.
func (c ClientConfig) Retry() retry.Config {
	r := retry.DefaultConfig()
	r.MaxAttempts = c.RetryAttempts
	if c.RetryInitialWait > 0 {
		r.InitialWait = c.RetryInitialWait
	}
	if c.RetryMaxWait > 0 {
		r.MaxWait = c.RetryMaxWait
	}
	return r
}
