// Package config loads the daemon and CLI options from command-line flags,
// an optional config file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atinyakov/oroio/internal/envelope"
	"github.com/atinyakov/oroio/internal/usage"
)

// Defaults.
const (
	DefaultAddr             = "127.0.0.1:8765"
	DefaultDataDir          = "~/.oroio"
	DefaultLogLevel         = "info"
	DefaultHistoryRetention = 90 * 24 * time.Hour
)

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `mapstructure:"addr"`

	// DataDir holds keys.enc, current and list_cache.b64.
	DataDir string `mapstructure:"data_dir"`

	// WebDir is served at / when set.
	WebDir string `mapstructure:"web_dir"`

	// DatabaseDSN enables usage history when set.
	DatabaseDSN string `mapstructure:"dsn"`

	// Config is the path to the config file.
	Config string `mapstructure:"config"`

	// UsageURL is the usage endpoint queried on refresh.
	UsageURL string `mapstructure:"usage_url"`

	// Codec selects the key store implementation: native or openssl.
	Codec string `mapstructure:"codec"`

	// OpenSSL is the binary used by the openssl codec.
	OpenSSL string `mapstructure:"openssl"`

	LogLevel         string        `mapstructure:"log_level"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FetchWorkers     int           `mapstructure:"fetch_workers"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// flag name → config key
var bindings = map[string]string{
	"addr":              "addr",
	"data-dir":          "data_dir",
	"web-dir":           "web_dir",
	"dsn":               "dsn",
	"config":            "config",
	"usage-url":         "usage_url",
	"codec":             "codec",
	"openssl":           "openssl",
	"log-level":         "log_level",
	"fetch-timeout":     "fetch_timeout",
	"fetch-workers":     "fetch_workers",
	"history-retention": "history_retention",
}

// RegisterFlags adds every option flag to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("addr", "a", DefaultAddr, "run on ip:port server")
	fs.String("data-dir", DefaultDataDir, "directory holding the key store")
	fs.String("web-dir", "", "directory with the web UI to serve at /")
	fs.StringP("dsn", "d", "", "postgres DSN for usage history")
	fs.StringP("config", "c", "", "path to config file (json, yaml or toml)")
	fs.String("usage-url", usage.DefaultURL, "usage endpoint")
	fs.String("codec", envelope.KindNative, "key store codec: native or openssl")
	fs.String("openssl", "openssl", "openssl binary for the openssl codec")
	fs.String("log-level", DefaultLogLevel, "log level")
	fs.Duration("fetch-timeout", usage.DefaultTimeout, "per key usage request timeout")
	fs.Int("fetch-workers", usage.DefaultWorkers, "concurrent usage requests")
	fs.Duration("history-retention", DefaultHistoryRetention, "how long usage history rows are kept")
}

// Parse parses args and returns the resulting options.
func Parse(args []string) (*Options, error) {
	fs := pflag.NewFlagSet("oroio", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return Load(fs)
}

// Load resolves options from the parsed flag set fs. Explicit flags win over
// environment variables (OROIO_*, plus SERVER_ADDRESS and CONFIG), which win
// over the config file, which wins over flag defaults.
func Load(fs *pflag.FlagSet) (*Options, error) {
	v := viper.New()
	for flag, key := range bindings {
		if f := fs.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind %s flag: %w", flag, err)
			}
		}
	}

	v.SetEnvPrefix("OROIO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("addr", "OROIO_ADDR", "SERVER_ADDRESS")
	_ = v.BindEnv("config", "OROIO_CONFIG", "CONFIG")

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	opts := &Options{}
	if err := v.Unmarshal(opts); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	dir, err := expandHome(opts.DataDir)
	if err != nil {
		return nil, err
	}
	opts.DataDir = dir

	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// readConfigFile reads the explicit config file, or config.{json,yaml,toml}
// from the data directory when none is given.
func readConfigFile(v *viper.Viper) error {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error while reading config file: %w", err)
		}
		return nil
	}

	dir, err := expandHome(v.GetString("data_dir"))
	if err != nil {
		return err
	}
	v.SetConfigName("config")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}
	return nil
}

func (o *Options) validate() error {
	switch o.Codec {
	case envelope.KindNative, envelope.KindOpenSSL:
	default:
		return fmt.Errorf("unknown codec %q", o.Codec)
	}
	if o.FetchWorkers < 1 {
		return fmt.Errorf("fetch workers must be positive, got %d", o.FetchWorkers)
	}
	if o.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", o.FetchTimeout)
	}
	if o.DataDir == "" {
		return errors.New("data dir is required")
	}
	return nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
