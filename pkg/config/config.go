// Package config loads feedr's settings from defaults, an optional
// config.json in the data directory and FEEDR_ environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"github.com/spf13/viper"
)

var log, chk = slog.New(os.Stderr)

const (
	EnvPrefix = "FEEDR"
	FileName  = "config"
	// DefaultRelay is used when the user has not added any relays.
	DefaultRelay = "wss://yabu.me"
)

type Config struct {
	DataDir string `mapstructure:"data_dir" json:"data_dir"`
	// LogLevel overrides the FEEDR_LOG environment variable when set.
	LogLevel       string        `mapstructure:"log_level" json:"log_level"`
	FeedCapacity   int           `mapstructure:"feed_capacity" json:"feed_capacity"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout" json:"publish_timeout"`
	// FetchTimeout bounds how long a feed fetch waits for relays to finish
	// sending stored events.
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" json:"fetch_timeout"`
	BackoffMin    time.Duration `mapstructure:"backoff_min" json:"backoff_min"`
	BackoffMax    time.Duration `mapstructure:"backoff_max" json:"backoff_max"`
	DefaultRelays []string      `mapstructure:"default_relays" json:"default_relays"`
	// Cache keeps fetched events in a local database under the data
	// directory.
	Cache bool `mapstructure:"cache" json:"cache"`
}

// DefaultDataDir is ~/.feedr, or .feedr in the working directory if the
// home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".feedr"
	}
	return filepath.Join(home, ".feedr")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log_level", "")
	v.SetDefault("feed_capacity", 500)
	v.SetDefault("connect_timeout", 7*time.Second)
	v.SetDefault("publish_timeout", 4*time.Second)
	v.SetDefault("fetch_timeout", 10*time.Second)
	v.SetDefault("backoff_min", time.Second)
	v.SetDefault("backoff_max", 2*time.Minute)
	v.SetDefault("default_relays", []string{DefaultRelay})
	v.SetDefault("cache", true)
}

// Load reads the configuration. dataDir, if not empty, takes precedence over
// every other source for the data directory, which is also where config.json
// is looked for.
func Load(dataDir string) (cfg *Config, err error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if dataDir != "" {
		v.Set("data_dir", dataDir)
	}
	dir := v.GetString("data_dir")
	v.SetConfigName(FileName)
	v.SetConfigType("json")
	v.AddConfigPath(dir)
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, log.E.Err("reading config in %s: %w", dir, err)
		}
		err = nil
	} else {
		log.D.Ln("using config file", v.ConfigFileUsed())
	}
	cfg = &Config{}
	if err = v.Unmarshal(cfg); chk.E(err) {
		return nil, err
	}
	if cfg.FeedCapacity <= 0 {
		log.W.F("feed_capacity %d is not positive, using 500", cfg.FeedCapacity)
		cfg.FeedCapacity = 500
	}
	if cfg.LogLevel != "" {
		slog.SetLogLevelString(cfg.LogLevel)
	}
	return
}
