// Package conf loads the process configuration from file and environment.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/quorumhq/regcache/cache"
	"github.com/quorumhq/regcache/internal/log"
	"github.com/quorumhq/regcache/registry"
)

// Config is the full process configuration.
type Config struct {
	Log      log.Config           `conf:"log" yaml:"log" json:"log"`
	Registry registry.Config      `conf:"registry" yaml:"registry" json:"registry"`
	Watch    registry.WatchConfig `conf:"watch" yaml:"watch" json:"watch"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Log: log.Config{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Registry: registry.Config{
			Address: registry.DefaultAddress,
		},
		Watch: registry.WatchConfig{
			BlockSeconds: cache.DefaultBlockSeconds,
			Backoff:      cache.DefaultBackoff,
			InitTimeout:  30 * time.Second,
		},
	}
}

// Load reads regcache.yml from the working directory or /etc/regcache, then
// applies REGCACHE_* environment overrides (e.g. REGCACHE_REGISTRY_ADDRESS).
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("regcache")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/regcache")
	v.SetEnvPrefix("REGCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults must be registered for AutomaticEnv to surface overrides
	// during Unmarshal.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("registry.address", registry.DefaultAddress)
	v.SetDefault("registry.token", "")
	v.SetDefault("registry.datacenter", "")
	v.SetDefault("watch.block_seconds", cache.DefaultBlockSeconds)
	v.SetDefault("watch.backoff", cache.DefaultBackoff)
	v.SetDefault("watch.init_timeout", 30*time.Second)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()

	err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}
