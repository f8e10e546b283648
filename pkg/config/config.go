// Package config owns process configuration and the process logger.
// Sections register defaults and a reload hook from their own init;
// Load applies the file, environment and defaults in one pass.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type ReloadConfigFunc func() error

var reloadConfigFuncs []ReloadConfigFunc

// RegisterReloadConfigFunc adds a section loader run on every Load and
// ReloadConfig.
func RegisterReloadConfigFunc(fn ReloadConfigFunc) {
	reloadConfigFuncs = append(reloadConfigFuncs, fn)
}

// Load reads the config file if one is present and applies every
// registered section loader. A missing file is not an error: defaults
// and environment variables carry the configuration.
func Load() error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return runReloadFuncs()
}

// ReloadConfig re-reads the config file and reapplies the section
// loaders. Unlike Load, the file must exist.
func ReloadConfig() error {
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return runReloadFuncs()
}

func runReloadFuncs() error {
	for _, f := range reloadConfigFuncs {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	viper.SetEnvPrefix("ENTABLE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.entable")
	viper.SetConfigName("entable")
	viper.SetConfigType("yaml")
}
