package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const defaultConfigFile = "tqc.yaml"

// Config is the tqc configuration from tqc.yaml, TQC_* variables and flags.
type Config struct {
	Schema    string `mapstructure:"schema"`
	Delimiter string `mapstructure:"delimiter"`
	Timezone  string `mapstructure:"timezone"`
	Zstd      bool   `mapstructure:"zstd"`

	Token TokenConfig `mapstructure:"token"`
}

// TokenConfig holds bearer token settings shared with the server.
type TokenConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// loadConfig applies precedence flags > env > config file > defaults.
// It returns the config file used, empty when none was found.
func loadConfig(explicitPath string, flags *pflag.FlagSet) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TQC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"schema":    "schema",
		"delimiter": "delimiter",
		"timezone":  "timezone",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, "", fmt.Errorf("binding flag %s: %w", flag, err)
			}
		}
	}

	configPath, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, "", err
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schema", "schema.yaml")
	v.SetDefault("delimiter", ";")
	v.SetDefault("timezone", "Local")
	v.SetDefault("zstd", false)

	// registered so AutomaticEnv reaches them on Unmarshal
	v.SetDefault("token.secret", "")
	v.SetDefault("token.issuer", "tablequery")
	v.SetDefault("token.ttl", time.Hour)
}

// findConfigFile returns explicitPath, which must exist, or tqc.yaml in the
// working directory when present.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicitPath, nil
	}

	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("config file: %w", err)
	}
	return "", nil
}
