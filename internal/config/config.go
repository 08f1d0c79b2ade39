// Package config loads x4pay settings from YAML files, a .env file and
// X4PAY_* environment variables, over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/x4pay/x402-ble-go/channel"
	"github.com/x4pay/x402-ble-go/frame"
	"github.com/x4pay/x402-ble-go/internal/peripheral"
	"github.com/x4pay/x402-ble-go/retry"
	"github.com/x4pay/x402-ble-go/session"
)

// EnvPrefix prefixes every environment override, e.g. X4PAY_CHUNK_SIZE.
const EnvPrefix = "X4PAY"

// Config holds the client settings.
type Config struct {
	ChunkSize         int           `mapstructure:"chunk_size"`
	FragmentDelay     time.Duration `mapstructure:"fragment_delay"`
	CommandDelay      time.Duration `mapstructure:"command_delay"`
	SettlementTimeout time.Duration `mapstructure:"settlement_timeout"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	BusyRetries       int           `mapstructure:"busy_retries"`
	KeystoreDir       string        `mapstructure:"keystore_dir"`
	WalletID          string        `mapstructure:"wallet_id"`
	ControlAddr       string        `mapstructure:"control_addr"`
	Debug             bool          `mapstructure:"debug"`

	// Peripheral configures the emulated device used by simulate and serve.
	Peripheral peripheral.Config `mapstructure:"peripheral"`
}

// Load reads .env, then the global and project config files, then the
// environment. Missing files are skipped.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(GlobalConfigPath(), ProjectConfigPath())
}

// LoadFrom merges the given YAML files in order over the defaults and applies
// environment overrides.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := mergeFile(v, path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v.MergeInConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chunk_size", frame.DefaultChunkSize)
	v.SetDefault("fragment_delay", channel.DefaultFragmentDelay)
	v.SetDefault("command_delay", channel.DefaultCommandDelay)
	v.SetDefault("settlement_timeout", session.DefaultSettlementTimeout)
	v.SetDefault("tick_interval", time.Second)
	v.SetDefault("busy_retries", 0)
	v.SetDefault("keystore_dir", filepath.Join(HomeDir(), "keystore"))
	v.SetDefault("wallet_id", "")
	v.SetDefault("control_addr", "127.0.0.1:4020")
	v.SetDefault("debug", false)

	v.SetDefault("peripheral.network", "base-sepolia")
	v.SetDefault("peripheral.pay_to", "0x209693Bc6afc0C5328bA36FaF03C514EF312287C")
	v.SetDefault("peripheral.price", "10000")
	v.SetDefault("peripheral.logo", "")
	v.SetDefault("peripheral.banner", "")
	v.SetDefault("peripheral.description", "x402 BLE test device")
	v.SetDefault("peripheral.frequency", 0)
	v.SetDefault("peripheral.options", []string{})
	v.SetDefault("peripheral.allow_custom_content", false)
	v.SetDefault("peripheral.reject", false)
	v.SetDefault("peripheral.omit_transaction", false)
	v.SetDefault("peripheral.silent", false)
}

// Validate rejects settings the session cannot run with.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.FragmentDelay < 0 || c.CommandDelay < 0 {
		return fmt.Errorf("fragment_delay and command_delay cannot be negative")
	}
	if c.BusyRetries < 0 {
		return fmt.Errorf("busy_retries cannot be negative, got %d", c.BusyRetries)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	return nil
}

// SessionOptions translates the settings into session options.
func (c *Config) SessionOptions(logger zerolog.Logger) []session.Option {
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithChunkSize(c.ChunkSize),
		session.WithFragmentDelay(c.FragmentDelay),
		session.WithCommandDelay(c.CommandDelay),
		session.WithSettlementTimeout(c.SettlementTimeout),
		session.WithTickInterval(c.TickInterval),
	}
	if c.BusyRetries > 0 {
		policy := retry.WriteRetry
		policy.MaxAttempts = c.BusyRetries + 1
		opts = append(opts, session.WithWriteRetry(policy))
	}
	return opts
}

// HomeDir returns the global x4pay directory.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".x4pay"
	}
	return filepath.Join(home, ".x4pay")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".x4pay", "config.yaml")
}
