package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"evm-swap/pkg/network"
)

// EnvPrefix is prepended to every environment override, e.g. EVM_SWAP_PRIVATE_KEY.
const EnvPrefix = "EVM_SWAP"

// ErrInvalidConfig indicates a configuration value out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// MetadataConfig configures the token metadata API
type MetadataConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	APIKey        string  `mapstructure:"api_key"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// Config holds the application configuration
type Config struct {
	RPCURLs            map[string]string `mapstructure:"rpc_urls"`
	RPCURL             string            `mapstructure:"rpc_url"` // Shorthand for the default chain's endpoint
	DefaultChain       string            `mapstructure:"default_chain"`
	PrivateKey         string            `mapstructure:"private_key"`
	PromptKey          bool              `mapstructure:"prompt_key"`
	LogLevel           string            `mapstructure:"log_level"`
	Metadata           MetadataConfig    `mapstructure:"metadata"`
	RefreshInterval    time.Duration     `mapstructure:"refresh_interval"`
	DefaultSlippageBps uint32            `mapstructure:"default_slippage_bps"`
	ConfirmTimeout     time.Duration     `mapstructure:"confirm_timeout"`
}

var globalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc_urls", map[string]string{})
	v.SetDefault("rpc_url", "")
	v.SetDefault("default_chain", "0x1")
	v.SetDefault("private_key", "")
	v.SetDefault("prompt_key", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("metadata.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("metadata.api_key", "")
	v.SetDefault("metadata.rate_per_second", 0.5)
	v.SetDefault("refresh_interval", "15s")
	v.SetDefault("default_slippage_bps", 50)
	v.SetDefault("confirm_timeout", "5m")
}

// Load reads configuration from the config file and environment variables.
// An empty configFile searches for .evm-swap.yaml in $HOME and the working directory.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".evm-swap")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional unless given explicitly)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// normalize canonicalizes chain ids and folds rpc_url into RPCURLs.
func (c *Config) normalize() error {
	urls := make(map[string]string, len(c.RPCURLs)+1)
	for id, url := range c.RPCURLs {
		if _, err := network.ParseChainID(id); err != nil {
			return fmt.Errorf("%w: rpc_urls key: %w", ErrInvalidConfig, err)
		}
		urls[network.NormalizeChainID(id)] = strings.TrimSpace(url)
	}

	c.DefaultChain = network.NormalizeChainID(c.DefaultChain)
	if c.RPCURL != "" && urls[c.DefaultChain] == "" {
		urls[c.DefaultChain] = strings.TrimSpace(c.RPCURL)
	}
	c.RPCURLs = urls
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := network.ParseChainID(c.DefaultChain); err != nil {
		return fmt.Errorf("%w: default_chain: %w", ErrInvalidConfig, err)
	}
	if c.RefreshInterval < time.Second {
		return fmt.Errorf("%w: refresh_interval must be at least 1s, got %s", ErrInvalidConfig, c.RefreshInterval)
	}
	if c.DefaultSlippageBps > 10000 {
		return fmt.Errorf("%w: default_slippage_bps must be at most 10000, got %d", ErrInvalidConfig, c.DefaultSlippageBps)
	}
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("%w: confirm_timeout must be positive", ErrInvalidConfig)
	}
	if c.Metadata.RatePerSecond < 0 {
		return fmt.Errorf("%w: metadata.rate_per_second must not be negative", ErrInvalidConfig)
	}
	return nil
}

// HasProvider reports whether an RPC endpoint is configured for the default chain.
// Without one the wallet provider is absent.
func (c *Config) HasProvider() bool {
	return c.RPCURLs[c.DefaultChain] != ""
}

// Get returns the global configuration, or the defaults if none was set
func Get() *Config {
	if globalConfig == nil {
		v := viper.New()
		setDefaults(v)
		cfg := &Config{}
		_ = v.Unmarshal(cfg)
		_ = cfg.normalize()
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
