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
)

type Config struct {
	Environment string          `mapstructure:"environment"` // "dev" or "prod"
	Ethereum    EthereumConfig  `mapstructure:"ethereum"`
	Signer      SignerConfig    `mapstructure:"signer"`
	Tokens      []TokenConfig   `mapstructure:"tokens"`
	Fund        FundConfig      `mapstructure:"fund"`
	Monitor     MonitorConfig   `mapstructure:"monitor"`
	Boost       BoostConfig     `mapstructure:"boost"`
	Log         LogConfig       `mapstructure:"log"`
	Postgres    PostgresConfig  `mapstructure:"postgres"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Retention   RetentionConfig `mapstructure:"retention"`
}

type EthereumConfig struct {
	RPCURL  string        `mapstructure:"rpc_url"`
	WSURL   string        `mapstructure:"ws_url"` // optional, enables newHeads driven refreshes
	Timeout time.Duration `mapstructure:"timeout"`
}

// SignerConfig holds the key used to sign transactions. In prod the key is
// read from SSM under Parameter instead of PrivateKey.
type SignerConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	Parameter  string `mapstructure:"parameter"`
}

type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals *int32 `mapstructure:"decimals"` // defaults to 18
}

type FundConfig struct {
	QuoteSymbol string `mapstructure:"quote_symbol"`
	DataFeed    string `mapstructure:"data_feed"`
}

type MonitorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	HeadRate     time.Duration `mapstructure:"head_rate"` // min spacing of head triggered refreshes
}

type BoostConfig struct {
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  uint64        `mapstructure:"max_attempts"`
	BumpPercent  int64         `mapstructure:"bump_percent"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // e.g. ":9102", empty disables the endpoint
}

type RetentionConfig struct {
	Schedule string        `mapstructure:"schedule"` // cron spec, empty disables pruning
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// flagKeys maps command line flag names onto config keys.
var flagKeys = map[string]string{
	"env":       "environment",
	"rpc-url":   "ethereum.rpc_url",
	"ws-url":    "ethereum.ws_url",
	"log-level": "log.level",
}

// Load loads application configuration using Viper.
// It reads from config.yaml (if present), overrides with environment variables
// and finally with any flags bound from the command line.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}
	v.AddConfigPath("./config")

	// Support environment variables with dot notation (e.g., ETHEREUM_RPC_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = cfg.Environment
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("ethereum.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("ethereum.timeout", 10*time.Second)
	v.SetDefault("fund.quote_symbol", "MLN-T")
	v.SetDefault("monitor.poll_interval", 5*time.Second)
	v.SetDefault("monitor.head_rate", time.Second)
	v.SetDefault("boost.stall_timeout", 2*time.Minute)
	v.SetDefault("boost.poll_interval", 2*time.Second)
	v.SetDefault("boost.max_attempts", 3)
	v.SetDefault("boost.bump_percent", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("retention.max_age", 30*24*time.Hour)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if c.Boost.MaxAttempts == 0 {
		return fmt.Errorf("boost.max_attempts must be at least 1")
	}
	if c.Boost.BumpPercent < 10 {
		// nodes reject replacements priced less than 10% above the pending tx
		return fmt.Errorf("boost.bump_percent must be at least 10, got %d", c.Boost.BumpPercent)
	}
	seen := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("token entry without symbol")
		}
		if seen[t.Symbol] {
			return fmt.Errorf("duplicate token symbol %q", t.Symbol)
		}
		seen[t.Symbol] = true
	}
	return nil
}
