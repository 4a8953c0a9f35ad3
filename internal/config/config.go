// Package config defines all configuration for the benchmark harness.
// Config is loaded from a YAML file (default: configs/bench.yaml) with
// sensitive fields overridable via BENCH_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the Plan Executor. Maps
// directly to the YAML file structure.
type Config struct {
	DemoMode bool          `mapstructure:"demo_mode"`
	Wallet   WalletConfig  `mapstructure:"wallet"`
	API      APIConfig     `mapstructure:"api"`
	Run      RunConfig     `mapstructure:"run"`
	Store    StoreConfig   `mapstructure:"store"`
	Logging  LoggingConfig `mapstructure:"logging"`
}

// WalletConfig holds the Ethereum key used to sign venue actions.
// VaultAddress lets an agent key trade on behalf of a separate account,
// the same funder/signer distinction the teacher's Polymarket auth makes.
type WalletConfig struct {
	PrivateKey   string `mapstructure:"private_key"`
	VaultAddress string `mapstructure:"vault_address"`
}

// APIConfig holds venue transport endpoints.
type APIConfig struct {
	NetworkLabel string `mapstructure:"network_label"` // e.g. "mainnet", "testnet"
	RESTBaseURL  string `mapstructure:"rest_base_url"`
	WSURL        string `mapstructure:"ws_url"`
	BuilderCode  string `mapstructure:"builder_code_hint"`
}

// RunConfig tunes the Executor/Correlator/Writer triad.
//
//   - EffectTimeout:    how long the Correlator waits for a venue
//     confirmation before emitting a timeout diagnostic (spec.md §4.3).
//   - WindowMs:         the action-window bucket width used to stamp
//     window_key_ms (spec.md §3).
//   - MidRefreshInterval: the period at which cmd/bench polls the venue for
//     fresh mid prices used to resolve a symbolic PriceSpec (spec.md §4.4.1).
//     The Executor itself does not check a cached mid's age.
//   - OutDir:           the run directory artifacts are written under.
type RunConfig struct {
	EffectTimeout      time.Duration `mapstructure:"effect_timeout"`
	WindowMs           int64         `mapstructure:"window_ms"`
	MidRefreshInterval time.Duration `mapstructure:"mid_refresh_interval"`
	OutDir             string        `mapstructure:"out_dir"`
	BenchVersion       string        `mapstructure:"bench_version"`
}

// StoreConfig is reserved for future persistence needs; the Writer itself
// takes its directory from RunConfig.OutDir.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig controls the slog handler cmd/bench and cmd/score build.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: BENCH_PRIVATE_KEY, BENCH_VAULT_ADDRESS.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("BENCH_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if vault := os.Getenv("BENCH_VAULT_ADDRESS"); vault != "" {
		cfg.Wallet.VaultAddress = vault
	}
	if os.Getenv("BENCH_DEMO_MODE") == "true" || os.Getenv("BENCH_DEMO_MODE") == "1" {
		cfg.DemoMode = true
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("run.effect_timeout", 2*time.Second)
	v.SetDefault("run.window_ms", int64(200))
	v.SetDefault("run.mid_refresh_interval", 500*time.Millisecond)
	v.SetDefault("run.out_dir", "./runs/latest")
	v.SetDefault("run.bench_version", "dev")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if !c.DemoMode && c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set BENCH_PRIVATE_KEY) unless demo_mode is true")
	}
	if !c.DemoMode && c.API.RESTBaseURL == "" {
		return fmt.Errorf("api.rest_base_url is required unless demo_mode is true")
	}
	if !c.DemoMode && c.API.WSURL == "" {
		return fmt.Errorf("api.ws_url is required unless demo_mode is true")
	}
	if c.Run.WindowMs <= 0 {
		return fmt.Errorf("run.window_ms must be > 0")
	}
	if c.Run.EffectTimeout <= 0 {
		return fmt.Errorf("run.effect_timeout must be > 0")
	}
	if c.Run.OutDir == "" {
		return fmt.Errorf("run.out_dir is required")
	}
	return nil
}
