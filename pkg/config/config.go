// Package config provides a reusable loader for the engine's configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"mmengine/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a market-making engine process.
// It mirrors the structure of the YAML files under cmd/config.
type Config struct {
	RPC struct {
		URL            string `mapstructure:"url" json:"url"`
		WSURL          string `mapstructure:"ws_url" json:"ws_url"`
		Commitment     string `mapstructure:"commitment" json:"commitment"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
		MaxRetries     int    `mapstructure:"max_retries" json:"max_retries"`
	} `mapstructure:"rpc" json:"rpc"`

	Operator struct {
		SecretEnv string `mapstructure:"secret_env" json:"secret_env"`
	} `mapstructure:"operator" json:"operator"`

	Worker struct {
		MinGasReserveSOL     float64 `mapstructure:"min_gas_reserve_sol" json:"min_gas_reserve_sol"`
		FeeClaimIntervalHrs  int     `mapstructure:"fee_claim_interval_hours" json:"fee_claim_interval_hours"`
		WaitingPollSeconds   int     `mapstructure:"waiting_poll_seconds" json:"waiting_poll_seconds"`
		MinDelayMS           int     `mapstructure:"min_delay_ms" json:"min_delay_ms"`
		MaxDelayMS           int     `mapstructure:"max_delay_ms" json:"max_delay_ms"`
		BotMinTradeSOL       float64 `mapstructure:"bot_min_trade_sol" json:"bot_min_trade_sol"`
		BotMaxTradeSOL       float64 `mapstructure:"bot_max_trade_sol" json:"bot_max_trade_sol"`
		DefaultSlippageBps   int     `mapstructure:"default_slippage_bps" json:"default_slippage_bps"`
		BackfillScanInterval int     `mapstructure:"backfill_scan_interval_seconds" json:"backfill_scan_interval_seconds"`
	} `mapstructure:"worker" json:"worker"`

	Store struct {
		DSN            string `mapstructure:"dsn" json:"dsn"`
		LogRetention   int    `mapstructure:"log_retention" json:"log_retention"`
		MaxConnections int    `mapstructure:"max_connections" json:"max_connections"`
	} `mapstructure:"store" json:"store"`

	HTTP struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"http" json:"http"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env
	bindEnvOverrides()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the MMENGINE_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("MMENGINE_ENV", ""))
}

// bindEnvOverrides wires the environment variables named in spec.md §6 to
// their config-struct homes, so these variables override the YAML values.
// A default.yaml must still be present: Load fails without it.
func bindEnvOverrides() {
	_ = viper.BindEnv("rpc.url", "RPC_URL")
	_ = viper.BindEnv("rpc.ws_url", "RPC_WS_URL")
	_ = viper.BindEnv("worker.min_gas_reserve_sol", "MIN_GAS_RESERVE_SOL")
	_ = viper.BindEnv("worker.fee_claim_interval_hours", "FEE_CLAIM_INTERVAL_HOURS")
	_ = viper.BindEnv("store.dsn", "DATABASE_URL")
}
