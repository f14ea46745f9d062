package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atmx/clamm-engine/internal/decimal"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	HTTPAddr      string
	DatabaseURL   string
	RedisURL      string
	CacheTTL      time.Duration
	JWTSecret     string
	TokenTTL      time.Duration
	Admin         common.Address
	Vault         common.Address
	ProtocolFee   decimal.Percentage
	LogLevel      string
	GaugeSchedule string
	MaxRetries    int
	RetryBackoff  time.Duration
}

// Load merges config file, environment variables (CLAMM_*), and flags
// into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("http-addr", ":8080")
	v.SetDefault("cache-ttl", 30*time.Second)
	v.SetDefault("token-ttl", 24*time.Hour)
	v.SetDefault("vault", "0x000000000000000000000000000000000000c1a3")
	v.SetDefault("protocol-fee", "10000000000") // 1%
	v.SetDefault("log-level", "info")
	v.SetDefault("gauge-schedule", "@every 15s")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("clamm")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		HTTPAddr:      v.GetString("http-addr"),
		DatabaseURL:   v.GetString("database-url"),
		RedisURL:      v.GetString("redis-url"),
		CacheTTL:      v.GetDuration("cache-ttl"),
		JWTSecret:     v.GetString("jwt-secret"),
		TokenTTL:      v.GetDuration("token-ttl"),
		LogLevel:      v.GetString("log-level"),
		GaugeSchedule: v.GetString("gauge-schedule"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
	}

	var err error
	if cfg.Admin, err = address(v, "admin"); err != nil {
		return Config{}, err
	}
	if cfg.Vault, err = address(v, "vault"); err != nil {
		return Config{}, err
	}
	if cfg.ProtocolFee, err = decimal.Parse[decimal.PercentageSpec](v.GetString("protocol-fee")); err != nil {
		return Config{}, fmt.Errorf("protocol-fee: %w", err)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt-secret is required")
	}
	return cfg, nil
}

func address(v *viper.Viper, key string) (common.Address, error) {
	s := strings.TrimSpace(v.GetString(key))
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", key, s)
	}
	return common.HexToAddress(s), nil
}
