// Package config loads the contract server's configuration from a
// YAML file, then lets a local .env file and WIRESKIP_CONTRACT_-prefixed
// environment variables override individual fields, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"wireskip-contract/internal/contract/model"
)

// Cfg is the contract server's full configuration.
type Cfg struct {
	Address    string             `yaml:"address"`
	StoreRoot  string             `yaml:"store_root"`
	KeyFile    string             `yaml:"key_file"`
	Servicekey model.ServicekeyCfg `yaml:"servicekey"`
	Settlement model.SettlementCfg `yaml:"settlement"`
	Payout     []model.PayoutCfg   `yaml:"payout"`
	Metadata   Metadata           `yaml:"metadata"`
}

// Metadata is free-form operator-identifying information kept in the
// config file. It is not part of the GET /info response.
type Metadata struct {
	Name     string `yaml:"name"`
	Operator string `yaml:"operator"`
}

// Default returns the "please configure me" starting point written by
// contractserver init.
func Default() Cfg {
	return Cfg{
		Address:   "127.0.0.1:8080",
		StoreRoot: "./data",
		KeyFile:   "key.priv",
		Servicekey: model.ServicekeyCfg{
			Currency: "USD",
			Value:    decimal.NewFromInt(100),
			Duration: 600,
		},
		Settlement: model.SettlementCfg{
			FeePercent:       decimal.NewFromInt(5),
			SubmissionWindow: 3600,
		},
		Metadata: Metadata{
			Name:     "PLEASE CONFIGURE ME",
			Operator: "TEST CONTRACT WITH DEFAULT CONFIG",
		},
	}
}

// Load reads path as YAML over the Default config, applies envPath (a
// .env file, if present) and then any WIRESKIP_CONTRACT_-prefixed
// environment variables as overrides.
func Load(path, envPath string) (Cfg, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Cfg{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Cfg{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return Cfg{}, fmt.Errorf("config: load %s: %w", envPath, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

const envPrefix = "WIRESKIP_CONTRACT_"

func applyEnvOverrides(cfg *Cfg) {
	if v := os.Getenv(envPrefix + "ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv(envPrefix + "STORE_ROOT"); v != "" {
		cfg.StoreRoot = v
	}
	if v := os.Getenv(envPrefix + "KEY_FILE"); v != "" {
		cfg.KeyFile = v
	}
	if v := os.Getenv(envPrefix + "SERVICEKEY_CURRENCY"); v != "" {
		cfg.Servicekey.Currency = v
	}
	if v := os.Getenv(envPrefix + "SERVICEKEY_VALUE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Servicekey.Value = d
		}
	}
	if v := os.Getenv(envPrefix + "SERVICEKEY_DURATION"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Servicekey.Duration = n
		}
	}
	if v := os.Getenv(envPrefix + "SETTLEMENT_FEE_PERCENT"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Settlement.FeePercent = d
		}
	}
	if v := os.Getenv(envPrefix + "SETTLEMENT_SUBMISSION_WINDOW"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Settlement.SubmissionWindow = n
		}
	}
}

// Write serializes cfg as YAML to path.
func Write(path string, cfg Cfg) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// feePercentAsFraction turns a human-entered "5" (meaning 5%) into the
// 0.05 fraction the reward formula expects.
func feePercentAsFraction(feePercent decimal.Decimal) decimal.Decimal {
	return feePercent.Div(decimal.NewFromInt(100))
}

// FeeFraction returns the settlement fee as a [0,1] fraction.
func (c Cfg) FeeFraction() decimal.Decimal {
	return feePercentAsFraction(c.Settlement.FeePercent)
}

// String renders the config's address for log lines.
func (c Cfg) String() string {
	return strings.TrimSuffix(c.Address, ":0")
}
