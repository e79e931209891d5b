// Package config loads bridge configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is everything the bridge daemon needs at startup.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	APIToken   string `env:"API_TOKEN"`

	LedgerRPCURL    string `env:"LEDGER_RPC_URL,required"`
	ContractAddress string `env:"CONTRACT_ADDRESS,required"`
	Marketplace     string `env:"MARKETPLACE,required"`

	OperatorKey      string `env:"OPERATOR_PRIVATE_KEY,required,unset"`
	WalletPath       string `env:"WALLET_PATH"`
	WalletPassphrase string `env:"WALLET_PASSPHRASE,unset"`
	FeeAsset         string `env:"FEE_ASSET" envDefault:"GAS"`

	DataDir string `env:"DATA_DIR" envDefault:"/var/lib/lootbridge"`

	RetryBackoff    time.Duration `env:"RETRY_BACKOFF" envDefault:"10s"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS" envDefault:"0"`
	SyncWaitCeiling time.Duration `env:"SYNC_WAIT_CEILING" envDefault:"0"`
	ConfirmPoll     time.Duration `env:"CONFIRM_POLL" envDefault:"5s"`
	ConfirmCeiling  time.Duration `env:"CONFIRM_CEILING" envDefault:"300s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
