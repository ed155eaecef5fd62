package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/batcher/internal/core/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Eth.RequestTimeout == 0 {
		cfg.Eth.RequestTimeout = 10 * time.Second
	}

	// max_attempts: 0 means "not set"; use a negative value to retry forever
	if cfg.Retry.MinDelay == 0 {
		cfg.Retry.MinDelay = retry.DefaultMinDelay
	}
	if cfg.Retry.Factor == 0 {
		cfg.Retry.Factor = retry.DefaultFactor
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = retry.DefaultMaxAttempts
	}
}

// Validate checks the settings needed to run the batcher.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Eth.RPCURL == "" {
		errs = append(errs, errors.New("eth.rpc_url is required"))
	}
	if c.Eth.RPCURLFallback == "" {
		errs = append(errs, errors.New("eth.rpc_url_fallback is required"))
	}
	if !common.IsHexAddress(c.Eth.PaymentServiceAddress) {
		errs = append(errs, fmt.Errorf("eth.payment_service_address %q is not a valid address", c.Eth.PaymentServiceAddress))
	}
	if c.Retry.MinDelay < 0 || c.Retry.Factor < 1 {
		errs = append(errs, errors.New("retry.min_delay must be >= 0 and retry.factor >= 1"))
	}
	return errors.Join(errs...)
}
