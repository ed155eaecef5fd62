package config

import (
	"time"

	"github.com/vietddude/batcher/internal/batcher"
	"github.com/vietddude/batcher/internal/core/retry"
	redisclient "github.com/vietddude/batcher/internal/infra/redis"
	"github.com/vietddude/batcher/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Eth      EthConfig          `yaml:"eth"`
	Retry    retry.Policy       `yaml:"retry"`
	Batcher  batcher.Config     `yaml:"batcher"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// EthConfig holds the blockchain endpoints and the payment contract.
type EthConfig struct {
	RPCURL                string        `yaml:"rpc_url"`
	RPCURLFallback        string        `yaml:"rpc_url_fallback"`
	PaymentServiceAddress string        `yaml:"payment_service_address"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
}
