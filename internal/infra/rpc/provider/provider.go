// Package provider implements the JSON-RPC transport used to read contract
// state from the blockchain backend.
//
// Providers are constructed once per endpoint and shared; Call is safe for
// concurrent use.
package provider

import (
	"context"
	"fmt"
	"time"
)

// RPCProvider makes JSON-RPC requests against one endpoint.
type RPCProvider interface {
	// GetName returns provider identifier (e.g., "primary", "fallback")
	GetName() string

	// Call makes a single RPC request
	Call(ctx context.Context, method string, params []any) (any, error)

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
}

// RPCError is an error object returned by the remote node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
