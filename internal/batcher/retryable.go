package batcher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vietddude/batcher/internal/core/retry"
	"github.com/vietddude/batcher/internal/metrics"
)

// ErrUnlockStateUnavailable is returned when neither provider could report
// whether a balance is unlocked.
var ErrUnlockStateUnavailable = errors.New("batcher: unlock state unavailable")

// PaymentService reads submitter state from the payment contract.
// *eth.PaymentService satisfies it.
type PaymentService interface {
	UserBalances(ctx context.Context, addr common.Address) (*uint256.Int, error)
	UserNonces(ctx context.Context, addr common.Address) (*uint256.Int, error)
	UserUnlockBlock(ctx context.Context, addr common.Address) (*uint256.Int, error)
}

// GasPriceProvider reports the current gas price. *eth.GasOracle satisfies it.
type GasPriceProvider interface {
	GasPrice(ctx context.Context) (*uint256.Int, error)
}

// GetUserBalanceRetryable reads the balance of addr from primary, then from
// fallback. It makes a single attempt against each; wrap it in retry.Do for
// resilience over time.
func GetUserBalanceRetryable(ctx context.Context, addr common.Address, primary, fallback PaymentService) (*uint256.Int, error) {
	v, err := dualSource(ctx, "user_balance",
		func(ctx context.Context) (*uint256.Int, error) { return primary.UserBalances(ctx, addr) },
		func(ctx context.Context) (*uint256.Int, error) { return fallback.UserBalances(ctx, addr) },
	)
	if err != nil {
		slog.Warn("Failed to get balance for address", "address", addr.Hex(), "error", err)
		return nil, retry.Transient(errors.New(err.Error()))
	}
	return v, nil
}

// GetUserNonceRetryable reads the next nonce of addr from primary, then from
// fallback.
func GetUserNonceRetryable(ctx context.Context, addr common.Address, primary, fallback PaymentService) (*uint256.Int, error) {
	v, err := dualSource(ctx, "user_nonce",
		func(ctx context.Context) (*uint256.Int, error) { return primary.UserNonces(ctx, addr) },
		func(ctx context.Context) (*uint256.Int, error) { return fallback.UserNonces(ctx, addr) },
	)
	if err != nil {
		slog.Warn("Failed to get nonce for address", "address", addr.Hex(), "error", err)
		return nil, retry.Transient(errors.New(err.Error()))
	}
	return v, nil
}

// UserBalanceIsUnlockedRetryable reports whether addr has an unlock block
// scheduled. A nonzero block means unlocked regardless of the current height.
func UserBalanceIsUnlockedRetryable(ctx context.Context, addr common.Address, primary, fallback PaymentService) (bool, error) {
	block, err := dualSource(ctx, "user_unlock_block",
		func(ctx context.Context) (*uint256.Int, error) { return primary.UserUnlockBlock(ctx, addr) },
		func(ctx context.Context) (*uint256.Int, error) { return fallback.UserUnlockBlock(ctx, addr) },
	)
	if err != nil {
		slog.Warn("Failed to get user locking state", "address", addr.Hex(), "error", err)
		return false, retry.Transient(ErrUnlockStateUnavailable)
	}
	return !block.IsZero(), nil
}

// GetGasPriceRetryable reads the gas price from primary, then from fallback.
func GetGasPriceRetryable(ctx context.Context, primary, fallback GasPriceProvider) (*uint256.Int, error) {
	v, err := dualSource(ctx, "gas_price", primary.GasPrice, fallback.GasPrice)
	if err != nil {
		slog.Warn("Failed to get fallback gas price", "error", err)
		return nil, retry.Transient(errors.New(err.Error()))
	}
	return v, nil
}

// dualSource returns the primary result, or the fallback result when the
// primary fails. The returned error is the fallback's.
func dualSource[T any](ctx context.Context, accessor string, primary, fallback func(context.Context) (T, error)) (T, error) {
	v, err := primary(ctx)
	if err == nil {
		metrics.RPCFallbackTotal.WithLabelValues(accessor, "primary").Inc()
		return v, nil
	}
	slog.Debug("Primary provider failed, trying fallback", "accessor", accessor, "error", err)

	v, err = fallback(ctx)
	if err == nil {
		metrics.RPCFallbackTotal.WithLabelValues(accessor, "fallback").Inc()
		return v, nil
	}
	metrics.RPCFallbackTotal.WithLabelValues(accessor, "none").Inc()
	return v, err
}
