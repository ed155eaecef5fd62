// Package eth reads batcher payment state and gas prices from an Ethereum
// JSON-RPC endpoint.
package eth

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Caller issues a single JSON-RPC request. provider.RPCProvider satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params []any) (any, error)
}

const paymentServiceABI = `[
	{"type":"function","name":"userBalances","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"userNonces","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"userUnlockBlock","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

var parsedPaymentABI = mustParseABI(paymentServiceABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("eth: parse payment service abi: %v", err))
	}
	return parsed
}

// PaymentService is a read-only binding to the batcher payment contract on
// one endpoint.
type PaymentService struct {
	caller  Caller
	address common.Address
}

// NewPaymentService binds the contract at address through caller.
func NewPaymentService(caller Caller, address common.Address) *PaymentService {
	return &PaymentService{caller: caller, address: address}
}

// Address returns the bound contract address.
func (s *PaymentService) Address() common.Address {
	return s.address
}

// UserBalances returns the deposited balance of addr in wei.
func (s *PaymentService) UserBalances(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return s.callUint(ctx, "userBalances", addr)
}

// UserNonces returns the next expected nonce of addr.
func (s *PaymentService) UserNonces(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return s.callUint(ctx, "userNonces", addr)
}

// UserUnlockBlock returns the block at which addr's balance unlocks, or zero
// when it is locked.
func (s *PaymentService) UserUnlockBlock(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return s.callUint(ctx, "userUnlockBlock", addr)
}

func (s *PaymentService) callUint(ctx context.Context, method string, args ...any) (*uint256.Int, error) {
	data, err := parsedPaymentABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := map[string]any{
		"to":   s.address.Hex(),
		"data": hexutil.Encode(data),
	}
	raw, err := s.caller.Call(ctx, "eth_call", []any{msg, "latest"})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	encoded, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, raw)
	}
	out, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s: decode result: %w", method, err)
	}

	values, err := parsedPaymentABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: expected 1 output, got %d", method, len(values))
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, values[0])
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("%s: value overflows uint256", method)
	}
	return v, nil
}
