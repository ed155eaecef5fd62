package eth

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// GasOracle reports the node's suggested gas price.
type GasOracle struct {
	caller Caller
}

func NewGasOracle(caller Caller) *GasOracle {
	return &GasOracle{caller: caller}
}

// GasPrice returns the current gas price in wei.
func (o *GasOracle) GasPrice(ctx context.Context) (*uint256.Int, error) {
	raw, err := o.caller.Call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return nil, fmt.Errorf("eth_gasPrice: %w", err)
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("eth_gasPrice: unexpected result type %T", raw)
	}
	n, err := hexutil.DecodeBig(s)
	if err != nil {
		return nil, fmt.Errorf("eth_gasPrice: %w", err)
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("eth_gasPrice: value overflows uint256")
	}
	return v, nil
}
