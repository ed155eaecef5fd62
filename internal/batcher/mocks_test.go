package batcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var errNodeDown = errors.New("node down")

type mockPayment struct {
	balance *uint256.Int
	nonce   *uint256.Int
	unlock  *uint256.Int
	err     error

	balanceCalls atomic.Int32
	nonceCalls   atomic.Int32
	unlockCalls  atomic.Int32
}

func newMockPayment(balance, nonce, unlock uint64) *mockPayment {
	return &mockPayment{
		balance: uint256.NewInt(balance),
		nonce:   uint256.NewInt(nonce),
		unlock:  uint256.NewInt(unlock),
	}
}

func failingPayment(err error) *mockPayment {
	return &mockPayment{err: err}
}

func (m *mockPayment) UserBalances(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	m.balanceCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.balance, nil
}

func (m *mockPayment) UserNonces(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	m.nonceCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.nonce, nil
}

func (m *mockPayment) UserUnlockBlock(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	m.unlockCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.unlock, nil
}

func (m *mockPayment) totalCalls() int32 {
	return m.balanceCalls.Load() + m.nonceCalls.Load() + m.unlockCalls.Load()
}

type mockGas struct {
	price *uint256.Int
	err   error
	calls atomic.Int32
}

func (m *mockGas) GasPrice(ctx context.Context) (*uint256.Int, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.price, nil
}

type mockSink struct {
	id uuid.UUID

	mu        sync.Mutex
	responses [][]byte
	messages  []any
	errs      []error // consumed by SendResponseRetryable, nil entries succeed
	attempts  int
	delivered chan struct{}
}

func newMockSink() *mockSink {
	return &mockSink{id: uuid.New(), delivered: make(chan struct{}, 64)}
}

func (m *mockSink) ID() uuid.UUID {
	return m.id
}

func (m *mockSink) SendMessage(ctx context.Context, msg any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockSink) SendResponseRetryable(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return err
		}
	}
	m.responses = append(m.responses, append([]byte(nil), payload...))
	m.delivered <- struct{}{}
	return nil
}

func (m *mockSink) snapshot() (responses [][]byte, messages []any, attempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.responses...), append([]any(nil), m.messages...), m.attempts
}
