package chain

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// StaticBalanceSource serves balances from memory. Development mode uses it
// when no RPC endpoint is configured.
type StaticBalanceSource struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
}

func NewStaticBalanceSource() *StaticBalanceSource {
	return &StaticBalanceSource{balances: make(map[string]decimal.Decimal)}
}

func (s *StaticBalanceSource) Set(address string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = amount
}

// Add adjusts a balance by delta, which may be negative.
func (s *StaticBalanceSource) Add(address string, delta decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = s.balances[address].Add(delta)
}

func (s *StaticBalanceSource) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[address], nil
}

// BalanceFunc adapts a callback to store.ChainBalanceSource.
type BalanceFunc func(ctx context.Context, address string) (decimal.Decimal, error)

func (f BalanceFunc) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if f == nil {
		return decimal.Zero, nil
	}
	return f(ctx, address)
}
