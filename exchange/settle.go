package exchange

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
)

// Settler delivers outbound value (a buy's change refund, a sell's
// payout) to an account. It is the only point where control leaves the
// engine mid-operation, so implementations may call back into the
// Exchange; they observe state as of after the current operation's
// mutations.
type Settler interface {
	Pay(ctx context.Context, account string, amount *uint256.Int) error
}

// SettleFunc adapts a function to the Settler interface.
type SettleFunc func(ctx context.Context, account string, amount *uint256.Int) error

// Pay calls f.
func (f SettleFunc) Pay(ctx context.Context, account string, amount *uint256.Int) error {
	return f(ctx, account, amount)
}

// MemorySettler accumulates outbound payments per account. Useful for
// tests and the CLI, where value settlement is simulated.
type MemorySettler struct {
	mu   sync.RWMutex
	paid map[string]*uint256.Int
}

// NewMemorySettler creates an empty settler.
func NewMemorySettler() *MemorySettler {
	return &MemorySettler{paid: make(map[string]*uint256.Int)}
}

// Pay records the payment.
func (s *MemorySettler) Pay(ctx context.Context, account string, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	total, ok := s.paid[account]
	if !ok {
		total = new(uint256.Int)
		s.paid[account] = total
	}
	total.Add(total, amount)
	return nil
}

// Paid returns the total value delivered to the account.
func (s *MemorySettler) Paid(account string) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if total, ok := s.paid[account]; ok {
		return new(uint256.Int).Set(total)
	}
	return new(uint256.Int)
}

var _ Settler = (*MemorySettler)(nil)
