package ledger

import (
	"sync"

	"github.com/holiman/uint256"
)

// MemoryLedger is a map-backed Ledger. Individual operations are safe
// for concurrent use; multi-step protocols on top of it (snapshot,
// mutate, restore) are serialized by the caller.
type MemoryLedger struct {
	mu         sync.RWMutex
	balances   map[string]*uint256.Int
	allowances map[string]map[string]*uint256.Int
	supply     *uint256.Int
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[string]*uint256.Int),
		allowances: make(map[string]map[string]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

// Mint credits amount to account and grows total supply.
func (l *MemoryLedger) Mint(account string, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	supply := new(uint256.Int)
	if _, overflow := supply.AddOverflow(l.supply, amount); overflow {
		return ErrSupplyOverflow
	}
	l.supply = supply
	l.balances[account] = new(uint256.Int).Add(l.balance(account), amount)
	return nil
}

// Burn debits amount from account and shrinks total supply.
func (l *MemoryLedger) Burn(account string, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balance(account)
	if balance.Lt(amount) {
		return &BalanceError{
			Account: account,
			Balance: new(uint256.Int).Set(balance),
			Amount:  new(uint256.Int).Set(amount),
		}
	}
	l.balances[account] = new(uint256.Int).Sub(balance, amount)
	l.supply = new(uint256.Int).Sub(l.supply, amount)
	return nil
}

// Transfer moves amount between accounts.
func (l *MemoryLedger) Transfer(from, to string, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// TransferFrom moves amount from owner to recipient, spending allowance.
func (l *MemoryLedger) TransferFrom(spender, from, to string, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowance(from, spender)
	if allowance.Lt(amount) {
		return &AllowanceError{
			Owner:     from,
			Spender:   spender,
			Allowance: new(uint256.Int).Set(allowance),
			Amount:    new(uint256.Int).Set(amount),
		}
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.grants(from)[spender] = new(uint256.Int).Sub(allowance, amount)
	return nil
}

// Approve sets spender's allowance over the owner's balance.
func (l *MemoryLedger) Approve(owner, spender string, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.grants(owner)[spender] = new(uint256.Int).Set(amount)
	return nil
}

// Allowance returns spender's remaining allowance from owner.
func (l *MemoryLedger) Allowance(owner, spender string) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.allowance(owner, spender))
}

// BalanceOf returns the account's balance.
func (l *MemoryLedger) BalanceOf(account string) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.balance(account))
}

// TotalSupply returns the sum of all balances.
func (l *MemoryLedger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.supply)
}

// Snapshot captures the full ledger state.
func (l *MemoryLedger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := &Snapshot{
		balances:   make(map[string]*uint256.Int, len(l.balances)),
		allowances: make(map[string]map[string]*uint256.Int, len(l.allowances)),
		supply:     new(uint256.Int).Set(l.supply),
	}
	for account, balance := range l.balances {
		snap.balances[account] = new(uint256.Int).Set(balance)
	}
	for owner, grants := range l.allowances {
		copied := make(map[string]*uint256.Int, len(grants))
		for spender, allowance := range grants {
			copied[spender] = new(uint256.Int).Set(allowance)
		}
		snap.allowances[owner] = copied
	}
	return snap
}

// Restore rewinds the ledger to a previously captured snapshot.
func (l *MemoryLedger) Restore(snap *Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(map[string]*uint256.Int, len(snap.balances))
	l.allowances = make(map[string]map[string]*uint256.Int, len(snap.allowances))
	l.supply = new(uint256.Int).Set(snap.supply)
	for account, balance := range snap.balances {
		l.balances[account] = new(uint256.Int).Set(balance)
	}
	for owner, grants := range snap.allowances {
		copied := make(map[string]*uint256.Int, len(grants))
		for spender, allowance := range grants {
			copied[spender] = new(uint256.Int).Set(allowance)
		}
		l.allowances[owner] = copied
	}
}

// balance returns the live balance value; callers hold the lock.
func (l *MemoryLedger) balance(account string) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

// grants returns the owner's live allowance map, creating it on first
// use; callers hold the lock.
func (l *MemoryLedger) grants(owner string) map[string]*uint256.Int {
	g, ok := l.allowances[owner]
	if !ok {
		g = make(map[string]*uint256.Int)
		l.allowances[owner] = g
	}
	return g
}

// allowance returns the live allowance value; callers hold the lock.
func (l *MemoryLedger) allowance(owner, spender string) *uint256.Int {
	if grants, ok := l.allowances[owner]; ok {
		if a, ok := grants[spender]; ok {
			return a
		}
	}
	return new(uint256.Int)
}

// move debits from and credits to; callers hold the lock.
func (l *MemoryLedger) move(from, to string, amount *uint256.Int) error {
	balance := l.balance(from)
	if balance.Lt(amount) {
		return &BalanceError{
			Account: from,
			Balance: new(uint256.Int).Set(balance),
			Amount:  new(uint256.Int).Set(amount),
		}
	}
	l.balances[from] = new(uint256.Int).Sub(balance, amount)
	l.balances[to] = new(uint256.Int).Add(l.balance(to), amount)
	return nil
}

var _ Ledger = (*MemoryLedger)(nil)
