// Package ledger provides fungible-unit bookkeeping: balances, total
// supply, and spending allowances. The orchestrator consumes it through
// the Ledger interface; MemoryLedger is the reference implementation.
package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is the sentinel wrapped by BalanceError.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInsufficientAllowance is the sentinel wrapped by AllowanceError.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")

	// ErrSupplyOverflow is returned when a mint would push total supply
	// past 256 bits.
	ErrSupplyOverflow = errors.New("ledger: supply overflow")
)

// BalanceError reports a debit larger than the account holds.
type BalanceError struct {
	Account string
	Balance *uint256.Int
	Amount  *uint256.Int
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("ledger: insufficient balance for %s: have %s, need %s",
		e.Account, e.Balance.Dec(), e.Amount.Dec())
}

// Unwrap lets errors.Is match ErrInsufficientBalance.
func (e *BalanceError) Unwrap() error { return ErrInsufficientBalance }

// AllowanceError reports a transferFrom exceeding the spender's allowance.
type AllowanceError struct {
	Owner     string
	Spender   string
	Allowance *uint256.Int
	Amount    *uint256.Int
}

func (e *AllowanceError) Error() string {
	return fmt.Sprintf("ledger: insufficient allowance for %s from %s: have %s, need %s",
		e.Spender, e.Owner, e.Allowance.Dec(), e.Amount.Dec())
}

func (e *AllowanceError) Unwrap() error { return ErrInsufficientAllowance }

// Ledger is the bookkeeping capability the orchestrator consumes.
// Units are whole (no subdivision); amounts are 256-bit unsigned.
//
// Snapshot and Restore support the orchestrator's atomicity protocol:
// a snapshot taken before an operation can be restored to discard every
// mutation the operation made.
type Ledger interface {
	// Mint credits amount to account and grows total supply by the same.
	Mint(account string, amount *uint256.Int) error

	// Burn debits amount from account and shrinks total supply by the
	// same. Fails with a BalanceError if amount exceeds the balance.
	Burn(account string, amount *uint256.Int) error

	// Transfer moves amount from one account to another.
	Transfer(from, to string, amount *uint256.Int) error

	// TransferFrom moves amount from owner to recipient on behalf of
	// spender, decrementing spender's allowance.
	TransferFrom(spender, from, to string, amount *uint256.Int) error

	// Approve sets spender's allowance over the owner's balance.
	Approve(owner, spender string, amount *uint256.Int) error

	// Allowance returns spender's remaining allowance from owner.
	Allowance(owner, spender string) *uint256.Int

	// BalanceOf returns the account's balance. Accounts spring into
	// existence implicitly; unknown accounts hold zero.
	BalanceOf(account string) *uint256.Int

	// TotalSupply returns the sum of all balances.
	TotalSupply() *uint256.Int

	// Snapshot captures the full ledger state.
	Snapshot() *Snapshot

	// Restore rewinds the ledger to a previously captured snapshot.
	Restore(snap *Snapshot)
}

// Snapshot is a point-in-time copy of ledger state.
type Snapshot struct {
	balances   map[string]*uint256.Int
	allowances map[string]map[string]*uint256.Int
	supply     *uint256.Int
}
