package exchange

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientPayment is the sentinel wrapped by
	// InsufficientPaymentError.
	ErrInsufficientPayment = errors.New("exchange: insufficient payment")

	// ErrInsufficientBalance is the sentinel wrapped by
	// InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("exchange: insufficient balance")

	// ErrSettlementFailed is the sentinel wrapped by SettlementError.
	ErrSettlementFailed = errors.New("exchange: settlement failed")

	// ErrReentrantCall is returned when an operation is issued while
	// another is still in flight, including calls made from inside a
	// Settler. A rejected call leaves no trace; retry once the outer
	// operation has returned.
	ErrReentrantCall = errors.New("exchange: operation already in progress")
)

// InsufficientPaymentError reports a buy whose attached value does not
// cover the curve cost.
type InsufficientPaymentError struct {
	Attached *uint256.Int
	Cost     *uint256.Int
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("exchange: insufficient payment: attached %s, cost %s",
		e.Attached.Dec(), e.Cost.Dec())
}

func (e *InsufficientPaymentError) Unwrap() error { return ErrInsufficientPayment }

// InsufficientBalanceError reports a sell or transfer larger than the
// account holds.
type InsufficientBalanceError struct {
	Account string
	Balance *uint256.Int
	Amount  *uint256.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("exchange: insufficient balance for %s: have %s, need %s",
		e.Account, e.Balance.Dec(), e.Amount.Dec())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// SettlementError reports a failed outbound value transfer. The whole
// operation it belongs to has been rolled back.
type SettlementError struct {
	Op      string // "buy" (change refund) or "sell" (payout)
	Account string
	Amount  *uint256.Int
	Err     error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("exchange: %s settlement of %s to %s failed: %v",
		e.Op, e.Amount.Dec(), e.Account, e.Err)
}

func (e *SettlementError) Unwrap() error { return ErrSettlementFailed }
