// Package exchange orchestrates issuance and redemption against a
// bonding curve. Each public operation runs as one atomic unit:
// validate, mutate ledger and cooldown state, settle outbound value,
// notify. A failure at any stage restores the pre-operation state, so
// no partial commit is ever observable.
//
// Ordering discipline: prices are always computed against the supply
// read before the operation's own mint or burn, and all state
// mutations commit before the Settler runs. The settler is the only
// handoff to untrusted code, and it cannot call back in: operations
// are serialized by an in-flight latch, so a nested call issued from
// a settler fails with ErrReentrantCall instead of creating state the
// outer rollback could not undo (a nested sell's payout leaves the
// system the moment it is settled; rewinding its burn afterwards
// would hand the seller both the tokens and the payout).
package exchange

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"

	"github.com/curvemint/go-curvemint/cooldown"
	"github.com/curvemint/go-curvemint/curve"
	"github.com/curvemint/go-curvemint/journal"
	"github.com/curvemint/go-curvemint/ledger"
)

// Exchange composes the pricer, the ledger, the cooldown guard, the
// outbound settler, and the notification journal. It holds no account
// state of its own.
type Exchange struct {
	curve   *curve.Curve
	ledger  ledger.Ledger
	guard   *cooldown.Guard
	settler Settler
	journal journal.Writer
	now     func() time.Time
	busy    atomic.Bool
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithJournal sets the notification sink. Without one, operations are
// not journaled.
func WithJournal(w journal.Writer) Option {
	return func(e *Exchange) { e.journal = w }
}

// WithClock overrides the time source used for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exchange) { e.now = now }
}

// New creates an exchange over the given collaborators.
func New(c *curve.Curve, l ledger.Ledger, g *cooldown.Guard, s Settler, opts ...Option) *Exchange {
	e := &Exchange{
		curve:   c,
		ledger:  l,
		guard:   g,
		settler: s,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Receipt reports the priced outcome of a buy or sell.
type Receipt struct {
	Cost   *uint256.Int // curve cost charged (buy)
	Change *uint256.Int // excess attached value refunded (buy)
	Payout *uint256.Int // curve payout delivered (sell)
}

// begin latches the exchange for one in-flight operation. Exactly one
// operation may run at a time; this is what makes the whole-state
// rewind sound, since no other operation can have committed between
// the checkpoint and the failure.
func (e *Exchange) begin() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Exchange) end() { e.busy.Store(false) }

// frame captures the state a failing operation rewinds to.
type frame struct {
	ledger *ledger.Snapshot
	guard  map[string]time.Time
}

func (e *Exchange) checkpoint() frame {
	return frame{ledger: e.ledger.Snapshot(), guard: e.guard.Snapshot()}
}

func (e *Exchange) rewind(f frame) {
	e.ledger.Restore(f.ledger)
	e.guard.Restore(f.guard)
}

// Buy mints amount units to buyer, charging the curve cost out of
// attachedValue and refunding the excess through the settler. The cost
// is priced against the supply before the mint.
func (e *Exchange) Buy(ctx context.Context, buyer string, amount, attachedValue *uint256.Int) (*Receipt, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	cost, err := e.curve.BuyPrice(amount, e.ledger.TotalSupply())
	if err != nil {
		return nil, err
	}
	if attachedValue.Lt(cost) {
		return nil, &InsufficientPaymentError{
			Attached: new(uint256.Int).Set(attachedValue),
			Cost:     cost,
		}
	}

	cp := e.checkpoint()

	if err := e.ledger.Mint(buyer, amount); err != nil {
		e.rewind(cp)
		return nil, err
	}
	e.guard.Refresh(buyer)

	change := new(uint256.Int).Sub(attachedValue, cost)
	if !change.IsZero() {
		if err := e.settler.Pay(ctx, buyer, change); err != nil {
			e.rewind(cp)
			return nil, &SettlementError{Op: "buy", Account: buyer, Amount: change, Err: err}
		}
	}

	if err := e.notify(ctx, &journal.Entry{
		Kind:    journal.KindBuy,
		Account: buyer,
		Amount:  amount.Dec(),
		Value:   attachedValue.Dec(),
		Cost:    cost.Dec(),
		Change:  change.Dec(),
	}); err != nil {
		e.rewind(cp)
		return nil, err
	}

	return &Receipt{Cost: cost, Change: change}, nil
}

// Sell burns amount units from seller and pays out the curve payout
// through the settler. The payout is priced against the supply before
// the burn. The seller's cooldown gates the operation.
func (e *Exchange) Sell(ctx context.Context, seller string, amount *uint256.Int) (*Receipt, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	if err := e.guard.Check(seller); err != nil {
		return nil, err
	}
	balance := e.ledger.BalanceOf(seller)
	if balance.Lt(amount) {
		return nil, &InsufficientBalanceError{
			Account: seller,
			Balance: balance,
			Amount:  new(uint256.Int).Set(amount),
		}
	}

	// Priced before the burn shrinks supply.
	payout, err := e.curve.SellPrice(amount, e.ledger.TotalSupply())
	if err != nil {
		return nil, err
	}

	cp := e.checkpoint()

	if err := e.ledger.Burn(seller, amount); err != nil {
		e.rewind(cp)
		return nil, err
	}

	if !payout.IsZero() {
		if err := e.settler.Pay(ctx, seller, payout); err != nil {
			e.rewind(cp)
			return nil, &SettlementError{Op: "sell", Account: seller, Amount: payout, Err: err}
		}
	}

	if err := e.notify(ctx, &journal.Entry{
		Kind:    journal.KindSell,
		Account: seller,
		Amount:  amount.Dec(),
		Payout:  payout.Dec(),
	}); err != nil {
		e.rewind(cp)
		return nil, err
	}

	return &Receipt{Payout: payout}, nil
}

// Transfer moves amount units from one holder to another. The sender's
// cooldown gates the move; on success both recipient and sender are
// stamped.
func (e *Exchange) Transfer(ctx context.Context, from, to string, amount *uint256.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	if err := e.guard.Check(from); err != nil {
		return err
	}

	cp := e.checkpoint()

	if err := e.ledger.Transfer(from, to, amount); err != nil {
		e.rewind(cp)
		return err
	}
	e.guard.Refresh(to)
	e.guard.Refresh(from)

	if err := e.notify(ctx, &journal.Entry{
		Kind:         journal.KindTransfer,
		Account:      from,
		Counterparty: to,
		Amount:       amount.Dec(),
	}); err != nil {
		e.rewind(cp)
		return err
	}
	return nil
}

// TransferFrom moves amount units from the source holder to the
// recipient on behalf of spender, decrementing spender's allowance.
// The source holder's cooldown gates the move.
func (e *Exchange) TransferFrom(ctx context.Context, spender, from, to string, amount *uint256.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	if err := e.guard.Check(from); err != nil {
		return err
	}

	cp := e.checkpoint()

	if err := e.ledger.TransferFrom(spender, from, to, amount); err != nil {
		e.rewind(cp)
		return err
	}
	e.guard.Refresh(to)
	e.guard.Refresh(from)

	if err := e.notify(ctx, &journal.Entry{
		Kind:         journal.KindTransferFrom,
		Account:      from,
		Counterparty: to,
		Amount:       amount.Dec(),
	}); err != nil {
		e.rewind(cp)
		return err
	}
	return nil
}

// Reserve returns the value the engine expects to hold against the
// current supply, the curve integral at TotalSupply.
func (e *Exchange) Reserve() (*uint256.Int, error) {
	return e.curve.ReserveAt(e.ledger.TotalSupply())
}

// Ledger exposes the underlying ledger for read access.
func (e *Exchange) Ledger() ledger.Ledger { return e.ledger }

// notify appends the entry, stamping supply and time.
func (e *Exchange) notify(ctx context.Context, entry *journal.Entry) error {
	if e.journal == nil {
		return nil
	}
	entry.Supply = e.ledger.TotalSupply().Dec()
	entry.Timestamp = e.now()
	if err := e.journal.Append(ctx, entry); err != nil {
		return fmt.Errorf("exchange: journal append: %w", err)
	}
	return nil
}
