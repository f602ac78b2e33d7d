package exchange_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/curvemint/go-curvemint/cooldown"
	"github.com/curvemint/go-curvemint/curve"
	"github.com/curvemint/go-curvemint/exchange"
	"github.com/curvemint/go-curvemint/journal"
	"github.com/curvemint/go-curvemint/ledger"
)

var testSlope = uint256.NewInt(100_000_000_000_000)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	clock    *fakeClock
	ledger   *ledger.MemoryLedger
	guard    *cooldown.Guard
	settler  *exchange.MemorySettler
	journal  *journal.MemoryStore
	exchange *exchange.Exchange
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c, err := curve.New(testSlope)
	if err != nil {
		t.Fatalf("new curve: %v", err)
	}

	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := ledger.NewMemoryLedger()
	g := cooldown.NewGuard(
		cooldown.WithClock(clock.Now),
		cooldown.WithDuration(5*time.Minute),
	)
	s := exchange.NewMemorySettler()
	j := journal.NewMemoryStore()

	return &fixture{
		clock:    clock,
		ledger:   l,
		guard:    g,
		settler:  s,
		journal:  j,
		exchange: exchange.New(c, l, g, s, exchange.WithJournal(j), exchange.WithClock(clock.Now)),
	}
}

// buyExact buys amount with exactly the curve cost attached.
func (f *fixture) buyExact(t *testing.T, buyer string, amount uint64) *exchange.Receipt {
	t.Helper()

	c, _ := curve.New(testSlope)
	cost, err := c.BuyPrice(uint256.NewInt(amount), f.ledger.TotalSupply())
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	receipt, err := f.exchange.Buy(context.Background(), buyer, uint256.NewInt(amount), cost)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	return receipt
}

func TestBuy(t *testing.T) {
	t.Run("MintsAndCharges", func(t *testing.T) {
		f := newFixture(t)

		// First two units at supply 0 cost 3*slope.
		want := new(uint256.Int).Mul(testSlope, uint256.NewInt(3))
		receipt, err := f.exchange.Buy(context.Background(), "alice", uint256.NewInt(2), want)
		if err != nil {
			t.Fatalf("buy: %v", err)
		}
		if !receipt.Cost.Eq(want) {
			t.Errorf("cost: %s", receipt.Cost.Dec())
		}
		if !receipt.Change.IsZero() {
			t.Errorf("change on exact payment: %s", receipt.Change.Dec())
		}
		if got := f.ledger.BalanceOf("alice"); !got.Eq(uint256.NewInt(2)) {
			t.Errorf("balance: %s", got.Dec())
		}
		if got := f.ledger.TotalSupply(); !got.Eq(uint256.NewInt(2)) {
			t.Errorf("supply: %s", got.Dec())
		}
	})

	t.Run("RefundsChange", func(t *testing.T) {
		f := newFixture(t)

		cost := new(uint256.Int).Mul(testSlope, uint256.NewInt(3))
		attached := new(uint256.Int).Add(cost, uint256.NewInt(12345))
		receipt, err := f.exchange.Buy(context.Background(), "alice", uint256.NewInt(2), attached)
		if err != nil {
			t.Fatalf("buy: %v", err)
		}
		if !receipt.Change.Eq(uint256.NewInt(12345)) {
			t.Errorf("change: %s", receipt.Change.Dec())
		}
		if got := f.settler.Paid("alice"); !got.Eq(uint256.NewInt(12345)) {
			t.Errorf("settled change: %s", got.Dec())
		}
	})

	t.Run("InsufficientPayment", func(t *testing.T) {
		f := newFixture(t)

		attached := uint256.NewInt(1)
		_, err := f.exchange.Buy(context.Background(), "alice", uint256.NewInt(2), attached)
		if !errors.Is(err, exchange.ErrInsufficientPayment) {
			t.Fatalf("expected ErrInsufficientPayment, got %v", err)
		}
		var payErr *exchange.InsufficientPaymentError
		if !errors.As(err, &payErr) {
			t.Fatalf("expected InsufficientPaymentError, got %T", err)
		}
		want := new(uint256.Int).Mul(testSlope, uint256.NewInt(3))
		if !payErr.Cost.Eq(want) || !payErr.Attached.Eq(attached) {
			t.Errorf("payload: attached %s cost %s", payErr.Attached.Dec(), payErr.Cost.Dec())
		}
		if !f.ledger.TotalSupply().IsZero() {
			t.Error("failed buy minted units")
		}
	})

	t.Run("PricesAgainstPreMintSupply", func(t *testing.T) {
		f := newFixture(t)
		first := f.buyExact(t, "alice", 2)
		second := f.buyExact(t, "alice", 1)

		// slope*2*(0+1+2)/2 then slope*1*(4+1+1)/2.
		if !first.Cost.Eq(new(uint256.Int).Mul(testSlope, uint256.NewInt(3))) {
			t.Errorf("first cost: %s", first.Cost.Dec())
		}
		if !second.Cost.Eq(new(uint256.Int).Mul(testSlope, uint256.NewInt(3))) {
			t.Errorf("second cost: %s", second.Cost.Dec())
		}
	})

	t.Run("Journaled", func(t *testing.T) {
		f := newFixture(t)
		f.buyExact(t, "alice", 2)

		head, err := f.journal.Head(context.Background())
		if err != nil {
			t.Fatalf("head: %v", err)
		}
		if head == nil || head.Kind != journal.KindBuy || head.Account != "alice" {
			t.Fatalf("unexpected head: %+v", head)
		}
		if head.Supply != "2" {
			t.Errorf("journaled supply: %s", head.Supply)
		}
	})
}

func TestSell(t *testing.T) {
	t.Run("CooldownBlocksImmediateSell", func(t *testing.T) {
		f := newFixture(t)
		f.buyExact(t, "alice", 2)

		_, err := f.exchange.Sell(context.Background(), "alice", uint256.NewInt(1))
		var cdErr *cooldown.CooldownError
		if !errors.As(err, &cdErr) {
			t.Fatalf("expected CooldownError, got %v", err)
		}
		if cdErr.Required != 5*time.Minute {
			t.Errorf("required: %v", cdErr.Required)
		}
	})

	t.Run("BoundaryElapsedSells", func(t *testing.T) {
		f := newFixture(t)
		f.buyExact(t, "alice", 2)
		f.clock.Advance(5 * time.Minute)

		receipt, err := f.exchange.Sell(context.Background(), "alice", uint256.NewInt(1))
		if err != nil {
			t.Fatalf("sell at boundary: %v", err)
		}
		// sell(1, 2) = 2*slope.
		want := new(uint256.Int).Mul(testSlope, uint256.NewInt(2))
		if !receipt.Payout.Eq(want) {
			t.Errorf("payout: %s", receipt.Payout.Dec())
		}
		if got := f.settler.Paid("alice"); !got.Eq(want) {
			t.Errorf("settled payout: %s", got.Dec())
		}
		if got := f.ledger.TotalSupply(); !got.Eq(uint256.NewInt(1)) {
			t.Errorf("supply: %s", got.Dec())
		}
	})

	t.Run("RoundTripReturnsCost", func(t *testing.T) {
		f := newFixture(t)
		receipt := f.buyExact(t, "alice", 7)
		f.clock.Advance(5 * time.Minute)

		sold, err := f.exchange.Sell(context.Background(), "alice", uint256.NewInt(7))
		if err != nil {
			t.Fatalf("sell: %v", err)
		}
		if !sold.Payout.Eq(receipt.Cost) {
			t.Errorf("round trip: cost %s, payout %s", receipt.Cost.Dec(), sold.Payout.Dec())
		}
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		f := newFixture(t)
		f.buyExact(t, "alice", 2)
		f.clock.Advance(5 * time.Minute)

		_, err := f.exchange.Sell(context.Background(), "alice", uint256.NewInt(3))
		var balErr *exchange.InsufficientBalanceError
		if !errors.As(err, &balErr) {
			t.Fatalf("expected InsufficientBalanceError, got %v", err)
		}
		if !balErr.Balance.Eq(uint256.NewInt(2)) || !balErr.Amount.Eq(uint256.NewInt(3)) {
			t.Errorf("payload: have %s, need %s", balErr.Balance.Dec(), balErr.Amount.Dec())
		}
	})

	t.Run("PricesAgainstPreBurnSupply", func(t *testing.T) {
		f := newFixture(t)
		f.buyExact(t, "alice", 2)
		f.clock.Advance(5 * time.Minute)

		receipt, err := f.exchange.Sell(context.Background(), "alice", uint256.NewInt(2))
		if err != nil {
			t.Fatalf("sell: %v", err)
		}
		// Priced at supply 2, not the post-burn 0: slope*2*(4+1-2)/2 = 3*slope.
		want := new(uint256.Int).Mul(testSlope, uint256.NewInt(3))
		if !receipt.Payout.Eq(want) {
			t.Errorf("payout priced against wrong supply: %s", receipt.Payout.Dec())
		}
	})
}

func TestSettlementFailureRollsBack(t *testing.T) {
	reject := exchange.SettleFunc(func(ctx context.Context, account string, amount *uint256.Int) error {
		return errors.New("recipient rejects value")
	})

	t.Run("SellPayout", func(t *testing.T) {
		f := newFixture(t)
		f.buyExact(t, "alice", 2)
		f.clock.Advance(5 * time.Minute)
		stampBefore := f.guard.LastEvent("alice")

		c, _ := curve.New(testSlope)
		rejecting := exchange.New(c, f.ledger, f.guard, reject, exchange.WithClock(f.clock.Now))

		_, err := rejecting.Sell(context.Background(), "alice", uint256.NewInt(1))
		if !errors.Is(err, exchange.ErrSettlementFailed) {
			t.Fatalf("expected ErrSettlementFailed, got %v", err)
		}
		var setErr *exchange.SettlementError
		if !errors.As(err, &setErr) {
			t.Fatalf("expected SettlementError, got %T", err)
		}
		if setErr.Op != "sell" || setErr.Account != "alice" {
			t.Errorf("payload: %+v", setErr)
		}

		if got := f.ledger.BalanceOf("alice"); !got.Eq(uint256.NewInt(2)) {
			t.Errorf("balance mutated: %s", got.Dec())
		}
		if got := f.ledger.TotalSupply(); !got.Eq(uint256.NewInt(2)) {
			t.Errorf("supply mutated: %s", got.Dec())
		}
		if got := f.guard.LastEvent("alice"); !got.Equal(stampBefore) {
			t.Errorf("cooldown stamp mutated: %v -> %v", stampBefore, got)
		}
	})

	t.Run("BuyChangeRefund", func(t *testing.T) {
		f := newFixture(t)
		c, _ := curve.New(testSlope)
		rejecting := exchange.New(c, f.ledger, f.guard, reject, exchange.WithClock(f.clock.Now))

		cost := new(uint256.Int).Mul(testSlope, uint256.NewInt(3))
		overpaid := new(uint256.Int).Add(cost, uint256.NewInt(1))
		_, err := rejecting.Buy(context.Background(), "alice", uint256.NewInt(2), overpaid)
		if !errors.Is(err, exchange.ErrSettlementFailed) {
			t.Fatalf("expected ErrSettlementFailed, got %v", err)
		}

		if !f.ledger.BalanceOf("alice").IsZero() {
			t.Error("failed buy left balance behind")
		}
		if !f.ledger.TotalSupply().IsZero() {
			t.Error("failed buy left supply behind")
		}
		if !f.guard.LastEvent("alice").IsZero() {
			t.Error("failed buy left cooldown stamp behind")
		}
	})

	t.Run("ExactPaymentNeedsNoSettlement", func(t *testing.T) {
		f := newFixture(t)
		c, _ := curve.New(testSlope)
		rejecting := exchange.New(c, f.ledger, f.guard, reject, exchange.WithClock(f.clock.Now))

		cost := new(uint256.Int).Mul(testSlope, uint256.NewInt(3))
		if _, err := rejecting.Buy(context.Background(), "alice", uint256.NewInt(2), cost); err != nil {
			t.Fatalf("exact-payment buy should not settle: %v", err)
		}
	})
}

func TestTransfer(t *testing.T) {
	t.Run("CooldownGatesSender", func(t *testing.T) {
		f := newFixture(t)
		f.buyExact(t, "alice", 2)

		err := f.exchange.Transfer(context.Background(), "alice", "bob", uint256.NewInt(1))
		var cdErr *cooldown.CooldownError
		if !errors.As(err, &cdErr) {
			t.Fatalf("expected CooldownError, got %v", err)
		}
	})

	t.Run("RecipientInheritsCooldown", func(t *testing.T) {
		// The cooldown defeats the front-run relay: even when the
		// sender's window has elapsed, the recipient starts a fresh one.
		f := newFixture(t)
		f.buyExact(t, "alice", 2)
		f.clock.Advance(5 * time.Minute)

		if err := f.exchange.Transfer(context.Background(), "alice", "bob", uint256.NewInt(1)); err != nil {
			t.Fatalf("transfer: %v", err)
		}

		_, err := f.exchange.Sell(context.Background(), "bob", uint256.NewInt(1))
		var cdErr *cooldown.CooldownError
		if !errors.As(err, &cdErr) {
			t.Fatalf("recipient should be cooling down, got %v", err)
		}
	})

	t.Run("SenderRestampedOnTransferOut", func(t *testing.T) {
		f := newFixture(t)
		f.buyExact(t, "alice", 2)
		f.clock.Advance(5 * time.Minute)

		if err := f.exchange.Transfer(context.Background(), "alice", "bob", uint256.NewInt(1)); err != nil {
			t.Fatalf("transfer: %v", err)
		}
		_, err := f.exchange.Sell(context.Background(), "alice", uint256.NewInt(1))
		var cdErr *cooldown.CooldownError
		if !errors.As(err, &cdErr) {
			t.Fatalf("sender should be restamped after transfer-out, got %v", err)
		}
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		f := newFixture(t)
		f.buyExact(t, "alice", 2)
		f.clock.Advance(5 * time.Minute)

		err := f.exchange.Transfer(context.Background(), "alice", "bob", uint256.NewInt(99))
		if !errors.Is(err, ledger.ErrInsufficientBalance) {
			t.Fatalf("expected ledger balance error, got %v", err)
		}
		// No refresh on failure.
		if err := f.exchange.Transfer(context.Background(), "alice", "bob", uint256.NewInt(1)); err != nil {
			t.Errorf("failed transfer should not restamp sender: %v", err)
		}
	})
}

func TestTransferFrom(t *testing.T) {
	f := newFixture(t)
	f.buyExact(t, "alice", 4)
	f.clock.Advance(5 * time.Minute)
	if err := f.ledger.Approve("alice", "carol", uint256.NewInt(3)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	t.Run("GatesOnSourceCooldown", func(t *testing.T) {
		f.buyExact(t, "alice", 1) // restamps alice
		err := f.exchange.TransferFrom(context.Background(), "carol", "alice", "bob", uint256.NewInt(1))
		var cdErr *cooldown.CooldownError
		if !errors.As(err, &cdErr) {
			t.Fatalf("expected CooldownError on source, got %v", err)
		}
	})

	t.Run("MovesAndSpendsAllowance", func(t *testing.T) {
		f.clock.Advance(5 * time.Minute)
		if err := f.exchange.TransferFrom(context.Background(), "carol", "alice", "bob", uint256.NewInt(2)); err != nil {
			t.Fatalf("transferFrom: %v", err)
		}
		if got := f.ledger.BalanceOf("bob"); !got.Eq(uint256.NewInt(2)) {
			t.Errorf("bob: %s", got.Dec())
		}
		if got := f.ledger.Allowance("alice", "carol"); !got.Eq(uint256.NewInt(1)) {
			t.Errorf("allowance: %s", got.Dec())
		}
	})

	t.Run("RecipientCoolsDown", func(t *testing.T) {
		_, err := f.exchange.Sell(context.Background(), "bob", uint256.NewInt(1))
		var cdErr *cooldown.CooldownError
		if !errors.As(err, &cdErr) {
			t.Fatalf("recipient should be cooling down, got %v", err)
		}
	})
}

func TestReentrantSettlerRejected(t *testing.T) {
	t.Run("NestedSellDuringRefund", func(t *testing.T) {
		// A change-refund hook that immediately tries to resell the
		// just-minted units. The mint is committed before settlement,
		// so the hook observes the updated balance, but the nested
		// call itself is rejected rather than run inside the outer
		// operation.
		f := newFixture(t)
		c, _ := curve.New(testSlope)

		var nested error
		var nestedBalance *uint256.Int
		var ex *exchange.Exchange
		hook := exchange.SettleFunc(func(ctx context.Context, account string, amount *uint256.Int) error {
			nestedBalance = f.ledger.BalanceOf(account)
			_, nested = ex.Sell(ctx, account, uint256.NewInt(2))
			return nil
		})
		ex = exchange.New(c, f.ledger, f.guard, hook, exchange.WithClock(f.clock.Now))

		cost := new(uint256.Int).Mul(testSlope, uint256.NewInt(3))
		overpaid := new(uint256.Int).Add(cost, uint256.NewInt(1))
		if _, err := ex.Buy(context.Background(), "attacker", uint256.NewInt(2), overpaid); err != nil {
			t.Fatalf("buy: %v", err)
		}

		if nestedBalance == nil || !nestedBalance.Eq(uint256.NewInt(2)) {
			t.Errorf("hook saw stale balance: %v", nestedBalance)
		}
		if !errors.Is(nested, exchange.ErrReentrantCall) {
			t.Errorf("nested resale should be rejected, got %v", nested)
		}
		if got := f.ledger.BalanceOf("attacker"); !got.Eq(uint256.NewInt(2)) {
			t.Errorf("final balance: %s", got.Dec())
		}
	})

	t.Run("NestedSellCannotOutliveFailedBuy", func(t *testing.T) {
		// Were a nested sell allowed to commit, a hook could cash out
		// cooled-down holdings and then sink the outer refund: the
		// whole-state rewind would restore the burned tokens while the
		// payout had already left through the settler. The latch closes
		// that off; the rejected nested sell pays nothing, burns
		// nothing, and journals nothing.
		f := newFixture(t)
		c, _ := curve.New(testSlope)

		var nested error
		var ex *exchange.Exchange
		hook := exchange.SettleFunc(func(ctx context.Context, account string, amount *uint256.Int) error {
			_, nested = ex.Sell(ctx, "bob", uint256.NewInt(1))
			return errors.New("refund refused")
		})
		ex = exchange.New(c, f.ledger, f.guard, hook,
			exchange.WithJournal(f.journal), exchange.WithClock(f.clock.Now))

		// bob holds cooled-down units before the attack.
		cost, err := c.BuyPrice(uint256.NewInt(2), f.ledger.TotalSupply())
		if err != nil {
			t.Fatalf("price: %v", err)
		}
		if _, err := ex.Buy(context.Background(), "bob", uint256.NewInt(2), cost); err != nil {
			t.Fatalf("buy: %v", err)
		}
		f.clock.Advance(5 * time.Minute)

		next, err := c.BuyPrice(uint256.NewInt(1), f.ledger.TotalSupply())
		if err != nil {
			t.Fatalf("price: %v", err)
		}
		overpaid := new(uint256.Int).Add(next, uint256.NewInt(1))
		_, err = ex.Buy(context.Background(), "alice", uint256.NewInt(1), overpaid)
		if !errors.Is(err, exchange.ErrSettlementFailed) {
			t.Fatalf("expected ErrSettlementFailed, got %v", err)
		}

		if !errors.Is(nested, exchange.ErrReentrantCall) {
			t.Fatalf("nested sell should be rejected, got %v", nested)
		}
		if got := f.ledger.BalanceOf("bob"); !got.Eq(uint256.NewInt(2)) {
			t.Errorf("bob: %s", got.Dec())
		}
		if got := f.ledger.TotalSupply(); !got.Eq(uint256.NewInt(2)) {
			t.Errorf("supply: %s", got.Dec())
		}
		head, err := f.journal.Head(context.Background())
		if err != nil {
			t.Fatalf("head: %v", err)
		}
		if head == nil || head.Kind != journal.KindBuy || head.Account != "bob" {
			t.Fatalf("journal should end at bob's buy, got %+v", head)
		}
	})
}

func TestReserveTracksCurveIntegral(t *testing.T) {
	f := newFixture(t)

	collected := new(uint256.Int)
	released := new(uint256.Int)

	for _, amount := range []uint64{3, 1, 5} {
		receipt := f.buyExact(t, "alice", amount)
		collected.Add(collected, receipt.Cost)
	}
	f.clock.Advance(5 * time.Minute)
	for _, amount := range []uint64{2, 4} {
		receipt, err := f.exchange.Sell(context.Background(), "alice", uint256.NewInt(amount))
		if err != nil {
			t.Fatalf("sell: %v", err)
		}
		released.Add(released, receipt.Payout)
	}

	reserve, err := f.exchange.Reserve()
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	net := new(uint256.Int).Sub(collected, released)
	if !reserve.Eq(net) {
		t.Errorf("reserve %s != collected-released %s", reserve.Dec(), net.Dec())
	}
}

func TestJournalFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	c, _ := curve.New(testSlope)

	failing := &failingWriter{}
	ex := exchange.New(c, f.ledger, f.guard, f.settler,
		exchange.WithJournal(failing), exchange.WithClock(f.clock.Now))

	cost := new(uint256.Int).Mul(testSlope, uint256.NewInt(3))
	_, err := ex.Buy(context.Background(), "alice", uint256.NewInt(2), cost)
	if err == nil {
		t.Fatal("expected journal failure to surface")
	}
	if !f.ledger.TotalSupply().IsZero() {
		t.Error("journal failure left supply behind")
	}
	if !f.guard.LastEvent("alice").IsZero() {
		t.Error("journal failure left cooldown stamp behind")
	}
}

type failingWriter struct{}

func (w *failingWriter) Append(ctx context.Context, e *journal.Entry) error {
	return errors.New("journal unavailable")
}
