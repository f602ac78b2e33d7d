// Package curve implements a linear bonding curve: the marginal price of
// the n-th unit grows linearly with outstanding supply, so issuance and
// redemption can be priced in closed form without an order book.
//
// The unit price at supply position x is slope*x + slope/2. Integrating
// from supply s to s+a and simplifying gives the cost of buying a units:
//
//	cost = slope * a * (2s + 1 + a) / 2
//
// and, by substituting a negative amount and negating, the payout for
// selling a units back:
//
//	payout = slope * a * (2s + 1 - a) / 2
//
// All arithmetic is 256-bit unsigned with explicit overflow reporting.
package curve

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrZeroSlope is returned by New when the slope is zero.
	ErrZeroSlope = errors.New("curve: slope must be non-zero")

	// ErrOddSlope is returned by New when the slope is odd. The closed
	// forms end in a division by two; an even slope keeps that division
	// exact for every amount and supply.
	ErrOddSlope = errors.New("curve: slope must be even")

	// ErrOverflow is returned when a price computation exceeds 256 bits.
	ErrOverflow = errors.New("curve: arithmetic overflow")

	// ErrAmountExceedsSupply is returned by SellPrice when asked to price
	// a redemption larger than the outstanding supply.
	ErrAmountExceedsSupply = errors.New("curve: amount exceeds supply")
)

// Curve is a stateless pricer. Methods never mutate the receiver and are
// safe for concurrent use.
type Curve struct {
	slope *uint256.Int
}

// New creates a curve with the given slope, in the smallest value unit
// per supply unit. The slope must be non-zero and even.
func New(slope *uint256.Int) (*Curve, error) {
	if slope == nil || slope.IsZero() {
		return nil, ErrZeroSlope
	}
	if !new(uint256.Int).And(slope, uint256.NewInt(1)).IsZero() {
		return nil, ErrOddSlope
	}
	return &Curve{slope: new(uint256.Int).Set(slope)}, nil
}

// MustNew is like New but panics on an invalid slope. Intended for
// constants wired at startup.
func MustNew(slope *uint256.Int) *Curve {
	c, err := New(slope)
	if err != nil {
		panic(err)
	}
	return c
}

// Slope returns a copy of the curve's slope.
func (c *Curve) Slope() *uint256.Int {
	return new(uint256.Int).Set(c.slope)
}

// BuyPrice returns the cost of minting amount units when the outstanding
// supply is supply: slope*amount*(2*supply+1+amount)/2. A zero amount
// costs zero. Returns ErrOverflow if any intermediate product exceeds
// 256 bits.
func (c *Curve) BuyPrice(amount, supply *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int), nil
	}
	// 2*supply + 1 + amount
	span := new(uint256.Int)
	if _, overflow := span.AddOverflow(supply, supply); overflow {
		return nil, ErrOverflow
	}
	if _, overflow := span.AddOverflow(span, uint256.NewInt(1)); overflow {
		return nil, ErrOverflow
	}
	if _, overflow := span.AddOverflow(span, amount); overflow {
		return nil, ErrOverflow
	}
	return c.scale(amount, span)
}

// SellPrice returns the payout for burning amount units when the
// outstanding supply is supply: slope*amount*(2*supply+1-amount)/2.
// Requires amount <= supply; ErrAmountExceedsSupply is returned before
// any arithmetic otherwise. A zero amount pays zero.
func (c *Curve) SellPrice(amount, supply *uint256.Int) (*uint256.Int, error) {
	if amount.Gt(supply) {
		return nil, ErrAmountExceedsSupply
	}
	if amount.IsZero() {
		return new(uint256.Int), nil
	}
	// 2*supply + 1 - amount; cannot underflow since amount <= supply.
	span := new(uint256.Int)
	if _, overflow := span.AddOverflow(supply, supply); overflow {
		return nil, ErrOverflow
	}
	if _, overflow := span.AddOverflow(span, uint256.NewInt(1)); overflow {
		return nil, ErrOverflow
	}
	span.Sub(span, amount)
	return c.scale(amount, span)
}

// SpotPrice returns the marginal price of the next unit at the given
// supply: slope*supply + slope/2.
func (c *Curve) SpotPrice(supply *uint256.Int) (*uint256.Int, error) {
	price := new(uint256.Int)
	if _, overflow := price.MulOverflow(c.slope, supply); overflow {
		return nil, ErrOverflow
	}
	half := new(uint256.Int).Rsh(c.slope, 1)
	if _, overflow := price.AddOverflow(price, half); overflow {
		return nil, ErrOverflow
	}
	return price, nil
}

// ReserveAt returns the value the reserve is expected to hold at the
// given supply, the antiderivative slope*(supply^2+supply)/2. Every buy
// adds exactly its cost to the reserve and every sell removes exactly
// its payout, so this equals the reserve whenever all value movement has
// gone through the orchestrator.
func (c *Curve) ReserveAt(supply *uint256.Int) (*uint256.Int, error) {
	if supply.IsZero() {
		return new(uint256.Int), nil
	}
	// supply + 1, then reuse the product path: slope*supply*(supply+1)/2.
	next := new(uint256.Int)
	if _, overflow := next.AddOverflow(supply, uint256.NewInt(1)); overflow {
		return nil, ErrOverflow
	}
	return c.scale(supply, next)
}

// scale computes slope*a*b/2 with overflow checks. The slope is even, so
// the halving is exact.
func (c *Curve) scale(a, b *uint256.Int) (*uint256.Int, error) {
	out := new(uint256.Int)
	if _, overflow := out.MulOverflow(c.slope, a); overflow {
		return nil, ErrOverflow
	}
	if _, overflow := out.MulOverflow(out, b); overflow {
		return nil, ErrOverflow
	}
	return out.Rsh(out, 1), nil
}
