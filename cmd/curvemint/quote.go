package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/holiman/uint256"

	"github.com/curvemint/go-curvemint/curve"
)

// defaultSlope is 0.0001 value units at 18 decimals.
const defaultSlope = "100000000000000"

func quote(args []string) error {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	slopeFlag := fs.String("slope", defaultSlope, "Curve slope in smallest value units (must be even)")
	supplyFlag := fs.String("supply", "0", "Current outstanding supply")
	amountFlag := fs.String("amount", "1", "Units to price")
	side := fs.String("side", "buy", "Quote side: buy or sell")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: curvemint quote [options]

Price a buy or sell of the given amount against the curve.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Cost of the first two units
  curvemint quote --amount 2

  # Payout for selling one unit at supply 2
  curvemint quote --side sell --amount 1 --supply 2
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	slope, err := parseUint(*slopeFlag, "slope")
	if err != nil {
		return err
	}
	supply, err := parseUint(*supplyFlag, "supply")
	if err != nil {
		return err
	}
	amount, err := parseUint(*amountFlag, "amount")
	if err != nil {
		return err
	}

	c, err := curve.New(slope)
	if err != nil {
		return err
	}

	switch *side {
	case "buy":
		cost, err := c.BuyPrice(amount, supply)
		if err != nil {
			return err
		}
		fmt.Printf("buy %s at supply %s: cost %s\n", amount.Dec(), supply.Dec(), cost.Dec())
	case "sell":
		payout, err := c.SellPrice(amount, supply)
		if err != nil {
			return err
		}
		fmt.Printf("sell %s at supply %s: payout %s\n", amount.Dec(), supply.Dec(), payout.Dec())
	default:
		return fmt.Errorf("unknown side: %s", *side)
	}

	spot, err := c.SpotPrice(supply)
	if err != nil {
		return err
	}
	reserve, err := c.ReserveAt(supply)
	if err != nil {
		return err
	}
	fmt.Printf("spot price: %s\n", spot.Dec())
	fmt.Printf("expected reserve: %s\n", reserve.Dec())
	return nil
}

func parseUint(s, name string) (*uint256.Int, error) {
	v := new(uint256.Int)
	if err := v.SetFromDecimal(s); err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}
