// Package proof produces zero-knowledge attestations that a quoted
// price matches the bonding curve. A verifier with only the public
// quote (slope, supply, amount, cost, side) can check the Groth16
// proof instead of re-deriving the closed form.
package proof

import (
	"github.com/consensys/gnark/frontend"
)

// Side selects which closed form a proof attests.
const (
	SideBuy  = 0
	SideSell = 1
)

// PricingCircuit constrains the curve identity
//
//	2*cost == slope * amount * (2*supply + 1 ± amount)
//
// with the sign selected by Side (0 buy, 1 sell). Stating it
// multiplied through by two avoids a division gate; the engine's even
// slope makes the two forms equivalent.
type PricingCircuit struct {
	Slope  frontend.Variable `gnark:",public"`
	Supply frontend.Variable `gnark:",public"`
	Amount frontend.Variable `gnark:",public"`
	Cost   frontend.Variable `gnark:",public"`
	Side   frontend.Variable `gnark:",public"`
}

// Define declares the circuit constraints.
func (c *PricingCircuit) Define(api frontend.API) error {
	api.AssertIsBoolean(c.Side)

	base := api.Add(api.Mul(c.Supply, 2), 1)
	buySpan := api.Add(base, c.Amount)
	sellSpan := api.Sub(base, c.Amount)
	span := api.Select(c.Side, sellSpan, buySpan)

	product := api.Mul(c.Slope, c.Amount, span)
	api.AssertIsEqual(product, api.Mul(c.Cost, 2))
	return nil
}
