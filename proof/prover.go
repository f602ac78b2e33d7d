package proof

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/holiman/uint256"
)

// ErrOutOfField is returned when a public input does not fit the
// proving field. The circuit works in the BN254 scalar field (~254
// bits), slightly narrower than the engine's 256-bit amounts.
var ErrOutOfField = errors.New("proof: value exceeds field modulus")

// Prover compiles the pricing circuit once and generates or verifies
// proofs against it. Safe for concurrent use after construction.
type Prover struct {
	curve ecc.ID
	cs    constraint.ConstraintSystem
	pk    groth16.ProvingKey
	vk    groth16.VerifyingKey
}

// NewProver compiles the pricing circuit and runs the Groth16 setup.
// Setup keys are generated locally; production deployments would use a
// ceremony.
func NewProver() (*Prover, error) {
	curveID := ecc.BN254

	cs, err := frontend.Compile(curveID.ScalarField(), r1cs.NewBuilder, &PricingCircuit{})
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}
	return &Prover{curve: curveID, cs: cs, pk: pk, vk: vk}, nil
}

// ProveBuy attests that cost is the curve's buy price for amount at
// supply under slope.
func (p *Prover) ProveBuy(slope, amount, supply, cost *uint256.Int) (groth16.Proof, error) {
	return p.prove(slope, amount, supply, cost, SideBuy)
}

// ProveSell attests that payout is the curve's sell price for amount
// at supply under slope.
func (p *Prover) ProveSell(slope, amount, supply, payout *uint256.Int) (groth16.Proof, error) {
	return p.prove(slope, amount, supply, payout, SideSell)
}

// VerifyBuy checks a buy-price proof against its public inputs.
func (p *Prover) VerifyBuy(proof groth16.Proof, slope, amount, supply, cost *uint256.Int) error {
	return p.verify(proof, slope, amount, supply, cost, SideBuy)
}

// VerifySell checks a sell-price proof against its public inputs.
func (p *Prover) VerifySell(proof groth16.Proof, slope, amount, supply, payout *uint256.Int) error {
	return p.verify(proof, slope, amount, supply, payout, SideSell)
}

func (p *Prover) prove(slope, amount, supply, cost *uint256.Int, side int) (groth16.Proof, error) {
	assignment, err := p.assignment(slope, amount, supply, cost, side)
	if err != nil {
		return nil, err
	}
	witness, err := frontend.NewWitness(assignment, p.curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(p.cs, p.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	return proof, nil
}

func (p *Prover) verify(proof groth16.Proof, slope, amount, supply, cost *uint256.Int, side int) error {
	assignment, err := p.assignment(slope, amount, supply, cost, side)
	if err != nil {
		return err
	}
	witness, err := frontend.NewWitness(assignment, p.curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("witness creation failed: %w", err)
	}
	if err := groth16.Verify(proof, p.vk, witness); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	return nil
}

func (p *Prover) assignment(slope, amount, supply, cost *uint256.Int, side int) (*PricingCircuit, error) {
	modulus := p.curve.ScalarField()
	values := make([]*big.Int, 4)
	for i, v := range []*uint256.Int{slope, amount, supply, cost} {
		b := v.ToBig()
		if b.Cmp(modulus) >= 0 {
			return nil, ErrOutOfField
		}
		values[i] = b
	}
	return &PricingCircuit{
		Slope:  values[0],
		Amount: values[1],
		Supply: values[2],
		Cost:   values[3],
		Side:   side,
	}, nil
}
