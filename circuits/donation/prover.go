package donation

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// ProverResult contains proving metrics and the proof artifact
type ProverResult struct {
	Proof       []byte
	ProvingTime time.Duration
	Constraints int
}

// ProvingKeys holds Groth16 keys for the donation circuit
type ProvingKeys struct {
	PK  groth16.ProvingKey
	VK  groth16.VerifyingKey
	CCS constraint.ConstraintSystem
}

var (
	cachedKeys *ProvingKeys
	keysMutex  sync.Mutex
)

// Setup performs trusted setup for the donation circuit (cached)
func Setup() (*ProvingKeys, error) {
	keysMutex.Lock()
	defer keysMutex.Unlock()

	if cachedKeys != nil {
		return cachedKeys, nil
	}

	var c Circuit

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &c)
	if err != nil {
		return nil, fmt.Errorf("donation circuit compilation failed: %w", err)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup failed: %w", err)
	}

	cachedKeys = &ProvingKeys{
		PK:  pk,
		VK:  vk,
		CCS: ccs,
	}

	return cachedKeys, nil
}

// WitnessInput contains the values for proof generation
type WitnessInput struct {
	// Secret witness
	Amount uint64
	Secret []byte // 32 bytes

	// Public inputs
	EventID   string
	MinAmount uint64
}

// Assignment builds the full circuit assignment for the input. The
// commitment and nullifier are recomputed natively so the witness always
// satisfies the hash relations.
func (in *WitnessInput) Assignment() (*Circuit, error) {
	hi, lo, err := SplitSecret(in.Secret)
	if err != nil {
		return nil, err
	}

	cBytes, err := ComputeCommitmentHash(in.Amount, in.Secret, in.EventID)
	if err != nil {
		return nil, err
	}
	nBytes, err := ComputeNullifierHash(in.Secret, in.EventID)
	if err != nil {
		return nil, err
	}

	eventFe := EventField(in.EventID)

	return &Circuit{
		Commitment: new(big.Int).SetBytes(cBytes),
		Nullifier:  new(big.Int).SetBytes(nBytes),
		EventID:    eventFe.BigInt(new(big.Int)),
		MinAmount:  new(big.Int).SetUint64(in.MinAmount),
		Amount:     new(big.Int).SetUint64(in.Amount),
		SecretHi:   hi.BigInt(new(big.Int)),
		SecretLo:   lo.BigInt(new(big.Int)),
	}, nil
}

// Prove generates a donation proof
func Prove(keys *ProvingKeys, input *WitnessInput) (*ProverResult, error) {
	startTime := time.Now()

	if keys == nil {
		var err error
		keys, err = Setup()
		if err != nil {
			return nil, err
		}
	}

	assignment, err := input.Assignment()
	if err != nil {
		return nil, err
	}

	fullWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}

	proof, err := groth16.Prove(keys.CCS, keys.PK, fullWitness)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}

	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("proof serialization failed: %w", err)
	}

	return &ProverResult{
		Proof:       proofBuf.Bytes(),
		ProvingTime: time.Since(startTime),
		Constraints: keys.CCS.GetNbConstraints(),
	}, nil
}
