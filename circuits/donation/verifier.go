package donation

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
)

// PublicInputs are the public values a donation proof is verified against.
// EventField is the event identifier already reduced to a field element
// (see EventFieldBytes); verifiers receive it from the public signal list,
// not from the original event string.
type PublicInputs struct {
	Commitment []byte // 32 bytes
	Nullifier  []byte // 32 bytes
	EventField []byte // 32 bytes
	MinAmount  uint64
}

// EventFieldBytes returns the canonical byte form of an event identifier's
// field element, as carried in public signal lists.
func EventFieldBytes(eventID string) []byte {
	fe := EventField(eventID)
	return fe.Marshal()
}

// publicWitness builds a public-only witness for verification
func (p *PublicInputs) publicWitness() (frontend.Circuit, error) {
	if len(p.Commitment) == 0 || len(p.Nullifier) == 0 || len(p.EventField) == 0 {
		return nil, fmt.Errorf("commitment, nullifier and event field are required")
	}
	return &Circuit{
		Commitment: new(big.Int).SetBytes(p.Commitment),
		Nullifier:  new(big.Int).SetBytes(p.Nullifier),
		EventID:    new(big.Int).SetBytes(p.EventField),
		MinAmount:  new(big.Int).SetUint64(p.MinAmount),
	}, nil
}

// Verify verifies a donation proof against the given keys. A nil keys
// argument falls back to the cached setup.
func Verify(keys *ProvingKeys, proofBytes []byte, pub *PublicInputs) error {
	if keys == nil {
		var err error
		keys, err = Setup()
		if err != nil {
			return err
		}
	}
	return VerifyWithKey(keys.VK, proofBytes, pub)
}

// VerifyWithKey is pure verification against a fixed verifying key.
// No side effects; a failed verification is reported as an error.
func VerifyWithKey(vk groth16.VerifyingKey, proofBytes []byte, pub *PublicInputs) error {
	assignment, err := pub.publicWitness()
	if err != nil {
		return err
	}

	pubWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("proof deserialization failed: %w", err)
	}

	if err := groth16.Verify(proof, vk, pubWitness); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}

	return nil
}
