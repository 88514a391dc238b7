package donation

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// Circuit proves knowledge of (amount, secret) such that:
//
//	Commitment = MiMC(DST_C, amount, secret_hi, secret_lo, event)
//	Nullifier  = MiMC(DST_N, secret_hi, secret_lo, event)
//	MinAmount <= amount < 2^64
//
// The nullifier deliberately excludes the amount, so a donor cannot dodge
// double-spend protection by committing a different amount under the same
// secret.
//
// Hardening:
//  1. Distinct DSTs separate the commitment and nullifier hash domains
//  2. The 32-byte secret is split into two 128-bit limbs to prevent field
//     modulus reduction issues (since a 32-byte secret > BN254 scalar field
//     modulus)
type Circuit struct {
	// Public Inputs
	// Commitment is the MiMC commitment output
	Commitment frontend.Variable `gnark:",public"`

	// Nullifier is the one-time-use spend tag for (secret, event)
	Nullifier frontend.Variable `gnark:",public"`

	// EventID is the campaign identifier reduced to a field element
	EventID frontend.Variable `gnark:",public"`

	// MinAmount is the donation floor the hidden amount must satisfy
	MinAmount frontend.Variable `gnark:",public"`

	// Secret Witness
	Amount   frontend.Variable
	SecretHi frontend.Variable
	SecretLo frontend.Variable
}

// Domain separation tags as field elements.
// SHA256("ZKPLEDGE_COMMIT_V1") and SHA256("ZKPLEDGE_NULLIFIER_V1") reduced
// into the BN254 scalar field.
const (
	commitDST    = "16714244464978975007742716030070036428019847079917409177285229745161112799611"
	nullifierDST = "8621576686336752798712358347932695681911813782367338399495178528768934702"
)

func (c *Circuit) Define(api frontend.API) error {
	dstCommit, _ := new(big.Int).SetString(commitDST, 10)
	dstNullifier, _ := new(big.Int).SetString(nullifierDST, 10)

	// Range-bound the amounts so the comparison below is sound.
	// Amount is also constrained to fit a uint64, matching the native codec.
	api.ToBinary(c.Amount, 64)
	api.ToBinary(c.MinAmount, 64)
	api.AssertIsLessOrEqual(c.MinAmount, c.Amount)

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// Commitment: MiMC(DST_C || amount || secret_hi || secret_lo || event)
	h.Write(dstCommit)
	h.Write(c.Amount)
	h.Write(c.SecretHi)
	h.Write(c.SecretLo)
	h.Write(c.EventID)
	api.AssertIsEqual(h.Sum(), c.Commitment)

	// Nullifier: MiMC(DST_N || secret_hi || secret_lo || event)
	h.Reset()
	h.Write(dstNullifier)
	h.Write(c.SecretHi)
	h.Write(c.SecretLo)
	h.Write(c.EventID)
	api.AssertIsEqual(h.Sum(), c.Nullifier)

	return nil
}
