package donation

import (
	"crypto/sha256"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// SecretSize is the required byte length of a donor secret.
const SecretSize = 32

// EventField reduces an event identifier string into a BN254 field element
// via SHA256. Public, so reduction ambiguity is not a hiding concern.
func EventField(eventID string) fr.Element {
	sum := sha256.Sum256([]byte(eventID))
	var fe fr.Element
	fe.SetBytes(sum[:])
	return fe
}

// SplitSecret splits a 32-byte secret into two 128-bit limbs.
// This must match the limb layout the circuit hashes, since a full 32-byte
// value does not fit the BN254 scalar field without reduction.
func SplitSecret(secret []byte) (hi, lo fr.Element, err error) {
	if len(secret) != SecretSize {
		return hi, lo, fmt.Errorf("secret must be %d bytes, got %d", SecretSize, len(secret))
	}
	hi.SetBytes(secret[:16])
	lo.SetBytes(secret[16:])
	return hi, lo, nil
}

// ComputeCommitmentHash computes Commitment = MiMC(DST_C, amount, secret_hi,
// secret_lo, event) using the native MiMC, matching the circuit exactly.
func ComputeCommitmentHash(amount uint64, secret []byte, eventID string) ([]byte, error) {
	hi, lo, err := SplitSecret(secret)
	if err != nil {
		return nil, err
	}

	var dst, amountFe fr.Element
	dst.SetString(commitDST)
	amountFe.SetUint64(amount)
	eventFe := EventField(eventID)

	h := mimc.NewMiMC()
	h.Write(dst.Marshal())
	h.Write(amountFe.Marshal())
	h.Write(hi.Marshal())
	h.Write(lo.Marshal())
	h.Write(eventFe.Marshal())

	return h.Sum(nil), nil
}

// ComputeNullifierHash computes Nullifier = MiMC(DST_N, secret_hi, secret_lo,
// event). The amount is deliberately excluded: the nullifier must be stable
// across any amount committed under the same secret and event.
func ComputeNullifierHash(secret []byte, eventID string) ([]byte, error) {
	hi, lo, err := SplitSecret(secret)
	if err != nil {
		return nil, err
	}

	var dst fr.Element
	dst.SetString(nullifierDST)
	eventFe := EventField(eventID)

	h := mimc.NewMiMC()
	h.Write(dst.Marshal())
	h.Write(hi.Marshal())
	h.Write(lo.Marshal())
	h.Write(eventFe.Marshal())

	return h.Sum(nil), nil
}
