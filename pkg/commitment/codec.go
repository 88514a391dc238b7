// Package commitment derives the privacy-preserving commitment and
// nullifier hashes for a donation. It is the native mirror of the donation
// circuit's hash relations: same inputs always yield the same pair, and the
// pair never reveals the amount or secret.
package commitment

import (
	"encoding/hex"
	"errors"
	"fmt"

	"zkpledge/circuits/donation"
)

// SecretSize is the required byte length of a donor secret.
const SecretSize = donation.SecretSize

// Validation errors. These are local precondition failures, rejected before
// any cryptographic work.
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrBelowMinimum  = errors.New("amount is below the event minimum")
	ErrInvalidSecret = errors.New("secret must be 32 bytes")
	ErrInvalidEvent  = errors.New("event identifier must not be empty")
)

// Pair is a derived (commitment, nullifier) hash pair, hex encoded.
type Pair struct {
	CommitmentHash string
	NullifierHash  string
}

// Validate checks the derivation preconditions without deriving anything.
func Validate(amount uint64, secret []byte, eventID string, minAmount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if amount < minAmount {
		return fmt.Errorf("%w: %d < %d", ErrBelowMinimum, amount, minAmount)
	}
	if len(secret) != SecretSize {
		return fmt.Errorf("%w: got %d", ErrInvalidSecret, len(secret))
	}
	if eventID == "" {
		return ErrInvalidEvent
	}
	return nil
}

// Derive computes the commitment and nullifier hashes for a donation.
// Deterministic: duplicate submissions of the same (secret, event) are
// detectable through the nullifier regardless of the amount committed.
func Derive(amount uint64, secret []byte, eventID string, minAmount uint64) (Pair, error) {
	if err := Validate(amount, secret, eventID, minAmount); err != nil {
		return Pair{}, err
	}

	cBytes, err := donation.ComputeCommitmentHash(amount, secret, eventID)
	if err != nil {
		return Pair{}, fmt.Errorf("commitment derivation failed: %w", err)
	}
	nBytes, err := donation.ComputeNullifierHash(secret, eventID)
	if err != nil {
		return Pair{}, fmt.Errorf("nullifier derivation failed: %w", err)
	}

	return Pair{
		CommitmentHash: hex.EncodeToString(cBytes),
		NullifierHash:  hex.EncodeToString(nBytes),
	}, nil
}

// EventFieldHex returns the hex encoding of the event identifier reduced to
// a field element, as it appears in a proof's public signal list.
func EventFieldHex(eventID string) string {
	fe := donation.EventField(eventID)
	return hex.EncodeToString(fe.Marshal())
}
