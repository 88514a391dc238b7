// Package escrow timelock-encrypts donor secrets so a campaign's amounts
// can be audited after its deadline. A donor seals their 32-byte secret in a
// drand tlock capsule bound to the round at the campaign deadline; anyone
// can open it once the round's beacon is published and re-derive the
// commitment to confirm the revealed amount.
package escrow

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/drand/tlock"
	tlockHttp "github.com/drand/tlock/networks/http"
)

// SecretSize is the required payload length: exactly one donor secret.
const SecretSize = 32

// Capsule is a sealed donor secret plus the metadata needed to open and
// validate it.
type Capsule struct {
	Bytes     []byte
	Round     uint64
	ChainHash []byte
	Checksum  []byte // SHA256(Bytes)
}

// Seal encrypts the donor secret for the given round. The capsule cannot be
// opened until the drand network publishes that round's beacon.
func Seal(ctx context.Context, secret []byte, round uint64, chainHash []byte, endpoints []string) (*Capsule, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("secret must be exactly %d bytes", SecretSize)
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no drand endpoints provided")
	}

	chainHashHex := hex.EncodeToString(chainHash)
	network, err := tlockHttp.NewNetwork(endpoints[0], chainHashHex)
	if err != nil {
		return nil, fmt.Errorf("failed to create network client for %s: %w", endpoints[0], err)
	}

	client := tlock.New(network).Strict()

	var buf bytes.Buffer
	if err := client.Encrypt(&buf, bytes.NewReader(secret), round); err != nil {
		return nil, fmt.Errorf("tlock encryption failed: %w", err)
	}

	capsule := &Capsule{
		Bytes:     buf.Bytes(),
		Round:     round,
		ChainHash: chainHash,
	}
	capsule.Checksum = Checksum(capsule.Bytes)
	return capsule, nil
}

// Open decrypts a sealed capsule using the drand beacon for its round.
// Fails until the round has been reached.
func Open(ctx context.Context, capsule *Capsule, endpoints []string) ([]byte, error) {
	if capsule == nil || len(capsule.Bytes) == 0 {
		return nil, fmt.Errorf("empty capsule")
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no drand endpoints provided")
	}
	if want := Checksum(capsule.Bytes); len(capsule.Checksum) > 0 && !bytes.Equal(want, capsule.Checksum) {
		return nil, fmt.Errorf("capsule checksum mismatch")
	}

	chainHashHex := hex.EncodeToString(capsule.ChainHash)
	network, err := tlockHttp.NewNetwork(endpoints[0], chainHashHex)
	if err != nil {
		return nil, fmt.Errorf("failed to create network client: %w", err)
	}

	client := tlock.New(network).Strict()

	var plaintext bytes.Buffer
	if err := client.Decrypt(&plaintext, bytes.NewReader(capsule.Bytes)); err != nil {
		return nil, fmt.Errorf("tlock decryption failed: %w", err)
	}

	secret := plaintext.Bytes()
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("capsule payload is %d bytes, want %d", len(secret), SecretSize)
	}
	return secret, nil
}

// Checksum computes the capsule integrity hash.
func Checksum(capsuleBytes []byte) []byte {
	sum := sha256.Sum256(capsuleBytes)
	return sum[:]
}
