// Package pledge is the service facade over the commitment, proof, store,
// milestone, ranking and escrow packages. Donors are identified by a
// compressed secp256k1 public key; reveals must carry a BIP-340 Schnorr
// signature made with the matching private key.
package pledge

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// revealContext domain-separates reveal signatures from any other use of
// the donor key.
const revealContext = "zkpledge/reveal/v1"

// DonorAddress derives the donor identity string: the hex of the compressed
// public key (33 bytes, 66 hex chars).
func DonorAddress(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

// parseDonorAddress decodes and validates a donor identity string.
func parseDonorAddress(addr string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(addr)
	if err != nil {
		return nil, fmt.Errorf("donor address is not hex: %w", err)
	}
	if len(raw) != 33 {
		return nil, fmt.Errorf("donor address is %d bytes, want 33 (compressed)", len(raw))
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid donor public key: %w", err)
	}
	return pub, nil
}

// revealDigest is the 32-byte message a reveal signature covers. It binds
// the context label, the commitment being revealed and the claimed amount,
// so a signature cannot be replayed against another commitment or amount.
func revealDigest(commitmentHash string, amount uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte(revealContext))
	h.Write([]byte(commitmentHash))
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], amount)
	h.Write(amt[:])
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// SignReveal produces the BIP-340 Schnorr authorization for revealing the
// given amount of a commitment. The donor-side counterpart of RevealAmount.
func SignReveal(priv *btcec.PrivateKey, commitmentHash string, amount uint64) ([]byte, error) {
	digest := revealDigest(commitmentHash, amount)
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign failed: %w", err)
	}
	return sig.Serialize(), nil
}

// verifyRevealSignature checks a reveal authorization against the stored
// donor address. BIP-340 verification is x-only, so the parity byte of the
// compressed key does not participate.
func verifyRevealSignature(donorAddress, commitmentHash string, amount uint64, sigBytes []byte) error {
	pub, err := parseDonorAddress(donorAddress)
	if err != nil {
		return err
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("invalid signature format: %w", err)
	}
	digest := revealDigest(commitmentHash, amount)
	if !sig.Verify(digest[:], pub) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}
