package donation

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func testSecret(seed byte) []byte {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = seed + byte(i)
	}
	return secret
}

// TestCircuitSetup tests that the donation circuit compiles and setup works
func TestCircuitSetup(t *testing.T) {
	keys, err := Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	t.Logf("Donation circuit compiled with %d constraints", keys.CCS.GetNbConstraints())
}

// TestFullProofFlow tests end-to-end proof generation and verification
func TestFullProofFlow(t *testing.T) {
	keys, err := Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	input := &WitnessInput{
		Amount:    100,
		Secret:    testSecret(1),
		EventID:   "event-clean-water",
		MinAmount: 10,
	}

	cBytes, err := ComputeCommitmentHash(input.Amount, input.Secret, input.EventID)
	if err != nil {
		t.Fatalf("ComputeCommitmentHash failed: %v", err)
	}
	nBytes, err := ComputeNullifierHash(input.Secret, input.EventID)
	if err != nil {
		t.Fatalf("ComputeNullifierHash failed: %v", err)
	}
	t.Logf("Commitment: %s", hex.EncodeToString(cBytes))
	t.Logf("Nullifier:  %s", hex.EncodeToString(nBytes))

	result, err := Prove(keys, input)
	if err != nil {
		t.Fatalf("Prove failed: %v", err)
	}
	t.Logf("Proof generated in %v (%d bytes)", result.ProvingTime, len(result.Proof))

	pub := &PublicInputs{
		Commitment: cBytes,
		Nullifier:  nBytes,
		EventField: EventFieldBytes(input.EventID),
		MinAmount:  input.MinAmount,
	}
	if err := Verify(keys, result.Proof, pub); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

// TestBelowMinimumAmount tests that an amount under the floor cannot be proven
func TestBelowMinimumAmount(t *testing.T) {
	keys, err := Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	input := &WitnessInput{
		Amount:    5,
		Secret:    testSecret(7),
		EventID:   "event-clean-water",
		MinAmount: 10,
	}

	if _, err := Prove(keys, input); err == nil {
		t.Error("expected proof generation to fail for amount below minimum")
	} else {
		t.Logf("correctly rejected: %v", err)
	}
}

// TestTamperedPublicSignals tests that verification fails when the public
// inputs do not match the proven statement
func TestTamperedPublicSignals(t *testing.T) {
	keys, err := Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	input := &WitnessInput{
		Amount:    250,
		Secret:    testSecret(3),
		EventID:   "event-shelter",
		MinAmount: 0,
	}
	result, err := Prove(keys, input)
	if err != nil {
		t.Fatalf("Prove failed: %v", err)
	}

	cBytes, _ := ComputeCommitmentHash(input.Amount, input.Secret, input.EventID)
	nBytes, _ := ComputeNullifierHash(input.Secret, input.EventID)

	// Flip a byte in the commitment
	tampered := make([]byte, len(cBytes))
	copy(tampered, cBytes)
	tampered[0] ^= 0xFF

	err = Verify(keys, result.Proof, &PublicInputs{
		Commitment: tampered,
		Nullifier:  nBytes,
		EventField: EventFieldBytes(input.EventID),
		MinAmount:  input.MinAmount,
	})
	if err == nil {
		t.Error("expected verification to fail with tampered commitment")
	}

	// Wrong event binding
	err = Verify(keys, result.Proof, &PublicInputs{
		Commitment: cBytes,
		Nullifier:  nBytes,
		EventField: EventFieldBytes("some-other-event"),
		MinAmount:  input.MinAmount,
	})
	if err == nil {
		t.Error("expected verification to fail with wrong event")
	}
}

// TestNullifierIndependentOfAmount tests the hiding/uniqueness split: two
// amounts under the same secret and event share a nullifier but never a
// commitment
func TestNullifierIndependentOfAmount(t *testing.T) {
	secret := testSecret(9)
	const eventID = "event-reforest"

	c1, err := ComputeCommitmentHash(100, secret, eventID)
	if err != nil {
		t.Fatalf("ComputeCommitmentHash failed: %v", err)
	}
	c2, err := ComputeCommitmentHash(999, secret, eventID)
	if err != nil {
		t.Fatalf("ComputeCommitmentHash failed: %v", err)
	}
	n1, _ := ComputeNullifierHash(secret, eventID)
	n2, _ := ComputeNullifierHash(secret, eventID)

	if bytes.Equal(c1, c2) {
		t.Error("different amounts must produce different commitments")
	}
	if !bytes.Equal(n1, n2) {
		t.Error("nullifier must not depend on amount")
	}
}

// TestArtifactRoundTrip tests that artifacts survive a write/load cycle and
// the loaded keys still verify proofs
func TestArtifactRoundTrip(t *testing.T) {
	keys, err := Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	dir := t.TempDir()
	if err := WriteArtifacts(dir, keys); err != nil {
		t.Fatalf("WriteArtifacts failed: %v", err)
	}

	loaded, err := LoadArtifacts(dir)
	if err != nil {
		t.Fatalf("LoadArtifacts failed: %v", err)
	}

	input := &WitnessInput{
		Amount:    42,
		Secret:    testSecret(5),
		EventID:   "event-roundtrip",
		MinAmount: 1,
	}
	result, err := Prove(loaded, input)
	if err != nil {
		t.Fatalf("Prove with loaded keys failed: %v", err)
	}

	cBytes, _ := ComputeCommitmentHash(input.Amount, input.Secret, input.EventID)
	nBytes, _ := ComputeNullifierHash(input.Secret, input.EventID)
	err = Verify(loaded, result.Proof, &PublicInputs{
		Commitment: cBytes,
		Nullifier:  nBytes,
		EventField: EventFieldBytes(input.EventID),
		MinAmount:  input.MinAmount,
	})
	if err != nil {
		t.Fatalf("Verify with loaded keys failed: %v", err)
	}
}

// TestLoadArtifactsMissing tests that a missing artifact is an error
func TestLoadArtifactsMissing(t *testing.T) {
	if _, err := LoadArtifacts(t.TempDir()); err == nil {
		t.Error("expected error loading artifacts from empty dir")
	}
}
