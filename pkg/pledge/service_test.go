package pledge

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"slices"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkpledge/pkg/commitment"
	"zkpledge/pkg/proof"
	"zkpledge/pkg/store"
)

// fakeBackend derives real commitment/nullifier hashes through the shared
// codec but replaces the zk proof with an opaque token it can recognize
// later. Lets the service be tested without circuit setup.
type fakeBackend struct {
	initialized bool
	confirm     bool // whether Verify reports Confirmed
	rejectAll   bool // force Verify to report invalid
	proofs      map[string][]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{confirm: true, proofs: make(map[string][]string)}
}

func (f *fakeBackend) Kind() proof.Kind { return proof.KindLocal }

func (f *fakeBackend) Initialize(ctx context.Context) error {
	f.initialized = true
	return nil
}

func (f *fakeBackend) Generate(ctx context.Context, req proof.Request) (*proof.Result, error) {
	pair, err := commitment.Derive(req.Amount, req.Secret, req.EventID, req.MinAmount)
	if err != nil {
		return nil, err
	}
	signals := proof.Signals(pair.CommitmentHash, pair.NullifierHash, commitment.EventFieldHex(req.EventID), req.MinAmount)
	blob := []byte("fake-proof:" + pair.CommitmentHash)
	f.proofs[string(blob)] = signals
	return &proof.Result{
		CommitmentHash: pair.CommitmentHash,
		NullifierHash:  pair.NullifierHash,
		Proof:          blob,
		PublicSignals:  signals,
		Backend:        proof.KindLocal,
	}, nil
}

func (f *fakeBackend) Verify(ctx context.Context, proofBytes []byte, publicSignals []string) (proof.Verification, error) {
	if f.rejectAll {
		return proof.Verification{}, nil
	}
	want, ok := f.proofs[string(proofBytes)]
	if !ok || !slices.Equal(want, publicSignals) {
		return proof.Verification{}, nil
	}
	return proof.Verification{Valid: true, Confirmed: f.confirm}, nil
}

func testSecret(seed byte) []byte {
	return bytes.Repeat([]byte{seed}, commitment.SecretSize)
}

func newTestService(t *testing.T) (*Service, *fakeBackend) {
	t.Helper()
	st, err := store.New("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	backend := newFakeBackend()
	return New(st, backend, nil, nil), backend
}

func newDonorKey(t *testing.T) (*btcec.PrivateKey, string) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv, DonorAddress(priv.PubKey())
}

func TestCreateCommitment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, addr := newDonorKey(t)
	receipt, err := svc.CreateCommitment(ctx, CreateParams{
		Amount:       500,
		MinAmount:    100,
		Secret:       testSecret(0x11),
		EventID:      "campaign-2026",
		DonorAddress: addr,
		DisplayName:  "alice",
		RevealName:   true,
	})
	require.NoError(t, err)
	assert.True(t, receipt.Verified)
	assert.Len(t, receipt.CommitmentHash, 64)
	assert.Len(t, receipt.NullifierHash, 64)

	row, err := svc.store.ByCommitmentHash(ctx, receipt.CommitmentHash)
	require.NoError(t, err)
	assert.True(t, row.Verified)
	assert.Equal(t, addr, row.DonorAddress)
	assert.False(t, row.IsRevealed)
	assert.Nil(t, row.RevealedAmount)
}

func TestCreateCommitmentDoubleSpend(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	params := CreateParams{
		Amount:    500,
		MinAmount: 100,
		Secret:    testSecret(0x22),
		EventID:   "campaign-2026",
	}
	_, err := svc.CreateCommitment(ctx, params)
	require.NoError(t, err)

	// Same secret and event means the same nullifier, even with a new amount
	params.Amount = 900
	_, err = svc.CreateCommitment(ctx, params)
	require.ErrorIs(t, err, store.ErrNullifierUsed)
}

func TestCreateCommitmentRejectedProof(t *testing.T) {
	svc, backend := newTestService(t)
	backend.rejectAll = true
	ctx := context.Background()

	_, err := svc.CreateCommitment(ctx, CreateParams{
		Amount:    500,
		MinAmount: 100,
		Secret:    testSecret(0x33),
		EventID:   "campaign-2026",
	})
	require.ErrorIs(t, err, ErrProofRejected)

	// A rejected proof must not reserve the nullifier
	backend.rejectAll = false
	_, err = svc.CreateCommitment(ctx, CreateParams{
		Amount:    500,
		MinAmount: 100,
		Secret:    testSecret(0x33),
		EventID:   "campaign-2026",
	})
	require.NoError(t, err)
}

func TestCreateCommitmentInvalidDonor(t *testing.T) {
	svc, _ := newTestService(t)

	for _, addr := range []string{"not-hex", "abcd", hex.EncodeToString(bytes.Repeat([]byte{0x00}, 33))} {
		_, err := svc.CreateCommitment(context.Background(), CreateParams{
			Amount:       500,
			MinAmount:    100,
			Secret:       testSecret(0x44),
			EventID:      "campaign-2026",
			DonorAddress: addr,
		})
		assert.ErrorIs(t, err, ErrInvalidDonor, "address %q", addr)
	}
}

func TestVerifyProofConfirmsLater(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	// Backend attests but cannot confirm at submission time
	backend.confirm = false
	receipt, err := svc.CreateCommitment(ctx, CreateParams{
		Amount:    500,
		MinAmount: 100,
		Secret:    testSecret(0x55),
		EventID:   "campaign-2026",
	})
	require.NoError(t, err)
	assert.False(t, receipt.Verified)

	// Confirmation service comes back; re-verification upgrades the row
	backend.confirm = true
	ver, err := svc.VerifyProof(ctx, receipt.CommitmentHash)
	require.NoError(t, err)
	assert.True(t, ver.Valid)
	assert.True(t, ver.Confirmed)

	row, err := svc.store.ByCommitmentHash(ctx, receipt.CommitmentHash)
	require.NoError(t, err)
	assert.True(t, row.Verified)

	// Idempotent on an already verified row
	ver, err = svc.VerifyProof(ctx, receipt.CommitmentHash)
	require.NoError(t, err)
	assert.True(t, ver.Confirmed)
}

func TestVerifyProofUnknownCommitment(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.VerifyProof(context.Background(), "deadbeef")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRevealFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	priv, addr := newDonorKey(t)
	receipt, err := svc.CreateCommitment(ctx, CreateParams{
		Amount:       750,
		MinAmount:    100,
		Secret:       testSecret(0x66),
		EventID:      "campaign-2026",
		DonorAddress: addr,
	})
	require.NoError(t, err)

	sig, err := SignReveal(priv, receipt.CommitmentHash, 750)
	require.NoError(t, err)

	// Signed but not secret-backed: recorded as revealed, not proven
	require.NoError(t, svc.RevealAmount(ctx, RevealParams{
		CommitmentHash: receipt.CommitmentHash,
		Amount:         750,
		Signature:      sig,
	}))

	row, err := svc.store.ByCommitmentHash(ctx, receipt.CommitmentHash)
	require.NoError(t, err)
	require.NotNil(t, row.RevealedAmount)
	assert.Equal(t, uint64(750), *row.RevealedAmount)
	assert.Nil(t, row.ProvenAmount)

	// Write-once
	err = svc.RevealAmount(ctx, RevealParams{
		CommitmentHash: receipt.CommitmentHash,
		Amount:         750,
		Signature:      sig,
	})
	require.ErrorIs(t, err, store.ErrAlreadyRevealed)
}

func TestRevealProven(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	priv, addr := newDonorKey(t)
	secret := testSecret(0x77)
	receipt, err := svc.CreateCommitment(ctx, CreateParams{
		Amount:       1200,
		MinAmount:    100,
		Secret:       secret,
		EventID:      "campaign-2026",
		DonorAddress: addr,
	})
	require.NoError(t, err)

	sig, err := SignReveal(priv, receipt.CommitmentHash, 1200)
	require.NoError(t, err)
	require.NoError(t, svc.RevealAmount(ctx, RevealParams{
		CommitmentHash: receipt.CommitmentHash,
		Amount:         1200,
		Signature:      sig,
		Secret:         secret,
	}))

	row, err := svc.store.ByCommitmentHash(ctx, receipt.CommitmentHash)
	require.NoError(t, err)
	require.NotNil(t, row.ProvenAmount)
	assert.Equal(t, uint64(1200), *row.ProvenAmount)

	// The proven amount feeds milestones and rankings
	ms, err := svc.VerifyMilestone(ctx, "campaign-2026", 1000)
	require.NoError(t, err)
	assert.True(t, ms.Achieved)
	assert.Equal(t, uint64(1200), ms.CurrentAmount)

	entries, err := svc.EventRanking(ctx, "campaign-2026")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)

	rank, participants, err := svc.UserRank(ctx, "campaign-2026", addr)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
	assert.Equal(t, 1, participants)
}

func TestRevealSecretMismatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	priv, addr := newDonorKey(t)
	receipt, err := svc.CreateCommitment(ctx, CreateParams{
		Amount:       300,
		MinAmount:    100,
		Secret:       testSecret(0x88),
		EventID:      "campaign-2026",
		DonorAddress: addr,
	})
	require.NoError(t, err)

	// Signed for a false amount, with the real secret: the re-derivation
	// produces a different commitment hash and the reveal is refused
	sig, err := SignReveal(priv, receipt.CommitmentHash, 999999)
	require.NoError(t, err)
	err = svc.RevealAmount(ctx, RevealParams{
		CommitmentHash: receipt.CommitmentHash,
		Amount:         999999,
		Signature:      sig,
		Secret:         testSecret(0x88),
	})
	require.ErrorIs(t, err, ErrSecretMismatch)

	row, err := svc.store.ByCommitmentHash(ctx, receipt.CommitmentHash)
	require.NoError(t, err)
	assert.False(t, row.IsRevealed)
}

func TestRevealWrongKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, addr := newDonorKey(t)
	receipt, err := svc.CreateCommitment(ctx, CreateParams{
		Amount:       300,
		MinAmount:    100,
		Secret:       testSecret(0x99),
		EventID:      "campaign-2026",
		DonorAddress: addr,
	})
	require.NoError(t, err)

	otherPriv, _ := newDonorKey(t)
	sig, err := SignReveal(otherPriv, receipt.CommitmentHash, 300)
	require.NoError(t, err)
	err = svc.RevealAmount(ctx, RevealParams{
		CommitmentHash: receipt.CommitmentHash,
		Amount:         300,
		Signature:      sig,
	})
	require.ErrorIs(t, err, ErrRevealDenied)
}

func TestRevealAnonymousCommitment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.CreateCommitment(ctx, CreateParams{
		Amount:    300,
		MinAmount: 100,
		Secret:    testSecret(0xaa),
		EventID:   "campaign-2026",
	})
	require.NoError(t, err)

	err = svc.RevealAmount(ctx, RevealParams{
		CommitmentHash: receipt.CommitmentHash,
		Amount:         300,
		Signature:      make([]byte, 64),
	})
	require.ErrorIs(t, err, ErrNoDonorIdentity)
}

// fakeCapsule mimics the age v1 header tlock produces, enough for the
// structural pre-acceptance check.
func fakeCapsule(round uint64, chainHash string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "age-encryption.org/v1\n")
	fmt.Fprintf(&buf, "-> tlock %d %s\n", round, chainHash)
	fmt.Fprintf(&buf, "Zm9vYmFyYmF6cXV4\n")
	fmt.Fprintf(&buf, "--- bWFj\n")
	return buf.Bytes()
}

func TestAttachEscrow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.CreateCommitment(ctx, CreateParams{
		Amount:    300,
		MinAmount: 100,
		Secret:    testSecret(0xbb),
		EventID:   "campaign-2026",
	})
	require.NoError(t, err)

	chainHash := hex.EncodeToString(svc.network.ChainHash)
	require.NoError(t, svc.AttachEscrow(ctx, receipt.CommitmentHash, fakeCapsule(123456, chainHash)))

	row, err := svc.store.ByCommitmentHash(ctx, receipt.CommitmentHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), row.EscrowRound)
	assert.NotEmpty(t, row.EscrowCapsule)

	// Wrong drand chain
	err = svc.AttachEscrow(ctx, receipt.CommitmentHash, fakeCapsule(1, "00ff00ff"))
	require.ErrorIs(t, err, ErrCapsuleNetwork)

	// Not a tlock envelope at all
	err = svc.AttachEscrow(ctx, receipt.CommitmentHash, []byte("garbage"))
	require.Error(t, err)
}
