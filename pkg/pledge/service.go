package pledge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"zkpledge/pkg/commitment"
	"zkpledge/pkg/escrow"
	"zkpledge/pkg/milestone"
	"zkpledge/pkg/proof"
	"zkpledge/pkg/ranking"
	"zkpledge/pkg/store"
)

var (
	// ErrInvalidDonor is returned when a donor address is malformed
	ErrInvalidDonor = errors.New("invalid donor address")
	// ErrProofRejected is returned when a freshly generated proof fails its
	// own verification; the commitment is never stored
	ErrProofRejected = errors.New("proof rejected")
	// ErrRevealDenied is returned when the reveal authorization signature
	// does not verify against the donor address
	ErrRevealDenied = errors.New("reveal authorization denied")
	// ErrNoDonorIdentity is returned when a reveal targets a commitment that
	// was submitted without a donor address
	ErrNoDonorIdentity = errors.New("commitment has no donor identity")
	// ErrSecretMismatch is returned when a secret-backed reveal does not
	// re-derive the stored commitment hash
	ErrSecretMismatch = errors.New("secret does not match commitment")
	// ErrCapsuleNetwork is returned when an escrow capsule targets a
	// different drand chain than the service is configured for
	ErrCapsuleNetwork = errors.New("capsule bound to wrong drand chain")
)

// Service ties the proving backend, the commitment store and the read-side
// engines together behind the external operations.
type Service struct {
	store      *store.Store
	backend    proof.Backend
	ranking    *ranking.Engine
	milestones *milestone.Verifier
	network    escrow.NetworkInfo
	logger     *slog.Logger
	metrics    *Metrics
}

// New constructs the service. A nil logger discards output; a nil registry
// keeps counters private.
func New(st *store.Store, backend proof.Backend, logger *slog.Logger, registry prometheus.Registerer) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:      st,
		backend:    backend,
		ranking:    ranking.NewEngine(st),
		milestones: milestone.NewVerifier(st),
		network:    escrow.DefaultQuicknet(),
		logger:     logger,
		metrics:    NewMetrics(registry),
	}
}

// CreateParams are the inputs to a new donation commitment. Secret and
// Amount stay inside the proving backend; only hashes and the proof are
// persisted.
type CreateParams struct {
	Amount    uint64
	MinAmount uint64
	Secret    []byte
	EventID   string

	// Optional disclosure preferences. An empty DonorAddress makes the
	// commitment permanently anonymous and excludes it from rankings.
	DonorAddress string
	DisplayName  string
	RevealName   bool
}

// Receipt is what a donor gets back for an accepted commitment.
type Receipt struct {
	CommitmentHash string
	NullifierHash  string
	Backend        proof.Kind
	Verified       bool
}

// CreateCommitment runs the full submission flow: generate a proof, verify
// it, then insert. The insert is last so a nullifier is only reserved for
// proofs that already passed verification; a rejected proof leaves no trace.
func (s *Service) CreateCommitment(ctx context.Context, params CreateParams) (*Receipt, error) {
	if params.DonorAddress != "" {
		if _, err := parseDonorAddress(params.DonorAddress); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDonor, err)
		}
	}

	result, err := s.backend.Generate(ctx, proof.Request{
		Amount:    params.Amount,
		MinAmount: params.MinAmount,
		Secret:    params.Secret,
		EventID:   params.EventID,
	})
	if err != nil {
		return nil, err
	}

	ver, err := s.backend.Verify(ctx, result.Proof, result.PublicSignals)
	if err != nil {
		return nil, fmt.Errorf("proof verification errored: %w", err)
	}
	if !ver.Valid {
		s.metrics.proofsRejected.Inc()
		return nil, ErrProofRejected
	}

	row := &store.Commitment{
		CommitmentHash: result.CommitmentHash,
		NullifierHash:  result.NullifierHash,
		Backend:        string(result.Backend),
		Proof:          result.Proof,
		EventID:        params.EventID,
		DonorAddress:   params.DonorAddress,
		DisplayName:    params.DisplayName,
		RevealName:     params.RevealName,
		// An unconfirmed remote attestation stays unverified until
		// VerifyProof reaches the service.
		Verified: ver.Confirmed,
	}
	if err := row.SetPublicSignals(result.PublicSignals); err != nil {
		return nil, err
	}

	if err := s.store.Add(ctx, row); err != nil {
		if errors.Is(err, store.ErrNullifierUsed) {
			s.metrics.nullifierConflicts.Inc()
		}
		return nil, err
	}

	s.metrics.commitmentsCreated.WithLabelValues(string(result.Backend)).Inc()
	if ver.Confirmed {
		s.metrics.proofsVerified.Inc()
	}
	s.logger.Info(
		"commitment created",
		"commitment", result.CommitmentHash,
		"event", params.EventID,
		"backend", result.Backend,
		"verified", ver.Confirmed,
	)
	return &Receipt{
		CommitmentHash: result.CommitmentHash,
		NullifierHash:  result.NullifierHash,
		Backend:        result.Backend,
		Verified:       ver.Confirmed,
	}, nil
}

// VerifyProof re-verifies a stored commitment's proof and marks the row
// verified when the check fully confirms. Idempotent: re-verifying an
// already verified commitment is a no-op success.
func (s *Service) VerifyProof(ctx context.Context, commitmentHash string) (proof.Verification, error) {
	row, err := s.store.ByCommitmentHash(ctx, commitmentHash)
	if err != nil {
		return proof.Verification{}, err
	}
	signals, err := row.GetPublicSignals()
	if err != nil {
		return proof.Verification{}, err
	}

	ver, err := s.backend.Verify(ctx, row.Proof, signals)
	if err != nil {
		return proof.Verification{}, err
	}
	if !ver.Valid {
		s.metrics.proofsRejected.Inc()
		return ver, nil
	}
	if ver.Confirmed && !row.Verified {
		if err := s.store.MarkVerified(ctx, commitmentHash); err != nil {
			return ver, err
		}
		s.metrics.proofsVerified.Inc()
	}
	return ver, nil
}

// RevealParams authorize disclosing a commitment's amount. Signature must be
// a BIP-340 signature by the donor key over the commitment hash and amount.
// Secret is optional; when present and it re-derives the stored commitment
// hash, the reveal is recorded as proof-backed.
type RevealParams struct {
	CommitmentHash string
	Amount         uint64
	Signature      []byte
	Secret         []byte
}

// RevealAmount discloses the amount behind a commitment. Write-once: a
// second reveal for the same commitment fails regardless of authorization.
func (s *Service) RevealAmount(ctx context.Context, params RevealParams) error {
	row, err := s.store.ByCommitmentHash(ctx, params.CommitmentHash)
	if err != nil {
		return err
	}
	if row.DonorAddress == "" {
		return ErrNoDonorIdentity
	}
	if err := verifyRevealSignature(row.DonorAddress, params.CommitmentHash, params.Amount, params.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrRevealDenied, err)
	}

	proven := false
	if len(params.Secret) > 0 {
		minAmount, err := minAmountFromSignals(row)
		if err != nil {
			return err
		}
		pair, err := commitment.Derive(params.Amount, params.Secret, row.EventID, minAmount)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSecretMismatch, err)
		}
		if pair.CommitmentHash != row.CommitmentHash {
			return ErrSecretMismatch
		}
		proven = true
	}

	if err := s.store.Reveal(ctx, params.CommitmentHash, params.Amount, proven); err != nil {
		return err
	}
	s.metrics.reveals.Inc()
	s.logger.Info(
		"amount revealed",
		"commitment", params.CommitmentHash,
		"proven", proven,
	)
	return nil
}

// AttachEscrow stores a timelock capsule for a commitment after a structural
// check that it is a tlock envelope bound to the configured drand chain.
func (s *Service) AttachEscrow(ctx context.Context, commitmentHash string, capsule []byte) error {
	info, err := escrow.ParseEnvelope(capsule)
	if err != nil {
		return fmt.Errorf("invalid escrow capsule: %w", err)
	}
	if info.ChainHash != hex.EncodeToString(s.network.ChainHash) {
		return ErrCapsuleNetwork
	}
	return s.store.AttachEscrow(ctx, commitmentHash, capsule, info.Round)
}

// VerifyMilestone reports whether revealed, verified donations for the event
// reach the target.
func (s *Service) VerifyMilestone(ctx context.Context, eventID string, target uint64) (milestone.Result, error) {
	return s.milestones.Verify(ctx, eventID, target)
}

// EventRanking recomputes the event leaderboard from current store state.
func (s *Service) EventRanking(ctx context.Context, eventID string) ([]ranking.Entry, error) {
	return s.ranking.Rank(ctx, eventID)
}

// UserRank reports a donor's position in the event ranking; rank 0 means the
// donor has no ranked commitments.
func (s *Service) UserRank(ctx context.Context, eventID, donorAddress string) (rank, participants int, err error) {
	return s.ranking.UserRank(ctx, eventID, donorAddress)
}

func minAmountFromSignals(row *store.Commitment) (uint64, error) {
	signals, err := row.GetPublicSignals()
	if err != nil {
		return 0, err
	}
	if len(signals) != 4 {
		return 0, fmt.Errorf("stored commitment has %d public signals, want 4", len(signals))
	}
	minAmount, err := strconv.ParseUint(signals[3], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed minimum amount signal: %w", err)
	}
	return minAmount, nil
}
