package proof

import (
	"context"
	"fmt"
	"log/slog"

	"zkpledge/circuits/donation"
	"zkpledge/pkg/commitment"
)

// LocalBackend runs the donation circuit in-process. Artifacts (circuit
// description, proving key, verifying key) are loaded once at initialization
// from a fixed directory; a missing or malformed artifact is a startup
// failure, not a per-request error.
type LocalBackend struct {
	artifactDir string
	keys        *donation.ProvingKeys
	logger      *slog.Logger
}

// NewLocalBackend creates a local backend reading artifacts from dir.
func NewLocalBackend(artifactDir string, logger *slog.Logger) *LocalBackend {
	if logger == nil {
		logger = discardLogger()
	}
	return &LocalBackend{
		artifactDir: artifactDir,
		logger:      logger,
	}
}

func (b *LocalBackend) Kind() Kind { return KindLocal }

// Initialize loads the fixed circuit artifacts. Fatal on failure: the
// process must not serve commitment creation until resolved.
func (b *LocalBackend) Initialize(_ context.Context) error {
	keys, err := donation.LoadArtifacts(b.artifactDir)
	if err != nil {
		return fmt.Errorf("local backend initialization failed: %w", err)
	}
	b.keys = keys
	b.logger.Info(
		"local proof backend initialized",
		"artifact_dir", b.artifactDir,
		"constraints", keys.CCS.GetNbConstraints(),
	)
	return nil
}

// Generate derives the commitment pair and produces a Groth16 proof that the
// hidden amount satisfies the event minimum. Amount and secret appear only
// in the witness, never in the public signals.
func (b *LocalBackend) Generate(_ context.Context, req Request) (*Result, error) {
	if b.keys == nil {
		return nil, ErrNotInitialized
	}

	pair, err := commitment.Derive(req.Amount, req.Secret, req.EventID, req.MinAmount)
	if err != nil {
		return nil, err
	}

	res, err := donation.Prove(b.keys, &donation.WitnessInput{
		Amount:    req.Amount,
		Secret:    req.Secret,
		EventID:   req.EventID,
		MinAmount: req.MinAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}

	b.logger.Debug(
		"donation proof generated",
		"event", req.EventID,
		"proving_time", res.ProvingTime,
	)

	return &Result{
		CommitmentHash: pair.CommitmentHash,
		NullifierHash:  pair.NullifierHash,
		Proof:          res.Proof,
		PublicSignals: Signals(
			pair.CommitmentHash,
			pair.NullifierHash,
			commitment.EventFieldHex(req.EventID),
			req.MinAmount,
		),
		Backend: KindLocal,
	}, nil
}

// Verify is pure verification against the loaded verifying key. A proof that
// fails to parse or verify is an invalid proof (Valid=false), not an error.
func (b *LocalBackend) Verify(_ context.Context, proofBytes []byte, publicSignals []string) (Verification, error) {
	if b.keys == nil {
		return Verification{}, ErrNotInitialized
	}

	sig, err := parseSignals(publicSignals)
	if err != nil {
		b.logger.Debug("rejecting malformed public signals", "error", err)
		return Verification{}, nil
	}

	err = donation.VerifyWithKey(b.keys.VK, proofBytes, &donation.PublicInputs{
		Commitment: sig.commitment,
		Nullifier:  sig.nullifier,
		EventField: sig.eventField,
		MinAmount:  sig.minAmount,
	})
	if err != nil {
		b.logger.Debug("proof verification failed", "error", err)
		return Verification{}, nil
	}

	return Verification{Valid: true, Confirmed: true}, nil
}
