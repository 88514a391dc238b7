package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"zkpledge/pkg/commitment"
)

// AttestationType is the envelope type tag the remote service must emit.
const AttestationType = "zkpledge.attestation.v1"

// Remote service paths.
const (
	remoteHealthPath = "/v1/health"
	remoteProvePath  = "/v1/prove"
	remoteVerifyPath = "/v1/attestations/verify"
)

// Attestation is the proof envelope returned by the remote proving service.
// It is the remote backend's opaque proof payload: structurally checkable
// locally, cryptographically confirmable only by the service itself.
type Attestation struct {
	Type          string `json:"type"`
	Network       string `json:"network"`
	Commitment    string `json:"commitment"`
	Nullifier     string `json:"nullifier"`
	AttestationID string `json:"attestation_id"`
	ProofB64      string `json:"proof_b64,omitempty"`
}

// RemoteConfig configures the remote proving service client.
type RemoteConfig struct {
	BaseURL string
	// Network tags attestations to a deployment; mismatches are rejected
	Network string
	Timeout time.Duration
	// RetryMax bounds the client's exponential backoff retries
	RetryMax int
}

// RemoteBackend delegates proof generation to an external proving service.
// This trades proof locality for latency: the service learns the donation
// parameters, and unconfirmed attestations are weaker than local proofs.
// The backend never silently falls back to local proving.
type RemoteBackend struct {
	cfg       RemoteConfig
	client    *retryablehttp.Client
	logger    *slog.Logger
	available bool
}

// NewRemoteBackend creates a remote backend client.
func NewRemoteBackend(cfg RemoteConfig, logger *slog.Logger) *RemoteBackend {
	if logger == nil {
		logger = discardLogger()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.Timeout
	client.RetryMax = cfg.RetryMax
	client.Logger = nil

	return &RemoteBackend{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

func (b *RemoteBackend) Kind() Kind { return KindRemote }

// Available reports whether the last connectivity probe succeeded.
func (b *RemoteBackend) Available() bool { return b.available }

// Initialize probes the service with a lightweight connectivity check.
// Failure degrades to a flagged unavailable state; it does not swap in the
// local backend, since the configured backend is a trust decision.
func (b *RemoteBackend) Initialize(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+remoteHealthPath, nil)
	if err != nil {
		return fmt.Errorf("invalid remote endpoint: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		b.available = false
		return fmt.Errorf("%w: %s: %v", ErrRemoteUnavailable, b.cfg.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b.available = false
		return fmt.Errorf("%w: health check returned %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	b.available = true
	b.logger.Info("remote proof backend available", "endpoint", b.cfg.BaseURL)
	return nil
}

// proveRequest is the payload sent to the remote prover.
type proveRequest struct {
	Amount    uint64 `json:"amount"`
	MinAmount uint64 `json:"min_amount"`
	SecretHex string `json:"secret_hex"`
	EventID   string `json:"event_id"`
	Network   string `json:"network"`
}

// Generate delegates proof generation to the remote service. The response
// envelope is structurally validated before acceptance, and the commitment
// pair is cross-checked against the local codec so the service cannot hand
// back hashes for different parameters.
func (b *RemoteBackend) Generate(ctx context.Context, req Request) (*Result, error) {
	if !b.available {
		return nil, ErrRemoteUnavailable
	}
	if err := commitment.Validate(req.Amount, req.Secret, req.EventID, req.MinAmount); err != nil {
		return nil, err
	}

	body, err := json.Marshal(proveRequest{
		Amount:    req.Amount,
		MinAmount: req.MinAmount,
		SecretHex: fmt.Sprintf("%x", req.Secret),
		EventID:   req.EventID,
		Network:   b.cfg.Network,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+remoteProvePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: prove request failed: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: prove returned %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	var att Attestation
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return nil, fmt.Errorf("malformed attestation response: %w", err)
	}
	if err := b.validateEnvelope(&att); err != nil {
		return nil, err
	}

	// The service is trusted for proving, not for binding: reject an
	// attestation whose hashes do not re-derive from our own parameters.
	pair, err := commitment.Derive(req.Amount, req.Secret, req.EventID, req.MinAmount)
	if err != nil {
		return nil, err
	}
	if att.Commitment != pair.CommitmentHash || att.Nullifier != pair.NullifierHash {
		return nil, fmt.Errorf("attestation hashes do not match locally derived pair")
	}

	proofBlob, err := json.Marshal(att)
	if err != nil {
		return nil, err
	}

	b.logger.Debug(
		"remote attestation accepted",
		"attestation_id", att.AttestationID,
		"event", req.EventID,
	)

	return &Result{
		CommitmentHash: att.Commitment,
		NullifierHash:  att.Nullifier,
		Proof:          proofBlob,
		PublicSignals: Signals(
			att.Commitment,
			att.Nullifier,
			commitment.EventFieldHex(req.EventID),
			req.MinAmount,
		),
		Backend: KindRemote,
	}, nil
}

// validateEnvelope checks the attestation's structural self-consistency.
func (b *RemoteBackend) validateEnvelope(att *Attestation) error {
	if att.Type != AttestationType {
		return fmt.Errorf("unexpected attestation type %q, want %q", att.Type, AttestationType)
	}
	if b.cfg.Network != "" && att.Network != b.cfg.Network {
		return fmt.Errorf("attestation network %q does not match configured %q", att.Network, b.cfg.Network)
	}
	if att.Commitment == "" || att.Nullifier == "" {
		return fmt.Errorf("attestation missing commitment or nullifier")
	}
	if att.AttestationID == "" {
		return fmt.Errorf("attestation missing id")
	}
	return nil
}

// verifyResponse is the remote confirmation result.
type verifyResponse struct {
	Valid bool `json:"valid"`
}

// Verify checks the attestation envelope's self-consistency and, when the
// service is reachable, confirms the attestation remotely. A structurally
// valid but unconfirmed attestation is reported as Valid && !Confirmed —
// callers must treat it as weaker than a local verification.
func (b *RemoteBackend) Verify(ctx context.Context, proofBytes []byte, publicSignals []string) (Verification, error) {
	var att Attestation
	if err := json.Unmarshal(proofBytes, &att); err != nil {
		b.logger.Debug("rejecting non-envelope proof payload", "error", err)
		return Verification{}, nil
	}
	if err := b.validateEnvelope(&att); err != nil {
		b.logger.Debug("rejecting inconsistent attestation", "error", err)
		return Verification{}, nil
	}
	if sig, err := parseSignals(publicSignals); err != nil {
		return Verification{}, nil
	} else if fmt.Sprintf("%x", sig.commitment) != att.Commitment ||
		fmt.Sprintf("%x", sig.nullifier) != att.Nullifier {
		return Verification{}, nil
	}

	// Structural checks passed; attempt remote confirmation.
	body, err := json.Marshal(att)
	if err != nil {
		return Verification{Valid: true}, nil
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+remoteVerifyPath, bytes.NewReader(body))
	if err != nil {
		return Verification{Valid: true}, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		b.logger.Warn("remote confirmation unavailable, attestation unconfirmed", "error", err)
		return Verification{Valid: true, Confirmed: false}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b.logger.Warn("remote confirmation unavailable, attestation unconfirmed", "status", resp.StatusCode)
		return Verification{Valid: true, Confirmed: false}, nil
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return Verification{Valid: true, Confirmed: false}, nil
	}
	if !vr.Valid {
		// The service itself disowns the attestation.
		return Verification{}, nil
	}
	return Verification{Valid: true, Confirmed: true}, nil
}
