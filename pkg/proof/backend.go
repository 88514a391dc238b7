// Package proof abstracts the zero-knowledge proof backends. Two
// implementations conform: a local Groth16 prover/verifier over the donation
// circuit, and a client for a remote proving service. The backend is a trust
// decision selected once at configuration time; there is no transparent
// fallback between the two.
package proof

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
)

// discardLogger returns a logger that throws away logs, so backends don't
// need nil guards around every log call.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Kind identifies a proof backend variant.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Valid returns true if the Kind is a known backend variant.
func (k Kind) Valid() bool {
	switch k {
	case KindLocal, KindRemote:
		return true
	default:
		return false
	}
}

var (
	// ErrNotInitialized is returned when a backend is used before Initialize
	ErrNotInitialized = errors.New("proof backend not initialized")
	// ErrRemoteUnavailable marks the remote service as unreachable; retryable
	ErrRemoteUnavailable = errors.New("remote proving service unavailable")
)

// Request carries the donation parameters a proof is generated over.
// Amount and Secret never leave the process through the public signals.
type Request struct {
	Amount    uint64
	MinAmount uint64
	Secret    []byte // 32 bytes
	EventID   string
}

// Result is the backend-agnostic outcome of proof generation.
type Result struct {
	CommitmentHash string
	NullifierHash  string
	Proof          []byte
	PublicSignals  []string
	Backend        Kind
}

// Verification is the outcome of proof verification. Confirmed distinguishes
// a fully verified proof from a remote attestation that passed only
// structural checks.
type Verification struct {
	Valid     bool
	Confirmed bool
}

// Backend is the closed set of proving variants. An invalid proof is a
// normal Verify outcome (Valid=false, nil error), not a system fault.
type Backend interface {
	Kind() Kind
	Initialize(ctx context.Context) error
	Generate(ctx context.Context, req Request) (*Result, error)
	Verify(ctx context.Context, proofBytes []byte, publicSignals []string) (Verification, error)
}

// Public signal layout, fixed across backends:
// [0] commitment hash, [1] nullifier hash, [2] event field element,
// [3] minimum amount (decimal).
const signalCount = 4

// Signals assembles the canonical public signal list.
func Signals(commitmentHex, nullifierHex, eventFieldHex string, minAmount uint64) []string {
	return []string{
		commitmentHex,
		nullifierHex,
		eventFieldHex,
		strconv.FormatUint(minAmount, 10),
	}
}

// parsedSignals is the decoded form of a public signal list.
type parsedSignals struct {
	commitment []byte
	nullifier  []byte
	eventField []byte
	minAmount  uint64
}

func parseSignals(signals []string) (*parsedSignals, error) {
	if len(signals) != signalCount {
		return nil, fmt.Errorf("expected %d public signals, got %d", signalCount, len(signals))
	}
	c, err := hex.DecodeString(signals[0])
	if err != nil || len(c) == 0 {
		return nil, fmt.Errorf("malformed commitment signal")
	}
	n, err := hex.DecodeString(signals[1])
	if err != nil || len(n) == 0 {
		return nil, fmt.Errorf("malformed nullifier signal")
	}
	e, err := hex.DecodeString(signals[2])
	if err != nil || len(e) == 0 {
		return nil, fmt.Errorf("malformed event signal")
	}
	m, err := strconv.ParseUint(signals[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed min amount signal")
	}
	return &parsedSignals{
		commitment: c,
		nullifier:  n,
		eventField: e,
		minAmount:  m,
	}, nil
}
