package store

import (
	"encoding/json"
	"time"
)

// Commitment is the durable record of a donation commitment. Rows are
// append-only: once verified they are never mutated except for the one-shot
// reveal and escrow attachments, and they are never deleted (audit trail).
//
// The unique indexes on CommitmentHash and NullifierHash are the nullifier
// ledger: reservation happens at insert time through the constraint itself,
// never as a separate check-then-insert.
type Commitment struct {
	ID             uint   `gorm:"primarykey"`
	CommitmentHash string `gorm:"uniqueIndex;size:64"`
	NullifierHash  string `gorm:"uniqueIndex;size:64"`
	Backend        string `gorm:"size:16"`
	Proof          []byte
	PublicSignals  string
	Verified       bool
	EventID        string `gorm:"index;size:128"`

	// Donor-controlled disclosure. DonorAddress is a compressed secp256k1
	// public key in hex; empty means the donor chose anonymity.
	DonorAddress string `gorm:"index;size:66"`
	DisplayName  string `gorm:"size:64"`
	RevealName   bool

	// Amount fields stay NULL unless the donor reveals. ProvenAmount is set
	// only when the reveal was re-derived against the commitment hash.
	IsRevealed     bool
	RevealedAmount *uint64
	ProvenAmount   *uint64

	// Optional timelock escrow of the donor secret
	EscrowCapsule []byte
	EscrowRound   uint64

	CreatedAt time.Time `gorm:"index"`
}

func (Commitment) TableName() string {
	return "commitment"
}

// SetPublicSignals stores the signal list as JSON.
func (c *Commitment) SetPublicSignals(signals []string) error {
	blob, err := json.Marshal(signals)
	if err != nil {
		return err
	}
	c.PublicSignals = string(blob)
	return nil
}

// GetPublicSignals decodes the stored signal list.
func (c *Commitment) GetPublicSignals() ([]string, error) {
	if c.PublicSignals == "" {
		return nil, nil
	}
	var signals []string
	if err := json.Unmarshal([]byte(c.PublicSignals), &signals); err != nil {
		return nil, err
	}
	return signals, nil
}
