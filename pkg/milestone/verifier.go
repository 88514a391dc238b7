// Package milestone checks campaign funding thresholds against voluntarily
// revealed amounts. It never requires or infers a donor's private amount:
// unrevealed commitments count toward participation, not toward the total.
package milestone

import (
	"context"
	"errors"

	"zkpledge/pkg/store"
)

// ErrInvalidTarget rejects a zero milestone threshold.
var ErrInvalidTarget = errors.New("milestone target must be positive")

// Result is a milestone achievement claim with supporting metadata.
//
// Achieved is a liveness claim over revealed totals only. Achieved=false
// does not mean the goal was not reached; unrevealed commitments may hold
// additional funds the verifier cannot see.
type Result struct {
	Achieved        bool
	CurrentAmount   uint64
	CommitmentCount int
}

// Verifier aggregates revealed amounts for an event.
type Verifier struct {
	store *store.Store
}

func NewVerifier(s *store.Store) *Verifier {
	return &Verifier{store: s}
}

// Verify computes the revealed total for an event and compares it to the
// milestone target. Pure read path; safe to run concurrently with writes.
func (v *Verifier) Verify(ctx context.Context, eventID string, milestoneTarget uint64) (Result, error) {
	if milestoneTarget == 0 {
		return Result{}, ErrInvalidTarget
	}

	rows, err := v.store.ByEvent(ctx, eventID)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, c := range rows {
		if !c.Verified {
			continue
		}
		res.CommitmentCount++
		if !c.IsRevealed {
			continue
		}
		// Prefer the re-derived amount when both are present; they are
		// equal today, but proven is the authoritative record
		switch {
		case c.ProvenAmount != nil:
			res.CurrentAmount += *c.ProvenAmount
		case c.RevealedAmount != nil:
			res.CurrentAmount += *c.RevealedAmount
		}
	}

	res.Achieved = res.CurrentAmount >= milestoneTarget
	return res, nil
}
