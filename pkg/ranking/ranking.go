// Package ranking computes privacy-respecting donor leaderboards. Entries
// are ephemeral: recomputed from the full commitment set on every request,
// never cached or persisted.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"zkpledge/pkg/store"
)

// Entry is a per-donor leaderboard row. TotalDonated is nil unless the donor
// opted to reveal amounts; DisplayName is an anonymized placeholder unless
// the donor opted to reveal identity.
type Entry struct {
	Rank            int
	DisplayName     string
	TotalDonated    *uint64
	CommitmentCount int
	EarliestAt      time.Time

	donor       string
	provenTotal uint64
}

// Engine computes rankings over the commitment store.
type Engine struct {
	store *store.Store
}

func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// aggregate is the per-donor accumulation before sorting.
type aggregate struct {
	donor        string
	provenTotal  uint64
	count        int
	earliest     time.Time
	alias        string
	revealName   bool
	revealAmount bool
}

// Rank computes the ordered leaderboard for an event.
//
// Ordering is fully deterministic for a fixed commitment set: provenTotal
// descending, then commitmentCount descending, then earliest contribution
// ascending (early support wins a full tie), then donor address as a final
// tie-break so the result never depends on scan order.
func (e *Engine) Rank(ctx context.Context, eventID string) ([]Entry, error) {
	rows, err := e.store.ByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	byDonor := make(map[string]*aggregate)
	for _, c := range rows {
		if !c.Verified {
			continue
		}
		// Anonymous commitments still count toward event stats elsewhere,
		// but cannot be ranked without an identity to group by
		if c.DonorAddress == "" {
			continue
		}
		agg, ok := byDonor[c.DonorAddress]
		if !ok {
			agg = &aggregate{donor: c.DonorAddress, earliest: c.CreatedAt}
			byDonor[c.DonorAddress] = agg
		}
		agg.count++
		if c.CreatedAt.Before(agg.earliest) {
			agg.earliest = c.CreatedAt
		}
		if c.RevealName {
			agg.revealName = true
			if agg.alias == "" && c.DisplayName != "" {
				agg.alias = c.DisplayName
			}
		}
		if c.IsRevealed {
			agg.revealAmount = true
		}
		// Proof-backed amounts are authoritative. Falling back to the bare
		// revealed amount is a compatibility shim for rows recorded before
		// secret-backed reveals existed; it is NOT the primary path.
		switch {
		case c.ProvenAmount != nil:
			agg.provenTotal += *c.ProvenAmount
		case c.RevealedAmount != nil:
			agg.provenTotal += *c.RevealedAmount
		}
	}

	aggs := make([]*aggregate, 0, len(byDonor))
	for _, agg := range byDonor {
		aggs = append(aggs, agg)
	}
	sort.Slice(aggs, func(i, j int) bool {
		a, b := aggs[i], aggs[j]
		if a.provenTotal != b.provenTotal {
			return a.provenTotal > b.provenTotal
		}
		if a.count != b.count {
			return a.count > b.count
		}
		if !a.earliest.Equal(b.earliest) {
			return a.earliest.Before(b.earliest)
		}
		return a.donor < b.donor
	})

	entries := make([]Entry, len(aggs))
	for i, agg := range aggs {
		rank := i + 1
		entry := Entry{
			Rank:            rank,
			CommitmentCount: agg.count,
			EarliestAt:      agg.earliest,
			donor:           agg.donor,
			provenTotal:     agg.provenTotal,
		}
		if agg.revealName {
			if agg.alias != "" {
				entry.DisplayName = agg.alias
			} else {
				entry.DisplayName = shortAddress(agg.donor)
			}
		} else {
			entry.DisplayName = fmt.Sprintf("Anonymous #%d", rank)
		}
		if agg.revealAmount {
			total := agg.provenTotal
			entry.TotalDonated = &total
		}
		entries[i] = entry
	}
	return entries, nil
}

// UserRank returns a donor's 1-based rank for an event, or 0 when the donor
// has no ranked commitments, plus the total participant count.
func (e *Engine) UserRank(ctx context.Context, eventID, donorAddress string) (rank, participants int, err error) {
	entries, err := e.Rank(ctx, eventID)
	if err != nil {
		return 0, 0, err
	}
	for _, entry := range entries {
		if entry.donor == donorAddress {
			return entry.Rank, len(entries), nil
		}
	}
	return 0, len(entries), nil
}

// shortAddress renders a donor address as a compact handle.
func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}
