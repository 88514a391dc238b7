package escrow

import (
	"encoding/hex"
	"time"
)

// NetworkInfo contains timing parameters for a drand network, used to map a
// campaign deadline to the round whose beacon unlocks the escrow.
type NetworkInfo struct {
	ChainHash   []byte
	GenesisTime int64 // Unix timestamp of round 1
	Period      int64 // Seconds between rounds
	SchemeID    string
	Endpoints   []string
}

// DefaultQuicknet returns the drand Quicknet network parameters
// Quicknet: ~3 second rounds
func DefaultQuicknet() NetworkInfo {
	chainHash, _ := hex.DecodeString("52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971")
	return NetworkInfo{
		ChainHash:   chainHash,
		GenesisTime: 1692803367, // August 23, 2023
		Period:      3,
		SchemeID:    "bls-unchained-g1-rfc9380",
		Endpoints:   []string{"https://api.drand.sh"},
	}
}

// TimeToRound calculates the drand round number for a given target time
func (n *NetworkInfo) TimeToRound(targetTime time.Time) uint64 {
	targetUnix := targetTime.Unix()

	if targetUnix <= n.GenesisTime {
		return 1 // Minimum round
	}

	elapsed := targetUnix - n.GenesisTime
	round := uint64(elapsed / n.Period)

	return round + 1 // Round 1 is at genesis
}

// RoundToTime calculates the approximate time when a round will be available
func (n *NetworkInfo) RoundToTime(round uint64) time.Time {
	if round <= 1 {
		return time.Unix(n.GenesisTime, 0)
	}

	elapsed := int64(round-1) * n.Period
	return time.Unix(n.GenesisTime+elapsed, 0)
}

// DeadlineRound calculates the unlock round for a campaign deadline
func (n *NetworkInfo) DeadlineRound(deadline time.Time) uint64 {
	return n.TimeToRound(deadline)
}
