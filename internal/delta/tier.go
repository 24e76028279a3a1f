package delta

import (
	"fmt"
	"strings"
)

// MatchTier is the ordered quality scale returned by the matching service.
// Higher values are better matches.
type MatchTier int

const (
	TierUnknown MatchTier = iota
	TierUnmatched
	TierPartiallyMatched
	TierTied
	TierMatched
)

var tierNames = map[MatchTier]string{
	TierUnknown:          "Unknown",
	TierUnmatched:        "Unmatched",
	TierPartiallyMatched: "PartiallyMatched",
	TierTied:             "Tied",
	TierMatched:          "Matched",
}

func (t MatchTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MatchTier(%d)", int(t))
}

// ParseMatchTier maps a service label to a tier. Both the single-letter
// status codes (M, T, P, U) and the full names are accepted, case-insensitively.
// Unrecognized labels map to TierUnknown, which is never accepted.
func ParseMatchTier(label string) MatchTier {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "m", "matched":
		return TierMatched
	case "t", "tied":
		return TierTied
	case "p", "partiallymatched", "partially_matched", "partial":
		return TierPartiallyMatched
	case "u", "unmatched":
		return TierUnmatched
	default:
		return TierUnknown
	}
}

// MarshalText encodes the tier by name.
func (t MatchTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier label.
func (t *MatchTier) UnmarshalText(b []byte) error {
	*t = ParseMatchTier(string(b))
	return nil
}

// Accepts is the acceptance policy: only Matched and Tied outcomes qualify
// for insertion. Any other tier is filtered out without raising an error.
func Accepts(t MatchTier) bool {
	return t == TierMatched || t == TierTied
}

// GeocodeOutcome is the resolved location for one New delta.
type GeocodeOutcome struct {
	StoreID        string    `json:"store_id"`
	Location       Location  `json:"location"`
	Tier           MatchTier `json:"tier"`
	Score          float64   `json:"score,omitempty"`
	MatchedAddress string    `json:"matched_address,omitempty"`
}

// Accepted applies the acceptance policy to this outcome.
func (o GeocodeOutcome) Accepted() bool {
	return Accepts(o.Tier)
}

// TierCounts tallies outcomes per tier.
type TierCounts map[MatchTier]int

// CountTiers tallies a batch of outcomes.
func CountTiers(outcomes []GeocodeOutcome) TierCounts {
	counts := make(TierCounts)
	for _, o := range outcomes {
		counts[o.Tier]++
	}
	return counts
}

// Rejected returns how many outcomes the acceptance policy filtered out.
func (c TierCounts) Rejected() int {
	n := 0
	for tier, count := range c {
		if !Accepts(tier) {
			n += count
		}
	}
	return n
}

// ByName renders the counts keyed by tier name, for logs and JSON.
func (c TierCounts) ByName() map[string]int {
	out := make(map[string]int, len(c))
	for tier, count := range c {
		out[tier.String()] = count
	}
	return out
}
