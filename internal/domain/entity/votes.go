package entity

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Votes is a for/against/abstain triple. Counts are on-chain uint256 values
// and are never converted to fixed-width integers or floats.
type Votes struct {
	For     *big.Int
	Against *big.Int
	Abstain *big.Int
}

// ZeroVotes returns a triple of zero counts.
func ZeroVotes() Votes {
	return Votes{For: new(big.Int), Against: new(big.Int), Abstain: new(big.Int)}
}

// Add returns v + other. Neither operand is modified; nil counts read as zero.
func (v Votes) Add(other Votes) Votes {
	return Votes{
		For:     addBig(v.For, other.For),
		Against: addBig(v.Against, other.Against),
		Abstain: addBig(v.Abstain, other.Abstain),
	}
}

func addBig(a, b *big.Int) *big.Int {
	sum := new(big.Int)
	if a != nil {
		sum.Add(sum, a)
	}
	if b != nil {
		sum.Add(sum, b)
	}
	return sum
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseCount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid vote count %q", field, s)
	}
	return v, nil
}

// ChainVoteTally is the vote count read from one network. Available is false
// when the network could not be read; its counts are then zero and must not be
// taken as real votes.
type ChainVoteTally struct {
	ChainName string
	Votes     Votes
	Available bool
}

// UnavailableTally returns the placeholder recorded for a network whose read failed.
func UnavailableTally(chain string) ChainVoteTally {
	return ChainVoteTally{ChainName: chain, Votes: ZeroVotes(), Available: false}
}

type chainVoteTallyJSON struct {
	ChainName string `json:"chain_name"`
	For       string `json:"for"`
	Against   string `json:"against"`
	Abstain   string `json:"abstain"`
	Available *bool  `json:"available,omitempty"`
}

// MarshalJSON encodes counts as decimal strings.
func (t ChainVoteTally) MarshalJSON() ([]byte, error) {
	available := t.Available
	return json.Marshal(chainVoteTallyJSON{
		ChainName: t.ChainName,
		For:       decimal(t.Votes.For),
		Against:   decimal(t.Votes.Against),
		Abstain:   decimal(t.Votes.Abstain),
		Available: &available,
	})
}

// UnmarshalJSON decodes a tally. A missing "available" field reads as true.
func (t *ChainVoteTally) UnmarshalJSON(data []byte) error {
	var raw chainVoteTallyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	forVotes, err := parseCount("for", raw.For)
	if err != nil {
		return err
	}
	against, err := parseCount("against", raw.Against)
	if err != nil {
		return err
	}
	abstain, err := parseCount("abstain", raw.Abstain)
	if err != nil {
		return err
	}
	*t = ChainVoteTally{
		ChainName: raw.ChainName,
		Votes:     Votes{For: forVotes, Against: against, Abstain: abstain},
		Available: raw.Available == nil || *raw.Available,
	}
	return nil
}

// AggregationResult holds one tally per network: hub first, then spokes in
// registry order. When the hub reports collection finished only the hub tally
// is present.
type AggregationResult []ChainVoteTally

// Complete reports whether every network in the result was read successfully.
func (r AggregationResult) Complete() bool {
	for _, t := range r {
		if !t.Available {
			return false
		}
	}
	return true
}

// Unavailable returns the names of networks that could not be read.
func (r AggregationResult) Unavailable() []string {
	var names []string
	for _, t := range r {
		if !t.Available {
			names = append(names, t.ChainName)
		}
	}
	return names
}

// Total sums the counts of every tally in the result.
func (r AggregationResult) Total() ProposalTotal {
	total := ZeroVotes()
	for _, t := range r {
		total = total.Add(t.Votes)
	}
	return ProposalTotal{Votes: total, Complete: r.Complete()}
}

// ProposalTotal is the cross-chain sum of an AggregationResult. Complete is
// false when some network was unavailable and the sum is a lower bound.
type ProposalTotal struct {
	Votes    Votes
	Complete bool
}

// MarshalJSON encodes counts as decimal strings.
func (p ProposalTotal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		For      string `json:"for"`
		Against  string `json:"against"`
		Abstain  string `json:"abstain"`
		Complete bool   `json:"complete"`
	}{
		For:      decimal(p.Votes.For),
		Against:  decimal(p.Votes.Against),
		Abstain:  decimal(p.Votes.Abstain),
		Complete: p.Complete,
	})
}
