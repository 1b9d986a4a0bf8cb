// Package entity contains the domain types of the vote aggregator: proposal
// identifiers, per-chain vote tallies and the networks they are read from.
package entity

import (
	"fmt"
	"math/big"
	"strings"
)

// maxUint256 is the largest value a uint256 proposal id can take.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ProposalID identifies one governance proposal. It is a uint256 on chain and
// is kept as an arbitrary-precision integer so no id is ever truncated.
type ProposalID struct {
	value *big.Int
}

// ParseProposalID parses a base-10 proposal id. Only ASCII digits are
// accepted; the value must fit in 256 bits.
func ParseProposalID(s string) (ProposalID, error) {
	if s == "" {
		return ProposalID{}, fmt.Errorf("%w: proposal id is empty", ErrInvalidInput)
	}
	if strings.TrimLeft(s, "0123456789") != "" {
		return ProposalID{}, fmt.Errorf("%w: proposal id %q is not a decimal number", ErrInvalidInput, s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return ProposalID{}, fmt.Errorf("%w: proposal id %q is not a decimal number", ErrInvalidInput, s)
	}
	if v.Cmp(maxUint256) > 0 {
		return ProposalID{}, fmt.Errorf("%w: proposal id %q exceeds 256 bits", ErrInvalidInput, s)
	}
	return ProposalID{value: v}, nil
}

// MustParseProposalID is ParseProposalID that panics on error. Intended for tests and constants.
func MustParseProposalID(s string) ProposalID {
	id, err := ParseProposalID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical decimal form, without leading zeros.
func (p ProposalID) String() string {
	if p.value == nil {
		return "0"
	}
	return p.value.String()
}

// Big returns a copy of the id, suitable as an ABI uint256 argument.
func (p ProposalID) Big() *big.Int {
	if p.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(p.value)
}

// IsZero reports whether the id was never set.
func (p ProposalID) IsZero() bool {
	return p.value == nil
}
