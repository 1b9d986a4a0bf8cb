package entity

import (
	"errors"
	"fmt"
)

// Error classes shared by the registry, the aggregation service and the
// adapters. Wrap them with context and test with errors.Is.
var (
	// ErrConfiguration marks invalid or missing startup configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrChainRead marks a failed contract read: network error, timeout, revert or undecodable output.
	ErrChainRead = errors.New("chain read error")

	// ErrCache marks a failed cache operation.
	ErrCache = errors.New("cache error")

	// ErrInvalidInput marks a caller-supplied value that cannot be used.
	ErrInvalidInput = errors.New("invalid input")
)

// ChainReadError is a failed read against one chain. It matches ErrChainRead
// under errors.Is.
type ChainReadError struct {
	Chain  string
	Method string
	Err    error
}

// NewChainReadError wraps err as a read failure of method on chain.
func NewChainReadError(chain, method string, err error) *ChainReadError {
	return &ChainReadError{Chain: chain, Method: method, Err: err}
}

func (e *ChainReadError) Error() string {
	return fmt.Sprintf("reading %s on %s: %v", e.Method, e.Chain, e.Err)
}

func (e *ChainReadError) Unwrap() []error {
	return []error{ErrChainRead, e.Err}
}
