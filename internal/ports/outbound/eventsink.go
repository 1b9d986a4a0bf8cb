package outbound

import (
	"context"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// EventTypeProposalFinalized is emitted the first time the service sees a
	// proposal whose collection has finished.
	EventTypeProposalFinalized EventType = "proposal_finalized"
)

// Event is the interface that all published events implement.
type Event interface {
	EventType() EventType
	// GetProposalID returns the canonical decimal proposal id.
	GetProposalID() string
}

// ProposalFinalizedEvent carries the final hub tally of a proposal.
type ProposalFinalizedEvent struct {
	ProposalID  string    `json:"proposalId"`
	HubChain    string    `json:"hubChain"`
	For         string    `json:"for"`
	Against     string    `json:"against"`
	Abstain     string    `json:"abstain"`
	CacheKey    string    `json:"cacheKey"`
	FinalizedAt time.Time `json:"finalizedAt"`
}

// EventType implements Event.
func (e ProposalFinalizedEvent) EventType() EventType { return EventTypeProposalFinalized }

// GetProposalID implements Event.
func (e ProposalFinalizedEvent) GetProposalID() string { return e.ProposalID }

// EventSink publishes domain events to downstream consumers.
type EventSink interface {
	// Publish sends one event.
	Publish(ctx context.Context, event Event) error

	// Close stops the sink; later Publish calls fail.
	Close() error
}
