package clientreport

import (
	"time"

	"github.com/ravenclient/raven-go/internal/ratelimit"
)

// OutcomeKey uniquely identifies an outcome bucket for aggregation.
type OutcomeKey struct {
	Reason   DiscardReason
	Category ratelimit.Category
}

// DiscardedEvent is the number of items discarded for one OutcomeKey.
type DiscardedEvent struct {
	Reason   DiscardReason      `json:"reason"`
	Category ratelimit.Category `json:"category"`
	Quantity int64              `json:"quantity"`
}

// ClientReport is a snapshot of discarded items.
type ClientReport struct {
	Timestamp       time.Time        `json:"timestamp"`
	DiscardedEvents []DiscardedEvent `json:"discarded_events"`
}
