package clientreport

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ravenclient/raven-go/internal/ratelimit"
)

// Aggregator collects discarded event outcomes. It is safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	outcomes map[OutcomeKey]*atomic.Int64

	enabled atomic.Bool
}

// NewAggregator creates a new, enabled aggregator.
func NewAggregator() *Aggregator {
	a := &Aggregator{
		outcomes: make(map[OutcomeKey]*atomic.Int64),
	}
	a.enabled.Store(true)
	return a
}

// SetEnabled enables or disables outcome recording.
func (a *Aggregator) SetEnabled(enabled bool) {
	a.enabled.Store(enabled)
}

// RecordOutcome records quantity discarded items of the given category.
func (a *Aggregator) RecordOutcome(reason DiscardReason, category ratelimit.Category, quantity int64) {
	if !a.enabled.Load() || quantity <= 0 {
		return
	}

	key := OutcomeKey{Reason: reason, Category: category}

	a.mu.Lock()
	counter, exists := a.outcomes[key]
	if !exists {
		counter = &atomic.Int64{}
		a.outcomes[key] = counter
	}
	counter.Add(quantity)
	a.mu.Unlock()
}

// RecordOne records a single discarded item.
func (a *Aggregator) RecordOne(reason DiscardReason, category ratelimit.Category) {
	a.RecordOutcome(reason, category, 1)
}

// TakeReport takes all accumulated outcomes and resets the counters. It
// returns nil when nothing was discarded since the last call.
func (a *Aggregator) TakeReport() *ClientReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	var events []DiscardedEvent
	for key, counter := range a.outcomes {
		if quantity := counter.Swap(0); quantity > 0 {
			events = append(events, DiscardedEvent{
				Reason:   key.Reason,
				Category: key.Category,
				Quantity: quantity,
			})
		}
		delete(a.outcomes, key)
	}

	if len(events) == 0 {
		return nil
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Reason != events[j].Reason {
			return events[i].Reason < events[j].Reason
		}
		return events[i].Category < events[j].Category
	})

	return &ClientReport{
		Timestamp:       time.Now(),
		DiscardedEvents: events,
	}
}
