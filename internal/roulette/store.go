package roulette

import "context"

// Store is the persistence contract the core consumes. Records live under a
// tenant-scoped collection owned by the implementation; failures are expected
// to arrive wrapped in StoreError so they can be mapped for the UI.
type Store interface {
	// Create persists a validated submission in one atomic write and returns
	// the assigned identifier.
	Create(ctx context.Context, pending PendingResult) (string, error)
	// Query returns the records inside the window ordered by timestamp
	// ascending. Spin ranks are not populated; callers renumber.
	Query(ctx context.Context, window TimeWindow) ([]Result, error)
	// CountInWindow reports how many records fall inside the window.
	CountInWindow(ctx context.Context, window TimeWindow) (int, error)
	// UpdateNumber rewrites a record's number and sector in place.
	UpdateNumber(ctx context.Context, id string, number string, sector Sector) error
	// Subscribe delivers the full current matching set for the window, then
	// again after every change touching it, until cancel is called. Delivery
	// order is preserved per subscription.
	Subscribe(window TimeWindow, onChange func([]Result), onError func(error)) (cancel func(), err error)
	// Probe performs a lightweight read to classify the backend as reachable.
	Probe(ctx context.Context) error
}
