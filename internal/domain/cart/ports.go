// internal/domain/cart/ports.go
package cart

import "context"

// Gateway is the outbound port to the authoritative remote cart store
// (the pharmacy backend). Network latency and failure are opaque here.
//
// Contract notes:
//   - List returns the server's current cart; entries are NOT trusted and go
//     through defensive normalization before reaching the Store.
//   - There is no dedicated "update quantity" call — a quantity edit is
//     modeled as Remove followed by Add with the new quantity. Known
//     inefficiency (doubles the calls for an edit); it mirrors the backend
//     contract, not a choice made here.
type Gateway interface {
	List(ctx context.Context) ([]LineItem, error)
	Add(ctx context.Context, medicineID string, qty int) error
	Remove(ctx context.Context, medicineID string) error
}

// AuthGate answers "is there a signed-in customer right now".
// Readable synchronously at the start of every cart operation.
type AuthGate interface {
	IsAuthenticated() bool
}

// Notifier is the user-facing toast channel. Fire-and-forget: implementations
// must never block the caller and failures here are not part of any
// operation's return contract.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}
