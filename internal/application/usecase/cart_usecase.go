// internal/application/usecase/cart_usecase.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	cartdom "medicart/internal/domain/cart"
	meddom "medicart/internal/domain/medicine"
)

// DefaultSyncPacing is the fixed delay inserted between queued server-bound
// operations, to avoid bursting the backend during a drain.
const DefaultSyncPacing = 100 * time.Millisecond

// CartUsecase is the cart synchronization engine for one customer session.
//
// Data flow:
//
//	UI action → Store mutated immediately (optimistic, synchronous)
//	          → matching operation appended to the mutation queue
//	          → drain goroutine kicked (single-flight, at most one active)
//	          → queue drained FIFO against the Gateway, one op at a time
//	          → on queue exhaustion, one authoritative List() overwrites Store
//
// The final reconciliation fetch is the correctness mechanism: it heals any
// divergence left behind by discarded per-op failures.
type CartUsecase struct {
	store    *cartdom.Store
	gateway  cartdom.Gateway
	gate     cartdom.AuthGate
	notifier cartdom.Notifier
	log      *logrus.Entry

	queue  opQueue
	pacing time.Duration

	// single-flight flags (drain loop / initialize fetch)
	draining atomic.Bool
	fetching atomic.Bool
}

func NewCartUsecase(
	store *cartdom.Store,
	gateway cartdom.Gateway,
	gate cartdom.AuthGate,
	notifier cartdom.Notifier,
	log *logrus.Entry,
) *CartUsecase {
	return NewCartUsecaseWithPacing(store, gateway, gate, notifier, log, DefaultSyncPacing)
}

// NewCartUsecaseWithPacing is useful for tests (pacing 0 drains immediately).
func NewCartUsecaseWithPacing(
	store *cartdom.Store,
	gateway cartdom.Gateway,
	gate cartdom.AuthGate,
	notifier cartdom.Notifier,
	log *logrus.Entry,
	pacing time.Duration,
) *CartUsecase {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if pacing < 0 {
		pacing = 0
	}
	return &CartUsecase{
		store:    store,
		gateway:  gateway,
		gate:     gate,
		notifier: notifier,
		log:      log.WithField("component", "cart_usecase"),
		pacing:   pacing,
	}
}

// Store exposes the session's local cart store (read projections only are
// intended for the UI layer; mutations stay inside this engine).
func (uc *CartUsecase) Store() *cartdom.Store {
	return uc.store
}

// ----------------------------
// Public operations
// ----------------------------

// Initialize fetches the authoritative cart at session start.
//
// - unauthenticated: store becomes empty, no fetch, no error
// - a fetch already in flight: no-op (single-flight)
// - fetch failure: store empty + error flag + user notification
func (uc *CartUsecase) Initialize(ctx context.Context) error {
	if !uc.gate.IsAuthenticated() {
		uc.store.Clear()
		return nil
	}

	if !uc.fetching.CompareAndSwap(false, true) {
		// already loading — the in-flight fetch will populate the store
		return nil
	}
	defer uc.fetching.Store(false)

	lines, err := uc.gateway.List(ctx)
	if err != nil {
		uc.store.Clear()
		uc.store.SetErr(msgRefreshFailed)
		uc.notifier.Error(msgRefreshFailed)
		uc.log.WithError(err).Warn("initial cart fetch failed")
		return fmt.Errorf("cart_usecase: initialize: %w", err)
	}

	uc.store.Replace(lines)
	uc.store.ResetErr()
	return nil
}

// ForceRefresh unconditionally re-fetches and replaces local state,
// bypassing the Initialize single-flight guard. Used to resolve suspected
// drift outside the normal mutation path.
func (uc *CartUsecase) ForceRefresh(ctx context.Context) error {
	if !uc.gate.IsAuthenticated() {
		uc.store.Clear()
		return nil
	}

	lines, err := uc.gateway.List(ctx)
	if err != nil {
		uc.store.SetErr(msgRefreshFailed)
		uc.notifier.Error(msgRefreshFailed)
		uc.log.WithError(err).Warn("force refresh failed")
		return fmt.Errorf("cart_usecase: force refresh: %w", err)
	}

	uc.store.Replace(lines)
	uc.store.ResetErr()
	return nil
}

// AddItem applies the optimistic add (accumulate-or-append), notifies success
// immediately, and queues the remote add.
func (uc *CartUsecase) AddItem(ctx context.Context, med meddom.Medicine, qty int) error {
	if !uc.gate.IsAuthenticated() {
		uc.notifier.Error(msgSignInRequired)
		return cartdom.ErrNotAuthenticated
	}

	med = med.Normalized()
	if !med.HasID() || qty <= 0 {
		uc.notifier.Error(msgCannotAdd)
		return cartdom.ErrInvalidMedicine
	}

	uc.store.UpsertLine(med, qty)
	// optimistic: success is reported before server confirmation
	uc.notifier.Success(fmt.Sprintf("Added %s to your cart", displayName(med)))

	medicineID := med.ID
	uc.enqueue("add:"+medicineID, func(ctx context.Context) error {
		return uc.gateway.Add(ctx, medicineID, qty)
	})
	uc.kick()
	return nil
}

// UpdateQuantity overwrites the quantity of an existing line.
//
// - the line must already exist (absent → error, no state change)
// - qty < 0 is rejected; qty == 0 means delete
// - qty > 0 queues a remove-then-add pair: the gateway has no update call
func (uc *CartUsecase) UpdateQuantity(ctx context.Context, medicineID string, qty int) error {
	if !uc.gate.IsAuthenticated() {
		uc.notifier.Error(msgSignInRequired)
		return cartdom.ErrNotAuthenticated
	}

	id := strings.TrimSpace(medicineID)
	if id == "" || qty < 0 {
		uc.notifier.Error(msgCannotUpdate)
		return cartdom.ErrInvalidMedicine
	}

	line, ok := uc.store.Find(id)
	if !ok {
		uc.notifier.Error(msgCannotUpdate)
		return cartdom.ErrLineNotFound
	}

	if qty == 0 {
		uc.store.SetLineQty(id, 0)
		uc.notifier.Success(fmt.Sprintf("Removed %s from your cart", displayName(line.Medicine)))
		uc.enqueue("remove:"+id, func(ctx context.Context) error {
			return uc.gateway.Remove(ctx, id)
		})
		uc.kick()
		return nil
	}

	uc.store.SetLineQty(id, qty)
	uc.notifier.Success("Cart updated")

	newQty := qty
	uc.enqueue("update:"+id, func(ctx context.Context) error {
		// delete+recreate; one queued op so the pair can never interleave
		// with another queued mutation
		if err := uc.gateway.Remove(ctx, id); err != nil {
			return err
		}
		return uc.gateway.Add(ctx, id, newQty)
	})
	uc.kick()
	return nil
}

// RemoveItem removes the matching line if present. Removing what is not
// there is a harmless no-op: no error, no toast, and no remote call.
func (uc *CartUsecase) RemoveItem(ctx context.Context, medicineID string) error {
	if !uc.gate.IsAuthenticated() {
		uc.notifier.Error(msgSignInRequired)
		return cartdom.ErrNotAuthenticated
	}

	id := strings.TrimSpace(medicineID)
	if id == "" {
		return nil
	}

	removed, ok := uc.store.RemoveLine(id)
	if !ok {
		return nil
	}

	uc.notifier.Success(fmt.Sprintf("Removed %s from your cart", displayName(removed.Medicine)))
	uc.enqueue("remove:"+id, func(ctx context.Context) error {
		return uc.gateway.Remove(ctx, id)
	})
	uc.kick()
	return nil
}

// Clear empties the store and queues one remote remove per line that was
// present, in original line order.
func (uc *CartUsecase) Clear(ctx context.Context) error {
	if !uc.gate.IsAuthenticated() {
		uc.notifier.Error(msgSignInRequired)
		return cartdom.ErrNotAuthenticated
	}

	snapshot := uc.store.Lines()
	uc.store.Clear()
	uc.notifier.Success("Cart cleared")

	for _, line := range snapshot {
		medicineID := line.Medicine.ID
		uc.enqueue("remove:"+medicineID, func(ctx context.Context) error {
			return uc.gateway.Remove(ctx, medicineID)
		})
	}
	uc.kick()
	return nil
}

// ClearAfterCheckout empties the store and resets the error flag WITHOUT
// queuing any remote operation: order placement already emptied the
// server-side cart, so redundant removal calls are not issued.
//
// Unlike every other mutation this one is intentionally ungated. Its effect
// is local-only, and checkout completion may race a token refresh; blocking
// the cleanup on the gate would leave a stale cart on screen.
func (uc *CartUsecase) ClearAfterCheckout() {
	uc.store.Clear()
	uc.store.ResetErr()
}

// ----------------------------
// messages
// ----------------------------

const (
	msgSignInRequired = "Please sign in to manage your cart"
	msgCannotAdd      = "This item cannot be added to the cart"
	msgCannotUpdate   = "This item is not in your cart"
	msgRefreshFailed  = "Could not refresh your cart"
)

func displayName(m meddom.Medicine) string {
	if strings.TrimSpace(m.Name) != "" {
		return m.Name
	}
	return m.ID
}
