// internal/application/usecase/sync_driver.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	cartdom "medicart/internal/domain/cart"
)

// reconcileMaxRetries bounds the backoff retry around the post-drain
// authoritative fetch. Individual queued mutations are NEVER retried — the
// reconciliation fetch is the backstop, so it alone gets a second chance.
const reconcileMaxRetries = 3

// pendingOp is one deferred server-bound mutation. Parameterless by the time
// it sits in the queue: everything it needs is captured at enqueue time.
// Consumed exactly once (success or failure) and then discarded.
type pendingOp struct {
	id   string // uuid, log correlation only
	kind string // "add:<medicineId>" etc., for log readability
	run  func(ctx context.Context) error
}

// opQueue is the FIFO mutation queue. Enqueue never blocks.
type opQueue struct {
	mu  sync.Mutex
	ops []pendingOp
}

func (q *opQueue) push(op pendingOp) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
}

func (q *opQueue) pop() (pendingOp, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return pendingOp{}, false
	}
	op := q.ops[0]
	q.ops = q.ops[1:]
	return op, true
}

func (q *opQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// ----------------------------
// Sync driver
// ----------------------------

func (uc *CartUsecase) enqueue(kind string, run func(ctx context.Context) error) {
	uc.queue.push(pendingOp{
		id:   uuid.NewString(),
		kind: kind,
		run:  run,
	})
}

// kick starts the drain loop unless one is already active (single-flight).
// A mutation arriving mid-drain simply lands on the queue the active loop is
// consuming; it never spawns a second loop.
func (uc *CartUsecase) kick() {
	if !uc.draining.CompareAndSwap(false, true) {
		return
	}
	// detached: callers return immediately after the optimistic local update
	go uc.drain(context.Background())
}

// drain consumes the queue head-first, one operation at a time, with fixed
// pacing between operations, then reconciles against the server.
func (uc *CartUsecase) drain(ctx context.Context) {
	for {
		for {
			op, ok := uc.queue.pop()
			if !ok {
				break
			}

			if err := op.run(ctx); err != nil {
				// best effort: log and discard, keep draining.
				// The UI already showed the optimistic result; the
				// reconciliation fetch below heals any divergence.
				uc.log.WithError(err).
					WithField("op", op.kind).
					WithField("opId", op.id).
					Warn("cart sync operation failed (discarded)")
			}

			if uc.pacing > 0 {
				time.Sleep(uc.pacing)
			}
		}

		uc.reconcile(ctx)

		uc.draining.Store(false)

		// 取りこぼし防止: フラグを下ろした直後に積まれた op を拾い直す。
		// (kick() の CAS に負けた enqueue がここで救済される)
		if uc.queue.size() == 0 {
			return
		}
		if !uc.draining.CompareAndSwap(false, true) {
			return
		}
	}
}

// reconcile overwrites the local store with the server's authoritative cart.
// Malformed entries are filtered by Store.Replace. On persistent failure the
// error flag is set and local state is kept as-is — last-known optimistic
// state beats an empty screen.
func (uc *CartUsecase) reconcile(ctx context.Context) {
	var lines []cartdom.LineItem

	fetch := func() error {
		got, err := uc.gateway.List(ctx)
		if err != nil {
			return err
		}
		lines = got
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), reconcileMaxRetries)
	if err := backoff.Retry(fetch, backoff.WithContext(bo, ctx)); err != nil {
		uc.log.WithError(err).Error("cart reconciliation fetch failed")
		uc.store.SetErr(msgRefreshFailed)
		uc.notifier.Error(msgRefreshFailed)
		return
	}

	uc.store.Replace(lines)
	uc.store.ResetErr()
}

// PendingOps reports the number of queued, not-yet-synced operations.
// Exposed for the console and for tests; the UI does not poll this.
func (uc *CartUsecase) PendingOps() int {
	return uc.queue.size()
}

// Syncing reports whether a drain loop is currently active.
func (uc *CartUsecase) Syncing() bool {
	return uc.draining.Load()
}
