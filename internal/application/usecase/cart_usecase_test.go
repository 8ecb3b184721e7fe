// internal/application/usecase/cart_usecase_test.go
package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartdom "medicart/internal/domain/cart"
	meddom "medicart/internal/domain/medicine"
)

// ----------------------------
// fakes
// ----------------------------

// fakeGateway behaves like the remote cart store: Add/Remove mutate its
// server-side lines, List returns them. Like the real backend, List resolves
// display fields (name, price) from the catalog, not from the add request.
// Failures are scripted per medicine.
type fakeGateway struct {
	mu      sync.Mutex
	lines   []cartdom.LineItem
	catalog map[string]meddom.Medicine

	addCalls    []string // medicine ids, call order
	removeCalls []string
	listCalls   int

	failAdd    map[string]bool // Add fails (and is not applied) for these ids
	failRemove map[string]bool
	listErr    error

	listGate chan struct{} // when non-nil, List blocks until closed

	inFlight    int32
	maxInFlight int32
}

func newFakeGateway() *fakeGateway {
	g := &fakeGateway{
		catalog:    map[string]meddom.Medicine{},
		failAdd:    map[string]bool{},
		failRemove: map[string]bool{},
	}
	for _, m := range []meddom.Medicine{medA(), medB()} {
		g.catalog[m.ID] = m
	}
	return g
}

func (g *fakeGateway) enter() {
	n := atomic.AddInt32(&g.inFlight, 1)
	for {
		max := atomic.LoadInt32(&g.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&g.maxInFlight, max, n) {
			return
		}
	}
}

func (g *fakeGateway) leave() { atomic.AddInt32(&g.inFlight, -1) }

func (g *fakeGateway) List(ctx context.Context) ([]cartdom.LineItem, error) {
	g.enter()
	defer g.leave()

	if g.listGate != nil {
		<-g.listGate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make([]cartdom.LineItem, len(g.lines))
	copy(out, g.lines)
	return out, nil
}

func (g *fakeGateway) Add(ctx context.Context, medicineID string, qty int) error {
	g.enter()
	defer g.leave()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.addCalls = append(g.addCalls, medicineID)
	if g.failAdd[medicineID] {
		return errors.New("fake: add refused")
	}
	for i := range g.lines {
		if g.lines[i].Medicine.ID == medicineID {
			g.lines[i].Quantity += qty
			return nil
		}
	}
	med, ok := g.catalog[medicineID]
	if !ok {
		med = meddom.Medicine{ID: medicineID}
	}
	g.lines = append(g.lines, cartdom.LineItem{Medicine: med, Quantity: qty})
	return nil
}

func (g *fakeGateway) Remove(ctx context.Context, medicineID string) error {
	g.enter()
	defer g.leave()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeCalls = append(g.removeCalls, medicineID)
	if g.failRemove[medicineID] {
		return errors.New("fake: remove refused")
	}
	for i := range g.lines {
		if g.lines[i].Medicine.ID == medicineID {
			g.lines = append(g.lines[:i], g.lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (g *fakeGateway) snapshotAdds() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.addCalls))
	copy(out, g.addCalls)
	return out
}

func (g *fakeGateway) snapshotRemoves() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.removeCalls))
	copy(out, g.removeCalls)
	return out
}

func (g *fakeGateway) countListCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listCalls
}

type fakeGate struct{ authed atomic.Bool }

func (f *fakeGate) IsAuthenticated() bool { return f.authed.Load() }

type fakeNotifier struct {
	mu        sync.Mutex
	successes []string
	errs      []string
}

func (n *fakeNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *fakeNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, msg)
}

func (n *fakeNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errs)
}

func (n *fakeNotifier) successCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.successes)
}

// ----------------------------
// harness
// ----------------------------

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newEngine(t *testing.T) (*CartUsecase, *fakeGateway, *fakeGate, *fakeNotifier) {
	t.Helper()
	gw := newFakeGateway()
	gate := &fakeGate{}
	gate.authed.Store(true)
	notes := &fakeNotifier{}
	uc := NewCartUsecaseWithPacing(cartdom.NewStore(), gw, gate, notes, quietLog(), 0)
	return uc, gw, gate, notes
}

func waitSynced(t *testing.T, uc *CartUsecase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return uc.PendingOps() == 0 && !uc.Syncing()
	}, 3*time.Second, 5*time.Millisecond, "drain should finish")
}

func medA() meddom.Medicine {
	p := 3.5
	return meddom.Medicine{ID: "med-a", Name: "Paracetamol 500mg", Price: &p}
}

func medB() meddom.Medicine {
	p := 12.0
	return meddom.Medicine{ID: "med-b", Name: "Amoxicillin 250mg", Price: &p}
}

// ----------------------------
// operations
// ----------------------------

func TestAddItem_OptimisticVisibility(t *testing.T) {
	uc, _, _, notes := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 2))

	// visible immediately after return, before any server confirmation
	lines := uc.Store().Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "med-a", lines[0].Medicine.ID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 2, uc.Store().ItemCount())
	assert.Equal(t, 1, notes.successCount(), "success toast is optimistic")

	waitSynced(t, uc)
}

func TestAddItem_AccumulatesExistingLine(t *testing.T) {
	uc, _, _, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 2))
	require.NoError(t, uc.AddItem(ctx, medA(), 3))

	lines := uc.Store().Lines()
	require.Len(t, lines, 1, "accumulated, not duplicated")
	assert.Equal(t, 5, lines[0].Quantity)

	waitSynced(t, uc)
}

func TestAddItem_Unauthenticated(t *testing.T) {
	uc, gw, gate, notes := newEngine(t)
	gate.authed.Store(false)
	ctx := context.Background()

	err := uc.AddItem(ctx, medA(), 1)
	require.ErrorIs(t, err, cartdom.ErrNotAuthenticated)

	assert.Empty(t, uc.Store().Lines(), "no state change")
	assert.Equal(t, 1, notes.errorCount(), "user-visible error")
	assert.Equal(t, 0, uc.PendingOps())
	assert.Empty(t, gw.snapshotAdds(), "no network call made")
	assert.Equal(t, 0, gw.countListCalls())
}

func TestAddItem_MissingMedicineID(t *testing.T) {
	uc, gw, _, notes := newEngine(t)
	ctx := context.Background()

	err := uc.AddItem(ctx, meddom.Medicine{Name: "no id"}, 1)
	require.ErrorIs(t, err, cartdom.ErrInvalidMedicine)

	assert.Empty(t, uc.Store().Lines())
	assert.Equal(t, 1, notes.errorCount())
	assert.Empty(t, gw.snapshotAdds())
}

func TestUpdateQuantity_ZeroRemovesLine(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 5))
	waitSynced(t, uc)

	require.NoError(t, uc.UpdateQuantity(ctx, "med-a", 0))
	assert.Empty(t, uc.Store().Lines(), "update-to-zero equals remove")

	waitSynced(t, uc)
	assert.Contains(t, gw.snapshotRemoves(), "med-a")
}

func TestUpdateQuantity_EmitsRemoveThenAddPair(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 2))
	waitSynced(t, uc)

	require.NoError(t, uc.UpdateQuantity(ctx, "med-a", 7))

	line, ok := uc.Store().Find("med-a")
	require.True(t, ok)
	assert.Equal(t, 7, line.Quantity, "overwritten locally, immediately")

	waitSynced(t, uc)

	// no dedicated update endpoint: delete+recreate against the gateway
	assert.Equal(t, []string{"med-a"}, gw.snapshotRemoves())
	assert.Equal(t, []string{"med-a", "med-a"}, gw.snapshotAdds())

	// server converged to the new quantity
	gw.mu.Lock()
	require.Len(t, gw.lines, 1)
	assert.Equal(t, 7, gw.lines[0].Quantity)
	gw.mu.Unlock()
}

func TestUpdateQuantity_AbsentLine(t *testing.T) {
	uc, _, _, notes := newEngine(t)
	ctx := context.Background()

	err := uc.UpdateQuantity(ctx, "ghost", 3)
	require.ErrorIs(t, err, cartdom.ErrLineNotFound)
	assert.Equal(t, 1, notes.errorCount())
	assert.Equal(t, 0, uc.PendingOps())
}

func TestUpdateQuantity_NegativeRejected(t *testing.T) {
	uc, _, _, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 2))
	err := uc.UpdateQuantity(ctx, "med-a", -1)
	require.ErrorIs(t, err, cartdom.ErrInvalidMedicine)

	line, _ := uc.Store().Find("med-a")
	assert.Equal(t, 2, line.Quantity, "no state change")

	waitSynced(t, uc)
}

func TestRemoveItem_AbsentIsHarmlessNoop(t *testing.T) {
	uc, gw, _, notes := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.RemoveItem(ctx, "ghost"))

	assert.Equal(t, 0, notes.successCount(), "no toast without a match")
	assert.Equal(t, 0, uc.PendingOps(), "no remote removal enqueued")
	assert.Empty(t, gw.snapshotRemoves())
}

func TestRemoveItem_NamesRemovedItem(t *testing.T) {
	uc, gw, _, notes := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 1))
	waitSynced(t, uc)

	require.NoError(t, uc.RemoveItem(ctx, "med-a"))
	assert.Empty(t, uc.Store().Lines())

	notes.mu.Lock()
	assert.Contains(t, notes.successes[len(notes.successes)-1], "Paracetamol")
	notes.mu.Unlock()

	waitSynced(t, uc)
	assert.Equal(t, []string{"med-a"}, gw.snapshotRemoves())
}

func TestClear_EnqueuesRemovePerLineInOrder(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 1))
	require.NoError(t, uc.AddItem(ctx, medB(), 2))
	waitSynced(t, uc)

	require.NoError(t, uc.Clear(ctx))
	assert.Empty(t, uc.Store().Lines(), "emptied immediately")

	waitSynced(t, uc)
	assert.Equal(t, []string{"med-a", "med-b"}, gw.snapshotRemoves(), "original line order")
}

func TestClearAfterCheckout_NoRemoteOps(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 1))
	waitSynced(t, uc)
	uc.Store().SetErr("stale")

	removesBefore := len(gw.snapshotRemoves())
	uc.ClearAfterCheckout()

	assert.Empty(t, uc.Store().Lines())
	assert.Empty(t, uc.Store().Err(), "error flag reset")
	assert.Equal(t, 0, uc.PendingOps())
	assert.Len(t, gw.snapshotRemoves(), removesBefore, "server cart already emptied by order placement")
}

func TestClearAfterCheckout_WorksWhileSignedOut(t *testing.T) {
	uc, _, gate, notes := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 1))
	waitSynced(t, uc)

	// the session token can expire between order placement and cleanup;
	// the local-only clear must still go through
	gate.authed.Store(false)
	uc.ClearAfterCheckout()

	assert.Empty(t, uc.Store().Lines())
	assert.Empty(t, uc.Store().Err())
	assert.Equal(t, 0, notes.errorCount(), "no sign-in prompt for a local cleanup")
}

// ----------------------------
// initialize / refresh
// ----------------------------

func TestInitialize_PopulatesFromGateway(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	gw.lines = []cartdom.LineItem{
		{Medicine: meddom.Medicine{ID: "med-a", Name: "A"}, Quantity: 2},
		{Medicine: meddom.Medicine{}, Quantity: 9}, // malformed: filtered
	}

	require.NoError(t, uc.Initialize(context.Background()))

	lines := uc.Store().Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "med-a", lines[0].Medicine.ID)
}

func TestInitialize_Unauthenticated(t *testing.T) {
	uc, gw, gate, _ := newEngine(t)
	gate.authed.Store(false)

	require.NoError(t, uc.Initialize(context.Background()))
	assert.Empty(t, uc.Store().Lines())
	assert.Equal(t, 0, gw.countListCalls(), "no fetch when signed out")
}

func TestInitialize_SingleFlight(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	gw.listGate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- uc.Initialize(context.Background()) }()

	// wait until the first fetch is actually in flight
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&gw.inFlight) == 1
	}, time.Second, time.Millisecond)

	// second call while loading: returns without starting another fetch
	require.NoError(t, uc.Initialize(context.Background()))

	close(gw.listGate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gw.countListCalls())
}

func TestInitialize_FetchFailure(t *testing.T) {
	uc, gw, _, notes := newEngine(t)
	gw.listErr = errors.New("backend down")

	err := uc.Initialize(context.Background())
	require.Error(t, err)

	assert.Empty(t, uc.Store().Lines(), "store becomes empty")
	assert.NotEmpty(t, uc.Store().Err(), "error flag set")
	assert.Equal(t, 1, notes.errorCount(), "user notified")
}

func TestForceRefresh_BypassesSingleFlightGuard(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	gw.lines = []cartdom.LineItem{
		{Medicine: meddom.Medicine{ID: "med-b"}, Quantity: 4},
	}

	// local drift
	uc.Store().Replace([]cartdom.LineItem{
		{Medicine: meddom.Medicine{ID: "med-a"}, Quantity: 1},
	})

	require.NoError(t, uc.ForceRefresh(context.Background()))

	lines := uc.Store().Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "med-b", lines[0].Medicine.ID)
	assert.Equal(t, 4, lines[0].Quantity)
}

// ----------------------------
// sync driver
// ----------------------------

func TestDrain_SingleFlight_NoOverlappingCalls(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, uc.AddItem(ctx, medA(), 1))
	}

	waitSynced(t, uc)

	adds := gw.snapshotAdds()
	assert.Len(t, adds, n, "every queued op executed exactly once")
	assert.LessOrEqual(t, atomic.LoadInt32(&gw.maxInFlight), int32(1),
		"one drain loop at a time: gateway calls never overlap")
}

func TestDrain_OpsStrictlyFIFO(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 1))
	require.NoError(t, uc.AddItem(ctx, medB(), 1))
	require.NoError(t, uc.RemoveItem(ctx, "med-a"))

	waitSynced(t, uc)

	assert.Equal(t, []string{"med-a", "med-b"}, gw.snapshotAdds())
	assert.Equal(t, []string{"med-a"}, gw.snapshotRemoves())
}

func TestDrain_ReconciliationOverwritesPartialFailure(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	ctx := context.Background()

	// the add for med-b will fail remotely and be discarded
	gw.failAdd["med-b"] = true

	require.NoError(t, uc.AddItem(ctx, medA(), 2))
	require.NoError(t, uc.AddItem(ctx, medB(), 5))

	// optimistic state shows both
	assert.Len(t, uc.Store().Lines(), 2)

	waitSynced(t, uc)

	// after reconciliation the store equals the server's cart exactly:
	// the failed med-b add is gone
	require.Eventually(t, func() bool {
		lines := uc.Store().Lines()
		return len(lines) == 1 && lines[0].Medicine.ID == "med-a" && lines[0].Quantity == 2
	}, 3*time.Second, 5*time.Millisecond)

	assert.Empty(t, uc.Store().Err())
}

func TestDrain_FailedOpDoesNotStopQueue(t *testing.T) {
	uc, gw, _, notes := newEngine(t)
	ctx := context.Background()

	gw.failAdd["med-a"] = true

	require.NoError(t, uc.AddItem(ctx, medA(), 1))
	require.NoError(t, uc.AddItem(ctx, medB(), 3))

	waitSynced(t, uc)

	assert.Equal(t, []string{"med-a", "med-b"}, gw.snapshotAdds(),
		"queue keeps draining past a failure")
	// sync failures are logged only, never surfaced as toasts
	assert.Equal(t, 0, notes.errorCount())
}

func TestDrain_LateEnqueueIsNotStranded(t *testing.T) {
	uc, _, _, _ := newEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, uc.AddItem(ctx, medA(), 1))
		require.NoError(t, uc.RemoveItem(ctx, "med-a"))
	}

	waitSynced(t, uc)
	assert.Equal(t, 0, uc.PendingOps())
}

func TestDrain_MixedBurstConvergesToServerCart(t *testing.T) {
	uc, gw, _, _ := newEngine(t)
	ctx := context.Background()

	// every med-b mutation is refused by the server
	gw.failAdd["med-b"] = true

	for i := 0; i < 10; i++ {
		require.NoError(t, uc.AddItem(ctx, medA(), 1))
		require.NoError(t, uc.AddItem(ctx, medB(), 1))
	}
	require.NoError(t, uc.RemoveItem(ctx, "med-a"))
	require.NoError(t, uc.AddItem(ctx, medA(), 3))

	waitSynced(t, uc)

	// the store converges to exactly the server's cart: the 10 failed med-b
	// adds are gone, the surviving med-a quantity reflects the applied ops,
	// and display fields come back resolved
	gw.mu.Lock()
	want := make([]cartdom.LineItem, len(gw.lines))
	copy(want, gw.lines)
	gw.mu.Unlock()

	require.Len(t, want, 1)
	assert.Equal(t, "med-a", want[0].Medicine.ID)
	assert.Equal(t, 3, want[0].Quantity)
	assert.Equal(t, want, uc.Store().Lines())

	got, ok := uc.Store().Find("med-a")
	require.True(t, ok)
	assert.Equal(t, "Paracetamol 500mg", got.Medicine.Name)

	assert.LessOrEqual(t, atomic.LoadInt32(&gw.maxInFlight), int32(1))
}

func TestReconcile_FailureSetsFlagKeepsLocalState(t *testing.T) {
	uc, gw, _, notes := newEngine(t)
	ctx := context.Background()

	require.NoError(t, uc.AddItem(ctx, medA(), 2))
	waitSynced(t, uc)
	require.Len(t, uc.Store().Lines(), 1)

	// backend goes away: the queued remove fails AND reconciliation fails
	gw.mu.Lock()
	gw.listErr = errors.New("backend outage")
	gw.mu.Unlock()
	gw.failRemove["med-a"] = true

	require.NoError(t, uc.RemoveItem(ctx, "med-a"))

	require.Eventually(t, func() bool {
		return uc.Store().Err() != "" && !uc.Syncing()
	}, 10*time.Second, 10*time.Millisecond, "error flag after bounded retries")

	assert.GreaterOrEqual(t, notes.errorCount(), 1, "could-not-refresh surfaced")
	// local optimistic state kept (empty after the remove) rather than
	// clobbered by a failed fetch
	assert.Empty(t, uc.Store().Lines())
}
